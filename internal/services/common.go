// Package services coordinates storage, validation and side effects for the
// API and the command line tools.
package services

import (
	"context"
	"time"

	"paylog/internal/core"
	"paylog/internal/storage"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Clock supplies the current instant and the location used to derive
// calendar dates such as "today".
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// SystemClock returns a wall clock in loc (UTC when nil).
func SystemClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return Clock{Now: time.Now, Location: loc}
}

func (c Clock) now() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return c.Now()
}

// Today is the current calendar date in the clock's location.
func (c Clock) Today() core.Date {
	loc := c.Location
	if loc == nil {
		loc = time.UTC
	}
	return core.DateOf(c.now().In(loc))
}

// PageRequest is a 1-based page number and a page size.
type PageRequest struct {
	Page int
	Size int
}

// normalize clamps the request into the accepted range.
func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.Size <= 0:
		p.Size = DefaultPageSize
	case p.Size > MaxPageSize:
		p.Size = MaxPageSize
	}
	return p
}

func (p PageRequest) storagePage() storage.Page {
	p = p.normalize()
	return storage.Page{Limit: p.Size, Offset: (p.Page - 1) * p.Size}
}

// PageInfo describes where a returned page sits in the full result set.
type PageInfo struct {
	Page    int
	Size    int
	Count   int64
	HasNext bool
	HasPrev bool
}

func pageInfo(p PageRequest, count int64) PageInfo {
	p = p.normalize()
	return PageInfo{
		Page:    p.Page,
		Size:    p.Size,
		Count:   count,
		HasNext: int64(p.Page*p.Size) < count,
		HasPrev: p.Page > 1,
	}
}

// BalancePublisher announces committed balance changes. Events are sent
// after commit and may arrive out of order; seq increases with every
// mutation of the user so consumers keep the highest one. Implementations
// must be safe for concurrent use.
type BalancePublisher interface {
	PublishBalanceChanged(ctx context.Context, userID, seq int64, b core.Balance) error
}
