package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/storage"
)

var testNow = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

// testClock is a settable clock shared by every service of a test.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func (c *testClock) clock() Clock {
	return Clock{Now: c.now, Location: time.UTC}
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(context.Background(), storage.Options{
		Dialect:    storage.SQLite,
		SQLitePath: filepath.Join(t.TempDir(), "paylog.db"),
	})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustUser(t *testing.T, s *storage.Store, phone string) int64 {
	t.Helper()
	id, err := s.Queries().CreateUser(context.Background(), core.User{Phone: phone, IsActive: true, DateJoined: testNow})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

func mustCurrency(t *testing.T, s *storage.Store, code string, active bool) core.Currency {
	t.Helper()
	c, err := s.Queries().CreateCurrency(context.Background(), code, code+" name", active, testNow)
	if err != nil {
		t.Fatalf("create currency: %v", err)
	}
	return c
}

func mustCategory(t *testing.T, s *storage.Store, en string) core.Category {
	t.Helper()
	c := core.Category{NameEn: en, NameUz: en + " uz", NameRu: en + " ru"}
	c.SyncName()
	out, err := s.Queries().CreateCategory(context.Background(), c, testNow)
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	return out
}

func amt(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func strPtr(s string) *string { return &s }

func expectKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

// recordingPublisher collects published balances and their sequence
// numbers.
type recordingPublisher struct {
	mu     sync.Mutex
	events []core.Balance
	seqs   []int64
	err    error
}

func (p *recordingPublisher) PublishBalanceChanged(_ context.Context, _, seq int64, b core.Balance) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, b)
	p.seqs = append(p.seqs, seq)
	return p.err
}

func (p *recordingPublisher) last() core.Balance {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.events[len(p.events)-1]
}
