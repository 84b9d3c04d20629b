package core

import (
	"strconv"
	"strings"
)

// Period keywords accepted by ResolveFilter.
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
)

// FilterParams are the raw query values of a transaction listing.
type FilterParams struct {
	Period     string
	From       string
	To         string
	Type       string
	CategoryID string
	CurrencyID string
}

// TransactionFilter is a validated predicate set. Zero fields do not
// constrain; all set fields compose by AND. Date bounds are inclusive.
type TransactionFilter struct {
	From       *Date
	To         *Date
	Direction  Direction
	CategoryID int64
	CurrencyID int64
}

// ResolveFilter validates p and turns it into a TransactionFilter relative to
// today. Period and from/to are mutually exclusive.
func ResolveFilter(p FilterParams, today Date) (TransactionFilter, error) {
	var f TransactionFilter

	if p.Type != "" {
		d, err := ParseDirection(p.Type)
		if err != nil {
			return f, NewFieldError("type", "Invalid transaction type.")
		}
		f.Direction = d
	}
	if p.CategoryID != "" {
		id, ok := parseID(p.CategoryID)
		if !ok {
			return f, NewFieldError("categoryId", "Invalid category id.")
		}
		f.CategoryID = id
	}
	if p.CurrencyID != "" {
		id, ok := parseID(p.CurrencyID)
		if !ok {
			return f, NewFieldError("currency", "Invalid currency id.")
		}
		f.CurrencyID = id
	}

	if p.Period != "" && (p.From != "" || p.To != "") {
		return f, NewFieldError("period", "Cannot combine period with from/to filters.")
	}

	if p.Period != "" {
		from, to, err := PeriodRange(p.Period, today)
		if err != nil {
			return f, err
		}
		f.From, f.To = &from, &to
	}
	if p.From != "" {
		d, err := ParseDate(p.From)
		if err != nil {
			return f, NewFieldError("from", "Invalid from date.")
		}
		f.From = &d
	}
	if p.To != "" {
		d, err := ParseDate(p.To)
		if err != nil {
			return f, NewFieldError("to", "Invalid to date.")
		}
		f.To = &d
	}
	return f, nil
}

// PeriodRange returns the inclusive date range of a period keyword.
func PeriodRange(period string, today Date) (Date, Date, error) {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case PeriodDaily:
		return today, today, nil
	case PeriodWeekly:
		return today.AddDays(-6), today, nil
	case PeriodMonthly:
		first := NewDate(today.Year(), int(today.Month()), 1)
		return first, first.addMonths(1).AddDays(-1), nil
	default:
		return Date{}, Date{}, NewFieldError("period", "Invalid period. Use daily, weekly, or monthly.")
	}
}

func (d Date) addMonths(n int) Date {
	return Date{Time: d.Time.AddDate(0, n, 0)}
}

// Contains reports whether d falls inside the date bounds of f.
func (f TransactionFilter) Contains(d Date) bool {
	if f.From != nil && d.Before(*f.From) {
		return false
	}
	if f.To != nil && d.After(*f.To) {
		return false
	}
	return true
}

// Match applies every predicate of f to a single entry.
func (f TransactionFilter) Match(t Transaction) bool {
	if f.Direction != "" && t.Direction != f.Direction {
		return false
	}
	if f.CategoryID != 0 && t.CategoryID != f.CategoryID {
		return false
	}
	if f.CurrencyID != 0 && t.CurrencyID != f.CurrencyID {
		return false
	}
	return f.Contains(t.Date)
}

func parseID(s string) (int64, bool) {
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// ParseID parses a path or query identifier.
func ParseID(s string) (int64, error) {
	id, ok := parseID(strings.TrimSpace(s))
	if !ok {
		return 0, ErrInvalidID
	}
	return id, nil
}
