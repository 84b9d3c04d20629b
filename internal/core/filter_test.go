package core

import (
	"errors"
	"testing"
)

func fieldOf(t *testing.T, err error) string {
	t.Helper()
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	for k := range ve.Fields {
		return k
	}
	return ""
}

func TestResolveFilterRejects(t *testing.T) {
	today := NewDate(2025, 1, 10)
	cases := []struct {
		name  string
		p     FilterParams
		field string
	}{
		{"period with from", FilterParams{Period: "daily", From: "2025-01-01"}, "period"},
		{"period with to", FilterParams{Period: "weekly", To: "2025-01-01"}, "period"},
		{"unknown period", FilterParams{Period: "yearly"}, "period"},
		{"bad from", FilterParams{From: "2025-13-01"}, "from"},
		{"bad to", FilterParams{To: "yesterday"}, "to"},
		{"bad type", FilterParams{Type: "income"}, "type"},
		{"bad category", FilterParams{CategoryID: "abc"}, "categoryId"},
		{"negative category", FilterParams{CategoryID: "-1"}, "categoryId"},
		{"bad currency", FilterParams{CurrencyID: "1.5"}, "currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ResolveFilter(tc.p, today)
			if err == nil {
				t.Fatalf("expected error")
			}
			if got := fieldOf(t, err); got != tc.field {
				t.Fatalf("field: got %q want %q", got, tc.field)
			}
		})
	}
}

func TestResolveFilterUnknownPeriodNamesValues(t *testing.T) {
	_, err := ResolveFilter(FilterParams{Period: "yearly"}, NewDate(2025, 1, 10))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if msg := ve.Fields["period"]; msg != "Invalid period. Use daily, weekly, or monthly." {
		t.Fatalf("got %q", msg)
	}
}

func TestResolveFilterWeekly(t *testing.T) {
	f, err := ResolveFilter(FilterParams{Period: "Weekly"}, NewDate(2025, 1, 10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for day := 4; day <= 10; day++ {
		if !f.Contains(NewDate(2025, 1, day)) {
			t.Fatalf("expected 2025-01-%02d included", day)
		}
	}
	if f.Contains(NewDate(2025, 1, 3)) {
		t.Fatalf("2025-01-03 must be excluded")
	}
	if f.Contains(NewDate(2025, 1, 11)) {
		t.Fatalf("2025-01-11 must be excluded")
	}
}

func TestResolveFilterDailyAndMonthly(t *testing.T) {
	today := NewDate(2024, 2, 15)

	f, err := ResolveFilter(FilterParams{Period: "DAILY"}, today)
	if err != nil {
		t.Fatal(err)
	}
	if !f.Contains(today) || f.Contains(today.AddDays(-1)) || f.Contains(today.AddDays(1)) {
		t.Fatalf("daily bounds wrong: %s..%s", f.From, f.To)
	}

	f, err = ResolveFilter(FilterParams{Period: "monthly"}, today)
	if err != nil {
		t.Fatal(err)
	}
	if f.From.String() != "2024-02-01" || f.To.String() != "2024-02-29" {
		t.Fatalf("monthly bounds: %s..%s", f.From, f.To)
	}
	if f.Contains(NewDate(2024, 3, 1)) || f.Contains(NewDate(2024, 1, 31)) {
		t.Fatalf("monthly leaks outside the month")
	}
}

func TestResolveFilterExplicitBounds(t *testing.T) {
	f, err := ResolveFilter(FilterParams{From: "2025-01-01", To: "2025-01-31", Type: "EXPENSE", CategoryID: "3", CurrencyID: "2"}, NewDate(2025, 6, 1))
	if err != nil {
		t.Fatal(err)
	}
	if f.Direction != Expense || f.CategoryID != 3 || f.CurrencyID != 2 {
		t.Fatalf("got %+v", f)
	}
	match := Transaction{Direction: Expense, CategoryID: 3, CurrencyID: 2, Date: NewDate(2025, 1, 31)}
	if !f.Match(match) {
		t.Fatalf("expected inclusive upper bound to match")
	}
	other := match
	other.CategoryID = 4
	if f.Match(other) {
		t.Fatalf("category filter ignored")
	}
	other = match
	other.Direction = Income
	if f.Match(other) {
		t.Fatalf("type filter ignored")
	}

	onlyFrom, err := ResolveFilter(FilterParams{From: "2025-01-05"}, NewDate(2025, 6, 1))
	if err != nil {
		t.Fatal(err)
	}
	if onlyFrom.To != nil || !onlyFrom.Contains(NewDate(2030, 1, 1)) {
		t.Fatalf("open upper bound expected")
	}
}

func TestParseID(t *testing.T) {
	if id, err := ParseID("42"); err != nil || id != 42 {
		t.Fatalf("got %d, %v", id, err)
	}
	for _, bad := range []string{"", "0", "-3", "x1", "99999999999999999999"} {
		if _, err := ParseID(bad); !errors.Is(err, ErrInvalidID) {
			t.Fatalf("%q: expected ErrInvalidID, got %v", bad, err)
		}
	}
}
