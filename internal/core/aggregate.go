package core

import (
	"encoding/json"
	"sort"

	"github.com/shopspring/decimal"
)

// Entry is the part of a transaction the aggregation needs.
type Entry struct {
	ID        int64
	Direction Direction
	Amount    decimal.Decimal
	Currency  CurrencyRef
	Date      Date
}

// Balance is a signed total and the currency label of a representative row.
// A nil Currency means the aggregated set was empty, which is not the same as
// a set that nets to zero.
type Balance struct {
	Total    decimal.Decimal
	Currency *CurrencyRef
}

// Totals holds the unsigned income and expense subtotals of a set.
type Totals struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
}

func (t Transaction) Entry() Entry {
	return Entry{ID: t.ID, Direction: t.Direction, Amount: t.Amount, Currency: t.Currency, Date: t.Date}
}

func (t DebtorTransaction) Entry() Entry {
	return Entry{ID: t.ID, Direction: t.Direction, Amount: t.Amount, Currency: t.Currency, Date: t.Date}
}

// EmptyBalance is the aggregate of no rows.
func EmptyBalance() Balance {
	return Balance{Total: decimal.Zero}
}

// Aggregate sums +amount for INCOME and -amount for EXPENSE. The currency is
// taken from the most recent row by date, then id.
func Aggregate(entries []Entry) Balance {
	if len(entries) == 0 {
		return EmptyBalance()
	}
	total := decimal.Zero
	rep := entries[0]
	for _, e := range entries {
		total = total.Add(e.Direction.Signed(e.Amount))
		if newerThan(e, rep) {
			rep = e
		}
	}
	cur := rep.Currency
	return Balance{Total: total.Round(AmountScale), Currency: &cur}
}

// SplitTotals sums income and expense amounts separately.
func SplitTotals(entries []Entry) Totals {
	t := Totals{Income: decimal.Zero, Expense: decimal.Zero}
	for _, e := range entries {
		switch e.Direction {
		case Income:
			t.Income = t.Income.Add(e.Amount)
		case Expense:
			t.Expense = t.Expense.Add(e.Amount)
		}
	}
	return t
}

// EntriesOf converts any slice of rows that expose Entry.
func EntriesOf[T interface{ Entry() Entry }](rows []T) []Entry {
	out := make([]Entry, len(rows))
	for i, r := range rows {
		out[i] = r.Entry()
	}
	return out
}

// SortRecentFirst orders entries by date desc, id desc, the order every
// listing and the representative-row choice use.
func SortRecentFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return newerThan(entries[i], entries[j]) })
}

func newerThan(a, b Entry) bool {
	if !a.Date.Equal(b.Date.Time) {
		return a.Date.After(b.Date)
	}
	return a.ID > b.ID
}

// Empty reports whether the balance came from an empty set.
func (b Balance) Empty() bool {
	return b.Currency == nil
}

func (b Balance) MarshalJSON() ([]byte, error) {
	var cur *string
	if b.Currency != nil {
		code := b.Currency.Code
		cur = &code
	}
	return json.Marshal(struct {
		Balance  string  `json:"balance"`
		Currency *string `json:"currency"`
	}{FormatAmount(b.Total), cur})
}

func (t Totals) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Income  string `json:"income_total"`
		Expense string `json:"expense_total"`
	}{FormatAmount(t.Income), FormatAmount(t.Expense)})
}
