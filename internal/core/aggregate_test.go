package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

var (
	usd = CurrencyRef{ID: 1, Code: "USD"}
	uzs = CurrencyRef{ID: 2, Code: "UZS"}
)

func entry(id int64, dir Direction, amount string, cur CurrencyRef, date Date) Entry {
	return Entry{ID: id, Direction: dir, Amount: decimal.RequireFromString(amount), Currency: cur, Date: date}
}

func TestAggregateEmptyIsDistinctFromZero(t *testing.T) {
	empty := Aggregate(nil)
	if !empty.Empty() || !empty.Total.IsZero() {
		t.Fatalf("empty: got %+v", empty)
	}

	d := NewDate(2025, 1, 1)
	zero := Aggregate([]Entry{
		entry(1, Income, "10.00", usd, d),
		entry(2, Expense, "10.00", usd, d),
	})
	if zero.Empty() {
		t.Fatalf("netted zero must carry a currency")
	}
	if !zero.Total.IsZero() || zero.Currency.Code != "USD" {
		t.Fatalf("zero: got %+v", zero)
	}

	eb, _ := json.Marshal(empty)
	zb, _ := json.Marshal(zero)
	if string(eb) != `{"balance":"0.00","currency":null}` {
		t.Fatalf("empty json: %s", eb)
	}
	if string(zb) != `{"balance":"0.00","currency":"USD"}` {
		t.Fatalf("zero json: %s", zb)
	}
}

func TestAggregateSignedSum(t *testing.T) {
	d := NewDate(2025, 1, 1)
	b := Aggregate([]Entry{
		entry(1, Income, "0.10", usd, d),
		entry(2, Income, "0.20", usd, d),
		entry(3, Expense, "0.05", usd, d),
		entry(4, Expense, "100.00", usd, d),
	})
	if want := decimal.RequireFromString("-99.75"); !b.Total.Equal(want) {
		t.Fatalf("got %s want %s", b.Total, want)
	}
	if FormatAmount(b.Total) != "-99.75" {
		t.Fatalf("format: %s", FormatAmount(b.Total))
	}
}

func TestAggregateRepresentativeCurrency(t *testing.T) {
	b := Aggregate([]Entry{
		entry(1, Income, "1.00", usd, NewDate(2025, 1, 1)),
		entry(2, Income, "1.00", uzs, NewDate(2025, 1, 3)),
		entry(3, Income, "1.00", usd, NewDate(2025, 1, 2)),
	})
	if b.Currency.Code != "UZS" {
		t.Fatalf("expected most recent row's currency, got %s", b.Currency.Code)
	}

	same := NewDate(2025, 1, 1)
	b = Aggregate([]Entry{
		entry(9, Income, "1.00", uzs, same),
		entry(4, Income, "1.00", usd, same),
	})
	if b.Currency.Code != "UZS" {
		t.Fatalf("expected highest id on tie, got %s", b.Currency.Code)
	}
}

func TestSplitTotals(t *testing.T) {
	if got, _ := json.Marshal(SplitTotals(nil)); string(got) != `{"income_total":"0.00","expense_total":"0.00"}` {
		t.Fatalf("empty totals: %s", got)
	}
	d := NewDate(2025, 1, 1)
	tot := SplitTotals([]Entry{
		entry(1, Income, "5.50", usd, d),
		entry(2, Income, "4.50", usd, d),
		entry(3, Expense, "3.33", usd, d),
	})
	if FormatAmount(tot.Income) != "10.00" || FormatAmount(tot.Expense) != "3.33" {
		t.Fatalf("got %+v", tot)
	}
}

func TestEntriesOf(t *testing.T) {
	txs := []DebtorTransaction{
		{ID: 1, Direction: Income, Amount: decimal.NewFromInt(3), Currency: usd, Date: NewDate(2025, 1, 1)},
		{ID: 2, Direction: Expense, Amount: decimal.NewFromInt(1), Currency: usd, Date: NewDate(2025, 1, 2)},
	}
	b := Aggregate(EntriesOf(txs))
	if FormatAmount(b.Total) != "2.00" {
		t.Fatalf("got %s", b.Total)
	}
}

func TestSortRecentFirst(t *testing.T) {
	es := []Entry{
		entry(1, Income, "1", usd, NewDate(2025, 1, 1)),
		entry(3, Income, "1", usd, NewDate(2025, 1, 2)),
		entry(2, Income, "1", usd, NewDate(2025, 1, 2)),
	}
	SortRecentFirst(es)
	if es[0].ID != 3 || es[1].ID != 2 || es[2].ID != 1 {
		t.Fatalf("got order %d %d %d", es[0].ID, es[1].ID, es[2].ID)
	}
}
