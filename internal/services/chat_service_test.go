package services

import (
	"context"
	"testing"
	"time"

	"paylog/internal/core"
)

func TestChatListPutsNotebookFirst(t *testing.T) {
	s := openTestStore(t)
	clk := &testClock{t: testNow}
	chats := NewChatService(s, clk.clock())
	debts := NewDebtorService(s, NewBalanceService(s, clk.clock()), nil, clk.clock())
	ctx := context.Background()
	user := mustUser(t, s, "+998901112233")
	uzs, _ := s.Queries().GetCurrencyByCode(ctx, "UZS")

	if _, err := chats.CreateDebtor(ctx, user, core.NewDebtorChat{FullName: "Ali", Phone: "+998900000001"}); err != nil {
		t.Fatal(err)
	}
	clk.advance(time.Second)
	if _, err := chats.CreateDebtor(ctx, user, core.NewDebtorChat{FullName: "Vali", Phone: "+998900000002"}); err != nil {
		t.Fatal(err)
	}
	clk.advance(time.Second)
	if _, err := debts.Create(ctx, user, debtorTx(core.Expense, "12.00", uzs, "+998900000001")); err != nil {
		t.Fatal(err)
	}

	entries, err := chats.List(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Kind() != core.ChatPayNote {
		t.Fatalf("first entry kind = %s", entries[0].Kind())
	}
	first, ok := entries[1].(core.DebtorEntry)
	if !ok || first.Chat.FullName != "Ali" {
		t.Fatalf("most recently touched debtor should come first, got %+v", entries[1])
	}
	if got := core.FormatAmount(first.Balance.Total); got != "-12.00" {
		t.Errorf("Ali balance = %s", got)
	}
	if second := entries[2].(core.DebtorEntry); !second.Balance.Empty() {
		t.Errorf("Vali should have an empty balance, got %+v", second.Balance)
	}

	again, err := chats.List(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if again[0].(core.PayNoteEntry).Chat.ID != entries[0].(core.PayNoteEntry).Chat.ID {
		t.Error("notebook chat must be created once")
	}
}

func TestChatGet(t *testing.T) {
	s := openTestStore(t)
	clk := &testClock{t: testNow}
	chats := NewChatService(s, clk.clock())
	debts := NewDebtorService(s, NewBalanceService(s, clk.clock()), nil, clk.clock())
	ctx := context.Background()
	user := mustUser(t, s, "+998901112233")
	uzs, _ := s.Queries().GetCurrencyByCode(ctx, "UZS")

	// Both tables start at id 1, so the first notebook and the first debtor
	// chat share an id.
	entries, err := chats.List(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	paynoteID := entries[0].(core.PayNoteEntry).Chat.ID
	debtor, err := chats.CreateDebtor(ctx, user, core.NewDebtorChat{FullName: "Ali", Phone: "+998900000001"})
	if err != nil {
		t.Fatal(err)
	}
	if debtor.Chat.ID != paynoteID {
		t.Fatalf("fixture expects shared ids, got %d and %d", paynoteID, debtor.Chat.ID)
	}
	for _, tx := range []core.DebtorTransaction{
		debtorTx(core.Income, "50.00", uzs, "+998900000001"),
		debtorTx(core.Expense, "20.00", uzs, "+998900000001"),
		debtorTx(core.Expense, "99.00", uzs, "+998900000009"),
	} {
		if _, err := debts.Create(ctx, user, tx); err != nil {
			t.Fatal(err)
		}
	}

	_, err = chats.Get(ctx, user, paynoteID, "")
	expectKind(t, err, core.ErrValidation)

	d, err := chats.Get(ctx, user, paynoteID, core.ChatPayNote)
	if err != nil || d.Kind() != core.ChatPayNote {
		t.Fatalf("paynote get: %+v, %v", d, err)
	}

	d, err = chats.Get(ctx, user, debtor.Chat.ID, core.ChatDebtor)
	if err != nil {
		t.Fatal(err)
	}
	if d.Debtor == nil {
		t.Fatal("expected debtor detail")
	}
	if len(d.Debtor.Transactions) != 2 {
		t.Errorf("got %d transactions, want only the chat phone's 2", len(d.Debtor.Transactions))
	}
	if core.FormatAmount(d.Debtor.Totals.Income) != "50.00" || core.FormatAmount(d.Debtor.Totals.Expense) != "20.00" {
		t.Errorf("totals = %+v", d.Debtor.Totals)
	}
	if core.FormatAmount(d.Debtor.Balance.Total) != "30.00" {
		t.Errorf("balance = %s", core.FormatAmount(d.Debtor.Balance.Total))
	}

	_, err = chats.Get(ctx, user, 404, "")
	expectKind(t, err, core.ErrNotFound)

	other := mustUser(t, s, "+998908888888")
	_, err = chats.Get(ctx, other, debtor.Chat.ID, core.ChatDebtor)
	expectKind(t, err, core.ErrNotFound)
}

func TestChatCreateDebtor(t *testing.T) {
	s := openTestStore(t)
	clk := &testClock{t: testNow}
	chats := NewChatService(s, clk.clock())
	ctx := context.Background()
	user := mustUser(t, s, "+998901112233")

	entry, err := chats.CreateDebtor(ctx, user, core.NewDebtorChat{FullName: "  Ali  ", Phone: "+998900000001"})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Chat.FullName != "Ali" {
		t.Errorf("full name = %q", entry.Chat.FullName)
	}
	if !entry.Balance.Empty() {
		t.Errorf("new debtor balance = %+v", entry.Balance)
	}

	_, err = chats.CreateDebtor(ctx, user, core.NewDebtorChat{FullName: "Ali again", Phone: "+998900000001"})
	expectKind(t, err, core.ErrConflict)

	_, err = chats.CreateDebtor(ctx, user, core.NewDebtorChat{FullName: "", Phone: "x"})
	expectKind(t, err, core.ErrValidation)

	other := mustUser(t, s, "+998908888888")
	if _, err := chats.CreateDebtor(ctx, other, core.NewDebtorChat{FullName: "Ali", Phone: "+998900000001"}); err != nil {
		t.Errorf("same phone for another owner should be allowed: %v", err)
	}
}
