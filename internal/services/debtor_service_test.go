package services

import (
	"context"
	"fmt"
	"testing"

	"golang.org/x/sync/errgroup"

	"paylog/internal/core"
)

func newDebtorFixture(t *testing.T) (*DebtorService, *BalanceService, *recordingPublisher, int64, core.Currency) {
	t.Helper()
	s := openTestStore(t)
	clk := &testClock{t: testNow}
	balances := NewBalanceService(s, clk.clock())
	pub := &recordingPublisher{}
	svc := NewDebtorService(s, balances, pub, clk.clock())
	user := mustUser(t, s, "+998901112233")
	uzs, err := s.Queries().GetCurrencyByCode(context.Background(), "UZS")
	if err != nil {
		t.Fatal(err)
	}
	return svc, balances, pub, user, uzs
}

func debtorTx(dir core.Direction, amount string, cur core.Currency, phone string) core.DebtorTransaction {
	t := core.DebtorTransaction{Direction: dir, Amount: amt(amount), CurrencyID: cur.ID}
	if phone != "" {
		t.Phone = strPtr(phone)
	}
	return t
}

func cachedBalance(t *testing.T, svc *DebtorService, userID int64) (core.DebtorBalance, bool) {
	t.Helper()
	b, ok, err := svc.store.Queries().GetDebtorBalance(context.Background(), userID)
	if err != nil {
		t.Fatal(err)
	}
	return b, ok
}

func TestDebtorCreateUpdatesBalance(t *testing.T) {
	svc, _, pub, user, uzs := newDebtorFixture(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, user, debtorTx(core.Income, "10.00", uzs, "+998900000001"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Date.String() != "2025-03-14" {
		t.Errorf("date = %s, want creation date", created.Date)
	}
	if created.Currency.Code != "UZS" {
		t.Errorf("currency = %q", created.Currency.Code)
	}

	if _, err := svc.Create(ctx, user, debtorTx(core.Expense, "13.50", uzs, "")); err != nil {
		t.Fatalf("create: %v", err)
	}

	b, ok := cachedBalance(t, svc, user)
	if !ok {
		t.Fatal("expected cached balance row")
	}
	if !b.Balance.Equal(amt("-3.50")) {
		t.Errorf("balance = %s, want -3.50", b.Balance)
	}
	if len(pub.events) != 2 {
		t.Fatalf("published %d events, want 2", len(pub.events))
	}
	if got := core.FormatAmount(pub.last().Total); got != "-3.50" {
		t.Errorf("published balance = %s", got)
	}

	live, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !live.Total.Equal(b.Balance) {
		t.Errorf("live %s != cached %s", live.Total, b.Balance)
	}
}

func TestDebtorBalanceTracksEveryMutation(t *testing.T) {
	svc, _, _, user, uzs := newDebtorFixture(t)
	ctx := context.Background()

	a, err := svc.Create(ctx, user, debtorTx(core.Income, "100.00", uzs, ""))
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.Create(ctx, user, debtorTx(core.Expense, "40.25", uzs, ""))
	if err != nil {
		t.Fatal(err)
	}

	steps := []struct {
		name string
		run  func() error
		want string
	}{
		{"flip direction", func() error {
			d := core.Expense
			_, err := svc.Update(ctx, user, a.ID, DebtorTransactionPatch{Direction: &d})
			return err
		}, "-140.25"},
		{"change amount", func() error {
			v := amt("0.25")
			_, err := svc.Update(ctx, user, b.ID, DebtorTransactionPatch{Amount: &v})
			return err
		}, "-100.25"},
		{"delete one", func() error {
			return svc.Delete(ctx, user, a.ID)
		}, "-0.25"},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		cached, ok := cachedBalance(t, svc, user)
		if !ok {
			t.Fatalf("%s: missing balance row", step.name)
		}
		if got := core.FormatAmount(cached.Balance); got != step.want {
			t.Errorf("%s: balance = %s, want %s", step.name, got, step.want)
		}
		live, err := svc.Balance(ctx, user)
		if err != nil {
			t.Fatal(err)
		}
		if !live.Total.Equal(cached.Balance) {
			t.Errorf("%s: live %s != cached %s", step.name, live.Total, cached.Balance)
		}
	}
}

func TestDebtorDeleteLastRemovesBalanceRow(t *testing.T) {
	svc, _, pub, user, uzs := newDebtorFixture(t)
	ctx := context.Background()

	tx, err := svc.Create(ctx, user, debtorTx(core.Income, "5.00", uzs, ""))
	if err != nil {
		t.Fatal(err)
	}
	if err := svc.Delete(ctx, user, tx.ID); err != nil {
		t.Fatal(err)
	}
	if _, ok := cachedBalance(t, svc, user); ok {
		t.Fatal("balance row should be removed with the last transaction")
	}
	if !pub.last().Empty() {
		t.Errorf("expected empty balance event, got %+v", pub.last())
	}

	live, err := svc.Balance(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if !live.Empty() || !live.Total.IsZero() {
		t.Errorf("live balance = %+v, want empty", live)
	}
}

func TestDebtorUpdateKeepsDateAndPatchesOptionalFields(t *testing.T) {
	svc, _, _, user, uzs := newDebtorFixture(t)
	ctx := context.Background()

	orig := debtorTx(core.Income, "1.00", uzs, "+998900000001")
	orig.Note = strPtr("lunch")
	tx, err := svc.Create(ctx, user, orig)
	if err != nil {
		t.Fatal(err)
	}

	out, err := svc.Update(ctx, user, tx.ID, DebtorTransactionPatch{ClearPhone: true})
	if err != nil {
		t.Fatal(err)
	}
	if out.Phone != nil {
		t.Errorf("phone = %v, want nil", *out.Phone)
	}
	if out.Note == nil || *out.Note != "lunch" {
		t.Errorf("note should be kept, got %v", out.Note)
	}
	if out.Date.String() != tx.Date.String() {
		t.Errorf("date changed from %s to %s", tx.Date, out.Date)
	}
}

func TestDebtorValidation(t *testing.T) {
	svc, _, _, user, uzs := newDebtorFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		tx    core.DebtorTransaction
		field string
	}{
		{"zero amount", debtorTx(core.Income, "0.00", uzs, ""), "amount"},
		{"three decimals", debtorTx(core.Income, "1.005", uzs, ""), "amount"},
		{"bad direction", debtorTx("LOAN", "1.00", uzs, ""), "type"},
		{"bad phone", debtorTx(core.Income, "1.00", uzs, "12"), "phone"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Create(ctx, user, tt.tx)
			expectKind(t, err, core.ErrValidation)
			v := err.(*core.ValidationError)
			if _, ok := v.Fields[tt.field]; !ok {
				t.Errorf("expected error on %q, got %v", tt.field, v.Fields)
			}
		})
	}

	if _, err := svc.Create(ctx, user, debtorTx(core.Income, "0.01", uzs, "")); err != nil {
		t.Errorf("0.01 should be accepted: %v", err)
	}
}

func TestDebtorOwnership(t *testing.T) {
	svc, _, _, user, uzs := newDebtorFixture(t)
	ctx := context.Background()
	other := mustUser(t, svc.store, "+998909999999")

	tx, err := svc.Create(ctx, user, debtorTx(core.Income, "1.00", uzs, ""))
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Get(ctx, other, tx.ID)
	expectKind(t, err, core.ErrNotFound)
	expectKind(t, svc.Delete(ctx, other, tx.ID), core.ErrNotFound)

	if _, ok := cachedBalance(t, svc, other); ok {
		t.Error("other user must not get a balance row")
	}
}

func TestDebtorConcurrentCreates(t *testing.T) {
	svc, _, pub, user, uzs := newDebtorFixture(t)
	ctx := context.Background()

	const n = 20
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, err := svc.Create(gctx, user, debtorTx(core.Income, "1.00", uzs, ""))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("concurrent create: %v", err)
	}

	b, ok := cachedBalance(t, svc, user)
	if !ok {
		t.Fatal("missing balance row")
	}
	if want := fmt.Sprintf("%d.00", n); core.FormatAmount(b.Balance) != want {
		t.Errorf("balance = %s, want %s", core.FormatAmount(b.Balance), want)
	}

	// events may be published in any order, but each carries the sequence
	// of the commit that produced its balance
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.seqs) != n {
		t.Fatalf("published %d events, want %d", len(pub.seqs), n)
	}
	seen := make(map[int64]bool, n)
	for i, seq := range pub.seqs {
		if seq < 1 || seq > n || seen[seq] {
			t.Errorf("unexpected sequence %d in %v", seq, pub.seqs)
		}
		seen[seq] = true
		if got, want := core.FormatAmount(pub.events[i].Total), fmt.Sprintf("%d.00", seq); got != want {
			t.Errorf("event with seq %d has balance %s, want %s", seq, got, want)
		}
	}
}

func TestDebtorListPaging(t *testing.T) {
	svc, _, _, user, uzs := newDebtorFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, user, debtorTx(core.Income, "2.00", uzs, "")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Create(ctx, user, debtorTx(core.Expense, "1.00", uzs, "")); err != nil {
		t.Fatal(err)
	}

	list, err := svc.List(ctx, user, PageRequest{Page: 2, Size: 3})
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 || list.Page.Count != 4 || list.Page.HasNext || !list.Page.HasPrev {
		t.Errorf("unexpected page: %d items, %+v", len(list.Items), list.Page)
	}
	if core.FormatAmount(list.Totals.Income) != "6.00" || core.FormatAmount(list.Totals.Expense) != "1.00" {
		t.Errorf("totals = %+v", list.Totals)
	}

	first, err := svc.List(ctx, user, PageRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if first.Items[0].ID < first.Items[len(first.Items)-1].ID {
		t.Error("expected most recent first")
	}

	_, err = svc.List(ctx, user, PageRequest{Page: 3, Size: 3})
	expectKind(t, err, core.ErrNotFound)
}
