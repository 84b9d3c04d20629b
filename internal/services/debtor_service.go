package services

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/storage"
)

// DebtorService coordinates debtor transaction writes. Every write runs in
// one database transaction that locks the owner, applies the change and
// recomputes the owner's balance, so the cached balance never diverges
// from the rows.
type DebtorService struct {
	store     *storage.Store
	balances  *BalanceService
	publisher BalancePublisher
	clock     Clock
}

func NewDebtorService(store *storage.Store, balances *BalanceService, publisher BalancePublisher, clock Clock) *DebtorService {
	return &DebtorService{store: store, balances: balances, publisher: publisher, clock: clock}
}

// DebtorTransactionList is one page of a user's debtor transactions with
// totals over all of them.
type DebtorTransactionList struct {
	Items  []core.DebtorTransaction
	Totals core.Totals
	Page   PageInfo
}

// Create stores t for userID with today's date and returns the stored row.
func (s *DebtorService) Create(ctx context.Context, userID int64, t core.DebtorTransaction) (core.DebtorTransaction, error) {
	t.UserID = userID
	t.Date = s.clock.Today()
	if err := t.Validate(); err != nil {
		return t, err
	}

	var (
		out     core.DebtorTransaction
		balance *core.DebtorBalance
		seq     int64
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.LockUser(ctx, userID); err != nil {
			return err
		}
		id, err := q.CreateDebtorTransaction(ctx, t, s.clock.now())
		if err != nil {
			return err
		}
		if balance, err = s.balances.Recompute(ctx, q, userID); err != nil {
			return err
		}
		if seq, err = q.NextBalanceSequence(ctx, userID); err != nil {
			return err
		}
		if err := s.touch(ctx, q, userID, t.Phone); err != nil {
			return err
		}
		out, err = q.GetDebtorTransaction(ctx, userID, id)
		return err
	})
	if err != nil {
		return out, err
	}

	s.publish(ctx, userID, seq, balance)
	return out, nil
}

// DebtorTransactionPatch lists the fields an update changes. Nil fields
// keep their stored value; the Clear flags null an optional field.
type DebtorTransactionPatch struct {
	Direction  *core.Direction
	Amount     *decimal.Decimal
	CurrencyID *int64
	Phone      *string
	ClearPhone bool
	Note       *string
	ClearNote  bool
}

func (p DebtorTransactionPatch) apply(t core.DebtorTransaction) core.DebtorTransaction {
	if p.Direction != nil {
		t.Direction = *p.Direction
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.CurrencyID != nil {
		t.CurrencyID = *p.CurrencyID
	}
	switch {
	case p.ClearPhone:
		t.Phone = nil
	case p.Phone != nil:
		t.Phone = p.Phone
	}
	switch {
	case p.ClearNote:
		t.Note = nil
	case p.Note != nil:
		t.Note = p.Note
	}
	return t
}

// Update applies patch to transaction id. The date keeps its creation value.
func (s *DebtorService) Update(ctx context.Context, userID, id int64, patch DebtorTransactionPatch) (core.DebtorTransaction, error) {
	var (
		out     core.DebtorTransaction
		balance *core.DebtorBalance
		seq     int64
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.LockUser(ctx, userID); err != nil {
			return err
		}
		prev, err := q.GetDebtorTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		next := patch.apply(prev)
		if err := next.Validate(); err != nil {
			return err
		}
		if err := q.UpdateDebtorTransaction(ctx, next, s.clock.now()); err != nil {
			return err
		}
		if balance, err = s.balances.Recompute(ctx, q, userID); err != nil {
			return err
		}
		if seq, err = q.NextBalanceSequence(ctx, userID); err != nil {
			return err
		}
		if err := s.touch(ctx, q, userID, prev.Phone, next.Phone); err != nil {
			return err
		}
		out, err = q.GetDebtorTransaction(ctx, userID, id)
		return err
	})
	if err != nil {
		return out, err
	}

	slog.InfoContext(ctx, "Debtor transaction updated", "id", id, "user_id", userID)
	s.publish(ctx, userID, seq, balance)
	return out, nil
}

// Delete removes transaction id. When it was the user's last debtor
// transaction the balance row is removed too.
func (s *DebtorService) Delete(ctx context.Context, userID, id int64) error {
	var (
		balance *core.DebtorBalance
		seq     int64
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.LockUser(ctx, userID); err != nil {
			return err
		}
		prev, err := q.GetDebtorTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		if err := q.DeleteDebtorTransaction(ctx, userID, id); err != nil {
			return err
		}
		if balance, err = s.balances.Recompute(ctx, q, userID); err != nil {
			return err
		}
		if seq, err = q.NextBalanceSequence(ctx, userID); err != nil {
			return err
		}
		return s.touch(ctx, q, userID, prev.Phone)
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "Debtor transaction deleted", "id", id, "user_id", userID)
	s.publish(ctx, userID, seq, balance)
	return nil
}

func (s *DebtorService) Get(ctx context.Context, userID, id int64) (core.DebtorTransaction, error) {
	return s.store.Queries().GetDebtorTransaction(ctx, userID, id)
}

// List returns one page of the user's debtor transactions, most recent
// first, with income and expense totals over the whole set.
func (s *DebtorService) List(ctx context.Context, userID int64, p PageRequest) (DebtorTransactionList, error) {
	q := s.store.Queries()
	scope := storage.DebtorScope{UserID: userID}

	summary, err := q.SummarizeDebtorTransactions(ctx, scope)
	if err != nil {
		return DebtorTransactionList{}, err
	}
	info := pageInfo(p, summary.Count)
	if err := checkPage(info); err != nil {
		return DebtorTransactionList{}, err
	}
	items, err := q.ListDebtorTransactions(ctx, scope, p.storagePage())
	if err != nil {
		return DebtorTransactionList{}, err
	}
	return DebtorTransactionList{Items: items, Totals: summary.Totals, Page: info}, nil
}

// Balance aggregates the user's debtor transactions live. It never reads the
// cached row.
func (s *DebtorService) Balance(ctx context.Context, userID int64) (core.Balance, error) {
	agg, err := s.store.Queries().AggregateDebtorTransactions(ctx, storage.DebtorScope{UserID: userID})
	if err != nil {
		return core.Balance{}, err
	}
	return agg.Balance, nil
}

// touch bumps the debtor chats whose phone was involved in a write.
func (s *DebtorService) touch(ctx context.Context, q *storage.Queries, userID int64, phones ...*string) error {
	seen := make(map[string]bool, len(phones))
	for _, p := range phones {
		if p == nil || seen[*p] {
			continue
		}
		seen[*p] = true
		if err := q.TouchDebtorChats(ctx, userID, *p, s.clock.now()); err != nil {
			return err
		}
	}
	return nil
}

func (s *DebtorService) publish(ctx context.Context, userID, seq int64, b *core.DebtorBalance) {
	if s.publisher == nil {
		return
	}
	bal := core.EmptyBalance()
	if b != nil {
		cur := b.Currency
		bal = core.Balance{Total: b.Balance, Currency: &cur}
	}
	if err := s.publisher.PublishBalanceChanged(ctx, userID, seq, bal); err != nil {
		slog.ErrorContext(ctx, "Failed to publish balance change", "user_id", userID, "error", err)
	}
}

// checkPage rejects any page after the first that starts past the end of
// the set.
func checkPage(info PageInfo) error {
	if info.Page > 1 && int64((info.Page-1)*info.Size) >= info.Count {
		return core.NotFound("Invalid page.")
	}
	return nil
}
