package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"paylog/internal/core"
	"paylog/internal/storage"
)

// LedgerService handles the user's income and expense transactions.
type LedgerService struct {
	store *storage.Store
	clock Clock
}

func NewLedgerService(store *storage.Store, clock Clock) *LedgerService {
	return &LedgerService{store: store, clock: clock}
}

// TransactionList is one page of a filtered listing with totals over the
// full filtered set.
type TransactionList struct {
	Items  []core.Transaction
	Totals core.Totals
	Page   PageInfo
}

// TransactionPatch lists the fields an update changes. Nil fields keep the
// stored value; ClearNote nulls the note.
type TransactionPatch struct {
	Direction  *core.Direction
	Amount     *decimal.Decimal
	CurrencyID *int64
	CategoryID *int64
	Date       *core.Date
	Note       *string
	ClearNote  bool
}

func (p TransactionPatch) apply(t core.Transaction) core.Transaction {
	if p.Direction != nil {
		t.Direction = *p.Direction
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.CurrencyID != nil {
		t.CurrencyID = *p.CurrencyID
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	switch {
	case p.ClearNote:
		t.Note = nil
	case p.Note != nil:
		t.Note = p.Note
	}
	return t
}

// List resolves the filter parameters against today and returns one page.
func (s *LedgerService) List(ctx context.Context, userID int64, params core.FilterParams, p PageRequest) (TransactionList, error) {
	f, err := core.ResolveFilter(params, s.clock.Today())
	if err != nil {
		return TransactionList{}, err
	}

	q := s.store.Queries()
	summary, err := q.SummarizeTransactions(ctx, userID, f)
	if err != nil {
		return TransactionList{}, err
	}
	info := pageInfo(p, summary.Count)
	if err := checkPage(info); err != nil {
		return TransactionList{}, err
	}
	items, err := q.ListTransactions(ctx, userID, f, p.storagePage())
	if err != nil {
		return TransactionList{}, err
	}
	return TransactionList{Items: items, Totals: summary.Totals, Page: info}, nil
}

func (s *LedgerService) Get(ctx context.Context, userID, id int64) (core.Transaction, error) {
	return s.store.Queries().GetTransaction(ctx, userID, id)
}

// Create stores a transaction owned by userID. The currency must exist and
// be active and the category must exist.
func (s *LedgerService) Create(ctx context.Context, userID int64, t core.Transaction) (core.Transaction, error) {
	t.UserID = userID
	if err := t.Validate(); err != nil {
		return t, err
	}

	var out core.Transaction
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		if err := checkReferences(ctx, q, t, true); err != nil {
			return err
		}
		id, err := q.CreateTransaction(ctx, t, s.clock.now())
		if err != nil {
			return err
		}
		out, err = q.GetTransaction(ctx, userID, id)
		return err
	})
	if err != nil {
		return out, err
	}

	return out, nil
}

// Update applies patch to the user's transaction id. An inactive currency is
// refused only when the update switches to it.
func (s *LedgerService) Update(ctx context.Context, userID, id int64, patch TransactionPatch) (core.Transaction, error) {
	var out core.Transaction
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		prev, err := q.GetTransaction(ctx, userID, id)
		if err != nil {
			return err
		}
		next := patch.apply(prev)
		if err := next.Validate(); err != nil {
			return err
		}
		if err := checkReferences(ctx, q, next, next.CurrencyID != prev.CurrencyID); err != nil {
			return err
		}
		if err := q.UpdateTransaction(ctx, next, s.clock.now()); err != nil {
			return err
		}
		out, err = q.GetTransaction(ctx, userID, id)
		return err
	})
	if err != nil {
		return out, err
	}

	slog.InfoContext(ctx, "Transaction updated", "id", id, "user_id", userID)
	return out, nil
}

func (s *LedgerService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.store.Queries().DeleteTransaction(ctx, userID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction deleted", "id", id, "user_id", userID)
	return nil
}

// checkReferences reports missing currency or category as field errors.
func checkReferences(ctx context.Context, q *storage.Queries, t core.Transaction, requireActive bool) error {
	v := &core.ValidationError{}

	cur, err := q.GetCurrency(ctx, t.CurrencyID)
	switch {
	case errors.Is(err, core.ErrNotFound):
		v.Add("currency", "Currency does not exist.")
	case err != nil:
		return err
	case requireActive && !cur.IsActive:
		v.Add("currency", "Selected currency is inactive.")
	}

	if _, err := q.GetCategory(ctx, t.CategoryID); errors.Is(err, core.ErrNotFound) {
		v.Add("category", "Category does not exist.")
	} else if err != nil {
		return err
	}

	return v.OrNil()
}
