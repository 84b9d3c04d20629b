package services

import (
	"context"
	"fmt"
	"log/slog"

	"paylog/internal/core"
	"paylog/internal/storage"
)

// BalanceService keeps the cached debtor balance row of a user equal to the
// signed sum of the user's debtor transactions. It is the only writer of
// that row.
type BalanceService struct {
	store *storage.Store
	clock Clock
}

func NewBalanceService(store *storage.Store, clock Clock) *BalanceService {
	return &BalanceService{store: store, clock: clock}
}

// Recompute rebuilds the balance of userID from a full rescan of the user's
// debtor transactions, using q so it joins the caller's transaction. It
// returns nil when the user has no debtor transactions, in which case the
// row is removed.
func (s *BalanceService) Recompute(ctx context.Context, q *storage.Queries, userID int64) (*core.DebtorBalance, error) {
	agg, err := q.AggregateDebtorTransactions(ctx, storage.DebtorScope{UserID: userID})
	if err != nil {
		return nil, fmt.Errorf("recompute balance of user %d: %w", userID, err)
	}

	if agg.Balance.Currency == nil {
		if err := q.DeleteDebtorBalance(ctx, userID); err != nil {
			return nil, err
		}
		return nil, nil
	}

	if agg.Currencies > 1 {
		slog.WarnContext(ctx, "Debtor balance mixes currencies",
			"user_id", userID,
			"currencies", agg.Currencies,
			"labelled_as", agg.Balance.Currency.Code)
	}

	now := s.clock.now()
	if err := q.UpsertDebtorBalance(ctx, userID, agg.Balance, now); err != nil {
		return nil, err
	}
	return &core.DebtorBalance{
		UserID:    userID,
		Currency:  *agg.Balance.Currency,
		Balance:   agg.Balance.Total,
		UpdatedAt: now,
	}, nil
}

// RecomputeUser recomputes one user in its own transaction, holding the
// user lock like a mutation would.
func (s *BalanceService) RecomputeUser(ctx context.Context, userID int64) (*core.DebtorBalance, error) {
	var out *core.DebtorBalance
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		if err := q.LockUser(ctx, userID); err != nil {
			return err
		}
		b, err := s.Recompute(ctx, q, userID)
		out = b
		return err
	})
	return out, err
}

// RecomputeAll recomputes every user that has debtor transactions or a
// cached row, and returns how many users were processed.
func (s *BalanceService) RecomputeAll(ctx context.Context) (int, error) {
	ids, err := s.store.Queries().ListDebtorUserIDs(ctx)
	if err != nil {
		return 0, err
	}
	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if _, err := s.RecomputeUser(ctx, id); err != nil {
			return i, err
		}
	}
	return len(ids), nil
}

// BalanceDrift is a user whose cached row disagrees with the live aggregate.
type BalanceDrift struct {
	UserID int64
	Cached *core.DebtorBalance
	Live   core.Balance
}

// Check compares every cached row with the live aggregate without writing.
func (s *BalanceService) Check(ctx context.Context) ([]BalanceDrift, error) {
	q := s.store.Queries()
	ids, err := q.ListDebtorUserIDs(ctx)
	if err != nil {
		return nil, err
	}

	var drifts []BalanceDrift
	for _, id := range ids {
		agg, err := q.AggregateDebtorTransactions(ctx, storage.DebtorScope{UserID: id})
		if err != nil {
			return nil, err
		}
		row, ok, err := q.GetDebtorBalance(ctx, id)
		if err != nil {
			return nil, err
		}

		var cached *core.DebtorBalance
		if ok {
			cached = &row
		}
		if !balanceMatches(cached, agg.Balance) {
			drifts = append(drifts, BalanceDrift{UserID: id, Cached: cached, Live: agg.Balance})
		}
	}
	return drifts, nil
}

func balanceMatches(cached *core.DebtorBalance, live core.Balance) bool {
	if live.Currency == nil || cached == nil {
		return live.Currency == nil && cached == nil
	}
	return cached.Currency.ID == live.Currency.ID && cached.Balance.Equal(live.Total)
}
