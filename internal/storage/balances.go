package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paylog/internal/core"
)

// BalanceAggregate is the SQL rendition of core.Aggregate plus the number
// of distinct currencies in the set.
type BalanceAggregate struct {
	Balance    core.Balance
	Rows       int64
	Currencies int64
}

const debtorSignedSum = `SELECT
  COALESCE(SUM(CASE WHEN d.type = 'INCOME' THEN d.amount_cents ELSE -d.amount_cents END), 0),
  COUNT(*),
  COUNT(DISTINCT d.currency_id)
FROM debtor_transactions d`

const debtorRepresentativeCurrency = `SELECT d.currency_id, cur.code
FROM debtor_transactions d
JOIN currencies cur ON cur.id = d.currency_id`

// AggregateDebtorTransactions sums the scoped rows with the sign of their
// direction. The currency comes from the most recent row by date, then id;
// an empty set has no currency.
func (q *Queries) AggregateDebtorTransactions(ctx context.Context, scope DebtorScope) (BalanceAggregate, error) {
	c := scope.conds()
	var (
		agg   BalanceAggregate
		total int64
	)
	if err := q.db.QueryRowContext(ctx, debtorSignedSum+c.where(), c.args...).Scan(&total, &agg.Rows, &agg.Currencies); err != nil {
		return agg, fmt.Errorf("aggregate debtor transactions: %w", err)
	}
	agg.Balance = core.EmptyBalance()
	if agg.Rows == 0 {
		return agg, nil
	}

	var cur core.CurrencyRef
	err := q.db.QueryRowContext(ctx, debtorRepresentativeCurrency+c.where()+" ORDER BY d.date DESC, d.id DESC LIMIT 1", c.args...).
		Scan(&cur.ID, &cur.Code)
	if err != nil {
		return agg, fmt.Errorf("representative currency: %w", err)
	}
	agg.Balance = core.Balance{Total: core.FromMinor(total), Currency: &cur}
	return agg, nil
}

// LockUser serializes balance writers of one user until the transaction
// ends.
func (q *Queries) LockUser(ctx context.Context, userID int64) error {
	var id int64
	err := q.db.QueryRowContext(ctx, q.dialect.lockUserSQL(), userID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFound("User not found.")
	}
	if err != nil {
		return fmt.Errorf("lock user %d: %w", userID, err)
	}
	return nil
}

const nextBalanceSeq = `UPDATE users SET balance_seq = balance_seq + 1 WHERE id = $1 RETURNING balance_seq`

// NextBalanceSequence increments and returns the per-user counter that
// orders balance change events. Call it while holding LockUser.
func (q *Queries) NextBalanceSequence(ctx context.Context, userID int64) (int64, error) {
	var seq int64
	err := q.db.QueryRowContext(ctx, nextBalanceSeq, userID).Scan(&seq)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, core.NotFound("User not found.")
	}
	if err != nil {
		return 0, fmt.Errorf("next balance sequence of user %d: %w", userID, err)
	}
	return seq, nil
}

const upsertDebtorBalance = `INSERT INTO debtor_balances (user_id, currency_id, balance_cents, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET currency_id = excluded.currency_id, balance_cents = excluded.balance_cents, updated_at = excluded.updated_at`

func (q *Queries) UpsertDebtorBalance(ctx context.Context, userID int64, b core.Balance, now time.Time) error {
	if b.Currency == nil {
		return errors.New("upsert debtor balance: balance has no currency")
	}
	if _, err := q.db.ExecContext(ctx, upsertDebtorBalance, userID, b.Currency.ID, core.ToMinor(b.Total), utc(now)); err != nil {
		return fmt.Errorf("upsert debtor balance: %w", err)
	}
	return nil
}

const deleteDebtorBalance = `DELETE FROM debtor_balances WHERE user_id = $1`

func (q *Queries) DeleteDebtorBalance(ctx context.Context, userID int64) error {
	if _, err := q.db.ExecContext(ctx, deleteDebtorBalance, userID); err != nil {
		return fmt.Errorf("delete debtor balance: %w", err)
	}
	return nil
}

const getDebtorBalance = `SELECT b.user_id, b.currency_id, cur.code, b.balance_cents, b.updated_at
FROM debtor_balances b
JOIN currencies cur ON cur.id = b.currency_id
WHERE b.user_id = $1`

// GetDebtorBalance reads the cached row. ok is false when the user has none.
func (q *Queries) GetDebtorBalance(ctx context.Context, userID int64) (core.DebtorBalance, bool, error) {
	var (
		b     core.DebtorBalance
		cents int64
	)
	err := q.db.QueryRowContext(ctx, getDebtorBalance, userID).
		Scan(&b.UserID, &b.Currency.ID, &b.Currency.Code, &cents, scanTime(&b.UpdatedAt))
	if errors.Is(err, sql.ErrNoRows) {
		return b, false, nil
	}
	if err != nil {
		return b, false, fmt.Errorf("get debtor balance: %w", err)
	}
	b.Balance = core.FromMinor(cents)
	return b, true, nil
}

const listDebtorUserIDs = `SELECT user_id FROM debtor_transactions
UNION
SELECT user_id FROM debtor_balances
ORDER BY 1`

// ListDebtorUserIDs returns every user with debtor transactions or a cached
// balance row.
func (q *Queries) ListDebtorUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listDebtorUserIDs)
	if err != nil {
		return nil, fmt.Errorf("list debtor users: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
