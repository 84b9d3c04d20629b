package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paylog/internal/core"
)

// DebtorScope narrows debtor transactions to a user and, optionally, a
// debtor phone.
type DebtorScope struct {
	UserID int64
	Phone  *string
}

func (s DebtorScope) conds() *conds {
	c := &conds{}
	c.add("d.user_id = ?", s.UserID)
	if s.Phone != nil {
		c.add("d.phone = ?", *s.Phone)
	}
	return c
}

const debtorTransactionSelect = `SELECT d.id, d.user_id, d.type, d.amount_cents, d.currency_id, cur.code, d.phone, d.note, d.date
FROM debtor_transactions d
JOIN currencies cur ON cur.id = d.currency_id`

func scanDebtorTransaction(row interface{ Scan(...any) error }) (core.DebtorTransaction, error) {
	var (
		t     core.DebtorTransaction
		dir   string
		cents int64
		phone sql.NullString
		note  sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &dir, &cents, &t.CurrencyID, &t.Currency.Code, &phone, &note, &t.Date)
	if err != nil {
		return t, err
	}
	t.Direction = core.Direction(dir)
	t.Amount = core.FromMinor(cents)
	t.Currency.ID = t.CurrencyID
	t.Phone = stringPtr(phone)
	t.Note = stringPtr(note)
	return t, nil
}

// ListDebtorTransactions returns the scoped rows, most recent first. A zero
// Page returns every row.
func (q *Queries) ListDebtorTransactions(ctx context.Context, scope DebtorScope, p Page) ([]core.DebtorTransaction, error) {
	c := scope.conds()
	query := debtorTransactionSelect + c.where() + " ORDER BY d.date DESC, d.id DESC"
	args := c.args
	if p.Limit > 0 {
		args = append(args, p.Limit, p.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list debtor transactions: %w", err)
	}
	defer rows.Close()

	var out []core.DebtorTransaction
	for rows.Next() {
		t, err := scanDebtorTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debtor transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

const debtorSummarySelect = `SELECT COUNT(*),
  COALESCE(SUM(CASE WHEN d.type = 'INCOME' THEN d.amount_cents ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN d.type = 'EXPENSE' THEN d.amount_cents ELSE 0 END), 0)
FROM debtor_transactions d`

func (q *Queries) SummarizeDebtorTransactions(ctx context.Context, scope DebtorScope) (Summary, error) {
	c := scope.conds()
	return q.summarize(ctx, debtorSummarySelect+c.where(), c.args)
}

func (q *Queries) GetDebtorTransaction(ctx context.Context, userID, id int64) (core.DebtorTransaction, error) {
	t, err := scanDebtorTransaction(q.db.QueryRowContext(ctx, debtorTransactionSelect+" WHERE d.id = $1 AND d.user_id = $2", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return t, core.NotFound("Debtor transaction not found.")
	}
	if err != nil {
		return t, fmt.Errorf("get debtor transaction %d: %w", id, err)
	}
	return t, nil
}

const createDebtorTransaction = `INSERT INTO debtor_transactions (user_id, type, amount_cents, currency_id, phone, note, date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id`

func (q *Queries) CreateDebtorTransaction(ctx context.Context, t core.DebtorTransaction, now time.Time) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createDebtorTransaction,
		t.UserID, string(t.Direction), core.ToMinor(t.Amount), t.CurrencyID,
		nullString(t.Phone), nullString(t.Note), t.Date, utc(now)).Scan(&id)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return 0, core.NewFieldError("currency", "Currency does not exist.")
		}
		return 0, fmt.Errorf("create debtor transaction: %w", err)
	}
	return id, nil
}

// updateDebtorTransaction never touches date: it stays the creation date.
const updateDebtorTransaction = `UPDATE debtor_transactions
SET type = $3, amount_cents = $4, currency_id = $5, phone = $6, note = $7, updated_at = $8
WHERE id = $1 AND user_id = $2`

func (q *Queries) UpdateDebtorTransaction(ctx context.Context, t core.DebtorTransaction, now time.Time) error {
	res, err := q.db.ExecContext(ctx, updateDebtorTransaction,
		t.ID, t.UserID, string(t.Direction), core.ToMinor(t.Amount), t.CurrencyID,
		nullString(t.Phone), nullString(t.Note), utc(now))
	if err != nil {
		if IsForeignKeyViolation(err) {
			return core.NewFieldError("currency", "Currency does not exist.")
		}
		return fmt.Errorf("update debtor transaction %d: %w", t.ID, err)
	}
	return expectOne(res, "Debtor transaction not found.")
}

const deleteDebtorTransaction = `DELETE FROM debtor_transactions WHERE id = $1 AND user_id = $2`

func (q *Queries) DeleteDebtorTransaction(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx, deleteDebtorTransaction, id, userID)
	if err != nil {
		return fmt.Errorf("delete debtor transaction %d: %w", id, err)
	}
	return expectOne(res, "Debtor transaction not found.")
}
