package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"paylog/internal/core"
)

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

// conds accumulates AND-ed predicates with $N placeholders.
type conds struct {
	parts []string
	args  []any
}

func (c *conds) add(expr string, arg any) {
	c.args = append(c.args, arg)
	c.parts = append(c.parts, strings.ReplaceAll(expr, "?", "$"+strconv.Itoa(len(c.args))))
}

func (c *conds) where() string {
	if len(c.parts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(c.parts, " AND ")
}

func transactionConds(userID int64, f core.TransactionFilter) *conds {
	c := &conds{}
	c.add("t.user_id = ?", userID)
	if f.Direction != "" {
		c.add("t.type = ?", string(f.Direction))
	}
	if f.CategoryID != 0 {
		c.add("t.category_id = ?", f.CategoryID)
	}
	if f.CurrencyID != 0 {
		c.add("t.currency_id = ?", f.CurrencyID)
	}
	if f.From != nil {
		c.add("t.date >= ?", *f.From)
	}
	if f.To != nil {
		c.add("t.date <= ?", *f.To)
	}
	return c
}

const transactionSelect = `SELECT t.id, t.user_id, t.type, t.amount_cents, t.currency_id, t.category_id, t.note, t.date,
  t.created_at, t.updated_at, cur.code, cat.name_uz, cat.name_ru, cat.name_en, cat.icon_url
FROM transactions t
JOIN currencies cur ON cur.id = t.currency_id
JOIN categories cat ON cat.id = t.category_id`

func scanTransaction(row interface{ Scan(...any) error }) (core.Transaction, error) {
	var (
		t     core.Transaction
		dir   string
		cents int64
		note  sql.NullString
		icon  sql.NullString
	)
	err := row.Scan(&t.ID, &t.UserID, &dir, &cents, &t.CurrencyID, &t.CategoryID, &note, &t.Date,
		scanTime(&t.CreatedAt), scanTime(&t.UpdatedAt), &t.Currency.Code,
		&t.Category.NameUz, &t.Category.NameRu, &t.Category.NameEn, &icon)
	if err != nil {
		return t, err
	}
	t.Direction = core.Direction(dir)
	t.Amount = core.FromMinor(cents)
	t.Note = stringPtr(note)
	t.Currency.ID = t.CurrencyID
	t.Category.ID = t.CategoryID
	t.Category.IconURL = stringPtr(icon)
	return t, nil
}

// ListTransactions returns one page of the user's filtered transactions,
// most recent first.
func (q *Queries) ListTransactions(ctx context.Context, userID int64, f core.TransactionFilter, p Page) ([]core.Transaction, error) {
	c := transactionConds(userID, f)
	query := transactionSelect + c.where() + " ORDER BY t.date DESC, t.id DESC"
	args := c.args
	if p.Limit > 0 {
		args = append(args, p.Limit, p.Offset)
		query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}

	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Summary is the row count and split totals of a full filtered set.
type Summary struct {
	Count  int64
	Totals core.Totals
}

const summarySelect = `SELECT COUNT(*),
  COALESCE(SUM(CASE WHEN t.type = 'INCOME' THEN t.amount_cents ELSE 0 END), 0),
  COALESCE(SUM(CASE WHEN t.type = 'EXPENSE' THEN t.amount_cents ELSE 0 END), 0)
FROM `

func (q *Queries) SummarizeTransactions(ctx context.Context, userID int64, f core.TransactionFilter) (Summary, error) {
	c := transactionConds(userID, f)
	return q.summarize(ctx, summarySelect+"transactions t"+c.where(), c.args)
}

func (q *Queries) summarize(ctx context.Context, query string, args []any) (Summary, error) {
	var (
		s                Summary
		income, expenses int64
	)
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&s.Count, &income, &expenses); err != nil {
		return s, fmt.Errorf("summarize: %w", err)
	}
	s.Totals = core.Totals{Income: core.FromMinor(income), Expense: core.FromMinor(expenses)}
	return s, nil
}

// GetTransaction returns the transaction only when userID owns it.
func (q *Queries) GetTransaction(ctx context.Context, userID, id int64) (core.Transaction, error) {
	t, err := scanTransaction(q.db.QueryRowContext(ctx, transactionSelect+" WHERE t.id = $1 AND t.user_id = $2", id, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return t, core.NotFound("Transaction not found.")
	}
	if err != nil {
		return t, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return t, nil
}

const createTransaction = `INSERT INTO transactions (user_id, type, amount_cents, currency_id, category_id, note, date, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
RETURNING id`

func (q *Queries) CreateTransaction(ctx context.Context, t core.Transaction, now time.Time) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx, createTransaction,
		t.UserID, string(t.Direction), core.ToMinor(t.Amount), t.CurrencyID, t.CategoryID,
		nullString(t.Note), t.Date, utc(now)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create transaction: %w", err)
	}
	return id, nil
}

const updateTransaction = `UPDATE transactions
SET type = $3, amount_cents = $4, currency_id = $5, category_id = $6, note = $7, date = $8, updated_at = $9
WHERE id = $1 AND user_id = $2`

func (q *Queries) UpdateTransaction(ctx context.Context, t core.Transaction, now time.Time) error {
	res, err := q.db.ExecContext(ctx, updateTransaction,
		t.ID, t.UserID, string(t.Direction), core.ToMinor(t.Amount), t.CurrencyID, t.CategoryID,
		nullString(t.Note), t.Date, utc(now))
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	return expectOne(res, "Transaction not found.")
}

const deleteTransaction = `DELETE FROM transactions WHERE id = $1 AND user_id = $2`

func (q *Queries) DeleteTransaction(ctx context.Context, userID, id int64) error {
	res, err := q.db.ExecContext(ctx, deleteTransaction, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return expectOne(res, "Transaction not found.")
}
