package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paylog/internal/core"
)

const currencyColumns = `id, code, name, is_active, created_at, updated_at`

func scanCurrency(row interface{ Scan(...any) error }) (core.Currency, error) {
	var c core.Currency
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.IsActive, scanTime(&c.CreatedAt), scanTime(&c.UpdatedAt))
	return c, err
}

const getCurrency = `SELECT ` + currencyColumns + ` FROM currencies WHERE id = $1`

// GetCurrency returns a currency regardless of its active flag.
func (q *Queries) GetCurrency(ctx context.Context, id int64) (core.Currency, error) {
	c, err := scanCurrency(q.db.QueryRowContext(ctx, getCurrency, id))
	if errors.Is(err, sql.ErrNoRows) {
		return c, core.NotFound("Currency does not exist.")
	}
	if err != nil {
		return c, fmt.Errorf("get currency %d: %w", id, err)
	}
	return c, nil
}

const getCurrencyByCode = `SELECT ` + currencyColumns + ` FROM currencies WHERE code = $1`

func (q *Queries) GetCurrencyByCode(ctx context.Context, code string) (core.Currency, error) {
	c, err := scanCurrency(q.db.QueryRowContext(ctx, getCurrencyByCode, code))
	if errors.Is(err, sql.ErrNoRows) {
		return c, core.NotFound("Currency does not exist.")
	}
	if err != nil {
		return c, fmt.Errorf("get currency %q: %w", code, err)
	}
	return c, nil
}

const (
	listActiveCurrencies = `SELECT ` + currencyColumns + ` FROM currencies WHERE is_active = $1 ORDER BY code`
	listAllCurrencies    = `SELECT ` + currencyColumns + ` FROM currencies ORDER BY code`
)

// ListCurrencies returns active currencies, or all of them when
// includeInactive is set.
func (q *Queries) ListCurrencies(ctx context.Context, includeInactive bool) ([]core.Currency, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if includeInactive {
		rows, err = q.db.QueryContext(ctx, listAllCurrencies)
	} else {
		rows, err = q.db.QueryContext(ctx, listActiveCurrencies, true)
	}
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	defer rows.Close()

	var out []core.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const createCurrency = `INSERT INTO currencies (code, name, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $4)
RETURNING ` + currencyColumns

func (q *Queries) CreateCurrency(ctx context.Context, code, name string, active bool, now time.Time) (core.Currency, error) {
	c, err := scanCurrency(q.db.QueryRowContext(ctx, createCurrency, code, name, active, utc(now)))
	if IsUniqueViolation(err) {
		return c, core.Conflict("Currency with this code already exists.")
	}
	if err != nil {
		return c, fmt.Errorf("create currency: %w", err)
	}
	return c, nil
}

const setCurrencyActive = `UPDATE currencies SET is_active = $2, updated_at = $3 WHERE id = $1`

func (q *Queries) SetCurrencyActive(ctx context.Context, id int64, active bool, now time.Time) error {
	res, err := q.db.ExecContext(ctx, setCurrencyActive, id, active, utc(now))
	if err != nil {
		return fmt.Errorf("update currency %d: %w", id, err)
	}
	return expectOne(res, "Currency does not exist.")
}

const countCurrencyReferences = `SELECT
  (SELECT COUNT(*) FROM transactions WHERE currency_id = $1) +
  (SELECT COUNT(*) FROM debtor_transactions WHERE currency_id = $1) +
  (SELECT COUNT(*) FROM debtor_balances WHERE currency_id = $1) +
  (SELECT COUNT(*) FROM users WHERE default_currency_id = $1)`

const deleteCurrency = `DELETE FROM currencies WHERE id = $1`

// DeleteCurrency locks the currency, refuses while anything references it
// and deletes it. Call it inside a transaction.
func (q *Queries) DeleteCurrency(ctx context.Context, id int64) error {
	if err := q.lockRow(ctx, "currencies", id, "Currency does not exist."); err != nil {
		return err
	}
	var refs int64
	if err := q.db.QueryRowContext(ctx, countCurrencyReferences, id).Scan(&refs); err != nil {
		return fmt.Errorf("count currency references: %w", err)
	}
	if refs > 0 {
		return core.Conflict("Cannot delete currency because it is in use.")
	}
	if _, err := q.db.ExecContext(ctx, deleteCurrency, id); err != nil {
		if IsForeignKeyViolation(err) {
			return core.Conflict("Cannot delete currency because it is in use.")
		}
		return fmt.Errorf("delete currency %d: %w", id, err)
	}
	return nil
}

func (q *Queries) lockRow(ctx context.Context, table string, id int64, notFound string) error {
	var got int64
	err := q.db.QueryRowContext(ctx, q.dialect.lockRowSQL(table), id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return core.NotFound(notFound)
	}
	if err != nil {
		return fmt.Errorf("lock %s %d: %w", table, id, err)
	}
	return nil
}

func expectOne(res sql.Result, notFound string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return core.NotFound(notFound)
	}
	return nil
}
