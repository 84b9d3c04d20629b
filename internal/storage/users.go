package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"paylog/internal/core"
)

const userSelect = `SELECT u.id, u.phone, u.telegram_user_id, u.first_name, u.last_name, u.is_premium, u.is_active,
  u.date_joined, u.default_currency_id, cur.code
FROM users u
LEFT JOIN currencies cur ON cur.id = u.default_currency_id`

func scanUser(row interface{ Scan(...any) error }) (core.User, error) {
	var (
		u       core.User
		tg      sql.NullString
		curID   sql.NullInt64
		curCode sql.NullString
	)
	err := row.Scan(&u.ID, &u.Phone, &tg, &u.FirstName, &u.LastName, &u.IsPremium, &u.IsActive,
		scanTime(&u.DateJoined), &curID, &curCode)
	if err != nil {
		return u, err
	}
	u.TelegramUserID = stringPtr(tg)
	if curID.Valid {
		u.DefaultCurrency = &core.CurrencyRef{ID: curID.Int64, Code: curCode.String}
	}
	return u, nil
}

func (q *Queries) findUser(ctx context.Context, where string, arg any) (core.User, bool, error) {
	u, err := scanUser(q.db.QueryRowContext(ctx, userSelect+" WHERE "+where, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return u, false, nil
	}
	if err != nil {
		return u, false, fmt.Errorf("find user: %w", err)
	}
	return u, true, nil
}

func (q *Queries) GetUser(ctx context.Context, id int64) (core.User, error) {
	u, ok, err := q.findUser(ctx, "u.id = $1", id)
	if err != nil {
		return u, err
	}
	if !ok {
		return u, core.NotFound("User not found.")
	}
	return u, nil
}

func (q *Queries) FindUserByPhone(ctx context.Context, phone string) (core.User, bool, error) {
	return q.findUser(ctx, "u.phone = $1", phone)
}

func (q *Queries) FindUserByTelegramID(ctx context.Context, telegramID string) (core.User, bool, error) {
	return q.findUser(ctx, "u.telegram_user_id = $1", telegramID)
}

const createUser = `INSERT INTO users (phone, telegram_user_id, first_name, last_name, is_premium, is_active, date_joined, default_currency_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

// CreateUser inserts u and returns its id.
func (q *Queries) CreateUser(ctx context.Context, u core.User) (int64, error) {
	var curID *int64
	if u.DefaultCurrency != nil {
		curID = &u.DefaultCurrency.ID
	}
	var id int64
	err := q.db.QueryRowContext(ctx, createUser, u.Phone, nullString(u.TelegramUserID), u.FirstName, u.LastName,
		u.IsPremium, u.IsActive, utc(u.DateJoined), nullInt64(curID)).Scan(&id)
	if IsUniqueViolation(err) {
		return 0, core.Conflict("User already exists.")
	}
	if err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	return id, nil
}

const updateUserIdentity = `UPDATE users SET phone = $2, telegram_user_id = $3, first_name = $4, last_name = $5 WHERE id = $1`

// UpdateUserIdentity stores the phone, Telegram binding and names of u.
func (q *Queries) UpdateUserIdentity(ctx context.Context, u core.User) error {
	res, err := q.db.ExecContext(ctx, updateUserIdentity, u.ID, u.Phone, nullString(u.TelegramUserID), u.FirstName, u.LastName)
	if IsUniqueViolation(err) {
		return core.NewValidationError("Phone already in use.")
	}
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, err)
	}
	return expectOne(res, "User not found.")
}

const updateUserProfile = `UPDATE users SET first_name = $2, last_name = $3, default_currency_id = $4 WHERE id = $1`

func (q *Queries) UpdateUserProfile(ctx context.Context, id int64, firstName, lastName string, defaultCurrencyID *int64) error {
	res, err := q.db.ExecContext(ctx, updateUserProfile, id, firstName, lastName, nullInt64(defaultCurrencyID))
	if err != nil {
		return fmt.Errorf("update profile %d: %w", id, err)
	}
	return expectOne(res, "User not found.")
}

// PhoneTakenByOther reports whether a user other than excludeID owns phone.
func (q *Queries) PhoneTakenByOther(ctx context.Context, phone string, excludeID int64) (bool, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE phone = $1 AND id <> $2`, phone, excludeID).Scan(&n); err != nil {
		return false, fmt.Errorf("check phone: %w", err)
	}
	return n > 0, nil
}

// SetUserActive enables or disables login for a user.
func (q *Queries) SetUserActive(ctx context.Context, id int64, active bool) error {
	res, err := q.db.ExecContext(ctx, `UPDATE users SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("set user active %d: %w", id, err)
	}
	return expectOne(res, "User not found.")
}
