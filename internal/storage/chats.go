package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paylog/internal/core"
)

const ensurePayNoteChat = `INSERT INTO paynote_chats (owner_id, message, photo_url, created_at, updated_at)
VALUES ($1, NULL, NULL, $2, $2)
ON CONFLICT (owner_id) DO NOTHING`

const payNoteColumns = `id, owner_id, message, photo_url, created_at, updated_at`

func scanPayNote(row interface{ Scan(...any) error }) (core.PayNoteChat, error) {
	var (
		c        core.PayNoteChat
		msg, url sql.NullString
	)
	err := row.Scan(&c.ID, &c.OwnerID, &msg, &url, scanTime(&c.CreatedAt), scanTime(&c.UpdatedAt))
	c.Message = stringPtr(msg)
	c.PhotoURL = stringPtr(url)
	return c, err
}

// EnsurePayNoteChat returns the owner's notebook chat, creating it with an
// empty preview on first access.
func (q *Queries) EnsurePayNoteChat(ctx context.Context, ownerID int64, now time.Time) (core.PayNoteChat, error) {
	if _, err := q.db.ExecContext(ctx, ensurePayNoteChat, ownerID, utc(now)); err != nil {
		return core.PayNoteChat{}, fmt.Errorf("ensure paynote chat: %w", err)
	}
	c, err := scanPayNote(q.db.QueryRowContext(ctx, `SELECT `+payNoteColumns+` FROM paynote_chats WHERE owner_id = $1`, ownerID))
	if err != nil {
		return c, fmt.Errorf("get paynote chat: %w", err)
	}
	return c, nil
}

// FindPayNoteChat looks the chat up by id within the owner's chats.
func (q *Queries) FindPayNoteChat(ctx context.Context, ownerID, id int64) (core.PayNoteChat, bool, error) {
	c, err := scanPayNote(q.db.QueryRowContext(ctx,
		`SELECT `+payNoteColumns+` FROM paynote_chats WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	}
	if err != nil {
		return c, false, fmt.Errorf("find paynote chat %d: %w", id, err)
	}
	return c, true, nil
}

const debtorChatColumns = `id, owner_id, full_name, phone, photo_url, message, created_at, updated_at`

func scanDebtorChat(row interface{ Scan(...any) error }) (core.DebtorChat, error) {
	var (
		c        core.DebtorChat
		url, msg sql.NullString
	)
	err := row.Scan(&c.ID, &c.OwnerID, &c.FullName, &c.Phone, &url, &msg, scanTime(&c.CreatedAt), scanTime(&c.UpdatedAt))
	c.PhotoURL = stringPtr(url)
	c.Message = stringPtr(msg)
	return c, err
}

// ListDebtorChats returns the owner's debtor chats, most recently updated
// first.
func (q *Queries) ListDebtorChats(ctx context.Context, ownerID int64) ([]core.DebtorChat, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+debtorChatColumns+` FROM debtor_chats WHERE owner_id = $1 ORDER BY updated_at DESC, id DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list debtor chats: %w", err)
	}
	defer rows.Close()

	var out []core.DebtorChat
	for rows.Next() {
		c, err := scanDebtorChat(rows)
		if err != nil {
			return nil, fmt.Errorf("scan debtor chat: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) FindDebtorChat(ctx context.Context, ownerID, id int64) (core.DebtorChat, bool, error) {
	c, err := scanDebtorChat(q.db.QueryRowContext(ctx,
		`SELECT `+debtorChatColumns+` FROM debtor_chats WHERE id = $1 AND owner_id = $2`, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return c, false, nil
	}
	if err != nil {
		return c, false, fmt.Errorf("find debtor chat %d: %w", id, err)
	}
	return c, true, nil
}

const createDebtorChat = `INSERT INTO debtor_chats (owner_id, full_name, phone, photo_url, message, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULL, $5, $5)
RETURNING ` + debtorChatColumns

// CreateDebtorChat inserts a chat; a second chat for the same (owner, phone)
// is a conflict.
func (q *Queries) CreateDebtorChat(ctx context.Context, ownerID int64, in core.NewDebtorChat, now time.Time) (core.DebtorChat, error) {
	c, err := scanDebtorChat(q.db.QueryRowContext(ctx, createDebtorChat,
		ownerID, in.FullName, in.Phone, nullString(in.PhotoURL), utc(now)))
	if IsUniqueViolation(err) {
		return c, core.Conflict("Debtor already exists.")
	}
	if err != nil {
		return c, fmt.Errorf("create debtor chat: %w", err)
	}
	return c, nil
}

// TouchDebtorChats bumps updated_at of the owner's chat with phone so the
// chat list reflects recent activity.
func (q *Queries) TouchDebtorChats(ctx context.Context, ownerID int64, phone string, now time.Time) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE debtor_chats SET updated_at = $3 WHERE owner_id = $1 AND phone = $2`, ownerID, phone, utc(now)); err != nil {
		return fmt.Errorf("touch debtor chat: %w", err)
	}
	return nil
}
