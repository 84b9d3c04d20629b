package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"paylog/internal/core"
)

const otpColumns = `id, channel, subject, code, attempts, is_used, created_at, expires_at`

func scanOTP(row interface{ Scan(...any) error }) (core.OTP, error) {
	var (
		o       core.OTP
		channel string
	)
	err := row.Scan(&o.ID, &channel, &o.Subject, &o.Code, &o.Attempts, &o.Used, scanTime(&o.CreatedAt), scanTime(&o.ExpiresAt))
	o.Channel = core.OTPChannel(channel)
	return o, err
}

// LatestActiveOTP returns the newest unused code for subject that has not
// expired at now. Issuing a code invalidates older ones, so only the newest
// unused row can be active.
func (q *Queries) LatestActiveOTP(ctx context.Context, channel core.OTPChannel, subject string, now time.Time) (core.OTP, bool, error) {
	o, err := scanOTP(q.db.QueryRowContext(ctx,
		`SELECT `+otpColumns+` FROM otps WHERE channel = $1 AND subject = $2 AND is_used = $3 ORDER BY id DESC LIMIT 1`,
		string(channel), subject, false))
	if errors.Is(err, sql.ErrNoRows) {
		return o, false, nil
	}
	if err != nil {
		return o, false, fmt.Errorf("latest otp: %w", err)
	}
	if !o.Active(now) {
		return o, false, nil
	}
	return o, true, nil
}

// InvalidateOTPs marks every unused code of subject as used.
func (q *Queries) InvalidateOTPs(ctx context.Context, channel core.OTPChannel, subject string) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE otps SET is_used = $3 WHERE channel = $1 AND subject = $2 AND is_used = $4`,
		string(channel), subject, true, false); err != nil {
		return fmt.Errorf("invalidate otps: %w", err)
	}
	return nil
}

const createOTP = `INSERT INTO otps (channel, subject, code, attempts, is_used, created_at, expires_at)
VALUES ($1, $2, $3, 0, $4, $5, $6)
RETURNING id`

func (q *Queries) CreateOTP(ctx context.Context, o core.OTP) (core.OTP, error) {
	err := q.db.QueryRowContext(ctx, createOTP, string(o.Channel), o.Subject, o.Code, false, utc(o.CreatedAt), utc(o.ExpiresAt)).Scan(&o.ID)
	if err != nil {
		return o, fmt.Errorf("create otp: %w", err)
	}
	return o, nil
}

func (q *Queries) MarkOTPUsed(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE otps SET is_used = $2 WHERE id = $1`, id, true); err != nil {
		return fmt.Errorf("mark otp used: %w", err)
	}
	return nil
}

func (q *Queries) IncrementOTPAttempts(ctx context.Context, id int64) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE otps SET attempts = attempts + 1 WHERE id = $1`, id); err != nil {
		return fmt.Errorf("increment otp attempts: %w", err)
	}
	return nil
}

// GetOTP reads a code by id.
func (q *Queries) GetOTP(ctx context.Context, id int64) (core.OTP, error) {
	o, err := scanOTP(q.db.QueryRowContext(ctx, `SELECT `+otpColumns+` FROM otps WHERE id = $1`, id))
	if err != nil {
		return o, fmt.Errorf("get otp %d: %w", id, err)
	}
	return o, nil
}
