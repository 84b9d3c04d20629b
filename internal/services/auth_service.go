package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"paylog/internal/auth"
	"paylog/internal/core"
	"paylog/internal/storage"
)

// CodeSender delivers verification codes. Configured reports whether
// delivery is possible at all.
type CodeSender interface {
	Configured() bool
	Send(ctx context.Context, text string) error
}

// AuthConfig tunes one-time codes and new accounts.
type AuthConfig struct {
	OTPTTL              time.Duration
	MaxAttempts         int
	DefaultCurrencyCode string
}

// AuthService issues and verifies one-time codes, creates accounts on first
// login and manages the caller's profile.
type AuthService struct {
	store  *storage.Store
	tokens *auth.Tokens
	sender CodeSender
	cfg    AuthConfig
	clock  Clock
}

func NewAuthService(store *storage.Store, tokens *auth.Tokens, sender CodeSender, cfg AuthConfig, clock Clock) *AuthService {
	if cfg.OTPTTL <= 0 {
		cfg.OTPTTL = core.DefaultOTPTTL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = core.DefaultOTPMaxAttempts
	}
	if cfg.DefaultCurrencyCode == "" {
		cfg.DefaultCurrencyCode = "UZS"
	}
	return &AuthService{store: store, tokens: tokens, sender: sender, cfg: cfg, clock: clock}
}

// Login is the result of a successful phone verification.
type Login struct {
	Tokens  auth.TokenPair
	User    core.User
	NewUser bool
}

// TelegramIdentity is what the bot knows about the person asking for a code.
type TelegramIdentity struct {
	TelegramUserID string
	Phone          string
	FirstName      string
	LastName       string
}

// TelegramCode is handed back to the bot, which shows it to the user.
type TelegramCode struct {
	Code      string
	ExpiresIn int
}

// ProfilePatch lists the profile fields an update changes.
type ProfilePatch struct {
	FirstName         *string
	LastName          *string
	DefaultCurrencyID *int64
}

const msgCodeAlreadySent = "SMS already sent. Please wait before requesting again."

// codeVerdict is the outcome of checking a submitted code.
type codeVerdict int

const (
	codeAccepted codeVerdict = iota
	codeInvalid
	codeExhausted
)

func (v codeVerdict) err() error {
	switch v {
	case codeInvalid:
		return core.NewValidationError("Invalid or expired SMS.")
	case codeExhausted:
		return core.TooManyAttempts("Too many attempts. Please request a new SMS.")
	default:
		return nil
	}
}

// SendOTP issues a code for phone unless an unexpired one exists.
func (s *AuthService) SendOTP(ctx context.Context, phone string, lang core.Language) error {
	return s.issuePhoneCode(ctx, phone, lang, true)
}

// ResendOTP always issues a fresh code, invalidating older ones.
func (s *AuthService) ResendOTP(ctx context.Context, phone string, lang core.Language) error {
	return s.issuePhoneCode(ctx, phone, lang, false)
}

func (s *AuthService) issuePhoneCode(ctx context.Context, phone string, lang core.Language, refuseActive bool) error {
	if !core.ValidAccountPhone(phone) {
		return core.NewFieldError("phone", core.ErrInvalidPhone.Error())
	}
	if s.sender == nil || !s.sender.Configured() {
		return core.Unavailable("Telegram bot not configured.")
	}

	var otp core.OTP
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		now := s.clock.now()
		if refuseActive {
			_, active, err := q.LatestActiveOTP(ctx, core.OTPPhone, phone, now)
			if err != nil {
				return err
			}
			if active {
				return core.NewValidationError(msgCodeAlreadySent)
			}
		}
		var err error
		otp, err = s.newCode(ctx, q, core.OTPPhone, phone, now)
		return err
	})
	if err != nil {
		return err
	}

	if err := s.sender.Send(ctx, core.OTPMessage(lang, otp.Code)); err != nil {
		slog.ErrorContext(ctx, "Failed to deliver OTP", "otp_id", otp.ID, "error", err)
		if markErr := s.store.Queries().MarkOTPUsed(ctx, otp.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to invalidate undelivered OTP", "otp_id", otp.ID, "error", markErr)
		}
		return core.DeliveryFailed("Failed to send SMS.")
	}

	slog.InfoContext(ctx, "OTP sent", "otp_id", otp.ID, "lang", lang)
	return nil
}

// newCode invalidates the subject's unused codes and stores a new one.
func (s *AuthService) newCode(ctx context.Context, q *storage.Queries, channel core.OTPChannel, subject string, now time.Time) (core.OTP, error) {
	if err := q.InvalidateOTPs(ctx, channel, subject); err != nil {
		return core.OTP{}, err
	}
	code, err := core.GenerateOTPCode()
	if err != nil {
		return core.OTP{}, err
	}
	return q.CreateOTP(ctx, core.OTP{
		Channel:   channel,
		Subject:   subject,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.cfg.OTPTTL),
	})
}

// checkCode verifies code against the newest active code of subject. A
// wrong code counts as an attempt and the matching code is consumed, so the
// caller must commit even when the verdict is a rejection.
func (s *AuthService) checkCode(ctx context.Context, q *storage.Queries, channel core.OTPChannel, subject, code string) (codeVerdict, error) {
	otp, ok, err := q.LatestActiveOTP(ctx, channel, subject, s.clock.now())
	if err != nil {
		return codeInvalid, err
	}
	if !ok {
		return codeInvalid, nil
	}
	if otp.Attempts >= s.cfg.MaxAttempts {
		return codeExhausted, nil
	}
	if otp.Code != code {
		if err := q.IncrementOTPAttempts(ctx, otp.ID); err != nil {
			return codeInvalid, err
		}
		return codeInvalid, nil
	}
	if err := q.MarkOTPUsed(ctx, otp.ID); err != nil {
		return codeInvalid, err
	}
	return codeAccepted, nil
}

// VerifyOTP checks the code for phone, creating the account on first login.
func (s *AuthService) VerifyOTP(ctx context.Context, phone, code string) (Login, error) {
	v := &core.ValidationError{}
	if !core.ValidAccountPhone(phone) {
		v.Add("phone", core.ErrInvalidPhone.Error())
	}
	if !core.ValidOTPCode(code) {
		v.Add("code", "Enter a valid code.")
	}
	if err := v.OrNil(); err != nil {
		return Login{}, err
	}

	var (
		login   Login
		outcome error
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		verdict, err := s.checkCode(ctx, q, core.OTPPhone, phone, code)
		if err != nil {
			return err
		}
		if outcome = verdict.err(); outcome != nil {
			return nil
		}

		u, found, err := q.FindUserByPhone(ctx, phone)
		if err != nil {
			return err
		}
		if !found {
			if u, err = s.createUser(ctx, q, core.User{Phone: phone}); err != nil {
				return err
			}
			slog.InfoContext(ctx, "User created", "user_id", u.ID)
		}
		if !u.IsActive {
			outcome = core.Forbidden("User is inactive.")
			return nil
		}
		login.User = u
		login.NewUser = u.FirstName == ""
		return nil
	})
	if err != nil {
		return Login{}, err
	}
	if outcome != nil {
		return Login{}, outcome
	}

	if login.Tokens, err = s.tokens.Issue(login.User.ID); err != nil {
		return Login{}, err
	}
	return login, nil
}

// TelegramSendOTP binds the Telegram account to the phone and returns a
// fresh code for the bot to display.
func (s *AuthService) TelegramSendOTP(ctx context.Context, id TelegramIdentity) (TelegramCode, error) {
	id.FirstName = strings.TrimSpace(id.FirstName)
	id.LastName = strings.TrimSpace(id.LastName)
	v := &core.ValidationError{}
	if !core.ValidTelegramUserID(id.TelegramUserID) {
		v.Add("telegram_user_id", "Enter a valid Telegram user id.")
	}
	if !core.ValidAccountPhone(id.Phone) {
		v.Add("phone", core.ErrInvalidPhone.Error())
	}
	if utf8.RuneCountInString(id.FirstName) > 150 {
		v.Add("first_name", "Ensure this field has no more than 150 characters.")
	}
	if utf8.RuneCountInString(id.LastName) > 150 {
		v.Add("last_name", "Ensure this field has no more than 150 characters.")
	}
	if err := v.OrNil(); err != nil {
		return TelegramCode{}, err
	}

	var (
		out     TelegramCode
		outcome error
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		u, err := s.bindTelegram(ctx, q, id)
		if err != nil {
			return err
		}
		if !u.IsActive {
			outcome = core.Forbidden("User is inactive.")
			return nil
		}

		now := s.clock.now()
		_, active, err := q.LatestActiveOTP(ctx, core.OTPTelegram, id.TelegramUserID, now)
		if err != nil {
			return err
		}
		if active {
			outcome = core.TooManyAttempts(msgCodeAlreadySent)
			return nil
		}
		otp, err := s.newCode(ctx, q, core.OTPTelegram, id.TelegramUserID, now)
		if err != nil {
			return err
		}
		out = TelegramCode{Code: otp.Code, ExpiresIn: int(s.cfg.OTPTTL / time.Second)}
		return nil
	})
	if err != nil {
		return TelegramCode{}, err
	}
	return out, outcome
}

// bindTelegram finds the account for a Telegram user, falling back to an
// unbound account with the same phone, and stores the current identity.
func (s *AuthService) bindTelegram(ctx context.Context, q *storage.Queries, id TelegramIdentity) (core.User, error) {
	u, found, err := q.FindUserByTelegramID(ctx, id.TelegramUserID)
	if err != nil {
		return u, err
	}
	if found {
		taken, err := q.PhoneTakenByOther(ctx, id.Phone, u.ID)
		if err != nil {
			return u, err
		}
		if taken {
			return u, core.NewValidationError("Phone already in use.")
		}
	} else {
		u, found, err = q.FindUserByPhone(ctx, id.Phone)
		if err != nil {
			return u, err
		}
		if found && u.TelegramUserID != nil {
			return u, core.NewValidationError("Phone already in use.")
		}
	}

	tgID := id.TelegramUserID
	if !found {
		created, err := s.createUser(ctx, q, core.User{
			Phone:          id.Phone,
			TelegramUserID: &tgID,
			FirstName:      id.FirstName,
			LastName:       id.LastName,
		})
		if errors.Is(err, core.ErrConflict) {
			return u, core.NewValidationError("Phone already in use.")
		}
		if err != nil {
			return u, err
		}
		slog.InfoContext(ctx, "User created from Telegram", "user_id", created.ID)
		return created, nil
	}

	if u.TelegramUserID != nil && *u.TelegramUserID == tgID && u.Phone == id.Phone &&
		u.FirstName == id.FirstName && u.LastName == id.LastName {
		return u, nil
	}
	u.TelegramUserID = &tgID
	u.Phone = id.Phone
	u.FirstName = id.FirstName
	u.LastName = id.LastName
	if err := q.UpdateUserIdentity(ctx, u); err != nil {
		return u, err
	}
	return u, nil
}

// TelegramVerifyOTP checks a code issued through the bot and returns tokens
// for the bound account.
func (s *AuthService) TelegramVerifyOTP(ctx context.Context, telegramUserID, code string) (auth.TokenPair, error) {
	v := &core.ValidationError{}
	if !core.ValidTelegramUserID(telegramUserID) {
		v.Add("telegram_user_id", "Enter a valid Telegram user id.")
	}
	if !core.ValidOTPCode(code) {
		v.Add("otp", "Enter a valid code.")
	}
	if err := v.OrNil(); err != nil {
		return auth.TokenPair{}, err
	}

	var (
		userID  int64
		outcome error
	)
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		verdict, err := s.checkCode(ctx, q, core.OTPTelegram, telegramUserID, code)
		if err != nil {
			return err
		}
		if outcome = verdict.err(); outcome != nil {
			return nil
		}
		u, found, err := q.FindUserByTelegramID(ctx, telegramUserID)
		if err != nil {
			return err
		}
		switch {
		case !found:
			outcome = core.NotFound("User not found.")
		case !u.IsActive:
			outcome = core.Forbidden("User is inactive.")
		default:
			userID = u.ID
		}
		return nil
	})
	if err != nil {
		return auth.TokenPair{}, err
	}
	if outcome != nil {
		return auth.TokenPair{}, outcome
	}
	return s.tokens.Issue(userID)
}

// Refresh exchanges a refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refresh string) (string, error) {
	if strings.TrimSpace(refresh) == "" {
		return "", core.NewFieldError("refresh", "This field is required.")
	}
	return s.tokens.Refresh(refresh)
}

// Authenticate resolves an access token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, access string) (core.User, error) {
	claims, err := s.tokens.Parse(access, auth.AccessToken)
	if err != nil {
		return core.User{}, err
	}
	u, err := s.store.Queries().GetUser(ctx, claims.UserID)
	if errors.Is(err, core.ErrNotFound) {
		return u, core.Unauthorized("User not found.")
	}
	if err != nil {
		return u, err
	}
	if !u.IsActive {
		return u, core.Unauthorized("User is inactive.")
	}
	return u, nil
}

func (s *AuthService) Profile(ctx context.Context, userID int64) (core.User, error) {
	return s.store.Queries().GetUser(ctx, userID)
}

// UpdateProfile changes names and the default currency, which must be
// active.
func (s *AuthService) UpdateProfile(ctx context.Context, userID int64, patch ProfilePatch) (core.User, error) {
	var out core.User
	err := s.store.InTx(ctx, func(q *storage.Queries) error {
		u, err := q.GetUser(ctx, userID)
		if err != nil {
			return err
		}

		v := &core.ValidationError{}
		if patch.FirstName != nil {
			u.FirstName = strings.TrimSpace(*patch.FirstName)
			if utf8.RuneCountInString(u.FirstName) > 150 {
				v.Add("first_name", "Ensure this field has no more than 150 characters.")
			}
		}
		if patch.LastName != nil {
			u.LastName = strings.TrimSpace(*patch.LastName)
			if utf8.RuneCountInString(u.LastName) > 150 {
				v.Add("last_name", "Ensure this field has no more than 150 characters.")
			}
		}
		var currencyID *int64
		if u.DefaultCurrency != nil {
			currencyID = &u.DefaultCurrency.ID
		}
		if patch.DefaultCurrencyID != nil {
			c, err := q.GetCurrency(ctx, *patch.DefaultCurrencyID)
			switch {
			case errors.Is(err, core.ErrNotFound) || (err == nil && !c.IsActive):
				v.Add("default_currency", "Currency does not exist.")
			case err != nil:
				return err
			default:
				currencyID = &c.ID
			}
		}
		if err := v.OrNil(); err != nil {
			v.Message = "Invalid profile data."
			return v
		}

		if err := q.UpdateUserProfile(ctx, userID, u.FirstName, u.LastName, currencyID); err != nil {
			return err
		}
		out, err = q.GetUser(ctx, userID)
		return err
	})
	return out, err
}

// createUser stores an active account with the configured default
// currency, creating or reactivating that currency when needed.
func (s *AuthService) createUser(ctx context.Context, q *storage.Queries, u core.User) (core.User, error) {
	cur, err := s.defaultCurrency(ctx, q)
	if err != nil {
		return u, err
	}
	u.IsActive = true
	u.DateJoined = s.clock.now()
	u.DefaultCurrency = &core.CurrencyRef{ID: cur.ID, Code: cur.Code}

	id, err := q.CreateUser(ctx, u)
	if err != nil {
		return u, err
	}
	u.ID = id
	return u, nil
}

func (s *AuthService) defaultCurrency(ctx context.Context, q *storage.Queries) (core.Currency, error) {
	code := s.cfg.DefaultCurrencyCode
	c, err := q.GetCurrencyByCode(ctx, code)
	if errors.Is(err, core.ErrNotFound) {
		name := code
		if code == "UZS" {
			name = "Uzbekistani Som"
		}
		return q.CreateCurrency(ctx, code, name, true, s.clock.now())
	}
	if err != nil {
		return c, fmt.Errorf("default currency %s: %w", code, err)
	}
	if !c.IsActive {
		if err := q.SetCurrencyActive(ctx, c.ID, true, s.clock.now()); err != nil {
			return c, err
		}
		c.IsActive = true
	}
	return c, nil
}
