package core

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// OTPChannel identifies who the code is issued to: a phone number or a
// Telegram user id.
type OTPChannel string

const (
	OTPPhone    OTPChannel = "phone"
	OTPTelegram OTPChannel = "telegram"
)

const (
	DefaultOTPTTL         = 2 * time.Minute
	DefaultOTPMaxAttempts = 5
	otpDigits             = 5
)

// OTP is a one-time verification code.
type OTP struct {
	ID        int64
	Channel   OTPChannel
	Subject   string
	Code      string
	Attempts  int
	Used      bool
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Active reports whether the code can still be verified at now.
func (o OTP) Active(now time.Time) bool {
	return !o.Used && o.ExpiresAt.After(now)
}

// GenerateOTPCode returns a zero-padded 5-digit code.
func GenerateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// Language is the OTP message language.
type Language string

const (
	LangEN Language = "en"
	LangRU Language = "ru"
	LangUZ Language = "uz"
)

// LanguageFromHeader picks the first supported language from an
// Accept-Language header value, defaulting to English.
func LanguageFromHeader(h string) Language {
	for _, part := range strings.Split(strings.ToLower(h), ",") {
		code := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		switch {
		case strings.HasPrefix(code, "uz"):
			return LangUZ
		case strings.HasPrefix(code, "ru"):
			return LangRU
		case strings.HasPrefix(code, "en"):
			return LangEN
		}
	}
	return LangEN
}

// OTPMessage renders the confirmation text sent to the user.
func OTPMessage(lang Language, code string) string {
	switch lang {
	case LangRU:
		return "Платформа Paylog: Код подтверждения операции: " + code
	case LangUZ:
		return "Paylog platformasi: Amaliyotni tasdiqlash kodi: " + code
	default:
		return "Paylog Platform: Operation confirmation code: " + code
	}
}
