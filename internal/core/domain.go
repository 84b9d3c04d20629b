package core

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const (
	Income  Direction = "INCOME"
	Expense Direction = "EXPENSE"
)

const dateLayout = "2006-01-02"

type (
	// Direction says whether an entry adds to or subtracts from a total.
	Direction string

	// Date is a calendar date without time of day, stored at UTC midnight.
	Date struct {
		time.Time
	}

	Currency struct {
		ID        int64
		Code      string
		Name      string
		IsActive  bool
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// CurrencyRef is the minimal currency identity carried by derived data.
	CurrencyRef struct {
		ID   int64
		Code string
	}

	Category struct {
		ID        int64
		Name      string // kept in sync with the localized names
		NameUz    string
		NameRu    string
		NameEn    string
		IconURL   *string
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	// CategoryRef is the localized category view embedded in transaction reads.
	CategoryRef struct {
		ID      int64
		NameUz  string
		NameRu  string
		NameEn  string
		IconURL *string
	}

	// Transaction is a ledger entry with a user-supplied date.
	Transaction struct {
		ID         int64
		UserID     int64
		Direction  Direction
		Amount     decimal.Decimal
		CurrencyID int64
		CategoryID int64
		Note       *string
		Date       Date
		CreatedAt  time.Time
		UpdatedAt  time.Time

		// Populated by reads.
		Currency CurrencyRef
		Category CategoryRef
	}

	// DebtorTransaction is an entry in a debtor thread. Date is the creation
	// date and is never changed afterwards.
	DebtorTransaction struct {
		ID         int64
		UserID     int64
		Direction  Direction
		Amount     decimal.Decimal
		CurrencyID int64
		Phone      *string
		Note       *string
		Date       Date

		Currency CurrencyRef
	}

	// DebtorBalance is the cached signed total of a user's debtor transactions.
	DebtorBalance struct {
		UserID    int64
		Currency  CurrencyRef
		Balance   decimal.Decimal
		UpdatedAt time.Time
	}

	User struct {
		ID              int64
		Phone           string
		TelegramUserID  *string
		FirstName       string
		LastName        string
		IsPremium       bool
		IsActive        bool
		DateJoined      time.Time
		DefaultCurrency *CurrencyRef
	}
)

var (
	ErrInvalidDirection = errors.New("Invalid transaction type.")
	ErrInvalidDate      = errors.New("Invalid date.")
	ErrInvalidPhone     = errors.New("Enter a valid phone number.")
	ErrInvalidURL       = errors.New("Enter a valid URL.")
	ErrInvalidID        = errors.New("Invalid id.")
)

var (
	accountPhonePattern = regexp.MustCompile(`^\+?\d{3,20}$`)
	telegramIDPattern   = regexp.MustCompile(`^\d{1,32}$`)
	otpCodePattern      = regexp.MustCompile(`^\d{5}$`)
)

// ParseDirection accepts the two direction values exactly as stored.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.TrimSpace(s)); d {
	case Income, Expense:
		return d, nil
	default:
		return "", ErrInvalidDirection
	}
}

func (d Direction) Valid() bool {
	return d == Income || d == Expense
}

// Signed returns amount for INCOME and -amount for EXPENSE.
func (d Direction) Signed(amount decimal.Decimal) decimal.Decimal {
	switch d {
	case Income:
		return amount
	case Expense:
		return amount.Neg()
	default:
		return decimal.Zero
	}
}

// NewDate creates a new Date from year, month, day.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, int(m), d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{Time: t}, nil
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// AddDays shifts the date by n calendar days.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// Before and After compare calendar dates.
func (d Date) Before(o Date) bool { return d.Time.Before(o.Time) }
func (d Date) After(o Date) bool  { return d.Time.After(o.Time) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + d.String() + `"`), nil
}

// Value stores dates as ISO strings so lexical order equals calendar order.
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	case nil:
		*d = Date{}
		return nil
	default:
		return fmt.Errorf("scan date: unsupported type %T", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) >= len(dateLayout) {
		if t, err := time.Parse(dateLayout, s[:len(dateLayout)]); err == nil {
			*d = Date{Time: t}
			return nil
		}
	}
	return fmt.Errorf("scan date: invalid value %q", s)
}

func (c CurrencyRef) String() string { return c.Code }

// SyncName sets the primary name from the localized variants (en, uz, ru).
func (c *Category) SyncName() {
	for _, n := range []string{c.NameEn, c.NameUz, c.NameRu} {
		if strings.TrimSpace(n) != "" {
			c.Name = n
			return
		}
	}
}

func (c Category) Validate() error {
	v := &ValidationError{}
	for field, val := range map[string]string{"name_uz": c.NameUz, "name_ru": c.NameRu, "name_en": c.NameEn} {
		lang := strings.TrimPrefix(field, "name_")
		switch {
		case strings.TrimSpace(val) == "":
			v.Add(field, fmt.Sprintf("Category name (%s) is required.", lang))
		case utf8.RuneCountInString(val) > 100:
			v.Add(field, "Ensure this field has no more than 100 characters.")
		}
	}
	if c.IconURL != nil {
		if err := ValidateURL(*c.IconURL); err != nil {
			v.Add("icon_url", err.Error())
		}
	}
	return v.OrNil()
}

func (t Transaction) Validate() error {
	v := &ValidationError{}
	if !t.Direction.Valid() {
		v.Add("type", ErrInvalidDirection.Error())
	}
	if err := ValidateAmount(t.Amount); err != nil {
		v.Add("amount", err.Error())
	}
	if t.CurrencyID <= 0 {
		v.Add("currency", "Invalid currency id.")
	}
	if t.CategoryID <= 0 {
		v.Add("category", "Invalid category id.")
	}
	if t.Date.IsZero() {
		v.Add("date", "Date is required.")
	}
	return v.OrNil()
}

func (t DebtorTransaction) Validate() error {
	v := &ValidationError{}
	if !t.Direction.Valid() {
		v.Add("type", ErrInvalidDirection.Error())
	}
	if err := ValidateAmount(t.Amount); err != nil {
		v.Add("amount", err.Error())
	}
	if t.CurrencyID <= 0 {
		v.Add("currency", "Invalid currency id.")
	}
	if t.Phone != nil && !ValidAccountPhone(*t.Phone) {
		v.Add("phone", ErrInvalidPhone.Error())
	}
	return v.OrNil()
}

// ValidateAmount checks an already-parsed amount against the same rules as
// ParseAmount.
func ValidateAmount(d decimal.Decimal) error {
	if !d.Equal(d.Truncate(AmountScale)) {
		return ErrAmountPrecision
	}
	if !d.IsPositive() {
		return ErrAmountNotPositive
	}
	if d.GreaterThanOrEqual(maxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}

// ValidateURL accepts absolute http(s) URLs of at most 200 characters.
func ValidateURL(raw string) error {
	if len(raw) > 200 {
		return ErrInvalidURL
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ErrInvalidURL
	}
	return nil
}

// ValidAccountPhone reports whether s is a user or debtor-transaction phone.
func ValidAccountPhone(s string) bool {
	return accountPhonePattern.MatchString(s)
}

func ValidTelegramUserID(s string) bool {
	return telegramIDPattern.MatchString(s)
}

func ValidOTPCode(s string) bool {
	return otpCodePattern.MatchString(s)
}

// FullName joins first and last name, skipping blanks.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
