package core

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// ChatKind discriminates the two chat entities.
type ChatKind string

const (
	ChatPayNote ChatKind = "PAYNOTE"
	ChatDebtor  ChatKind = "DEBTOR"
)

var debtorPhonePattern = regexp.MustCompile(`^\+?\d{3,32}$`)

// ParseChatKind accepts an empty string (no discriminator) or one of the two
// kinds.
func ParseChatKind(s string) (ChatKind, error) {
	switch k := ChatKind(s); k {
	case "", ChatPayNote, ChatDebtor:
		return k, nil
	default:
		return "", NewValidationError("Invalid chat type.")
	}
}

// PayNoteChat is the user's personal notebook thread. There is exactly one
// per user.
type PayNoteChat struct {
	ID        int64
	OwnerID   int64
	Message   *string
	PhotoURL  *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// DebtorChat is a conversation with one debtor, keyed by (owner, phone).
type DebtorChat struct {
	ID        int64
	OwnerID   int64
	FullName  string
	Phone     string
	PhotoURL  *string
	Message   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChatEntry is one element of the merged chat list. The set of
// implementations is closed: PayNoteEntry and DebtorEntry.
type ChatEntry interface {
	Kind() ChatKind
	chatEntry()
}

// PayNoteEntry renders a PayNoteChat in the chat list.
type PayNoteEntry struct {
	Chat PayNoteChat
}

// DebtorEntry renders a DebtorChat with its live balance.
type DebtorEntry struct {
	Chat    DebtorChat
	Balance Balance
}

func (PayNoteEntry) Kind() ChatKind { return ChatPayNote }
func (DebtorEntry) Kind() ChatKind  { return ChatDebtor }
func (PayNoteEntry) chatEntry()     {}
func (DebtorEntry) chatEntry()      {}

// ChatDetail is the result of resolving a chat by id. Exactly one of PayNote
// and Debtor is set.
type ChatDetail struct {
	PayNote *PayNoteChat
	Debtor  *DebtorDetail
}

// DebtorDetail is the expanded view of a debtor thread.
type DebtorDetail struct {
	Chat         DebtorChat
	Transactions []DebtorTransaction
	Totals       Totals
	Balance      Balance
}

// Kind reports which variant d holds.
func (d ChatDetail) Kind() ChatKind {
	if d.Debtor != nil {
		return ChatDebtor
	}
	return ChatPayNote
}

// NewDebtorChat is the input for creating a debtor thread.
type NewDebtorChat struct {
	FullName string
	Phone    string
	PhotoURL *string
}

func (n *NewDebtorChat) Normalize() {
	n.FullName = strings.TrimSpace(n.FullName)
	n.Phone = strings.TrimSpace(n.Phone)
	if n.PhotoURL != nil && strings.TrimSpace(*n.PhotoURL) == "" {
		n.PhotoURL = nil
	}
}

func (n NewDebtorChat) Validate() error {
	v := &ValidationError{}
	switch {
	case n.FullName == "":
		v.Add("full_name", "This field is required.")
	case utf8.RuneCountInString(n.FullName) > 120:
		v.Add("full_name", "Ensure this field has no more than 120 characters.")
	}
	if !ValidDebtorPhone(n.Phone) {
		v.Add("phone", ErrInvalidPhone.Error())
	}
	if n.PhotoURL != nil {
		if err := ValidateURL(*n.PhotoURL); err != nil {
			v.Add("photo_url", err.Error())
		}
	}
	return v.OrNil()
}

// ValidDebtorPhone reports whether s is a valid debtor chat phone.
func ValidDebtorPhone(s string) bool {
	return debtorPhonePattern.MatchString(s)
}
