package amqp

import (
	"encoding/json"
	"time"

	"paylog/internal/core"
)

// BalanceChangedMessage announces the new debtor balance of a user after a
// committed mutation. Balance is a fixed two-decimal string; Currency is nil
// when the user has no debtor transactions left. Seq grows with every
// mutation of the user: a message with a lower Seq than one already seen is
// stale.
type BalanceChangedMessage struct {
	UserID    int64     `json:"user_id"`
	Seq       int64     `json:"seq"`
	Balance   string    `json:"balance"`
	Currency  *string   `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

func NewBalanceChangedMessage(userID, seq int64, b core.Balance) *BalanceChangedMessage {
	msg := &BalanceChangedMessage{
		UserID:    userID,
		Seq:       seq,
		Balance:   core.FormatAmount(b.Total),
		Timestamp: time.Now(),
	}
	if b.Currency != nil {
		code := b.Currency.Code
		msg.Currency = &code
	}
	return msg
}

func (m *BalanceChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func BalanceChangedMessageFromJSON(data []byte) (*BalanceChangedMessage, error) {
	var msg BalanceChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
