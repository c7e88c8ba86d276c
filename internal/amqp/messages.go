package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"conti/internal/core"
)

// CarryforwardPostedMessage announces a new carryforward posting. It
// carries only the posting id and a summary; consumers load the posting
// itself from the ledger.
type CarryforwardPostedMessage struct {
	ID          int64     `json:"id"`
	MessageID   string    `json:"message_id"`
	SourceMonth string    `json:"source_month"`
	TargetMonth string    `json:"target_month"`
	AmountCents int64     `json:"amount_cents"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewCarryforwardPostedMessage creates a message with a fresh message id.
func NewCarryforwardPostedMessage(p core.CarryforwardPosting) *CarryforwardPostedMessage {
	return &CarryforwardPostedMessage{
		ID:          p.ID,
		MessageID:   uuid.NewString(),
		SourceMonth: p.SourceMonth.String(),
		TargetMonth: p.TargetMonth.String(),
		AmountCents: p.Amount.Cents,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *CarryforwardPostedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CarryforwardPostedMessageFromJSON creates a message from JSON bytes
func CarryforwardPostedMessageFromJSON(data []byte) (*CarryforwardPostedMessage, error) {
	var msg CarryforwardPostedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
