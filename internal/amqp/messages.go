package amqp

import (
	"encoding/json"
	"fmt"
	"time"
)

// Operation names carried by RecordChangedMessage.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// RecordChangedMessage announces that the row for Date was written or removed.
// Consumers reload the record themselves; the message carries no amounts.
type RecordChangedMessage struct {
	Date      string    `json:"date"`
	Operation string    `json:"operation"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordChangedMessage creates a change message stamped with the current time.
func NewRecordChangedMessage(date, operation string) *RecordChangedMessage {
	return &RecordChangedMessage{
		Date:      date,
		Operation: operation,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChangedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// RecordChangedMessageFromJSON decodes and validates a change message.
func RecordChangedMessageFromJSON(data []byte) (*RecordChangedMessage, error) {
	var msg RecordChangedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Date == "" {
		return nil, fmt.Errorf("record changed message without date")
	}
	if msg.Operation != OpUpsert && msg.Operation != OpDelete {
		return nil, fmt.Errorf("unknown operation %q", msg.Operation)
	}
	return &msg, nil
}
