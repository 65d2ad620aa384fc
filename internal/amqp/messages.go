package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// RoutingKeyReportRequested is the message type carried in the Type header.
const RoutingKeyReportRequested = "report.requested"

var ErrInvalidMessage = errors.New("invalid report request message")

// ReportRequestMessage asks the worker to publish the report of an event.
// It carries ids only; the worker loads rows from the database.
type ReportRequestMessage struct {
	RequestID int64     `json:"request_id"`
	EventID   int64     `json:"event_id"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

// NewReportRequestMessage creates a message stamped with the current time.
func NewReportRequestMessage(requestID, eventID int64, currency string) *ReportRequestMessage {
	return &ReportRequestMessage{
		RequestID: requestID,
		EventID:   eventID,
		Currency:  currency,
		Timestamp: time.Now().UTC(),
	}
}

// Validate rejects messages no handler could act on.
func (m *ReportRequestMessage) Validate() error {
	if m.RequestID <= 0 || m.EventID <= 0 {
		return ErrInvalidMessage
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *ReportRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ReportRequestMessageFromJSON decodes and validates a message.
func ReportRequestMessageFromJSON(data []byte) (*ReportRequestMessage, error) {
	var msg ReportRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}
