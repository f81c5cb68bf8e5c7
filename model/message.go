package model

import "time"

// StoredMessage is a successfully processed envelope persisted by the message store.
// Rows are append-only: created on success, never mutated.
type StoredMessage struct {
	ID         int64     `json:"id" db:"id"`                  // Store-assigned ID
	Topic      string    `json:"topic" db:"topic"`            // Topic the envelope was consumed from
	Message    string    `json:"message" db:"message"`        // Envelope payload
	ReceivedAt time.Time `json:"receivedAt" db:"received_at"` // Assigned by the store on save
}

// TableName returns the database table name for StoredMessage.
func (m StoredMessage) TableName() string {
	return "messages"
}

// NewStoredMessage creates an unsaved row for an envelope consumed from topic.
func NewStoredMessage(topic, message string) StoredMessage {
	return StoredMessage{
		Topic:   topic,
		Message: message,
	}
}
