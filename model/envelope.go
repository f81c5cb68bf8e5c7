// Package model contains the domain models flowing through the echo pipeline.
package model

import (
	"errors"
	"time"
	"unicode/utf8"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Headers carries string-keyed metadata alongside an envelope.
type Headers map[string]string

// Clone returns a copy of h that is safe to modify. A nil map clones to an empty one.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Envelope is the logical message unit flowing from publisher through the broker
// to the dispatcher and, on success, into storage.
//
// ID is supplied by the caller and never changes after creation. Topic, Partition,
// Offset and Timestamp describe where the envelope was delivered from and are only
// meaningful on the consumer side.
type Envelope struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Topic     string    `json:"topic,omitempty"`
	Partition int       `json:"partition"`
	Offset    int64     `json:"offset"`
	Headers   Headers   `json:"headers,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewEnvelope creates an envelope addressed to topic.
func NewEnvelope(id, message, topic string) Envelope {
	return Envelope{
		ID:        id,
		Message:   message,
		Topic:     topic,
		Partition: -1,
		Offset:    -1,
		Headers:   Headers{},
		Timestamp: time.Now(),
	}
}

// Validate checks the envelope can be published: the id is the partition key
// and must be present. The message must be valid UTF-8, since the JSON payload
// would otherwise replace invalid bytes with U+FFFD.
func (e Envelope) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.ID, validation.Required, validation.Length(1, 255)),
		validation.Field(&e.Message, ValidUTF8),
	)
}

// ValidUTF8 rejects strings holding invalid UTF-8.
var ValidUTF8 = validation.By(validUTF8)

func validUTF8(value interface{}) error {
	if s, _ := value.(string); !utf8.ValidString(s) {
		return errors.New("must be valid UTF-8")
	}
	return nil
}
