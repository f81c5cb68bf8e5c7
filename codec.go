package echobus

import (
	"encoding/json"
	"fmt"

	"github.com/coregx/echobus/model"
)

// Header names written by the publisher and the dead-letter sink.
const (
	HeaderPublishID = "echo-publish-id"

	HeaderDLTExceptionKind    = "dlt-exception-kind"
	HeaderDLTExceptionType    = "dlt-exception-type"
	HeaderDLTExceptionMessage = "dlt-exception-message"
	HeaderDLTOriginalTopic    = "dlt-original-topic"
	HeaderDLTOriginalPart     = "dlt-original-partition"
	HeaderDLTOriginalOffset   = "dlt-original-offset"
	HeaderDLTOriginalTime     = "dlt-original-timestamp"
	HeaderDLTAttempts         = "dlt-attempts"
)

// payload is the wire form of an envelope value.
type payload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// EncodeEnvelope builds the record for env on topic. The record is keyed by the envelope ID
// so that every record of one envelope lands on the same partition.
// Messages are expected to be valid UTF-8 (Envelope.Validate); invalid bytes would be
// replaced by U+FFFD in the JSON payload.
func EncodeEnvelope(topic string, env model.Envelope) (Record, error) {
	value, err := json.Marshal(payload{ID: env.ID, Message: env.Message})
	if err != nil {
		return Record{}, NewErrorWithCause(ErrCodePublish, "failed to encode envelope", err)
	}

	return Record{
		Topic:     topic,
		Partition: -1,
		Offset:    -1,
		Key:       []byte(env.ID),
		Value:     value,
		Headers:   env.Headers.Clone(),
		Time:      env.Timestamp,
	}, nil
}

// DecodeEnvelope rebuilds the envelope carried by rec, including its broker coordinates.
func DecodeEnvelope(rec Record) (model.Envelope, error) {
	var p payload
	if err := json.Unmarshal(rec.Value, &p); err != nil {
		return model.Envelope{}, NewErrorWithCause(ErrCodeDecode,
			fmt.Sprintf("invalid payload at %s/%d@%d", rec.Topic, rec.Partition, rec.Offset), err)
	}

	env := model.Envelope{
		ID:        p.ID,
		Message:   p.Message,
		Topic:     rec.Topic,
		Partition: rec.Partition,
		Offset:    rec.Offset,
		Headers:   rec.Headers.Clone(),
		Timestamp: rec.Time,
	}
	if err := env.Validate(); err != nil {
		return model.Envelope{}, NewErrorWithCause(ErrCodeDecode, "decoded envelope is invalid", err)
	}
	return env, nil
}
