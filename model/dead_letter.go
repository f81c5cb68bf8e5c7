package model

import (
	"encoding/json"
	"time"
)

// DeadLetter is the audit record of an envelope that failed permanently and was
// republished to its dead-letter topic.
//
// The record serves as:
//   - Failure audit log with the classification and last error
//   - Manual intervention list for operators (Resolve)
//   - Source for failure statistics
//
// Rows remain until resolved or deleted by an administrator.
type DeadLetter struct {
	ID         int64  `json:"id" db:"id"`
	EnvelopeID string `json:"envelopeId" db:"envelope_id"`

	// Origin of the failed delivery
	Topic           string `json:"topic" db:"topic"`
	Partition       int    `json:"partition" db:"partition_no"`
	Offset          int64  `json:"offset" db:"offset_no"`
	DeadLetterTopic string `json:"deadLetterTopic" db:"dead_letter_topic"`

	// Payload and headers as delivered (headers JSON-encoded)
	Payload string `json:"payload" db:"payload"`
	Headers string `json:"headers" db:"headers"`

	// Failure information
	ErrorKind string `json:"errorKind" db:"error_kind"` // retryable, non-retryable, unclassified
	ErrorType string `json:"errorType" db:"error_type"` // Go type of the root cause
	LastError string `json:"lastError" db:"last_error"`
	Attempts  int    `json:"attempts" db:"attempts"`

	// Timing information
	FirstAttemptAt time.Time `json:"firstAttemptAt" db:"first_attempt_at"`
	LastAttemptAt  time.Time `json:"lastAttemptAt" db:"last_attempt_at"`
	DeadLetteredAt time.Time `json:"deadLetteredAt" db:"dead_lettered_at"`

	// Lifecycle
	IsResolved     bool       `json:"isResolved" db:"is_resolved"`
	ResolvedAt     *time.Time `json:"resolvedAt" db:"resolved_at"`
	ResolvedBy     string     `json:"resolvedBy" db:"resolved_by"`
	ResolutionNote string     `json:"resolutionNote" db:"resolution_note"`
}

// TableName returns the database table name for DeadLetter.
func (d DeadLetter) TableName() string {
	return "dead_letters"
}

// DeadLetterFailure describes why and after how many attempts a delivery was dead-lettered.
type DeadLetterFailure struct {
	Kind           string
	Type           string
	Message        string
	Attempts       int
	FirstAttemptAt time.Time
	LastAttemptAt  time.Time
}

// NewDeadLetter creates an unresolved audit record for env.
// Headers are stored JSON-encoded; encoding a string map cannot fail.
func NewDeadLetter(env Envelope, deadLetterTopic string, failure DeadLetterFailure) DeadLetter {
	headers, _ := json.Marshal(env.Headers.Clone())

	return DeadLetter{
		EnvelopeID:      env.ID,
		Topic:           env.Topic,
		Partition:       env.Partition,
		Offset:          env.Offset,
		DeadLetterTopic: deadLetterTopic,
		Payload:         env.Message,
		Headers:         string(headers),
		ErrorKind:       failure.Kind,
		ErrorType:       failure.Type,
		LastError:       failure.Message,
		Attempts:        failure.Attempts,
		FirstAttemptAt:  failure.FirstAttemptAt,
		LastAttemptAt:   failure.LastAttemptAt,
		DeadLetteredAt:  time.Now(),
	}
}

// HeaderMap decodes the stored headers.
func (d DeadLetter) HeaderMap() (Headers, error) {
	headers := Headers{}
	if d.Headers == "" {
		return headers, nil
	}
	if err := json.Unmarshal([]byte(d.Headers), &headers); err != nil {
		return nil, err
	}
	return headers, nil
}

// Resolve marks the record as handled by an operator, typically after a manual
// replay or after deciding the failure can be ignored.
func (d *DeadLetter) Resolve(resolvedBy, note string) {
	now := time.Now()
	d.IsResolved = true
	d.ResolvedAt = &now
	d.ResolvedBy = resolvedBy
	d.ResolutionNote = note
}

// GetAge returns how long the record has been dead-lettered.
func (d *DeadLetter) GetAge() time.Duration {
	return time.Since(d.DeadLetteredAt)
}

// IsOld checks if the record has been dead-lettered longer than threshold.
func (d *DeadLetter) IsOld(threshold time.Duration) bool {
	return d.GetAge() > threshold
}

// DeadLetterStats is an aggregate view of the dead-letter table.
type DeadLetterStats struct {
	TotalItems      int       `json:"totalItems"`
	UnresolvedItems int       `json:"unresolvedItems"`
	ResolvedItems   int       `json:"resolvedItems"`
	LastUpdated     time.Time `json:"lastUpdated"`
}
