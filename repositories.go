package echobus

import (
	"context"
	"strings"

	"github.com/coregx/echobus/model"
)

// MessageFilter narrows MessageRepository.Find.
// Blank (empty or whitespace-only) fields impose no constraint; set fields combine with AND.
//
// Text matching ignores case for ASCII letters only, which is what SQLite's LOWER and
// LIKE guarantee. Other letters match as written; databases with Unicode-aware LOWER
// (PostgreSQL, MySQL) may additionally fold them in the stored message.
type MessageFilter struct {
	Topic string // Exact topic match
	Text  string // ASCII case-insensitive substring of the message text
}

// likeEscape is the escape character used in LIKE patterns built by MessageFilter.
// It is accepted by MySQL, PostgreSQL and SQLite.
const likeEscape = "!"

var likeReplacer = strings.NewReplacer(
	likeEscape, likeEscape+likeEscape,
	"%", likeEscape+"%",
	"_", likeEscape+"_",
)

// IsEmpty reports whether the filter matches every message.
func (f MessageFilter) IsEmpty() bool {
	return strings.TrimSpace(f.Topic) == "" && strings.TrimSpace(f.Text) == ""
}

// Where builds the SQL condition for the filter.
// It returns an empty clause and no args when the filter matches everything.
//
// Example:
//
//	MessageFilter{Topic: "echo", Text: "50%"}.Where()
//	// "topic = ? AND LOWER(message) LIKE ? ESCAPE '!'", ["echo", "%50!%%"]
func (f MessageFilter) Where() (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if topic := strings.TrimSpace(f.Topic); topic != "" {
		conds = append(conds, "topic = ?")
		args = append(args, topic)
	}
	if text := strings.TrimSpace(f.Text); text != "" {
		conds = append(conds, "LOWER(message) LIKE ? ESCAPE '"+likeEscape+"'")
		args = append(args, "%"+likeReplacer.Replace(asciiLower(text))+"%")
	}

	return strings.Join(conds, " AND "), args
}

// Matches applies the filter to an already loaded message.
// It follows the same rules as the clause produced by Where.
func (f MessageFilter) Matches(m model.StoredMessage) bool {
	if topic := strings.TrimSpace(f.Topic); topic != "" && m.Topic != topic {
		return false
	}
	if text := strings.TrimSpace(f.Text); text != "" &&
		!strings.Contains(asciiLower(m.Message), asciiLower(text)) {
		return false
	}
	return true
}

// asciiLower lower-cases A-Z and leaves every other rune untouched.
func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// MessageRepository defines the persistence interface for successfully processed messages.
// Rows are append-only: they are created once processing succeeds and never mutated.
//
// Implementations must be safe for concurrent use.
type MessageRepository interface {
	// Save appends a message and returns it with the store-assigned ID.
	// A zero ReceivedAt is set to the current UTC time.
	Save(ctx context.Context, m model.StoredMessage) (model.StoredMessage, error)

	// Find returns the messages matching filter in insertion order (id ASC).
	// Returns an empty slice if none match.
	Find(ctx context.Context, filter MessageFilter) ([]model.StoredMessage, error)
}

// DeadLetterRepository defines the persistence interface for the dead-letter audit table.
type DeadLetterRepository interface {
	// Load retrieves a dead letter by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.DeadLetter, error)

	// Save creates a new dead letter (if ID=0) or updates an existing one.
	// Returns the saved dead letter with populated ID.
	Save(ctx context.Context, m model.DeadLetter) (model.DeadLetter, error)

	// FindUnresolved retrieves unresolved dead letters.
	// Results are ordered oldest first.
	FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error)

	// FindByEnvelopeID retrieves every dead letter recorded for an envelope ID.
	// Envelope IDs are not unique, so several rows may match.
	FindByEnvelopeID(ctx context.Context, envelopeID string) ([]model.DeadLetter, error)

	// GetStats retrieves dead-letter counts.
	GetStats(ctx context.Context) (model.DeadLetterStats, error)
}
