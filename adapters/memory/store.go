package memory

import (
	"context"
	"sync"
	"time"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/model"
)

// MessageStore implements echobus.MessageRepository in memory.
type MessageStore struct {
	mu     sync.RWMutex
	rows   []model.StoredMessage
	nextID int64
	now    func() time.Time
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{nextID: 1, now: time.Now}
}

// Save appends m with the next ID.
func (s *MessageStore) Save(_ context.Context, m model.StoredMessage) (model.StoredMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = s.nextID
	s.nextID++
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = s.now().UTC()
	}
	s.rows = append(s.rows, m)
	return m, nil
}

// Find returns matching rows in insertion order.
func (s *MessageStore) Find(_ context.Context, filter echobus.MessageFilter) ([]model.StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.StoredMessage{}
	for _, m := range s.rows {
		if filter.Matches(m) {
			out = append(out, m)
		}
	}
	return out, nil
}

// Len returns the number of stored rows.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.rows)
}

// DeadLetterStore implements echobus.DeadLetterRepository in memory.
type DeadLetterStore struct {
	mu     sync.RWMutex
	rows   []model.DeadLetter
	nextID int64
}

// NewDeadLetterStore creates an empty store.
func NewDeadLetterStore() *DeadLetterStore {
	return &DeadLetterStore{nextID: 1}
}

// Load retrieves a dead letter by ID.
func (s *DeadLetterStore) Load(_ context.Context, id int64) (model.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, dl := range s.rows {
		if dl.ID == id {
			return dl, nil
		}
	}
	return model.DeadLetter{}, echobus.ErrNoData
}

// Save inserts m when its ID is 0 and replaces the stored row otherwise.
func (s *DeadLetterStore) Save(_ context.Context, m model.DeadLetter) (model.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.ID == 0 {
		m.ID = s.nextID
		s.nextID++
		s.rows = append(s.rows, m)
		return m, nil
	}

	for i := range s.rows {
		if s.rows[i].ID == m.ID {
			s.rows[i] = m
			return m, nil
		}
	}
	return m, echobus.ErrNoData
}

// FindUnresolved returns up to limit unresolved rows, oldest first.
// A non-positive limit returns all of them.
func (s *DeadLetterStore) FindUnresolved(_ context.Context, limit int) ([]model.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.DeadLetter{}
	for _, dl := range s.rows {
		if limit > 0 && len(out) == limit {
			break
		}
		if !dl.IsResolved {
			out = append(out, dl)
		}
	}
	return out, nil
}

// FindByEnvelopeID returns every row recorded for envelopeID.
func (s *DeadLetterStore) FindByEnvelopeID(_ context.Context, envelopeID string) ([]model.DeadLetter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.DeadLetter{}
	for _, dl := range s.rows {
		if dl.EnvelopeID == envelopeID {
			out = append(out, dl)
		}
	}
	return out, nil
}

// GetStats counts stored rows.
func (s *DeadLetterStore) GetStats(_ context.Context) (model.DeadLetterStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.DeadLetterStats{TotalItems: len(s.rows), LastUpdated: time.Now()}
	for _, dl := range s.rows {
		if !dl.IsResolved {
			stats.UnresolvedItems++
		}
	}
	stats.ResolvedItems = stats.TotalItems - stats.UnresolvedItems
	return stats, nil
}
