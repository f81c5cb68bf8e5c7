package relica

import (
	"context"
	"database/sql"
	"time"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/model"
	"github.com/coregx/relica"
)

// MessageRepository implements echobus.MessageRepository using Relica.
type MessageRepository struct {
	db *relica.DB
}

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(sqlDB *sql.DB, driverName string) *MessageRepository {
	return &MessageRepository{db: relica.WrapDB(sqlDB, driverName)}
}

func (r *MessageRepository) tableName() string {
	return model.StoredMessage{}.TableName()
}

// Save appends a message row.
func (r *MessageRepository) Save(ctx context.Context, m model.StoredMessage) (model.StoredMessage, error) {
	if m.ReceivedAt.IsZero() {
		m.ReceivedAt = time.Now().UTC()
	}
	m.ID = 0

	// m.ID is auto-populated by Model().Insert()
	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert(); err != nil {
		return m, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to insert message", err)
	}
	return m, nil
}

// Find returns messages matching filter, oldest first.
func (r *MessageRepository) Find(ctx context.Context, filter echobus.MessageFilter) ([]model.StoredMessage, error) {
	q := r.db.WithContext(ctx).Select("*").From(r.tableName())
	if clause, args := filter.Where(); clause != "" {
		q = q.Where(clause, args...)
	}

	messages := []model.StoredMessage{}
	if err := q.OrderBy("id ASC").All(&messages); err != nil {
		return nil, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to find messages", err)
	}
	return messages, nil
}
