package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/echobus"
	"github.com/coregx/echobus/model"
	"github.com/coregx/relica"
)

// defaultUnresolvedLimit applies when FindUnresolved is called without a positive limit.
const defaultUnresolvedLimit = 100

// DeadLetterRepository implements echobus.DeadLetterRepository using Relica.
type DeadLetterRepository struct {
	db *relica.DB
}

// NewDeadLetterRepository creates a new DeadLetterRepository.
func NewDeadLetterRepository(sqlDB *sql.DB, driverName string) *DeadLetterRepository {
	return &DeadLetterRepository{db: relica.WrapDB(sqlDB, driverName)}
}

func (r *DeadLetterRepository) tableName() string {
	return model.DeadLetter{}.TableName()
}

// Load retrieves a dead letter by ID.
func (r *DeadLetterRepository) Load(ctx context.Context, id int64) (model.DeadLetter, error) {
	var dl model.DeadLetter
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&dl)
	if errors.Is(err, sql.ErrNoRows) {
		return dl, echobus.ErrNoData
	}
	if err != nil {
		return dl, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to load dead letter", err)
	}
	return dl, nil
}

// Save creates or updates a dead letter.
func (r *DeadLetterRepository) Save(ctx context.Context, m model.DeadLetter) (model.DeadLetter, error) {
	if m.ID == 0 {
		if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert(); err != nil {
			return m, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to insert dead letter", err)
		}
		return m, nil
	}

	if err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update(); err != nil {
		return m, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to update dead letter", err)
	}
	return m, nil
}

// FindUnresolved retrieves unresolved dead letters, oldest first.
func (r *DeadLetterRepository) FindUnresolved(ctx context.Context, limit int) ([]model.DeadLetter, error) {
	if limit <= 0 {
		limit = defaultUnresolvedLimit
	}

	items := []model.DeadLetter{}
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("is_resolved = ?", false).
		OrderBy("id ASC").
		Limit(int64(limit)).
		All(&items)
	if err != nil {
		return nil, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to find unresolved dead letters", err)
	}
	return items, nil
}

// FindByEnvelopeID retrieves the dead letters recorded for envelopeID.
func (r *DeadLetterRepository) FindByEnvelopeID(ctx context.Context, envelopeID string) ([]model.DeadLetter, error) {
	items := []model.DeadLetter{}
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("envelope_id = ?", envelopeID).
		OrderBy("id ASC").
		All(&items)
	if err != nil {
		return nil, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to find dead letters by envelope", err)
	}
	return items, nil
}

// countRow receives a single COUNT(*) AS total result; relica scans into structs only.
type countRow struct {
	Total int64 `db:"total"`
}

// GetStats retrieves dead-letter counts.
func (r *DeadLetterRepository) GetStats(ctx context.Context) (model.DeadLetterStats, error) {
	var stats model.DeadLetterStats
	var total, unresolved countRow

	err := r.db.WithContext(ctx).Select("COUNT(*) AS total").From(r.tableName()).One(&total)
	if err != nil {
		return stats, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to count dead letters", err)
	}
	stats.TotalItems = int(total.Total)

	err = r.db.WithContext(ctx).Select("COUNT(*) AS total").From(r.tableName()).Where("is_resolved = ?", false).One(&unresolved)
	if err != nil {
		return stats, echobus.NewErrorWithCause(echobus.ErrCodeDatabase, "failed to count unresolved dead letters", err)
	}
	stats.UnresolvedItems = int(unresolved.Total)
	stats.ResolvedItems = stats.TotalItems - stats.UnresolvedItems
	stats.LastUpdated = time.Now()
	return stats, nil
}
