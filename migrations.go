package echobus

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

// MigrationFiles contains the SQL migrations embedded in the binary, one directory per
// driver: migrations/postgres, migrations/mysql and migrations/sqlite3.
// Users can apply them with their preferred tool, or call Migrate.
//
//go:embed migrations/*/*.sql
var MigrationFiles embed.FS

// MigrateOptions tunes Migrate.
type MigrateOptions struct {
	// Sandbox allows a destructive reset (down to zero, then up again) when the
	// regular migration fails. Never enable it against a database holding real data.
	Sandbox bool

	// Logger receives progress messages. Defaults to NoopLogger.
	Logger Logger
}

// goose keeps its dialect and filesystem in package-level state.
var migrateMu sync.Mutex

// Migrate brings the schema for driverName ("mysql", "postgres" or "sqlite3") up to date.
func Migrate(ctx context.Context, db *sql.DB, driverName string, opts MigrateOptions) error {
	if db == nil {
		return NewError(ErrCodeConfiguration, "database is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}

	dir, err := migrationDir(driverName)
	if err != nil {
		return err
	}

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(MigrationFiles)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(driverName); err != nil {
		return NewErrorWithCause(ErrCodeConfiguration, "unsupported migration dialect", err)
	}

	logger.Infof("Applying %s migrations", driverName)
	upErr := goose.UpContext(ctx, db, dir)
	if upErr == nil {
		return nil
	}
	if !opts.Sandbox {
		return NewErrorWithCause(ErrCodeDatabase, "migration failed", upErr)
	}

	logger.Warnf("Migration failed (%v), resetting sandbox schema", upErr)
	if err := goose.ResetContext(ctx, db, dir); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "sandbox reset failed", err)
	}
	if err := goose.UpContext(ctx, db, dir); err != nil {
		return NewErrorWithCause(ErrCodeDatabase, "migration failed after sandbox reset", err)
	}
	return nil
}

func migrationDir(driverName string) (string, error) {
	switch driverName {
	case "mysql", "postgres", "sqlite3":
		return "migrations/" + driverName, nil
	default:
		return "", NewError(ErrCodeConfiguration, fmt.Sprintf("unsupported database driver: %s", driverName))
	}
}
