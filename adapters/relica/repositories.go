package relica

import (
	"database/sql"

	"github.com/coregx/echobus"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Message    echobus.MessageRepository
	DeadLetter echobus.DeadLetterRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Message:    NewMessageRepository(db, driverName),
		DeadLetter: NewDeadLetterRepository(db, driverName),
	}
}
