// Package responsedb persists response matrices, their truncated inverses
// and unfolding results in SQLite.
package responsedb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/smearceptance/internal/timeutil"
)

// DB wraps a SQLite handle with the response schema applied.
type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// connPragmas are applied by the driver to every pooled connection.
const connPragmas = "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
}

// Open opens or creates the database file at path and migrates it to the
// latest schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+connPragmas)
	if err != nil {
		return nil, fmt.Errorf("open response database: %w", err)
	}

	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	db := &DB{DB: sqlDB, clock: timeutil.RealClock{}}
	if err := db.MigrateUp(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// SetClock replaces the clock used for created_at timestamps.
func (db *DB) SetClock(c timeutil.Clock) {
	db.clock = c
}
