// Package repositories implements the domain repository interfaces
// against PostgreSQL via sqlx and lib/pq.
package repositories

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// NewDB opens and pings a PostgreSQL connection pool from a DSN.
func NewDB(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("repositories: connect: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("repositories: ping: %w", err)
	}
	return db, nil
}

// AdvisoryLock takes a Postgres transaction-level advisory lock keyed by
// subjectKey (such as a hash of a subject identifier), serializing callers
// that use the same key. The lock is released automatically when tx
// commits or rolls back. The GDPR operations (pseudonymize, erase) do not
// call it and run without a per-subject lock.
func AdvisoryLock(tx *sqlx.Tx, subjectKey int64) error {
	_, err := tx.Exec(`SELECT pg_advisory_xact_lock($1)`, subjectKey)
	if err != nil {
		return fmt.Errorf("repositories: advisory lock: %w", err)
	}
	return nil
}
