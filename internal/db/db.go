// Package db provides database connection handling for the audit trail.
package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// Pool limits. The audit trail takes a table lock per append, so a modest
// pool keeps lock contention bounded.
const (
	MaxOpenConns    = 25
	MaxIdleConns    = 5
	ConnMaxLifetime = 5 * time.Minute
)

// Open connects to Postgres and configures the connection pool. The caller
// owns the returned handle and should defer Close.
func Open(databaseURL string) (*sql.DB, error) {
	handle, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	handle.SetMaxOpenConns(MaxOpenConns)
	handle.SetMaxIdleConns(MaxIdleConns)
	handle.SetConnMaxLifetime(ConnMaxLifetime)

	return handle, nil
}
