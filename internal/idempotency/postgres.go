package idempotency

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresRepository implements Repository using PostgreSQL, so purchase
// replay records survive API restarts.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get retrieves an idempotency key by its key value.
// Returns ErrKeyNotFound if the key doesn't exist.
func (r *PostgresRepository) Get(key string) (*IdempotencyKey, error) {
	query := `
		SELECT key, method, route, created_at, tx_hash, response_hash,
		       status, response_body, response_status_code
		FROM idempotency_keys
		WHERE key = $1
	`
	record := &IdempotencyKey{}
	var txHash sql.NullString
	err := r.db.QueryRow(query, key).Scan(
		&record.Key,
		&record.Method,
		&record.Route,
		&record.CreatedAt,
		&txHash,
		&record.ResponseHash,
		&record.Status,
		&record.ResponseBody,
		&record.ResponseStatusCode,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query idempotency key: %w", err)
	}
	if txHash.Valid {
		v := txHash.String
		record.TxHash = &v
	}
	return record, nil
}

// Store saves a new idempotency key.
// Returns ErrKeyExists if the key already exists.
func (r *PostgresRepository) Store(record *IdempotencyKey) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO idempotency_keys (
			key, method, route, created_at, tx_hash, response_hash,
			status, response_body, response_status_code
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (key) DO NOTHING
	`
	res, err := r.db.Exec(
		query,
		record.Key,
		record.Method,
		record.Route,
		createdAt,
		record.TxHash,
		record.ResponseHash,
		record.Status,
		record.ResponseBody,
		record.ResponseStatusCode,
	)
	if err != nil {
		return fmt.Errorf("failed to insert idempotency key: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if inserted == 0 {
		return ErrKeyExists
	}

	record.CreatedAt = createdAt
	return nil
}

// DeleteOlderThan removes idempotency keys older than the specified duration.
// Returns the number of keys deleted.
func (r *PostgresRepository) DeleteOlderThan(duration time.Duration) (int64, error) {
	res, err := r.db.Exec(
		`DELETE FROM idempotency_keys WHERE created_at < $1`,
		time.Now().Add(-duration),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale idempotency keys: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read delete result: %w", err)
	}
	return deleted, nil
}
