package audit

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PostgresRepository implements Repository using PostgreSQL. Appends are
// serialized by the database: each insert reads the previous row's hash
// inside the same transaction with the table locked against concurrent
// appends, so the chain never forks.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new PostgresRepository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// LogAccess records an access event to the audit log.
func (r *PostgresRepository) LogAccess(entry LogEntry) (*AuditLog, error) {
	outcome := entry.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`LOCK TABLE audit_logs IN SHARE ROW EXCLUSIVE MODE`); err != nil {
		return nil, fmt.Errorf("failed to lock audit table: %w", err)
	}

	prevHash, err := lastHashTx(tx)
	if err != nil {
		return nil, err
	}

	log := &AuditLog{
		ID:           uuid.New().String(),
		Identity:     entry.Identity,
		EntityType:   entry.EntityType,
		EntityID:     entry.EntityID,
		Action:       entry.Action,
		Outcome:      outcome,
		CreatedAt:    time.Now().UTC(),
		RequestID:    entry.RequestID,
		IPAddress:    entry.IPAddress,
		UserAgent:    entry.UserAgent,
		PreviousHash: prevHash,
	}

	query := `
		INSERT INTO audit_logs (
			id, identity, entity_type, entity_id, action, outcome,
			created_at, request_id, ip_address, user_agent, previous_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	if _, err := tx.Exec(
		query,
		log.ID,
		log.Identity,
		log.EntityType,
		log.EntityID,
		log.Action,
		log.Outcome,
		log.CreatedAt,
		log.RequestID,
		log.IPAddress,
		log.UserAgent,
		log.PreviousHash,
	); err != nil {
		return nil, fmt.Errorf("failed to insert audit log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit audit log: %w", err)
	}

	logCopy := *log
	return &logCopy, nil
}

// lastHashTx computes the chain hash of the newest row within tx.
func lastHashTx(tx *sql.Tx) (string, error) {
	query := `
		SELECT id, identity, entity_type, entity_id, action, outcome,
		       created_at, request_id, ip_address, user_agent, previous_hash
		FROM audit_logs
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	last := &AuditLog{}
	err := tx.QueryRow(query).Scan(
		&last.ID,
		&last.Identity,
		&last.EntityType,
		&last.EntityID,
		&last.Action,
		&last.Outcome,
		&last.CreatedAt,
		&last.RequestID,
		&last.IPAddress,
		&last.UserAgent,
		&last.PreviousHash,
	)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read last audit log: %w", err)
	}
	return computeHash(last), nil
}

// QueryByEntity retrieves audit logs for a specific entity, sorted by time (newest first).
func (r *PostgresRepository) QueryByEntity(entityType, entityID string, limit int) ([]*AuditLog, error) {
	query := `
		SELECT id, identity, entity_type, entity_id, action, outcome,
		       created_at, request_id, ip_address, user_agent, previous_hash
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{entityType, entityID}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs by entity: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

// QueryByIdentity retrieves audit logs for a specific actor, sorted by time (newest first).
func (r *PostgresRepository) QueryByIdentity(identity string, limit int) ([]*AuditLog, error) {
	query := `
		SELECT id, identity, entity_type, entity_id, action, outcome,
		       created_at, request_id, ip_address, user_agent, previous_hash
		FROM audit_logs
		WHERE identity = $1
		ORDER BY created_at DESC, id DESC
	`
	args := []interface{}{identity}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs by identity: %w", err)
	}
	defer rows.Close()

	return scanLogs(rows)
}

// GetLastHash returns the hash of the most recent entry.
func (r *PostgresRepository) GetLastHash() (string, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()
	return lastHashTx(tx)
}

// VerifyHashChain walks the full table in insertion order and checks every
// link. Expensive on large tables; intended for scheduled integrity checks.
func (r *PostgresRepository) VerifyHashChain() (bool, error) {
	query := `
		SELECT id, identity, entity_type, entity_id, action, outcome,
		       created_at, request_id, ip_address, user_agent, previous_hash
		FROM audit_logs
		ORDER BY created_at ASC, id ASC
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return false, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanLogs(rows)
	if err != nil {
		return false, err
	}

	prev := ""
	for _, log := range logs {
		if log.PreviousHash != prev {
			return false, nil
		}
		prev = computeHash(log)
	}
	return true, nil
}

func scanLogs(rows *sql.Rows) ([]*AuditLog, error) {
	var logs []*AuditLog
	for rows.Next() {
		log := &AuditLog{}
		if err := rows.Scan(
			&log.ID,
			&log.Identity,
			&log.EntityType,
			&log.EntityID,
			&log.Action,
			&log.Outcome,
			&log.CreatedAt,
			&log.RequestID,
			&log.IPAddress,
			&log.UserAgent,
			&log.PreviousHash,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit logs: %w", err)
	}
	return logs, nil
}
