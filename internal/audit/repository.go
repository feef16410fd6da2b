package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository defines the interface for audit log operations.
type Repository interface {
	// LogAccess records an access event to the audit log.
	// Returns the created audit log entry.
	LogAccess(entry LogEntry) (*AuditLog, error)

	// QueryByEntity retrieves audit logs for a specific entity, sorted by time (newest first).
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByEntity(entityType, entityID string, limit int) ([]*AuditLog, error)

	// QueryByIdentity retrieves audit logs for a specific actor, sorted by time (newest first).
	// Limit specifies the maximum number of entries to return (0 = no limit).
	QueryByIdentity(identity string, limit int) ([]*AuditLog, error)

	// GetLastHash returns the hash of the most recent entry, or "" when empty.
	GetLastHash() (string, error)

	// VerifyHashChain recomputes every entry's hash and checks the chain links.
	VerifyHashChain() (bool, error)
}

// computeHash produces the chain hash for one entry. The entry's own
// PreviousHash is part of the digest, linking it to its predecessor.
// IPAddress is deliberately excluded: retention rules rewrite it in place
// (see AnonymizeOldIPs) and the chain must survive that.
func computeHash(log *AuditLog) string {
	payload := fmt.Sprintf("%s|%s|%s|%s|%s|%s|%s|%s|%s|%s",
		log.ID,
		log.Identity,
		log.EntityType,
		log.EntityID,
		log.Action,
		log.Outcome,
		log.CreatedAt.UTC().Format(time.RFC3339Nano),
		log.RequestID,
		log.UserAgent,
		log.PreviousHash,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// InMemoryRepository is an in-memory implementation of Repository.
// Used for testing and development. Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu   sync.RWMutex
	logs map[string]*AuditLog
	// Maintain insertion order for queries and chain verification
	order []string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		logs:  make(map[string]*AuditLog),
		order: make([]string, 0),
	}
}

// LogAccess records an access event to the audit log.
func (r *InMemoryRepository) LogAccess(entry LogEntry) (*AuditLog, error) {
	outcome := entry.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	log := &AuditLog{
		ID:         uuid.New().String(),
		Identity:   entry.Identity,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Action:     entry.Action,
		Outcome:    outcome,
		CreatedAt:  time.Now().UTC(),
		RequestID:  entry.RequestID,
		IPAddress:  entry.IPAddress,
		UserAgent:  entry.UserAgent,
	}
	if n := len(r.order); n > 0 {
		log.PreviousHash = computeHash(r.logs[r.order[n-1]])
	}

	r.logs[log.ID] = log
	r.order = append(r.order, log.ID)

	// Return a copy to prevent external modification
	logCopy := *log
	return &logCopy, nil
}

// QueryByEntity retrieves audit logs for a specific entity, sorted by time (newest first).
func (r *InMemoryRepository) QueryByEntity(entityType, entityID string, limit int) ([]*AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*AuditLog
	for i := len(r.order) - 1; i >= 0; i-- {
		log := r.logs[r.order[i]]
		if log.EntityType == entityType && log.EntityID == entityID {
			logCopy := *log
			results = append(results, &logCopy)

			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// QueryByIdentity retrieves audit logs for a specific actor, sorted by time (newest first).
func (r *InMemoryRepository) QueryByIdentity(identity string, limit int) ([]*AuditLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*AuditLog
	for i := len(r.order) - 1; i >= 0; i-- {
		log := r.logs[r.order[i]]
		if log.Identity == identity {
			logCopy := *log
			results = append(results, &logCopy)

			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// GetLastHash returns the hash of the most recent entry.
func (r *InMemoryRepository) GetLastHash() (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.order) == 0 {
		return "", nil
	}
	return computeHash(r.logs[r.order[len(r.order)-1]]), nil
}

// VerifyHashChain recomputes every entry's hash and checks the chain links.
// Returns false when any entry was modified after the fact.
func (r *InMemoryRepository) VerifyHashChain() (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prev := ""
	for _, id := range r.order {
		log := r.logs[id]
		if log.PreviousHash != prev {
			return false, nil
		}
		prev = computeHash(log)
	}
	return true, nil
}
