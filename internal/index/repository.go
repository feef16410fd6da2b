package index

import (
	"context"
	"sync"
	"time"
)

// Repository defines the identity-index operations. Rows are append-only.
type Repository interface {
	// Append adds one record. The record's timestamp is set if zero.
	Append(ctx context.Context, rec ListingRecord) error

	// QueryByOwner returns every record for an identity, newest first.
	QueryByOwner(ctx context.Context, owner string) ([]ListingRecord, error)

	// ListAll returns every LISTED record across identities, newest first.
	// This is the marketplace view.
	ListAll(ctx context.Context) ([]ListingRecord, error)
}

// InMemoryRepository is a thread-safe in-memory Repository used in tests and
// development.
type InMemoryRepository struct {
	mu   sync.RWMutex
	rows []ListingRecord
}

// NewInMemoryRepository creates an empty in-memory index.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Append adds one record after validation.
func (r *InMemoryRepository) Append(ctx context.Context, rec ListingRecord) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	r.rows = append(r.rows, rec)
	r.mu.Unlock()
	return nil
}

// QueryByOwner returns the identity's records newest first.
func (r *InMemoryRepository) QueryByOwner(ctx context.Context, owner string) ([]ListingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []ListingRecord
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].Owner == owner {
			results = append(results, r.rows[i])
		}
	}
	return results, nil
}

// ListAll returns all LISTED records newest first.
func (r *InMemoryRepository) ListAll(ctx context.Context) ([]ListingRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []ListingRecord
	for i := len(r.rows) - 1; i >= 0; i-- {
		if r.rows[i].Action == ActionListed {
			results = append(results, r.rows[i])
		}
	}
	return results, nil
}
