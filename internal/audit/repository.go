package audit

import (
	"context"
	"sync"
	"time"
)

// Repository defines the interface for audit log operations. There is
// deliberately no update or delete: the log is append-only.
type Repository interface {
	// Append records a new entry. The stored entry is immutable.
	Append(ctx context.Context, entry *Entry) error

	// ListByAsset retrieves entries for an asset, newest first.
	ListByAsset(ctx context.Context, assetID string) ([]*Entry, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex; insertion order is tracked so reads can iterate
// newest first.
type InMemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		entries: make(map[string]*Entry),
		order:   make([]string, 0),
	}
}

// Append records a new entry. A copy is stored so later mutation of the
// caller's entry cannot rewrite history.
func (r *InMemoryRepository) Append(ctx context.Context, entry *Entry) error {
	stored := entry.clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.ID == "" {
		stored.ID = NewEntryID(stored.AssetID, stored.CreatedAt)
	}

	r.mu.Lock()
	r.entries[stored.ID] = stored
	r.order = append(r.order, stored.ID)
	r.mu.Unlock()

	return nil
}

// ListByAsset retrieves entries for an asset, newest first. Returned
// entries are copies.
func (r *InMemoryRepository) ListByAsset(ctx context.Context, assetID string) ([]*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*Entry, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		entry := r.entries[r.order[i]]
		if entry.AssetID == assetID {
			results = append(results, entry.clone())
		}
	}
	return results, nil
}
