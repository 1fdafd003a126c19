package asset

import (
	"context"
	"sync"
	"time"
)

// Reader is the read side of asset persistence. The catalog query engine
// and the two-tier fallback reader depend on this interface only.
type Reader interface {
	// GetByID retrieves an asset by ID.
	// Returns ErrAssetNotFound if the asset doesn't exist.
	GetByID(ctx context.Context, id string) (*Asset, error)

	// List returns all assets. Ordering is unspecified; callers sort.
	List(ctx context.Context) ([]*Asset, error)
}

// Repository defines methods for asset persistence. Implementations must
// make UpdateFields an atomic single-row operation.
type Repository interface {
	Reader

	// Insert adds a new asset. Returns ErrAssetExists on duplicate ID.
	Insert(ctx context.Context, a *Asset) error

	// UpdateFields merges the given normalized fields into the asset row and
	// sets UpdatedAt to now. Returns ErrAssetNotFound if the asset doesn't
	// exist. The merge is atomic per row.
	UpdateFields(ctx context.Context, id string, fields map[string]any, now time.Time) error

	// Delete removes an asset. Returns ErrAssetNotFound if absent.
	Delete(ctx context.Context, id string) error
}

// InMemoryRepository implements Repository with in-memory storage.
// Thread-safe via RWMutex; all reads return copies to prevent external
// mutation of stored rows.
type InMemoryRepository struct {
	mu     sync.RWMutex
	assets map[string]*Asset
}

// NewInMemoryRepository creates an empty in-memory asset repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		assets: make(map[string]*Asset),
	}
}

// NewFixtureRepository creates an in-memory repository seeded with the fixed
// fixture catalog. This is the store used in degraded/fallback mode.
func NewFixtureRepository() *InMemoryRepository {
	repo := NewInMemoryRepository()
	for _, a := range Fixtures() {
		repo.assets[a.ID] = a.Clone()
	}
	return repo
}

// GetByID retrieves an asset by ID.
func (r *InMemoryRepository) GetByID(ctx context.Context, id string) (*Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok {
		return nil, ErrAssetNotFound
	}
	return a.Clone(), nil
}

// List returns all assets.
func (r *InMemoryRepository) List(ctx context.Context) ([]*Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*Asset, 0, len(r.assets))
	for _, a := range r.assets {
		results = append(results, a.Clone())
	}
	return results, nil
}

// Insert adds a new asset.
func (r *InMemoryRepository) Insert(ctx context.Context, a *Asset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.assets[a.ID]; exists {
		return ErrAssetExists
	}

	stored := a.Clone()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = stored.CreatedAt
	}
	r.assets[a.ID] = stored
	return nil
}

// UpdateFields merges normalized fields into the stored row under the write
// lock, so the read-modify-write is atomic per row.
func (r *InMemoryRepository) UpdateFields(ctx context.Context, id string, fields map[string]any, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assets[id]
	if !ok {
		return ErrAssetNotFound
	}

	a.applyFields(fields)
	a.UpdatedAt = now
	return nil
}

// Delete removes an asset.
func (r *InMemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[id]; !ok {
		return ErrAssetNotFound
	}
	delete(r.assets, id)
	return nil
}
