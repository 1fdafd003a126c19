package idempotency

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository implements Repository with in-memory storage. It is
// best effort and single process: it is not durable and not shared across
// instances. The check-then-act window between a caller's Get and Put is
// not locked; a concurrent pair of requests with the same key can both miss.
// The redis repository closes that race with an insert-if-absent write.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewInMemoryRepository creates a new in-memory idempotency repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		records: make(map[string]*Record),
	}
}

// Get retrieves a record by key.
func (r *InMemoryRepository) Get(ctx context.Context, key string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return copyRecord(record), nil
}

// Put saves a new record. First writer wins.
func (r *InMemoryRepository) Put(ctx context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.Key]; exists {
		return ErrKeyExists
	}

	stored := copyRecord(record)
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now().UTC()
	}
	r.records[record.Key] = stored
	return nil
}

// Delete removes a record.
func (r *InMemoryRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, key)
	return nil
}

// Sweep evicts all records whose TTL lapsed before now.
func (r *InMemoryRepository) Sweep(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := int64(0)
	for key, record := range r.records {
		if record.Expired(now) {
			delete(r.records, key)
			evicted++
		}
	}
	return evicted, nil
}

// copyRecord creates a deep copy of a Record.
func copyRecord(record *Record) *Record {
	if record == nil {
		return nil
	}
	copied := &Record{
		Key:      record.Key,
		StoredAt: record.StoredAt,
	}
	if record.Response != nil {
		copied.Response = append([]byte(nil), record.Response...)
	}
	return copied
}
