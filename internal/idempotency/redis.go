package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces idempotency records in redis.
const keyPrefix = "idempotency:"

// RedisRepository implements Repository backed by redis. Records are stored
// as CBOR under a TTL, and Put uses SET NX so the first writer wins even
// across concurrently retried requests on different instances. This closes
// the check-then-act race the in-memory repository accepts.
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository creates a redis-backed idempotency repository.
func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

// Get retrieves a record by key. Redis evicts expired records itself, so a
// hit here is always live.
func (r *RedisRepository) Get(ctx context.Context, key string) (*Record, error) {
	data, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("failed to get idempotency record: %w", err)
	}

	var record Record
	if err := cbor.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &record, nil
}

// Put saves a new record with the cache TTL. First writer wins via SET NX.
func (r *RedisRepository) Put(ctx context.Context, record *Record) error {
	if err := ValidateKey(record.Key); err != nil {
		return err
	}

	stored := copyRecord(record)
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now().UTC()
	}

	data, err := cbor.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to encode idempotency record: %w", err)
	}

	ok, err := r.client.SetNX(ctx, keyPrefix+stored.Key, data, TTL).Result()
	if err != nil {
		return fmt.Errorf("failed to store idempotency record: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

// Delete removes a record.
func (r *RedisRepository) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete idempotency record: %w", err)
	}
	return nil
}

// Sweep is a no-op: redis expires records via the TTL set on write.
func (r *RedisRepository) Sweep(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}
