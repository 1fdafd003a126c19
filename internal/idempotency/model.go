// Package idempotency provides the short-lived key→response cache that
// guards retried mutation requests.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// TTL is how long a cached response stays live. Expired records are removed
// lazily on access or during a sweep.
const TTL = 24 * time.Hour

// MaxKeyLength is the maximum allowed length for an idempotency key.
const MaxKeyLength = 64

var (
	// ErrKeyNotFound is returned when an idempotency key is not found.
	ErrKeyNotFound = errors.New("idempotency key not found")

	// ErrKeyExists is returned when attempting to store a duplicate key.
	ErrKeyExists = errors.New("idempotency key already exists")

	// ErrInvalidKey is returned when the key is empty.
	ErrInvalidKey = errors.New("invalid idempotency key")

	// ErrKeyTooLong is returned when the key exceeds MaxKeyLength.
	ErrKeyTooLong = errors.New("idempotency key exceeds maximum length of 64 characters")
)

// Record is a cached mutation response. Response holds the exact success
// payload returned to the first request carrying this key; replays receive
// it byte for byte.
type Record struct {
	Key      string    `cbor:"key"`
	Response []byte    `cbor:"response"`
	StoredAt time.Time `cbor:"stored_at"`
}

// Expired reports whether the record's TTL has lapsed at the given instant.
func (r *Record) Expired(now time.Time) bool {
	return r.StoredAt.Add(TTL).Before(now)
}

// ValidateKey checks if an idempotency key is valid.
// Returns ErrInvalidKey if the key is empty.
// Returns ErrKeyTooLong if the key exceeds MaxKeyLength.
func ValidateKey(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	return nil
}

// Repository defines methods for idempotency record storage.
type Repository interface {
	// Get retrieves a record by key. Expiry is the caller's concern: a
	// record past its TTL is still returned so the caller can discard it.
	// Returns ErrKeyNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (*Record, error)

	// Put saves a new record. First writer wins: ErrKeyExists is returned
	// if the key is already present.
	Put(ctx context.Context, record *Record) error

	// Delete removes a record. Removing an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Sweep evicts all records whose TTL lapsed before now and returns the
	// number evicted.
	Sweep(ctx context.Context, now time.Time) (int64, error)
}
