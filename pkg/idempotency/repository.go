package idempotency

import "context"

// KeyRepository manages idempotency keys. Implementations must make
// AcquireLock atomic per (serviceId, key).
type KeyRepository interface {
	// AcquireLock inserts key locked, or returns the stored record. The bool
	// reports whether key was newly inserted.
	AcquireLock(ctx context.Context, key *IdempotencyKey) (*IdempotencyKey, bool, error)

	// ReleaseLock clears the lock so the key can be retried
	ReleaseLock(ctx context.Context, keyID string) error

	// StoreResponse caches the final response and marks the key completed
	StoreResponse(ctx context.Context, keyID string, responseCode int, responseBody []byte) error
}
