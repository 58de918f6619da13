package shared

import (
	"context"
	"time"
)

// IdempotencyStore is a fast-path cache of reconcile results keyed by
// provider event id. It sits in front of the durable processed-event ledger:
// a hit here answers a replay without a database round trip, a miss is not
// authoritative.
type IdempotencyStore interface {
	// MarkProcessed stores the serialized result for an event with a TTL.
	// Returns true if the event was newly marked, false if a result was
	// already stored.
	MarkProcessed(ctx context.Context, eventID string, result []byte, ttl time.Duration) (bool, error)

	// FindResult returns the serialized result cached for an event.
	// Returns ErrNotFound when nothing is cached.
	FindResult(ctx context.Context, eventID string) ([]byte, error)

	// Close closes the store and releases resources
	Close() error
}

// IdempotencyConfig holds configuration for the fast-path cache
type IdempotencyConfig struct {
	// TTL is the time-to-live for cached results. The durable ledger keeps
	// entries beyond this; the cache only needs to cover the provider's
	// redelivery window.
	TTL time.Duration

	// Enabled determines whether the cache is consulted at all
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     24 * time.Hour,
		Enabled: true,
	}
}
