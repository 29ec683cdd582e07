package domain

import (
	"context"
	"time"
)

// QuoteCache memoizes quotes for the duration of one tracking pass so that
// several positions on the same symbol cost one provider call. Entries carry
// a short, seconds-scale TTL; this is not a cross-tick cache.
type QuoteCache interface {
	Get(ctx context.Context, key string) (float64, bool, error)
	Set(ctx context.Context, key string, price float64, ttl time.Duration) error
}

// LockManager provides a distributed mutex so a scheduled pass and a manually
// triggered pass never evaluate positions concurrently.
type LockManager interface {
	// Acquire returns an unlock func on success, ErrLockHeld when another
	// holder has the lock.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// SignalBus publishes small structured events (applied exits, reconciliation
// drift) for downstream consumers. Delivery is best-effort.
type SignalBus interface {
	Publish(ctx context.Context, stream string, payload []byte) error
}

// BlobWriter writes archive objects to cold storage.
type BlobWriter interface {
	Write(ctx context.Context, key string, data []byte, contentType string) error
}
