package cache

import (
	"context"
	"time"
)

// Store represents a shared cache interface used across the application. Values are opaque
// bytes; a zero or negative TTL on Set stores the value without expiry.
type Store interface {
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
