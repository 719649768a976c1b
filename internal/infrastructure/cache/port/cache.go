package port

import (
	"context"
	"time"
)

// Cache is a string key-value store with per-key expiry, used to keep
// avatar lookups off the database. Implementations are safe for concurrent
// use.
type Cache interface {
	// Get returns ErrMiss for absent or expired keys; any other error comes
	// from the backend.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key; ttl <= 0 keeps it until evicted.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	Ping(ctx context.Context) error
}

// ErrMiss reports a cache miss.
var ErrMiss = errMiss{}

type errMiss struct{}

func (e errMiss) Error() string { return "cache: miss" }
