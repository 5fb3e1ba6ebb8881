// Package cache defines the store contract the engine depends on.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned once the store's own bounded retries are
// exhausted. Callers treat it as a signal to degrade, not as a hard
// failure.
var ErrUnavailable = errors.New("cache store unavailable")

type Interface interface {
	// Get returns (value, true, nil) on a hit and (nil, false, nil) on
	// a miss. A non-nil error wraps ErrUnavailable.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	// DelPrefix removes every key under prefix and reports how many
	// were deleted.
	DelPrefix(ctx context.Context, prefix string) (int, error)
}
