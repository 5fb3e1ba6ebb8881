// Package redislock provides per-key single-flight locks on Redis.
//
// The lock is a plain SET NX PX with a random owner token; extend and
// release compare the token server-side so an expired lock taken over
// by another holder is never touched. Expiry is the safety net: a
// crashed holder's lock disappears on its own.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mhrdika/besttime-cache/internal/core/observability"
)

var (
	// ErrNotAcquired means another holder owns the lock.
	ErrNotAcquired = errors.New("lock not acquired")
	// ErrLockLost means the lock expired or changed owner while held.
	ErrLockLost = errors.New("lock lost")
)

var extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Manager struct {
	rdb      *redis.Client
	initial  time.Duration
	extended time.Duration
}

func New(rdb *redis.Client, initial, extended time.Duration) *Manager {
	if initial <= 0 {
		initial = 30 * time.Second
	}
	if extended < initial {
		extended = 2 * time.Minute
	}
	return &Manager{rdb: rdb, initial: initial, extended: extended}
}

func (m *Manager) InitialTTL() time.Duration  { return m.initial }
func (m *Manager) ExtendedTTL() time.Duration { return m.extended }

// Acquire takes the lock with the short initial lifetime and returns
// the owner token. ErrNotAcquired means someone else holds it.
func (m *Manager) Acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	ok, err := m.rdb.SetNX(ctx, key, token, m.initial).Result()
	if err != nil {
		observability.IncLockOutcome("error")
		return "", fmt.Errorf("lock SETNX %q: %w", key, err)
	}
	if !ok {
		observability.IncLockOutcome("busy")
		return "", ErrNotAcquired
	}
	observability.IncLockOutcome("won")
	return token, nil
}

// Extend bumps the lock to the extended lifetime. ErrLockLost means
// the lock expired (or was taken over) before the extension landed;
// the caller must abort its write path.
func (m *Manager) Extend(ctx context.Context, key, token string) error {
	res, err := extendScript.Run(ctx, m.rdb, []string{key}, token, m.extended.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("lock extend %q: %w", key, err)
	}
	if res == 0 {
		observability.IncLockOutcome("lost")
		return ErrLockLost
	}
	return nil
}

// Release drops the lock if the token still owns it. Releasing an
// already-expired lock is not an error worth surfacing.
func (m *Manager) Release(ctx context.Context, key, token string) error {
	res, err := releaseScript.Run(ctx, m.rdb, []string{key}, token).Int64()
	if err != nil {
		return fmt.Errorf("lock release %q: %w", key, err)
	}
	if res == 0 {
		return ErrLockLost
	}
	return nil
}
