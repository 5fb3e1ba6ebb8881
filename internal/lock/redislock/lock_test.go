package redislock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newManager(t *testing.T, initial, extended time.Duration) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return mr, New(rdb, initial, extended)
}

func TestAcquire_Exclusive(t *testing.T) {
	_, m := newManager(t, 30*time.Second, 2*time.Minute)
	ctx := context.Background()

	tok, err := m.Acquire(ctx, "lk")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if tok == "" {
		t.Fatal("empty token")
	}

	if _, err := m.Acquire(ctx, "lk"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second Acquire err=%v, want ErrNotAcquired", err)
	}
}

func TestAcquire_ConcurrentSingleWinner(t *testing.T) {
	_, m := newManager(t, 30*time.Second, 2*time.Minute)
	ctx := context.Background()

	const n = 32
	var winners atomic.Int32
	var wg sync.WaitGroup
	wg.Add(n)
	start := make(chan struct{})
	for range n {
		go func() {
			defer wg.Done()
			<-start
			if _, err := m.Acquire(ctx, "race"); err == nil {
				winners.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := winners.Load(); got != 1 {
		t.Fatalf("winners=%d, want exactly 1", got)
	}
}

func TestLock_SelfExpires(t *testing.T) {
	mr, m := newManager(t, 10*time.Second, time.Minute)
	ctx := context.Background()

	if _, err := m.Acquire(ctx, "lk"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	mr.FastForward(11 * time.Second)

	// holder crashed without releasing; the key must be free again
	if _, err := m.Acquire(ctx, "lk"); err != nil {
		t.Fatalf("Acquire after expiry: %v", err)
	}
}

func TestExtend_RefreshesLifetime(t *testing.T) {
	mr, m := newManager(t, 10*time.Second, time.Minute)
	ctx := context.Background()

	tok, err := m.Acquire(ctx, "lk")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Extend(ctx, "lk", tok); err != nil {
		t.Fatalf("Extend: %v", err)
	}

	// past the initial lifetime but inside the extended one
	mr.FastForward(30 * time.Second)
	if _, err := m.Acquire(ctx, "lk"); !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("lock should still be held after extend, got %v", err)
	}
}

func TestExtend_AfterExpiryReportsLost(t *testing.T) {
	mr, m := newManager(t, 10*time.Second, time.Minute)
	ctx := context.Background()

	tok, err := m.Acquire(ctx, "lk")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	mr.FastForward(11 * time.Second)

	if err := m.Extend(ctx, "lk", tok); !errors.Is(err, ErrLockLost) {
		t.Fatalf("Extend err=%v, want ErrLockLost", err)
	}
}

func TestExtend_WrongOwnerReportsLost(t *testing.T) {
	mr, m := newManager(t, 5*time.Second, time.Minute)
	ctx := context.Background()

	tok1, err := m.Acquire(ctx, "lk")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	mr.FastForward(6 * time.Second)

	// a second holder takes over after expiry
	if _, err := m.Acquire(ctx, "lk"); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}

	if err := m.Extend(ctx, "lk", tok1); !errors.Is(err, ErrLockLost) {
		t.Fatalf("stale owner Extend err=%v, want ErrLockLost", err)
	}
}

func TestRelease_FreesLock(t *testing.T) {
	_, m := newManager(t, 30*time.Second, 2*time.Minute)
	ctx := context.Background()

	tok, err := m.Acquire(ctx, "lk")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(ctx, "lk", tok); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, err := m.Acquire(ctx, "lk"); err != nil {
		t.Fatalf("Acquire after Release: %v", err)
	}
}
