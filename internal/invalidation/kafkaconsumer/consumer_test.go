package kafkaconsumer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mhrdika/besttime-cache/internal/invalidation"
)

type fakeStore struct {
	mu       sync.Mutex
	prefixes []string
	err      error
}

func (f *fakeStore) DelPrefix(ctx context.Context, prefix string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.prefixes = append(f.prefixes, prefix)
	return 3, nil
}

func message(t *testing.T, ev invalidation.Event) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return &sarama.ConsumerMessage{Topic: "content-invalidation", Value: raw}
}

type fakeEvicter struct {
	categories []string
}

func (f *fakeEvicter) InvalidateHot(category string) int {
	f.categories = append(f.categories, category)
	return 1
}

func newConsumer(store PrefixDeleter) *Consumer {
	return New(Config{Topic: "content-invalidation", GroupID: "test"}, zerolog.Nop(), store, nil)
}

func TestProcessOne_DeletesCategoryPrefix(t *testing.T) {
	store := &fakeStore{}
	c := newConsumer(store)

	ev := invalidation.Event{Version: 1, Op: "update", Category: "Skin-Care 2024", TS: time.Now()}
	if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(store.prefixes) != 1 {
		t.Fatalf("deleted %d prefixes, want 1", len(store.prefixes))
	}
	if !strings.Contains(store.prefixes[0], "skin_care_2024") {
		t.Fatalf("prefix %q does not cover the normalized category", store.prefixes[0])
	}
}

func TestProcessOne_DropsHotEntriesAfterStoreDelete(t *testing.T) {
	store := &fakeStore{}
	evicter := &fakeEvicter{}
	c := New(Config{Topic: "content-invalidation", GroupID: "test"}, zerolog.Nop(), store, evicter)

	ev := invalidation.Event{Version: 1, Op: "update", Category: "skincare", TS: time.Now()}
	if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if len(evicter.categories) != 1 || evicter.categories[0] != "skincare" {
		t.Fatalf("hot evictions = %v, want [skincare]", evicter.categories)
	}
}

func TestProcessOne_StoreFailureLeavesHotCacheAlone(t *testing.T) {
	store := &fakeStore{err: errors.New("redis down")}
	evicter := &fakeEvicter{}
	c := New(Config{Topic: "content-invalidation", GroupID: "test"}, zerolog.Nop(), store, evicter)

	ev := invalidation.Event{Version: 1, Op: "delete", Category: "skincare", TS: time.Now()}
	if err := c.ProcessOne(context.Background(), message(t, ev)); err == nil {
		t.Fatal("expected error from the store")
	}
	if len(evicter.categories) != 0 {
		t.Fatal("hot cache evicted although the store delete failed")
	}
}

func TestProcessOne_SkipsGarbageWithoutError(t *testing.T) {
	store := &fakeStore{}
	c := newConsumer(store)

	msg := &sarama.ConsumerMessage{Topic: "content-invalidation", Value: []byte("{nope")}
	if err := c.ProcessOne(context.Background(), msg); err != nil {
		t.Fatalf("garbage message should not poison the claim: %v", err)
	}
	if len(store.prefixes) != 0 {
		t.Fatal("garbage message reached the store")
	}
}

func TestProcessOne_SkipsInvalidEvent(t *testing.T) {
	store := &fakeStore{}
	c := newConsumer(store)

	ev := invalidation.Event{Version: 1, Op: "upsert", Category: "skincare", TS: time.Now()}
	if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
		t.Fatalf("invalid event should not poison the claim: %v", err)
	}
	if len(store.prefixes) != 0 {
		t.Fatal("invalid event reached the store")
	}
}

func TestProcessOne_StoreFailureAsksForRedelivery(t *testing.T) {
	store := &fakeStore{err: errors.New("redis down")}
	c := newConsumer(store)

	ev := invalidation.Event{Version: 1, Op: "delete", Category: "skincare", TS: time.Now()}
	if err := c.ProcessOne(context.Background(), message(t, ev)); err == nil {
		t.Fatal("expected error so the message is redelivered")
	}
}

func TestProcessOne_SequenceDedupe(t *testing.T) {
	store := &fakeStore{}
	c := newConsumer(store)

	newer := invalidation.Event{Version: 1, Op: "update", Category: "skincare", TS: time.Now(), Seq: 5}
	older := invalidation.Event{Version: 1, Op: "update", Category: "skincare", TS: time.Now(), Seq: 4}
	replay := newer

	for _, ev := range []invalidation.Event{newer, older, replay} {
		if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
			t.Fatalf("ProcessOne seq=%d: %v", ev.Seq, err)
		}
	}
	if len(store.prefixes) != 1 {
		t.Fatalf("applied %d deletes, want 1 (stale and replayed events must be dropped)", len(store.prefixes))
	}
}

func TestProcessOne_ZeroSeqAlwaysApplies(t *testing.T) {
	store := &fakeStore{}
	c := newConsumer(store)

	ev := invalidation.Event{Version: 1, Op: "update", Category: "skincare", TS: time.Now()}
	for i := 0; i < 2; i++ {
		if err := c.ProcessOne(context.Background(), message(t, ev)); err != nil {
			t.Fatalf("ProcessOne: %v", err)
		}
	}
	if len(store.prefixes) != 2 {
		t.Fatalf("applied %d deletes, want 2 (unsequenced events always apply)", len(store.prefixes))
	}
}
