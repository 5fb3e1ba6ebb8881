// Package kafkaconsumer consumes invalidation events and drops the
// cached recommendations for the affected category.
package kafkaconsumer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mhrdika/besttime-cache/internal/cache/keys"
	"github.com/mhrdika/besttime-cache/internal/core/observability"
	"github.com/mhrdika/besttime-cache/internal/invalidation"
)

// PrefixDeleter is the slice of the cache store the consumer needs.
// Param combinations are hashed into cache keys, so invalidation works
// on the category prefix rather than individual keys.
type PrefixDeleter interface {
	DelPrefix(ctx context.Context, prefix string) (int, error)
}

// HotEvicter drops a category's entries from the in-process hot cache
// after the Redis entries are gone. Nil when the consumer runs without
// an engine in the same process.
type HotEvicter interface {
	InvalidateHot(category string) int
}

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	DedupeSize          int
}

type Consumer struct {
	cfg    Config
	log    zerolog.Logger
	store  PrefixDeleter
	hot    HotEvicter
	dedupe *versionDedupe
}

func New(cfg Config, log zerolog.Logger, store PrefixDeleter, hot HotEvicter) *Consumer {
	if cfg.SessionTimeout <= 0 {
		cfg.SessionTimeout = 30 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 3 * time.Second
	}
	if cfg.RebalanceTimeout <= 0 {
		cfg.RebalanceTimeout = 30 * time.Second
	}
	return &Consumer{
		cfg:    cfg,
		log:    log,
		store:  store,
		hot:    hot,
		dedupe: newVersionDedupe(cfg.DedupeSize),
	}
}

// Start joins the consumer group and processes events until ctx ends.
func (c *Consumer) Start(ctx context.Context) error {
	if c.store == nil {
		return errors.New("kafkaconsumer: store is required")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{process: c.ProcessOne}

	c.log.Info().
		Strs("brokers", c.cfg.Brokers).
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.GroupID).
		Msg("invalidation consumer starting")

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("invalidation consumer shutting down")
			return nil
		default:
			if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
				c.log.Error().Err(err).
					Str("topic", c.cfg.Topic).
					Msg("consumer group error")
				time.Sleep(2 * time.Second)
			}
		}
	}
}

// ProcessOne handles a single event. Malformed or stale events are
// skipped (returning nil lets the offset advance past them); only a
// store failure is worth a redelivery.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.IncInvalidation("decode_error")
		c.log.Error().Err(err).
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("undecodable invalidation event, skipping")
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.IncInvalidation("invalid")
		c.log.Error().Err(err).
			Str("category", ev.Category).
			Int64("offset", msg.Offset).
			Msg("invalid invalidation event, skipping")
		return nil
	}

	category := keys.NormalizeKeyword(ev.Category)
	if ev.Seq > 0 && !c.dedupe.shouldApply(category, ev.Seq) {
		observability.IncInvalidation("stale")
		c.log.Debug().
			Str("category", category).
			Uint64("seq", ev.Seq).
			Msg("stale invalidation event, skipping")
		return nil
	}

	deleted, err := c.store.DelPrefix(ctx, keys.Prefix(ev.Category))
	if err != nil {
		observability.IncInvalidation("store_error")
		c.log.Error().Err(err).
			Str("category", category).
			Msg("invalidation delete failed")
		return fmt.Errorf("delete prefix for %q: %w", category, err)
	}

	hotDropped := 0
	if c.hot != nil {
		hotDropped = c.hot.InvalidateHot(ev.Category)
	}

	observability.IncInvalidation("applied")
	c.log.Info().
		Str("category", category).
		Str("op", ev.Op).
		Int("keys", deleted).
		Int("hot_dropped", hotDropped).
		Msg("invalidated cached recommendations")
	return nil
}
