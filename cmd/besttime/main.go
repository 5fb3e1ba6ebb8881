package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mhrdika/besttime-cache/internal/cache/redisstore"
	"github.com/mhrdika/besttime-cache/internal/core/config"
	"github.com/mhrdika/besttime-cache/internal/core/observability"
	"github.com/mhrdika/besttime-cache/internal/core/server"
	"github.com/mhrdika/besttime-cache/internal/engine"
	"github.com/mhrdika/besttime-cache/internal/invalidation/kafkaconsumer"
	"github.com/mhrdika/besttime-cache/internal/lock/redislock"
	"github.com/mhrdika/besttime-cache/internal/logger"
	"github.com/mhrdika/besttime-cache/internal/quota"
	"github.com/mhrdika/besttime-cache/internal/trends"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	log := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.Console,
		Component: "besttime",
	}, os.Stdout)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return 1
	}

	observability.ExposeBuildInfo(Version)
	log.Info().
		Str("addr", cfg.Addr).
		Str("version", Version).
		Str("redis", cfg.RedisAddr).
		Str("timezone", cfg.Timezone).
		Msg("starting besttime")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := redisstore.New(ctx, cfg.RedisAddr, redisstore.WithPoolSize(cfg.RedisPoolSize))
	if err != nil {
		log.Error().Err(err).Msg("redis connect failed")
		return 1
	}
	defer func() { _ = store.Close() }()

	locker := redislock.New(store.Redis(), cfg.LockInitialTTL, cfg.LockExtendTTL)
	counter := quota.New(store.Redis(), "besttime:quota", cfg.DailyQuota, cfg.Location())

	fetcher := trends.New(trends.Config{
		BaseURL:   cfg.TrendsBaseURL,
		Token:     cfg.TrendsToken,
		ActorID:   cfg.TrendsActorID,
		Geo:       cfg.TrendsGeo,
		TimeRange: cfg.TrendsTimeRange,
		Timeout:   cfg.TrendsTimeout,
	}, log.With().Str("subsystem", "trends").Logger())

	eng := engine.New(log, store, locker, counter, fetcher, engine.Config{
		TTL:          cfg.CacheTTL,
		LockPollWait: cfg.LockPollWait,
		RollingWidth: cfg.RollingWidth,
		MinRows:      cfg.MinRows,
		Timezone:     cfg.Location(),
		HotSize:      cfg.HotCacheSize,
		HotTTL:       cfg.HotCacheTTL,
	}, redislock.ErrNotAcquired, redislock.ErrLockLost)

	if cfg.Invalidation.Enabled {
		consumer := kafkaconsumer.New(kafkaconsumer.Config{
			Brokers:             splitCSV(cfg.Invalidation.Brokers),
			Topic:               cfg.Invalidation.Topic,
			GroupID:             cfg.Invalidation.GroupID,
			InitialOffsetOldest: true,
		}, log.With().Str("subsystem", "invalidation").Logger(), store, eng)
		go func() {
			if err := consumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("invalidation consumer exited")
			}
		}()
	}

	if err := server.Run(ctx, cfg, log, eng, store); err != nil {
		log.Error().Err(err).Msg("server exited with error")
		return 1
	}
	log.Info().Msg("server stopped")
	return 0
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
