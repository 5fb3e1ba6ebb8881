package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type InvalidationCfg struct {
	Enabled bool
	Brokers string
	Topic   string
	GroupID string
}

type Config struct {
	Addr     string `validate:"required"`
	LogLevel string
	Console  bool

	RedisAddr      string `validate:"required"`
	RedisPoolSize  int    `validate:"min=1"`
	CacheTTL       time.Duration
	HotCacheSize   int `validate:"min=1"`
	HotCacheTTL    time.Duration
	LockInitialTTL time.Duration
	LockExtendTTL  time.Duration
	LockPollWait   time.Duration

	TrendsBaseURL   string `validate:"required,url"`
	TrendsActorID   string `validate:"required"`
	TrendsToken     string
	TrendsGeo       string `validate:"required,len=2"`
	TrendsTimeRange string `validate:"required"`
	TrendsTimeout   time.Duration

	Timezone     string `validate:"required"`
	RollingWidth int    `validate:"min=1,max=23"`
	MinRows      int    `validate:"min=1"`
	DailyQuota   int64  `validate:"min=1"`

	HTTPRateLimit  int `validate:"min=1"`
	HTTPRateWindow time.Duration

	Invalidation InvalidationCfg
}

func FromEnv() Config {
	return Config{
		Addr:     getenv("ADDR", ":8080"),
		LogLevel: getenv("LOG_LEVEL", "info"),
		Console:  getbool("LOG_CONSOLE", false),

		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		RedisPoolSize:  getint("REDIS_POOL_SIZE", 32),
		CacheTTL:       getduration("CACHE_TTL", 24*time.Hour+55*time.Minute),
		HotCacheSize:   getint("HOT_CACHE_SIZE", 512),
		HotCacheTTL:    getduration("HOT_CACHE_TTL", time.Minute),
		LockInitialTTL: getduration("LOCK_INITIAL_TTL", 30*time.Second),
		LockExtendTTL:  getduration("LOCK_EXTEND_TTL", 2*time.Minute),
		LockPollWait:   getduration("LOCK_POLL_WAIT", 2*time.Second),

		TrendsBaseURL:   getenv("TRENDS_BASE_URL", "https://api.apify.com"),
		TrendsActorID:   getenv("TRENDS_ACTOR_ID", "emastra~google-trends-scraper"),
		TrendsToken:     getenv("TRENDS_TOKEN", ""),
		TrendsGeo:       getenv("TRENDS_GEO", "ID"),
		TrendsTimeRange: getenv("TRENDS_TIME_RANGE", "now 7-d"),
		TrendsTimeout:   getduration("TRENDS_TIMEOUT", 90*time.Second),

		Timezone:     getenv("TIMEZONE", "Asia/Jakarta"),
		RollingWidth: getint("ROLLING_WIDTH", 3),
		MinRows:      getint("MIN_ROWS", 24),
		DailyQuota:   getint64("DAILY_QUOTA", 500),

		HTTPRateLimit:  getint("HTTP_RATE_LIMIT", 10),
		HTTPRateWindow: getduration("HTTP_RATE_WINDOW", time.Minute),

		Invalidation: InvalidationCfg{
			Enabled: getbool("INVALIDATION_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "content-invalidation"),
			GroupID: getenv("KAFKA_GROUP_ID", "besttime-invalidator"),
		},
	}
}

// Validate rejects configurations the service cannot run with. Checks
// that struct tags cannot express (zone lookup, duration ordering, the
// smoothing width parity) are done by hand.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: TIMEZONE %q: %w", c.Timezone, err)
	}
	if c.RollingWidth%2 == 0 {
		return fmt.Errorf("config: ROLLING_WIDTH must be odd, got %d", c.RollingWidth)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("config: CACHE_TTL must be positive, got %s", c.CacheTTL)
	}
	if c.LockInitialTTL <= 0 || c.LockExtendTTL < c.LockInitialTTL {
		return fmt.Errorf("config: lock TTLs must satisfy 0 < initial (%s) <= extend (%s)",
			c.LockInitialTTL, c.LockExtendTTL)
	}
	if c.LockPollWait <= 0 {
		return fmt.Errorf("config: LOCK_POLL_WAIT must be positive, got %s", c.LockPollWait)
	}
	if c.Invalidation.Enabled && strings.TrimSpace(c.Invalidation.Brokers) == "" {
		return fmt.Errorf("config: invalidation enabled but KAFKA_BROKERS is empty")
	}
	return nil
}

// Location resolves the configured time zone. Call Validate first.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
