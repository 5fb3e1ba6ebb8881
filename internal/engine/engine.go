// Package engine coordinates cache, lock, quota, fetch and the
// aggregation pipeline into one recommendation request flow.
//
// The flow per request: check the in-process hot cache, then Redis; on
// a miss take the per-key single-flight lock, pass the quota gate,
// fetch, validate, aggregate, rank, write back, respond. Losers of the
// lock poll the cache once and otherwise report busy. If Redis is
// unreachable the engine degrades to fetch-and-compute without
// caching.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/mhrdika/besttime-cache/internal/aggregate"
	"github.com/mhrdika/besttime-cache/internal/cache"
	"github.com/mhrdika/besttime-cache/internal/cache/keys"
	"github.com/mhrdika/besttime-cache/internal/core/model"
	"github.com/mhrdika/besttime-cache/internal/core/observability"
	"github.com/mhrdika/besttime-cache/internal/rank"
	"github.com/mhrdika/besttime-cache/internal/trends"
	"github.com/mhrdika/besttime-cache/internal/validate"
)

// Locker is the single-flight lock contract (see redislock).
type Locker interface {
	Acquire(ctx context.Context, key string) (string, error)
	Extend(ctx context.Context, key, token string) error
	Release(ctx context.Context, key, token string) error
	InitialTTL() time.Duration
	ExtendedTTL() time.Duration
}

// QuotaGate is the daily fetch budget contract (see quota).
type QuotaGate interface {
	IncrementAndCheck(ctx context.Context) (int64, bool, error)
}

type Config struct {
	TTL          time.Duration
	LockPollWait time.Duration
	RollingWidth int
	MinRows      int
	Timezone     *time.Location
	HotSize      int
	HotTTL       time.Duration
}

type Engine struct {
	log     zerolog.Logger
	store   cache.Interface
	locker  Locker
	quota   QuotaGate
	fetcher trends.Fetcher
	cfg     Config
	hot     *expirable.LRU[string, *model.Result]
	now     func() time.Time

	errNotAcquired error
	errLockLost    error
}

// New wires the engine. errNotAcquired and errLockLost are the
// sentinel values the Locker implementation uses for those outcomes
// (redislock.ErrNotAcquired / redislock.ErrLockLost in production).
func New(
	log zerolog.Logger,
	store cache.Interface,
	locker Locker,
	quota QuotaGate,
	fetcher trends.Fetcher,
	cfg Config,
	errNotAcquired, errLockLost error,
) *Engine {
	if cfg.TTL <= 0 {
		cfg.TTL = 24*time.Hour + 55*time.Minute
	}
	if cfg.LockPollWait <= 0 {
		cfg.LockPollWait = 2 * time.Second
	}
	if cfg.RollingWidth <= 0 {
		cfg.RollingWidth = aggregate.DefaultWidth
	}
	if cfg.MinRows <= 0 {
		cfg.MinRows = 24
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.HotSize <= 0 {
		cfg.HotSize = 512
	}
	if cfg.HotTTL <= 0 {
		cfg.HotTTL = time.Minute
	}
	return &Engine{
		log:            log,
		store:          store,
		locker:         locker,
		quota:          quota,
		fetcher:        fetcher,
		cfg:            cfg,
		hot:            expirable.NewLRU[string, *model.Result](cfg.HotSize, nil, cfg.HotTTL),
		now:            time.Now,
		errNotAcquired: errNotAcquired,
		errLockLost:    errLockLost,
	}
}

// SetClock overrides the engine clock, for tests.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

// InvalidateHot drops hot-cache entries for a category, so an
// invalidation takes effect in-process immediately instead of waiting
// out the hot TTL. Returns the number of entries dropped.
func (e *Engine) InvalidateHot(category string) int {
	p := keys.Prefix(category)
	n := 0
	for _, k := range e.hot.Keys() {
		if strings.HasPrefix(k, p) && e.hot.Remove(k) {
			n++
		}
	}
	return n
}

// cacheEntry is the serialized form stored in Redis.
type cacheEntry struct {
	StoredAt        int64                  `json:"stored_at"`
	Recommendations []model.Recommendation `json:"recommendations"`
	Chart           []model.ChartPoint     `json:"chart_data"`
}

// Recommend resolves one query. The returned Result.Source tells the
// caller whether it was served from cache.
func (e *Engine) Recommend(ctx context.Context, q model.Query) (*model.Result, error) {
	key := keys.Key(q.Category, q)
	log := e.log.With().Str("category", q.Category).Str("key", key).Logger()

	if res, ok := e.hot.Get(key); ok {
		observability.IncCacheResult("hot_hit")
		return withSource(res, model.SourceCacheFresh), nil
	}

	// CHECK_CACHE
	degraded := false
	res, found, err := e.readCache(ctx, key)
	switch {
	case found:
		observability.IncCacheResult("hit")
		e.hot.Add(key, res)
		return withSource(res, model.SourceCacheFresh), nil
	case errors.Is(err, cache.ErrUnavailable):
		// store outage is not a hard error; skip caching entirely
		log.Warn().Err(err).Msg("cache store unreachable, degrading")
		degraded = true
		observability.IncCacheResult("degraded")
	case err != nil && ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		observability.IncCacheResult("miss")
	}

	// PURSUE_LOCK (pointless when the store is gone: there is nothing
	// to protect and nothing to poll)
	var token string
	if !degraded {
		var lerr error
		token, lerr = e.locker.Acquire(ctx, keys.LockKey(key))
		switch {
		case lerr == nil:
			// LOCK_WON, proceed to the fetch leg
		case errors.Is(lerr, e.errNotAcquired):
			return e.pollCache(ctx, key, log)
		default:
			log.Warn().Err(lerr).Msg("lock backend unavailable, degrading")
			degraded = true
		}
	}

	res, err = e.fetchCompute(ctx, key, token, q, degraded, log)
	if err != nil {
		return nil, err
	}
	e.hot.Add(key, res)
	return res, nil
}

// readCache returns (result, true, nil) on a fresh hit. A corrupt
// entry is evicted and treated as a miss.
func (e *Engine) readCache(ctx context.Context, key string) (*model.Result, bool, error) {
	raw, found, err := e.store.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		e.log.Warn().Err(err).Str("key", key).Msg("corrupt cache entry, treating as miss")
		_ = e.store.Del(ctx, key)
		return nil, false, nil
	}
	return &model.Result{
		Recommendations: entry.Recommendations,
		Chart:           entry.Chart,
	}, true, nil
}

// pollCache waits briefly for the lock winner to fill the cache, then
// reads once. A miss after the wait surfaces as busy, never as an
// indefinite block.
func (e *Engine) pollCache(ctx context.Context, key string, log zerolog.Logger) (*model.Result, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(e.cfg.LockPollWait):
	}
	if res, found, _ := e.readCache(ctx, key); found {
		observability.IncCacheResult("hit")
		e.hot.Add(key, res)
		return withSource(res, model.SourceCacheFresh), nil
	}
	log.Debug().Msg("lock busy and cache still cold")
	return nil, ErrBusy
}

// fetchCompute is the FETCH -> VALIDATE -> AGGREGATE -> RANK -> STORE
// leg, run while holding the lock (token != "") or degraded.
func (e *Engine) fetchCompute(
	ctx context.Context,
	key, token string,
	q model.Query,
	degraded bool,
	log zerolog.Logger,
) (*model.Result, error) {
	lockKey := keys.LockKey(key)
	var lockLost atomic.Bool

	// The unit of work is keyed by the cache key, not by the caller:
	// even if the request is cancelled mid-fetch, finish and populate
	// the cache for the next caller.
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.locker.ExtendedTTL())
	defer cancel()

	release := func() {
		if token == "" || lockLost.Load() {
			return
		}
		if err := e.locker.Release(dctx, lockKey, token); err != nil {
			log.Debug().Err(err).Msg("lock release failed")
		}
	}

	// quota gates the fetch only; cache hits never got here
	if _, allowed, err := e.quota.IncrementAndCheck(dctx); err != nil {
		// cost control is best-effort when its backend is down
		log.Warn().Err(err).Msg("quota backend unavailable, failing open")
	} else if !allowed {
		observability.IncQuotaRejection()
		release()
		return nil, ErrRateLimited
	}

	// keep the lock alive while the fetch is in flight: bump to the
	// extended lifetime before the initial one elapses
	stopExtend := make(chan struct{})
	defer close(stopExtend)
	if token != "" {
		go func() {
			timer := time.NewTimer(e.locker.InitialTTL() * 2 / 3)
			defer timer.Stop()
			for {
				select {
				case <-stopExtend:
					return
				case <-timer.C:
					if err := e.locker.Extend(dctx, lockKey, token); err != nil {
						if errors.Is(err, e.errLockLost) {
							lockLost.Store(true)
							return
						}
						log.Warn().Err(err).Msg("lock extend failed")
					}
					timer.Reset(e.locker.ExtendedTTL() / 2)
				}
			}
		}()
	}

	rows, err := e.fetcher.Fetch(dctx, q.Category)
	if err != nil {
		release()
		if errors.Is(err, trends.ErrNoData) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Category)
		}
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	vres, err := validate.Series(rows, e.cfg.Timezone, e.cfg.MinRows)
	if err != nil {
		release()
		var verr *validate.Error
		if errors.As(err, &verr) && verr.Stage == validate.StageEmptyPayload {
			return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
		}
		return nil, err
	}
	for _, w := range vres.Warnings {
		log.Warn().Str("warning", w).Msg("series validation warning")
	}

	buckets := aggregate.Buckets(vres.Points, e.cfg.RollingWidth)
	wins := rank.Windows(buckets, q.WindowHours)
	wins = rank.FilterDays(wins, e.eligibleDays(q.DaysAhead))
	maxScore := rank.MaxScore(wins)
	picked := rank.TopK(wins, q.TopK)
	if len(picked) == 0 {
		release()
		return nil, fmt.Errorf("%w: no candidate windows for %s", ErrNotFound, q.Category)
	}

	res := &model.Result{
		Recommendations: rank.Recommendations(picked, maxScore),
		Chart:           chart(buckets),
		Source:          model.SourceLive,
	}

	// STORE: a lost lock or a degraded store means a newer writer may
	// exist (or no store at all) -- never write in that case
	switch {
	case degraded:
		res.Source = model.SourceLiveUncached
	case lockLost.Load():
		log.Warn().Msg("lock lost mid-fetch, skipping cache write")
		res.Source = model.SourceLiveUncached
	default:
		entry := cacheEntry{
			StoredAt:        e.now().Unix(),
			Recommendations: res.Recommendations,
			Chart:           res.Chart,
		}
		raw, merr := json.Marshal(entry)
		if merr == nil {
			if serr := e.store.Set(dctx, key, raw, e.cfg.TTL); serr != nil {
				log.Warn().Err(serr).Msg("cache write failed, serving uncached")
				res.Source = model.SourceLiveUncached
			}
		}
	}
	release()
	return res, nil
}

// eligibleDays maps days_ahead onto the set of weekdays reachable
// within the horizon. A full week (or more) allows every day.
func (e *Engine) eligibleDays(daysAhead int) map[time.Weekday]bool {
	if daysAhead >= 7 {
		return nil
	}
	allowed := map[time.Weekday]bool{}
	now := e.now().In(e.cfg.Timezone)
	for i := 1; i <= daysAhead; i++ {
		allowed[now.AddDate(0, 0, i).Weekday()] = true
	}
	return allowed
}

func chart(buckets []model.Bucket) []model.ChartPoint {
	out := make([]model.ChartPoint, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, model.ChartPoint{
			Day:   b.Day.String(),
			Hour:  b.Hour,
			Score: b.Smoothed,
		})
	}
	return out
}

func withSource(res *model.Result, source string) *model.Result {
	cp := *res
	cp.Source = source
	return &cp
}
