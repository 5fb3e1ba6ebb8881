// Package trends fetches raw popularity series from an Apify-style
// Google Trends actor. Everything it returns is untrusted input for
// the validation pipeline.
package trends

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/mhrdika/besttime-cache/internal/core/observability"
)

// RawRow is one opaque upstream row. Field presence and types are not
// guaranteed; the validation pipeline decides what is usable.
type RawRow map[string]any

// Series is the raw payload of one fetch.
type Series []RawRow

var (
	// ErrUnavailable covers transport failures and an open breaker.
	ErrUnavailable = errors.New("trends upstream unavailable")
	// ErrNoData means the fetch succeeded but returned nothing.
	ErrNoData = errors.New("trends upstream returned no data")
)

// Fetcher is the upstream collaborator contract the engine depends on.
type Fetcher interface {
	Fetch(ctx context.Context, category string) (Series, error)
}

type Config struct {
	BaseURL   string
	Token     string
	ActorID   string
	Geo       string
	TimeRange string
	Timeout   time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[Series]
	log     zerolog.Logger
}

var _ Fetcher = (*Client)(nil)

func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.ActorID == "" {
		cfg.ActorID = "apify~google-trends-scraper"
	}
	if cfg.Geo == "" {
		cfg.Geo = "ID"
	}
	if cfg.TimeRange == "" {
		cfg.TimeRange = "now 7-d"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[Series](gobreaker.Settings{
		Name:        "trends-upstream",
		MaxRequests: 1,
		Interval:    2 * time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).
				Str("from", from.String()).Str("to", to.String()).
				Msg("upstream breaker state change")
		},
	})

	return &Client{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		breaker: cb,
		log:     log,
	}
}

// Fetch runs the actor synchronously and returns its dataset rows.
func (c *Client) Fetch(ctx context.Context, category string) (Series, error) {
	start := time.Now()
	runID := uuid.NewString()

	series, err := c.breaker.Execute(func() (Series, error) {
		return c.fetch(ctx, category, runID)
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		observability.ObserveUpstreamFetch("breaker_open", time.Since(start).Seconds())
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	case err != nil:
		observability.ObserveUpstreamFetch("error", time.Since(start).Seconds())
		return nil, err
	}

	observability.ObserveUpstreamFetch("ok", time.Since(start).Seconds())
	c.log.Debug().Str("run_id", runID).Str("category", category).
		Int("rows", len(series)).Dur("dur", time.Since(start)).
		Msg("trends fetch done")
	return series, nil
}

func (c *Client) fetch(ctx context.Context, category, runID string) (Series, error) {
	payload := map[string]any{
		"searchTerms": []string{category},
		"geo":         c.cfg.Geo,
		"timeRange":   c.cfg.TimeRange,
		"category":    0,
		"isPublic":    false,
		"maxItems":    1000,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal actor input: %w", err)
	}

	u := fmt.Sprintf("%s/v2/acts/%s/run-sync-get-dataset-items?token=%s",
		c.cfg.BaseURL, url.PathEscape(c.cfg.ActorID), url.QueryEscape(c.cfg.Token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build actor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Run-ID", runID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("%w: actor status %d: %s", ErrUnavailable, resp.StatusCode, bytes.TrimSpace(raw))
	}

	var items []RawRow
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode actor output: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrNoData
	}
	return unwrap(items), nil
}

// unwrap flattens the actor's interestOverTime envelope into bare
// timeline rows. Rows that are already bare pass through untouched.
func unwrap(items []RawRow) Series {
	out := make(Series, 0, len(items))
	for _, item := range items {
		tl, ok := item["interestOverTime_timelineData"].([]any)
		if !ok {
			out = append(out, item)
			continue
		}
		for _, p := range tl {
			if row, ok := p.(map[string]any); ok {
				out = append(out, RawRow(row))
			}
		}
	}
	return out
}
