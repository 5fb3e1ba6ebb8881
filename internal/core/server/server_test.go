package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/mhrdika/besttime-cache/internal/core/config"
	"github.com/mhrdika/besttime-cache/internal/core/model"
)

type stubRecommender struct{}

func (stubRecommender) Recommend(ctx context.Context, q model.Query) (*model.Result, error) {
	return &model.Result{Source: model.SourceLive}, nil
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(ctx context.Context) error { return p.err }

func testHandler(pingErr error, rateLimit int) http.Handler {
	cfg := config.FromEnv()
	cfg.HTTPRateLimit = rateLimit
	cfg.HTTPRateWindow = time.Minute
	return Handler(cfg, zerolog.Nop(), stubRecommender{}, stubPinger{err: pingErr})
}

func do(h http.Handler, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	r.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(w, r)
	return w
}

func TestHandler_Health(t *testing.T) {
	h := testHandler(nil, 100)
	if w := do(h, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz status=%d", w.Code)
	}
	if w := do(h, "/readyz"); w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("readyz status=%d body=%q", w.Code, w.Body)
	}
}

func TestHandler_ReadyzReportsDegraded(t *testing.T) {
	h := testHandler(errors.New("redis down"), 100)
	w := do(h, "/readyz")
	// the service serves uncached through an outage, so it stays ready
	if w.Code != http.StatusOK || w.Body.String() != "degraded" {
		t.Fatalf("readyz status=%d body=%q", w.Code, w.Body)
	}
}

func TestHandler_Metrics(t *testing.T) {
	if w := do(testHandler(nil, 100), "/metrics"); w.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", w.Code)
	}
}

func TestHandler_RecommendationsRouted(t *testing.T) {
	w := do(testHandler(nil, 100), "/v1/recommendations?category=skincare")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body)
	}
	if w.Header().Get("X-Request-ID") == "" {
		t.Fatal("request id header missing")
	}
}

func TestHandler_RateLimitCapsPerIP(t *testing.T) {
	h := testHandler(nil, 2)
	for i := 0; i < 2; i++ {
		if w := do(h, "/v1/recommendations?category=skincare"); w.Code != http.StatusOK {
			t.Fatalf("request %d status=%d", i, w.Code)
		}
	}
	if w := do(h, "/v1/recommendations?category=skincare"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d want 429", w.Code)
	}
	// health endpoints sit outside the limited group
	if w := do(h, "/healthz"); w.Code != http.StatusOK {
		t.Fatalf("healthz limited: status=%d", w.Code)
	}
}
