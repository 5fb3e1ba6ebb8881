// Package server wires the HTTP surface and runs it until the context
// ends.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mhrdika/besttime-cache/internal/core/config"
	"github.com/mhrdika/besttime-cache/internal/core/health"
	imw "github.com/mhrdika/besttime-cache/internal/core/middleware"
	"github.com/mhrdika/besttime-cache/internal/core/router"
)

// Handler builds the full route tree. Split out from Run so tests can
// exercise the routes without binding a port.
func Handler(cfg config.Config, log zerolog.Logger, rec router.Recommender, probe health.Pinger) http.Handler {
	r := chi.NewRouter()
	r.Use(imw.Recover(log))
	r.Use(imw.RequestID())
	r.Use(imw.Logging(log))
	r.Use(imw.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(probe))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(imw.RateLimit(cfg.HTTPRateLimit, cfg.HTTPRateWindow))
		r.Get("/v1/recommendations", router.Recommendations(log, rec))
	})

	return r
}

func Run(ctx context.Context, cfg config.Config, log zerolog.Logger, rec router.Recommender, probe health.Pinger) error {
	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: Handler(cfg, log, rec, probe),
		// the write timeout has to outlive a worst-case live fetch
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
