// Package router parses recommendation requests and maps engine
// outcomes onto HTTP responses.
package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/mhrdika/besttime-cache/internal/core/model"
	"github.com/mhrdika/besttime-cache/internal/engine"
	"github.com/mhrdika/besttime-cache/internal/logger"
	"github.com/mhrdika/besttime-cache/internal/validate"
)

// Recommender is what the handler needs from the engine.
type Recommender interface {
	Recommend(ctx context.Context, q model.Query) (*model.Result, error)
}

const (
	defaultWindowHours = 3
	defaultTopK        = 3
	defaultDaysAhead   = 7
)

var paramValidator = validator.New()

type meta struct {
	Category    string    `json:"category"`
	Source      string    `json:"source"`
	Cached      bool      `json:"cached"`
	GeneratedAt time.Time `json:"generated_at"`
}

type payload struct {
	Recommendations []model.Recommendation `json:"recommendations"`
	Chart           []model.ChartPoint     `json:"chart_data"`
}

type response struct {
	Status string  `json:"status"`
	Meta   meta    `json:"meta"`
	Data   payload `json:"data"`
}

type errorResponse struct {
	Status string `json:"status"`
	Code   string `json:"code"`
	Error  string `json:"error"`
	Stage  string `json:"stage,omitempty"`
}

// ParseQuery validates the request parameters and fills defaults.
func ParseQuery(r *http.Request) (model.Query, error) {
	qs := r.URL.Query()

	q := model.Query{
		Category:    strings.TrimSpace(qs.Get("category")),
		WindowHours: defaultWindowHours,
		TopK:        defaultTopK,
		DaysAhead:   defaultDaysAhead,
	}
	if q.Category == "" {
		return model.Query{}, errors.New("missing required parameter: category")
	}

	var err error
	if q.WindowHours, err = intParam(qs.Get("window"), defaultWindowHours); err != nil {
		return model.Query{}, fmt.Errorf("window: %w", err)
	}
	if q.TopK, err = intParam(qs.Get("top_k"), defaultTopK); err != nil {
		return model.Query{}, fmt.Errorf("top_k: %w", err)
	}
	if q.DaysAhead, err = intParam(qs.Get("days_ahead"), defaultDaysAhead); err != nil {
		return model.Query{}, fmt.Errorf("days_ahead: %w", err)
	}

	if err := paramValidator.Struct(q); err != nil {
		return model.Query{}, fmt.Errorf("parameters out of range: %w", err)
	}
	return q, nil
}

func intParam(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return n, nil
}

// Recommendations is the GET /v1/recommendations handler.
func Recommendations(log zerolog.Logger, rec Recommender) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := ParseQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), "")
			return
		}

		res, err := rec.Recommend(r.Context(), q)
		if err != nil {
			writeEngineError(w, r, log, q, err)
			return
		}

		writeJSON(w, http.StatusOK, response{
			Status: "ok",
			Meta: meta{
				Category:    q.Category,
				Source:      res.Source,
				Cached:      res.Source == model.SourceCacheFresh,
				GeneratedAt: time.Now().UTC(),
			},
			Data: payload{
				Recommendations: res.Recommendations,
				Chart:           res.Chart,
			},
		})
	}
}

func writeEngineError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, q model.Query, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED",
			"upstream data is unusable", string(verr.Stage))
	case errors.Is(err, engine.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND",
			fmt.Sprintf("no recommendation available for %q", q.Category), "")
	case errors.Is(err, engine.ErrBusy):
		w.Header().Set("Retry-After", "2")
		writeError(w, http.StatusServiceUnavailable, "BUSY",
			"recommendation is being computed, retry shortly", "")
	case errors.Is(err, engine.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, "RATE_LIMITED",
			"daily fetch budget exhausted, try again tomorrow", "")
	case errors.Is(err, engine.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE",
			"upstream data source is unavailable", "")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusServiceUnavailable, "TIMEOUT", "request timed out", "")
	default:
		logger.FromContext(r.Context(), &log).Error().Err(err).
			Str("category", q.Category).
			Msg("recommendation failed")
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"internal server error", "")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg, stage string) {
	writeJSON(w, status, errorResponse{Status: "error", Code: code, Error: msg, Stage: stage})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
