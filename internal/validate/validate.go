// Package validate turns the untrusted upstream series into a clean,
// ordered, non-empty sequence of points, or a typed rejection naming
// the stage that failed. Every input ends in exactly one of those two
// outcomes.
package validate

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/mhrdika/besttime-cache/internal/core/model"
	"github.com/mhrdika/besttime-cache/internal/core/observability"
	"github.com/mhrdika/besttime-cache/internal/trends"
)

// Stage identifies which pipeline check rejected the series.
type Stage string

const (
	StageEmptyPayload  Stage = "empty_payload"
	StageMissingFields Stage = "missing_fields"
	StageNoRows        Stage = "no_rows"
	StageAllNullValues Stage = "all_null_values"
	StageTimestamps    Stage = "unparseable_timestamps"
	StageEmptyResult   Stage = "empty_after_cleaning"
)

const (
	// FieldTimestamp and FieldValue are the row fields the upstream
	// must provide.
	FieldTimestamp = "date"
	FieldValue     = "value"
)

// Error is a typed validation rejection.
type Error struct {
	Stage  Stage
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("validation failed at %s: %s", e.Stage, e.Reason)
}

func reject(stage Stage, format string, args ...any) error {
	observability.IncValidationRejection(string(stage))
	return &Error{Stage: stage, Reason: fmt.Sprintf(format, args...)}
}

// Result carries the cleaned series plus non-fatal warnings.
type Result struct {
	Points   []model.Point
	Warnings []string
}

// timestamp formats the provider has been seen to emit; naive stamps
// are taken as UTC before conversion to the target zone.
var tsFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Series runs the full pipeline. loc is the target time zone; minRows
// below this threshold only warns, it does not reject.
func Series(rows trends.Series, loc *time.Location, minRows int) (Result, error) {
	var res Result

	// 1: empty payload
	if len(rows) == 0 {
		return res, reject(StageEmptyPayload, "upstream payload is empty")
	}

	// 2: required fields must appear somewhere in the payload
	hasTS, hasVal := false, false
	for _, r := range rows {
		if _, ok := r[FieldTimestamp]; ok {
			hasTS = true
		}
		if _, ok := r[FieldValue]; ok {
			hasVal = true
		}
		if hasTS && hasVal {
			break
		}
	}
	if !hasTS || !hasVal {
		return res, reject(StageMissingFields,
			"missing required columns (have %s=%v, %s=%v)", FieldTimestamp, hasTS, FieldValue, hasVal)
	}

	// 3: rows carrying both fields
	type candidate struct {
		ts  any
		val any
	}
	cands := make([]candidate, 0, len(rows))
	for _, r := range rows {
		ts, okT := r[FieldTimestamp]
		v, okV := r[FieldValue]
		if okT && okV {
			cands = append(cands, candidate{ts: ts, val: v})
		}
	}
	if len(cands) == 0 {
		return res, reject(StageNoRows, "no rows carry both %s and %s", FieldTimestamp, FieldValue)
	}

	// 4: below-threshold row count is usable but suspicious
	if minRows > 0 && len(cands) < minRows {
		res.Warnings = append(res.Warnings,
			fmt.Sprintf("only %d rows, below the minimum-usable threshold %d", len(cands), minRows))
	}

	// 5: drop null/unparseable values
	withVal := cands[:0]
	for _, c := range cands {
		if _, ok := coerceValue(c.val); ok {
			withVal = append(withVal, c)
		}
	}
	if len(withVal) == 0 {
		return res, reject(StageAllNullValues, "every row has a null or non-numeric value")
	}

	// 6: parse timestamps into the target zone
	type parsed struct {
		ts  time.Time
		val float64
	}
	pts := make([]parsed, 0, len(withVal))
	for _, c := range withVal {
		ts, ok := parseTimestamp(c.ts, loc)
		if !ok {
			continue
		}
		v, _ := coerceValue(c.val)
		pts = append(pts, parsed{ts: ts, val: v})
	}
	if len(pts) == 0 {
		return res, reject(StageTimestamps, "no row has a parseable in-range timestamp")
	}

	// 7: negative values are provider noise, drop them
	clean := pts[:0]
	for _, p := range pts {
		if p.val >= 0 {
			clean = append(clean, p)
		}
	}

	// 8: nothing survived cleaning
	if len(clean) == 0 {
		return res, reject(StageEmptyResult, "all rows were dropped during cleaning")
	}

	out := make([]model.Point, 0, len(clean))
	for _, p := range clean {
		out = append(out, model.Point{TS: p.ts, Value: p.val})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })
	res.Points = out
	return res, nil
}

// coerceValue extracts a numeric value from the loose row field.
// Arrays take their first element (the provider wraps single values).
func coerceValue(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case []any:
		if len(t) == 0 {
			return 0, false
		}
		return coerceValue(t[0])
	default:
		return 0, false
	}
}

// parseTimestamp parses the raw timestamp and normalizes it to loc.
// Stamps outside a sane range are treated as unparseable.
func parseTimestamp(v any, loc *time.Location) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		// some scrapes emit epoch seconds
		if f, isNum := coerceValue(v); isNum && f > 0 {
			t := time.Unix(int64(f), 0).In(loc)
			return t, inSaneRange(t)
		}
		return time.Time{}, false
	}
	for _, layout := range tsFormats {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		t = t.In(loc)
		if !inSaneRange(t) {
			return time.Time{}, false
		}
		return t, true
	}
	return time.Time{}, false
}

func inSaneRange(t time.Time) bool {
	return t.Year() >= 2010 && t.Year() <= time.Now().Year()+1
}
