// Package model defines the domain types shared across the service.
package model

import (
	"fmt"
	"time"
)

// Query is a validated recommendation request as consumed by the engine.
type Query struct {
	Category    string `json:"category" validate:"required,min=2,max=100"`
	WindowHours int    `json:"window_hours" validate:"min=1,max=12"`
	TopK        int    `json:"top_k" validate:"min=1,max=10"`
	DaysAhead   int    `json:"days_ahead" validate:"min=1,max=14"`
}

// Point is a validated series sample: timestamp normalized to the
// service time zone, value guaranteed non-negative.
type Point struct {
	TS    time.Time
	Value float64
}

// Bucket is the per-(weekday, hour) aggregate of the validated series.
type Bucket struct {
	Day      time.Weekday
	Hour     int
	Average  float64
	Smoothed float64
}

// Window is a contiguous span of hours within a single day. Score is
// the smoothed value at the anchor (first) hour; RawScore is the mean
// of the smoothed values across the span.
type Window struct {
	Day       time.Weekday
	StartHour int
	EndHour   int // exclusive
	Score     float64
	RawScore  float64
}

// Recommendation is a ranked window as returned to callers.
type Recommendation struct {
	Rank       int     `json:"rank"`
	Day        string  `json:"day"`
	StartHour  int     `json:"start_hour"`
	EndHour    int     `json:"end_hour"`
	TimeWindow string  `json:"time_window"`
	Score      float64 `json:"score"`
	Confidence float64 `json:"confidence"`
}

// ChartPoint is one smoothed bucket for the response chart series.
type ChartPoint struct {
	Day   string  `json:"day"`
	Hour  int     `json:"hour"`
	Score float64 `json:"score"`
}

// Source labels for Result.Source.
const (
	SourceCacheFresh   = "cache_fresh"
	SourceLive         = "live"
	SourceLiveUncached = "live_uncached"
)

// Result is the engine's answer for one query.
type Result struct {
	Recommendations []Recommendation `json:"recommendations"`
	Chart           []ChartPoint     `json:"chart_data"`
	Source          string           `json:"-"`
}

// DayIndex maps a weekday onto a Monday-first ordering, which is how
// ties between days are broken.
func DayIndex(d time.Weekday) int {
	return (int(d) + 6) % 7
}

// HourRange formats a window span as "19:00 - 22:00".
func HourRange(start, end int) string {
	return fmt.Sprintf("%02d:00 - %02d:00", start, end)
}
