// Package rank selects the top-K non-overlapping posting windows from
// the smoothed hourly buckets.
package rank

import (
	"sort"
	"time"

	"github.com/mhrdika/besttime-cache/internal/core/model"
)

// Windows enumerates every contiguous windowHours-long span within a
// day (spans never cross midnight). A span is a candidate only when a
// bucket exists for each of its hours. The selection score is the
// smoothed value at the anchor (first) hour; RawScore is the mean of
// the span's smoothed values.
func Windows(buckets []model.Bucket, windowHours int) []model.Window {
	if windowHours < 1 {
		windowHours = 1
	}

	byDay := map[time.Weekday]map[int]model.Bucket{}
	for _, b := range buckets {
		m, ok := byDay[b.Day]
		if !ok {
			m = map[int]model.Bucket{}
			byDay[b.Day] = m
		}
		m[b.Hour] = b
	}

	var out []model.Window
	for day, hours := range byDay {
		for start := 0; start+windowHours <= 24; start++ {
			sum := 0.0
			full := true
			for h := start; h < start+windowHours; h++ {
				b, ok := hours[h]
				if !ok {
					full = false
					break
				}
				sum += b.Smoothed
			}
			if !full {
				continue
			}
			out = append(out, model.Window{
				Day:       day,
				StartHour: start,
				EndHour:   start + windowHours,
				Score:     hours[start].Smoothed,
				RawScore:  sum / float64(windowHours),
			})
		}
	}

	sortWindows(out)
	return out
}

// FilterDays keeps only windows on allowed weekdays. A nil set allows
// every day.
func FilterDays(windows []model.Window, allowed map[time.Weekday]bool) []model.Window {
	if allowed == nil {
		return windows
	}
	out := windows[:0]
	for _, w := range windows {
		if allowed[w.Day] {
			out = append(out, w)
		}
	}
	return out
}

// TopK greedily picks up to k windows in descending score order,
// skipping any whose hour range overlaps an already-selected window on
// any day. Fewer than k are returned when candidates run out.
func TopK(windows []model.Window, k int) []model.Window {
	sortWindows(windows)

	picked := make([]model.Window, 0, k)
	for _, w := range windows {
		if len(picked) == k {
			break
		}
		clash := false
		for _, p := range picked {
			if w.StartHour < p.EndHour && p.StartHour < w.EndHour {
				clash = true
				break
			}
		}
		if !clash {
			picked = append(picked, w)
		}
	}
	return picked
}

// Recommendations converts selected windows into ranked output with a
// confidence in [0,1], normalized against the best candidate score.
func Recommendations(picked []model.Window, maxScore float64) []model.Recommendation {
	out := make([]model.Recommendation, 0, len(picked))
	for i, w := range picked {
		conf := 0.0
		if maxScore > 0 {
			conf = w.Score / maxScore
		}
		if conf > 1 {
			conf = 1
		}
		out = append(out, model.Recommendation{
			Rank:       i + 1,
			Day:        w.Day.String(),
			StartHour:  w.StartHour,
			EndHour:    w.EndHour,
			TimeWindow: model.HourRange(w.StartHour, w.EndHour),
			Score:      w.RawScore,
			Confidence: conf,
		})
	}
	return out
}

// MaxScore returns the highest selection score among candidates.
func MaxScore(windows []model.Window) float64 {
	max := 0.0
	for _, w := range windows {
		if w.Score > max {
			max = w.Score
		}
	}
	return max
}

// descending score; ties broken by earlier day (Monday first), then
// earlier start hour
func sortWindows(ws []model.Window) {
	sort.SliceStable(ws, func(i, j int) bool {
		if ws[i].Score != ws[j].Score {
			return ws[i].Score > ws[j].Score
		}
		di, dj := model.DayIndex(ws[i].Day), model.DayIndex(ws[j].Day)
		if di != dj {
			return di < dj
		}
		return ws[i].StartHour < ws[j].StartHour
	})
}
