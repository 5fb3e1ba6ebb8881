// Package aggregate folds the validated series into (weekday, hour)
// buckets and smooths them with a centered rolling mean.
package aggregate

import (
	"sort"
	"time"

	"github.com/mhrdika/besttime-cache/internal/core/model"
)

// DefaultWidth is the rolling window width in buckets.
const DefaultWidth = 3

type key struct {
	day  int // Monday-first index
	hour int
}

// Buckets groups points by (day-of-week, hour-of-day), averages each
// bucket, and applies a centered rolling mean of the given width along
// the hour axis. Smoothing never crosses a day boundary: edge hours
// average over the neighbors that exist on the same day.
func Buckets(points []model.Point, width int) []model.Bucket {
	if width <= 0 || width%2 == 0 {
		width = DefaultWidth
	}
	radius := width / 2

	sums := map[key]float64{}
	counts := map[key]int{}
	for _, p := range points {
		k := key{day: model.DayIndex(p.TS.Weekday()), hour: p.TS.Hour()}
		sums[k] += p.Value
		counts[k]++
	}

	avg := map[key]float64{}
	out := make([]model.Bucket, 0, len(sums))
	for k, s := range sums {
		avg[k] = s / float64(counts[k])
	}

	for k, a := range avg {
		sum, n := 0.0, 0
		for h := k.hour - radius; h <= k.hour+radius; h++ {
			if h < 0 || h > 23 {
				continue
			}
			if v, ok := avg[key{day: k.day, hour: h}]; ok {
				sum += v
				n++
			}
		}
		out = append(out, model.Bucket{
			Day:      weekdayFromIndex(k.day),
			Hour:     k.hour,
			Average:  a,
			Smoothed: sum / float64(n),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		di, dj := model.DayIndex(out[i].Day), model.DayIndex(out[j].Day)
		if di != dj {
			return di < dj
		}
		return out[i].Hour < out[j].Hour
	})
	return out
}

func weekdayFromIndex(i int) time.Weekday {
	return time.Weekday((i + 1) % 7)
}
