package aggregate

import (
	"math"
	"testing"
	"time"

	"github.com/mhrdika/besttime-cache/internal/core/model"
)

// 2026-01-05 is a Monday
func pt(day, hour int, v float64) model.Point {
	return model.Point{
		TS:    time.Date(2026, 1, 5+day, hour, 30, 0, 0, time.UTC),
		Value: v,
	}
}

func findBucket(t *testing.T, buckets []model.Bucket, day time.Weekday, hour int) model.Bucket {
	t.Helper()
	for _, b := range buckets {
		if b.Day == day && b.Hour == hour {
			return b
		}
	}
	t.Fatalf("no bucket for %s %02d:00", day, hour)
	return model.Bucket{}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestBuckets_AverageWithinBucket(t *testing.T) {
	points := []model.Point{
		pt(0, 9, 10), pt(0, 9, 20), pt(0, 9, 30),
	}
	buckets := Buckets(points, 3)
	b := findBucket(t, buckets, time.Monday, 9)
	if !approx(b.Average, 20) {
		t.Fatalf("average=%v want 20", b.Average)
	}
}

func TestBuckets_CenteredRollingMean(t *testing.T) {
	points := []model.Point{
		pt(0, 8, 10), pt(0, 9, 20), pt(0, 10, 60),
	}
	buckets := Buckets(points, 3)

	mid := findBucket(t, buckets, time.Monday, 9)
	if !approx(mid.Smoothed, 30) { // (10+20+60)/3
		t.Fatalf("smoothed=%v want 30", mid.Smoothed)
	}

	// edge buckets use a partial window
	left := findBucket(t, buckets, time.Monday, 8)
	if !approx(left.Smoothed, 15) { // (10+20)/2
		t.Fatalf("left edge smoothed=%v want 15", left.Smoothed)
	}
	right := findBucket(t, buckets, time.Monday, 10)
	if !approx(right.Smoothed, 40) { // (20+60)/2
		t.Fatalf("right edge smoothed=%v want 40", right.Smoothed)
	}
}

func TestBuckets_NeverSmoothsAcrossDayBoundary(t *testing.T) {
	points := []model.Point{
		pt(0, 23, 100), // Monday 23:00
		pt(1, 0, 900),  // Tuesday 00:00
	}
	buckets := Buckets(points, 3)

	mon := findBucket(t, buckets, time.Monday, 23)
	if !approx(mon.Smoothed, 100) {
		t.Fatalf("Monday 23:00 smoothed=%v leaked Tuesday data", mon.Smoothed)
	}
	tue := findBucket(t, buckets, time.Tuesday, 0)
	if !approx(tue.Smoothed, 900) {
		t.Fatalf("Tuesday 00:00 smoothed=%v leaked Monday data", tue.Smoothed)
	}
}

func TestBuckets_HourGapsAreNotBridged(t *testing.T) {
	// hours 9 and 11 exist, hour 10 does not; neither should see the other
	points := []model.Point{
		pt(0, 9, 10), pt(0, 11, 50),
	}
	buckets := Buckets(points, 3)
	if b := findBucket(t, buckets, time.Monday, 9); !approx(b.Smoothed, 10) {
		t.Fatalf("hour 9 smoothed=%v want 10", b.Smoothed)
	}
	if b := findBucket(t, buckets, time.Monday, 11); !approx(b.Smoothed, 50) {
		t.Fatalf("hour 11 smoothed=%v want 50", b.Smoothed)
	}
}

func TestBuckets_OrderedMondayFirstThenHour(t *testing.T) {
	points := []model.Point{
		pt(6, 3, 1), // Sunday
		pt(0, 5, 1), // Monday
		pt(0, 2, 1),
	}
	buckets := Buckets(points, 3)
	if buckets[0].Day != time.Monday || buckets[0].Hour != 2 {
		t.Fatalf("first bucket=%v %d, want Monday 2", buckets[0].Day, buckets[0].Hour)
	}
	last := buckets[len(buckets)-1]
	if last.Day != time.Sunday {
		t.Fatalf("last bucket day=%v, want Sunday", last.Day)
	}
}

func TestBuckets_Deterministic(t *testing.T) {
	points := []model.Point{
		pt(0, 8, 10), pt(0, 9, 20), pt(2, 14, 5), pt(4, 21, 80),
	}
	a := Buckets(points, 3)
	b := Buckets(points, 3)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("bucket %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
