package metrics

import (
	"math"
	"time"
)

// RoundMillis rounds a value in seconds to millisecond precision.
func RoundMillis(seconds float64) float64 {
	return math.Round(seconds*1000) / 1000
}

// Elapsed returns the seconds between start and end, never negative, rounded
// to milliseconds.
func Elapsed(start, end time.Time) float64 {
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	return RoundMillis(d.Seconds())
}

// ClampedElapsed is Elapsed capped at limit.
func ClampedElapsed(start, end time.Time, limit time.Duration) float64 {
	d := end.Sub(start)
	if d < 0 {
		d = 0
	}
	if d > limit {
		d = limit
	}
	return RoundMillis(d.Seconds())
}
