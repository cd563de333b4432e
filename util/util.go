// Package util contains misc internal utilities.
package util

import (
	"math"
	"time"
)

// Clamp limits x to the range [low, high]
func Clamp(x, low, high float64) float64 {
	if x < low {
		return low
	}
	if x > high {
		return high
	}
	return x
}

// SecsToDuration converts a floating point number of seconds to a time.Duration,
// rounded to the nearest nanosecond
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// DurationToSecs converts a duration to floating point seconds, which is how
// DeviceAccess expresses presets and elapsed times
func DurationToSecs(d time.Duration) float64 {
	return d.Seconds()
}
