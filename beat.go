package tahti

import (
	"math"
	"time"
)

// SnapToGrid rounds a beat position to the nearest grid line. The denominator
// is the number of grid lines per beat, so denom 4 snaps to sixteenth notes
// in 4/4. A denominator <= 0 disables snapping and returns the value as is.
func SnapToGrid(beats float64, denom int) float64 {
	if denom <= 0 {
		return beats
	}
	return math.Round(beats*float64(denom)) / float64(denom)
}

// BeatsToDuration converts a length in beats to wall-clock time at the given
// tempo. A non-positive tempo yields zero, as there is no meaningful rate.
func BeatsToDuration(beats, tempoBPM float64) time.Duration {
	if tempoBPM <= 0 {
		return 0
	}
	return time.Duration(beats / tempoBPM * 60 * float64(time.Second))
}

// DurationToBeats converts elapsed wall-clock time to beats at the given
// tempo.
func DurationToBeats(d time.Duration, tempoBPM float64) float64 {
	return d.Seconds() * tempoBPM / 60
}

// NearlyEqual reports whether two beat positions agree within eps. Used for
// the optimistic-edit convergence check and in tests.
func NearlyEqual(a, b, eps float64) bool {
	return math.Abs(a-b) < eps
}
