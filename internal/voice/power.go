package voice

import (
	"math"
	"time"
)

// Sample is one normalised power reading.
type Sample struct {
	// Value is in [0,1]; 0 is silence.
	Value float64

	// Tick counts fast-cadence readings since the resource opened, from 1.
	Tick int

	At time.Time
}

// normalize maps a dBFS-like reading onto [0,1] as clamp(1-|raw|/k, 0, 1).
func normalize(raw, k float64) float64 {
	if k <= 0 || math.IsNaN(raw) {
		return 0
	}
	return min(max(1-math.Abs(raw)/k, 0), 1)
}
