package voice

// silenceDetector decides end of turn from slow-cadence power readings. The
// first reading after a reset only primes the detector.
type silenceDetector struct {
	previousThreshold float64
	currentThreshold  float64

	previous float64
	primed   bool
}

// observe feeds one reading and reports whether the turn has ended.
func (d *silenceDetector) observe(current float64) bool {
	if !d.primed {
		d.previous, d.primed = current, true
		return false
	}
	if d.previous < d.previousThreshold && current < d.currentThreshold {
		return true
	}
	d.previous = current
	return false
}

func (d *silenceDetector) reset() {
	d.previous, d.primed = 0, false
}
