package audio

import "math"

// SilenceFloorDB is the level reported for digital silence. It matches the
// floor used by common host metering APIs.
const SilenceFloorDB = -160.0

// fullScale is the magnitude of the largest 16-bit sample.
const fullScale = 32768.0

// RMS returns the root-mean-square amplitude of 16-bit samples held in ints.
// Returns 0 for an empty slice.
func RMS(samples []int) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// PowerDB converts the RMS amplitude of 16-bit samples into dBFS, clamped to
// [SilenceFloorDB, 0].
func PowerDB(samples []int) float64 {
	rms := RMS(samples)
	if rms <= 0 {
		return SilenceFloorDB
	}
	db := 20 * math.Log10(rms/fullScale)
	if db < SilenceFloorDB {
		return SilenceFloorDB
	}
	if db > 0 {
		return 0
	}
	return db
}
