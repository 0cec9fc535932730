package voice

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MrWong99/voiceturn/pkg/audio"
)

// Params tunes turn detection and capture. Changes made with
// [Controller.Reconfigure] apply from the next capture on.
type Params struct {
	// PowerInterval is the fast cadence of the power sampler.
	PowerInterval time.Duration

	// SilenceInterval is the slow cadence of the silence detector.
	SilenceInterval time.Duration

	// PreviousThreshold and CurrentThreshold end a turn when the previous
	// slow reading is below the former and the current one below the latter.
	PreviousThreshold float64
	CurrentThreshold  float64

	// InputDivisor and OutputDivisor are the K in clamp(1-|raw|/K, 0, 1)
	// for capture and playback levels.
	InputDivisor  float64
	OutputDivisor float64

	// Capture is passed to the platform for every recording.
	Capture audio.CaptureConfig
}

// DefaultCapturePath is where recordings are written unless configured
// otherwise.
func DefaultCapturePath() string {
	return filepath.Join(os.TempDir(), "voiceturn-recording.wav")
}

// DefaultParams returns the stock tuning: 200ms/1.6s cadences, 0.25/0.175
// thresholds, K=50 for input and K=160 for output, 12kHz mono capture.
func DefaultParams() Params {
	return Params{
		PowerInterval:     200 * time.Millisecond,
		SilenceInterval:   1600 * time.Millisecond,
		PreviousThreshold: 0.25,
		CurrentThreshold:  0.175,
		InputDivisor:      50,
		OutputDivisor:     160,
		Capture: audio.CaptureConfig{
			Path:       DefaultCapturePath(),
			SampleRate: 12000,
			Channels:   1,
		},
	}
}

// Validate reports every invalid field.
func (p Params) Validate() error {
	var errs []error
	if p.PowerInterval <= 0 {
		errs = append(errs, fmt.Errorf("power interval must be positive, got %s", p.PowerInterval))
	}
	if p.SilenceInterval <= 0 {
		errs = append(errs, fmt.Errorf("silence interval must be positive, got %s", p.SilenceInterval))
	}
	for name, v := range map[string]float64{"previous": p.PreviousThreshold, "current": p.CurrentThreshold} {
		if v <= 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s threshold must be in (0,1], got %g", name, v))
		}
	}
	if p.InputDivisor <= 0 || p.OutputDivisor <= 0 {
		errs = append(errs, fmt.Errorf("power divisors must be positive, got %g/%g", p.InputDivisor, p.OutputDivisor))
	}
	if p.Capture.Path == "" {
		errs = append(errs, errors.New("capture path must not be empty"))
	}
	if p.Capture.SampleRate <= 0 || p.Capture.Channels <= 0 {
		errs = append(errs, fmt.Errorf("invalid capture format %dHz/%dch", p.Capture.SampleRate, p.Capture.Channels))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("voice: invalid params: %w", err)
	}
	return nil
}
