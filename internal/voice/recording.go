package voice

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/MrWong99/voiceturn/pkg/audio"
)

// recording is one live microphone capture with its two timers.
type recording struct {
	turnID  string
	capture audio.Capture
	path    string
	divisor float64

	power   Ticker
	silence Ticker
	ticks   int
}

func (r *recording) stopTimers() {
	if r.power != nil {
		r.power.Stop()
	}
	if r.silence != nil {
		r.silence.Stop()
	}
}

// finish stops capture and reads the completed artifact back. The file is
// removed either way.
func (r *recording) finish() ([]byte, error) {
	r.stopTimers()
	stopErr := r.capture.Stop()
	data, readErr := os.ReadFile(r.path)
	r.removeArtifact()

	switch {
	case readErr != nil:
		return nil, &ResourceError{Op: "finish recording", Err: fmt.Errorf("%w: %w", ErrArtifactIO, readErr)}
	case stopErr != nil:
		return nil, &ResourceError{Op: "finish recording", Err: fmt.Errorf("%w: %w", ErrArtifactIO, stopErr)}
	case len(data) == 0:
		return nil, &ResourceError{Op: "finish recording", Err: fmt.Errorf("%w: empty file", ErrArtifactIO)}
	}
	return data, nil
}

// cancel stops capture without reading the artifact.
func (r *recording) cancel() {
	r.stopTimers()
	if err := r.capture.Stop(); err != nil {
		slog.Warn("voice: stop capture", "turn_id", r.turnID, "err", err)
	}
	r.removeArtifact()
}

func (r *recording) removeArtifact() {
	if err := os.Remove(r.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("voice: remove recording", "path", r.path, "err", err)
	}
}
