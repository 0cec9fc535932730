// Package audio defines the interfaces and helpers for local audio device I/O
// within voiceturn.
//
// The two primary abstractions are:
//
//   - [Capture]: an active microphone recording that writes a WAV artifact to
//     a fixed path and exposes the current input level.
//   - [Playback]: an active speaker output playing one synthesised WAV
//     payload and exposing the current output level.
//
// Both are obtained from a [Platform]. Implementations live in adapter
// packages (e.g., audio/portaudio); test doubles live in audio/mock.
//
// Level readings follow the convention of most host audio APIs: an average
// power in decibels relative to full scale, where 0 is the loudest possible
// signal and [SilenceFloorDB] is digital silence.
package audio

import (
	"context"
	"errors"
)

// ErrPermissionDenied is returned when the host refuses access to the
// microphone. Callers must not retry automatically.
var ErrPermissionDenied = errors.New("audio: microphone permission denied")

// ErrClosed is returned by [Meter.AveragePower] once the underlying device
// resource has been released.
var ErrClosed = errors.New("audio: resource closed")

// CaptureConfig describes where and how a [Capture] records.
type CaptureConfig struct {
	// Path is the file the capture writes its WAV artifact to. An existing file
	// at Path is truncated.
	Path string

	// SampleRate in Hz.
	SampleRate int

	// Channels: 1 for mono.
	Channels int
}

// Meter reports the current signal level of an audio resource.
type Meter interface {
	// AveragePower returns the most recent average power in dBFS, in the range
	// [SilenceFloorDB, 0]. Returns [ErrClosed] after the resource is released.
	AveragePower() (float64, error)
}

// Capture is an active microphone recording.
//
// Implementations must be safe for concurrent use: Stop and AveragePower may be
// called from any goroutine.
type Capture interface {
	Meter

	// Stop ends the recording and flushes the WAV artifact to the configured
	// path. When Stop returns without error, the artifact is complete and
	// readable. Calling Stop more than once is safe and returns nil.
	Stop() error

	// Done returns a channel that is closed when the capture ends for any
	// reason, including Stop.
	Done() <-chan struct{}

	// Err returns nil if the capture ended through Stop, or the cause if it
	// ended on its own (device lost, permission revoked). Only meaningful
	// after Done is closed.
	Err() error
}

// Playback is an active speaker output of one audio payload.
//
// Implementations must be safe for concurrent use.
type Playback interface {
	Meter

	// Stop interrupts playback and releases the output device. Calling Stop
	// more than once is safe and returns nil.
	Stop() error

	// Done returns a channel that is closed when playback finishes, fails, or
	// is stopped.
	Done() <-chan struct{}

	// Err returns the failure cause, or nil when playback completed or was
	// stopped. Only meaningful after Done is closed.
	Err() error
}

// Platform opens capture and playback resources on the host's audio devices.
//
// Implementations must be safe for concurrent use.
type Platform interface {
	// StartCapture opens the default input device and begins recording to
	// cfg.Path. Returns an error wrapping [ErrPermissionDenied] when the host
	// refuses microphone access.
	StartCapture(ctx context.Context, cfg CaptureConfig) (Capture, error)

	// StartPlayback opens the default output device and begins playing wav, a
	// complete RIFF/WAV payload. Playback runs asynchronously; observe
	// [Playback.Done] for completion.
	StartPlayback(ctx context.Context, wav []byte) (Playback, error)

	// Close releases host audio resources. Captures and playbacks still running
	// are not stopped by Close.
	Close() error
}
