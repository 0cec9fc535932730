// Package mock provides in-memory implementations of [audio.Platform],
// [audio.Capture], and [audio.Playback] for use in unit tests.
//
// All mocks are safe for concurrent use. They record every resource they hand
// out so tests can assert on lifecycle (how many are live, how often Stop was
// called) and they expose methods to drive the resource from the outside:
// changing the reported power level, or ending a capture or playback as the
// hardware would.
//
// Typical usage:
//
//	p := &mock.Platform{CapturePower: -10}
//	c := controller(p)
//	c.StartCapture()
//	p.LastCapture().End(nil) // simulate a hardware interruption
package mock

import (
	"context"
	"os"
	"sync"

	"github.com/MrWong99/voiceturn/pkg/audio"
)

// DefaultArtifact is the WAV payload written by a [Capture] on Stop when
// [Platform.Artifact] is nil: 10ms of silence at 12kHz mono.
var DefaultArtifact = func() []byte {
	b, err := audio.EncodeWAV(&audio.PCM{Samples: make([]int, 120), SampleRate: 12000, Channels: 1})
	if err != nil {
		panic(err)
	}
	return b
}()

// ─── Platform ─────────────────────────────────────────────────────────────────

// Platform is a mock implementation of [audio.Platform].
// Set the exported fields before use; inspect the recorded resources after.
type Platform struct {
	mu sync.Mutex

	// CaptureErr is returned by StartCapture when non-nil.
	CaptureErr error

	// PlaybackErr is returned by StartPlayback when non-nil.
	PlaybackErr error

	// CapturePower is the initial level (dBFS) reported by new captures.
	CapturePower float64

	// PlaybackPower is the initial level (dBFS) reported by new playbacks.
	PlaybackPower float64

	// Artifact is written to the capture path on Stop. Defaults to
	// [DefaultArtifact].
	Artifact []byte

	// SkipArtifact suppresses writing the artifact on Stop, so that reading it
	// back fails.
	SkipArtifact bool

	// CloseErr is returned by Close.
	CloseErr error

	captures  []*Capture
	configs   []audio.CaptureConfig
	playbacks []*Playback
	payloads  [][]byte
	closes    int
}

// StartCapture implements [audio.Platform].
func (p *Platform) StartCapture(_ context.Context, cfg audio.CaptureConfig) (audio.Capture, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.configs = append(p.configs, cfg)
	if p.CaptureErr != nil {
		return nil, p.CaptureErr
	}
	artifact := p.Artifact
	if artifact == nil {
		artifact = DefaultArtifact
	}
	c := &Capture{
		path:     cfg.Path,
		artifact: artifact,
		skip:     p.SkipArtifact,
		power:    p.CapturePower,
		done:     make(chan struct{}),
	}
	p.captures = append(p.captures, c)
	return c, nil
}

// StartPlayback implements [audio.Platform].
func (p *Platform) StartPlayback(_ context.Context, wav []byte) (audio.Playback, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.payloads = append(p.payloads, wav)
	if p.PlaybackErr != nil {
		return nil, p.PlaybackErr
	}
	pb := &Playback{power: p.PlaybackPower, done: make(chan struct{})}
	p.playbacks = append(p.playbacks, pb)
	return pb, nil
}

// Close implements [audio.Platform].
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	return p.CloseErr
}

// Captures returns every capture handed out, in order.
func (p *Platform) Captures() []*Capture {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Capture(nil), p.captures...)
}

// CaptureConfigs returns the configuration of every StartCapture call,
// including failed ones.
func (p *Platform) CaptureConfigs() []audio.CaptureConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]audio.CaptureConfig(nil), p.configs...)
}

// LastCapture returns the most recent capture or nil.
func (p *Platform) LastCapture() *Capture {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.captures) == 0 {
		return nil
	}
	return p.captures[len(p.captures)-1]
}

// Playbacks returns every playback handed out, in order.
func (p *Platform) Playbacks() []*Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Playback(nil), p.playbacks...)
}

// Payloads returns the payload of every StartPlayback call, including failed
// ones.
func (p *Platform) Payloads() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.payloads...)
}

// LastPlayback returns the most recent playback or nil.
func (p *Platform) LastPlayback() *Playback {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.playbacks) == 0 {
		return nil
	}
	return p.playbacks[len(p.playbacks)-1]
}

// Live returns how many captures and playbacks are still running.
func (p *Platform) Live() (captures, playbacks int) {
	for _, c := range p.Captures() {
		if c.Active() {
			captures++
		}
	}
	for _, pb := range p.Playbacks() {
		if pb.Active() {
			playbacks++
		}
	}
	return captures, playbacks
}

// CloseCount returns how many times Close was called.
func (p *Platform) CloseCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture].
type Capture struct {
	mu       sync.Mutex
	path     string
	artifact []byte
	skip     bool
	power    float64
	powerErr error
	ended    bool
	err      error
	stops    int
	done     chan struct{}
}

// AveragePower implements [audio.Meter].
func (c *Capture) AveragePower() (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return 0, audio.ErrClosed
	}
	if c.powerErr != nil {
		return 0, c.powerErr
	}
	return c.power, nil
}

// Stop implements [audio.Capture]. The first call writes the artifact to the
// configured path.
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	if c.ended {
		return nil
	}
	c.ended = true
	close(c.done)
	if c.skip || c.path == "" {
		return nil
	}
	return os.WriteFile(c.path, c.artifact, 0o600)
}

// Done implements [audio.Capture].
func (c *Capture) Done() <-chan struct{} { return c.done }

// Err implements [audio.Capture].
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// SetPower changes the level reported by AveragePower.
func (c *Capture) SetPower(db float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.power = db
}

// SetPowerError makes AveragePower fail with err. Pass nil to clear.
func (c *Capture) SetPowerError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.powerErr = err
}

// End terminates the capture without Stop, as a device loss or permission
// revocation would. No artifact is written. A no-op once the capture ended.
func (c *Capture) End(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ended {
		return
	}
	c.ended = true
	c.err = err
	close(c.done)
}

// Active reports whether the capture is still running.
func (c *Capture) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.ended
}

// StopCount returns how many times Stop was called.
func (c *Capture) StopCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops
}

// ─── Playback ─────────────────────────────────────────────────────────────────

// Playback is a mock implementation of [audio.Playback].
type Playback struct {
	mu    sync.Mutex
	power float64
	ended bool
	err   error
	stops int
	done  chan struct{}
}

// AveragePower implements [audio.Meter].
func (pb *Playback) AveragePower() (float64, error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.ended {
		return 0, audio.ErrClosed
	}
	return pb.power, nil
}

// Stop implements [audio.Playback].
func (pb *Playback) Stop() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.stops++
	if !pb.ended {
		pb.ended = true
		close(pb.done)
	}
	return nil
}

// Done implements [audio.Playback].
func (pb *Playback) Done() <-chan struct{} { return pb.done }

// Err implements [audio.Playback].
func (pb *Playback) Err() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.err
}

// SetPower changes the level reported by AveragePower.
func (pb *Playback) SetPower(db float64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.power = db
}

// Finish ends playback as the device would: err nil for natural completion,
// non-nil for a decode or device failure. A no-op once playback ended.
func (pb *Playback) Finish(err error) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.ended {
		return
	}
	pb.ended = true
	pb.err = err
	close(pb.done)
}

// Active reports whether playback is still running.
func (pb *Playback) Active() bool {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return !pb.ended
}

// StopCount returns how many times Stop was called.
func (pb *Playback) StopCount() int {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.stops
}
