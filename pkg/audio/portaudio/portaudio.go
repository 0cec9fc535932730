// Package portaudio implements [audio.Platform] on the host's default input and
// output devices using the PortAudio C library (CGO). libportaudio and its
// headers must be available at build time.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"github.com/MrWong99/voiceturn/pkg/audio"
	pa "github.com/gordonklaus/portaudio"
)

// Compile-time assertion that Platform satisfies audio.Platform.
var _ audio.Platform = (*Platform)(nil)

// Platform is an [audio.Platform] backed by PortAudio. Create one with [New]
// and release it with Close.
type Platform struct {
	bufferMs int

	mu     sync.Mutex
	closed bool
}

// Option is a functional option for [New].
type Option func(*Platform)

// WithBufferMs sets the duration of one device buffer in milliseconds. Level
// readings refresh once per buffer. Defaults to 50.
func WithBufferMs(ms int) Option {
	return func(p *Platform) {
		if ms > 0 {
			p.bufferMs = ms
		}
	}
}

// New initialises PortAudio.
func New(opts ...Option) (*Platform, error) {
	p := &Platform{bufferMs: 50}
	for _, o := range opts {
		o(p)
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio: initialize: %w", err)
	}
	return p, nil
}

// Close terminates PortAudio. Safe to call more than once.
func (p *Platform) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return pa.Terminate()
}

func (p *Platform) framesPerBuffer(rate int) int {
	return max(1, rate*p.bufferMs/1000)
}

// StartCapture implements [audio.Platform]. The WAV artifact at cfg.Path is
// created (or truncated) immediately and finalised by Stop.
func (p *Platform) StartCapture(_ context.Context, cfg audio.CaptureConfig) (audio.Capture, error) {
	if cfg.SampleRate <= 0 || cfg.Channels <= 0 {
		return nil, fmt.Errorf("portaudio: invalid capture format %dHz/%dch", cfg.SampleRate, cfg.Channels)
	}
	f, err := os.Create(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("portaudio: create artifact: %w", err)
	}

	frames := p.framesPerBuffer(cfg.SampleRate)
	buf := make([]int16, frames*cfg.Channels)
	stream, err := pa.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), frames, buf)
	if err == nil {
		err = stream.Start()
		if err != nil {
			_ = stream.Close()
		}
	}
	if err != nil {
		_ = f.Close()
		_ = os.Remove(cfg.Path)
		return nil, fmt.Errorf("portaudio: open input: %w", classify(err))
	}

	c := &capture{
		stream: stream,
		buf:    buf,
		file:   f,
		wav:    audio.NewWAVWriter(f, cfg.SampleRate, cfg.Channels),
		done:   make(chan struct{}),
	}
	c.level.Store(math.Float64bits(audio.SilenceFloorDB))
	go c.run()
	return c, nil
}

// StartPlayback implements [audio.Platform]. The payload is played at its own
// sample rate and channel count.
func (p *Platform) StartPlayback(_ context.Context, wav []byte) (audio.Playback, error) {
	pcm, err := audio.DecodeWAV(wav)
	if err != nil {
		return nil, fmt.Errorf("portaudio: %w", err)
	}
	if pcm.SampleRate <= 0 || pcm.Channels <= 0 {
		return nil, fmt.Errorf("portaudio: invalid playback format %s", pcm)
	}
	frames := p.framesPerBuffer(pcm.SampleRate)
	buf := make([]int16, frames*pcm.Channels)
	stream, err := pa.OpenDefaultStream(0, pcm.Channels, float64(pcm.SampleRate), frames, buf)
	if err == nil {
		err = stream.Start()
		if err != nil {
			_ = stream.Close()
		}
	}
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output: %w", classify(err))
	}

	pb := &playback{
		stream:  stream,
		buf:     buf,
		samples: pcm.Samples,
		done:    make(chan struct{}),
	}
	pb.level.Store(math.Float64bits(audio.SilenceFloorDB))
	go pb.run()
	return pb, nil
}

// classify maps PortAudio errors that indicate the host refused device access
// onto [audio.ErrPermissionDenied].
func classify(err error) error {
	var paErr pa.Error
	if errors.As(err, &paErr) && paErr == pa.DeviceUnavailable {
		return fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	return err
}

// ─── capture ──────────────────────────────────────────────────────────────────

type capture struct {
	stream *pa.Stream
	buf    []int16
	file   *os.File
	wav    *audio.WAVWriter

	level    atomic.Uint64 // math.Float64bits of the last dBFS reading
	stopping atomic.Bool
	done     chan struct{}

	// Written by run before done is closed.
	cause    error
	flushErr error
}

func (c *capture) run() {
	defer close(c.done)
	samples := make([]int, len(c.buf))
	for !c.stopping.Load() {
		if err := c.stream.Read(); err != nil && !errors.Is(err, pa.InputOverflowed) {
			c.cause = classify(err)
			slog.Warn("portaudio: capture ended", "err", err)
			break
		}
		for i, s := range c.buf {
			samples[i] = int(s)
		}
		if err := c.wav.Write(samples); err != nil {
			c.cause = fmt.Errorf("portaudio: write artifact: %w", err)
			break
		}
		c.level.Store(math.Float64bits(audio.PowerDB(samples)))
	}
	c.flushErr = errors.Join(
		c.stream.Stop(),
		c.stream.Close(),
		c.wav.Close(),
		c.file.Close(),
	)
}

func (c *capture) AveragePower() (float64, error) {
	select {
	case <-c.done:
		return 0, audio.ErrClosed
	default:
		return math.Float64frombits(c.level.Load()), nil
	}
}

// Stop blocks until the current device buffer is drained and the artifact is
// finalised.
func (c *capture) Stop() error {
	if c.stopping.Swap(true) {
		<-c.done
		return nil
	}
	<-c.done
	if c.flushErr != nil {
		return fmt.Errorf("portaudio: finalise capture: %w", c.flushErr)
	}
	return nil
}

func (c *capture) Done() <-chan struct{} { return c.done }

func (c *capture) Err() error {
	select {
	case <-c.done:
		return c.cause
	default:
		return nil
	}
}

// ─── playback ─────────────────────────────────────────────────────────────────

type playback struct {
	stream  *pa.Stream
	buf     []int16
	samples []int

	level    atomic.Uint64
	stopping atomic.Bool
	done     chan struct{}

	cause error
}

func (pb *playback) run() {
	defer close(pb.done)
	for off := 0; off < len(pb.samples) && !pb.stopping.Load(); off += len(pb.buf) {
		chunk := pb.samples[off:min(off+len(pb.buf), len(pb.samples))]
		for i := range pb.buf {
			if i < len(chunk) {
				pb.buf[i] = int16(chunk[i])
			} else {
				pb.buf[i] = 0
			}
		}
		pb.level.Store(math.Float64bits(audio.PowerDB(chunk)))
		if err := pb.stream.Write(); err != nil && !errors.Is(err, pa.OutputUnderflowed) {
			pb.cause = fmt.Errorf("portaudio: write output: %w", err)
			break
		}
	}
	if err := errors.Join(pb.stream.Stop(), pb.stream.Close()); err != nil && pb.cause == nil && !pb.stopping.Load() {
		pb.cause = fmt.Errorf("portaudio: close output: %w", err)
	}
}

func (pb *playback) AveragePower() (float64, error) {
	select {
	case <-pb.done:
		return 0, audio.ErrClosed
	default:
		return math.Float64frombits(pb.level.Load()), nil
	}
}

func (pb *playback) Stop() error {
	pb.stopping.Store(true)
	<-pb.done
	return nil
}

func (pb *playback) Done() <-chan struct{} { return pb.done }

func (pb *playback) Err() error {
	select {
	case <-pb.done:
		if pb.stopping.Load() {
			return nil
		}
		return pb.cause
	default:
		return nil
	}
}
