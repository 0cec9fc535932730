package voice

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	assistantmock "github.com/MrWong99/voiceturn/internal/assistant/mock"
	"github.com/MrWong99/voiceturn/internal/observe"
	audiomock "github.com/MrWong99/voiceturn/pkg/audio/mock"
)

// fakeScheduler hands out tickers that only fire when the test says so.
type fakeScheduler struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

type fakeTicker struct {
	interval time.Duration
	fn       func()

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
}

func (t *fakeTicker) live() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.stopped
}

func (s *fakeScheduler) Every(interval time.Duration, fn func()) Ticker {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTicker{interval: interval, fn: fn}
	s.tickers = append(s.tickers, t)
	return t
}

// fire invokes every live ticker with the given interval.
func (s *fakeScheduler) fire(interval time.Duration) {
	s.mu.Lock()
	ts := slices.Clone(s.tickers)
	s.mu.Unlock()
	for _, t := range ts {
		if t.interval == interval && t.live() {
			t.fn()
		}
	}
}

func (s *fakeScheduler) live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tickers {
		if t.live() {
			n++
		}
	}
	return n
}

type harness struct {
	t         *testing.T
	c         *Controller
	platform  *audiomock.Platform
	assistant *assistantmock.Assistant
	sched     *fakeScheduler
	params    Params

	mu          sync.Mutex
	transitions []Transition
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:         t,
		platform:  &audiomock.Platform{CapturePower: -60, PlaybackPower: -40},
		assistant: &assistantmock.Assistant{Transcript: "what time is it", Reply: "half past four", Speech: []byte("speech")},
		sched:     &fakeScheduler{},
	}
	h.params = DefaultParams()
	h.params.Capture.Path = filepath.Join(t.TempDir(), "recording.wav")
	h.start(h.platform, opts...)
	return h
}

func (h *harness) start(platform *audiomock.Platform, opts ...Option) {
	h.t.Helper()
	metrics, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		h.t.Fatalf("NewMetrics: %v", err)
	}
	base := []Option{WithScheduler(h.sched), WithParams(h.params), WithMetrics(metrics)}
	if platform == nil {
		h.c = New(nil, h.assistant, append(base, opts...)...)
	} else {
		h.c = New(platform, h.assistant, append(base, opts...)...)
	}
	h.c.Subscribe(func(tr Transition) {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.transitions = append(h.transitions, tr)
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil {
			h.t.Errorf("Run: %v", err)
		}
	})
}

// sync waits until every event posted so far has been handled.
func (h *harness) sync() {
	h.t.Helper()
	if err := h.c.loop.do(func() error { return nil }); err != nil {
		h.t.Fatalf("sync: %v", err)
	}
}

// settle waits for in-flight pipelines and the events they posted.
func (h *harness) settle() {
	h.t.Helper()
	h.c.pipelines.Wait()
	h.sync()
}

func (h *harness) fire(interval time.Duration) {
	h.t.Helper()
	h.sched.fire(interval)
	h.sync()
}

// setLevel makes the live capture report a level that normalises to v.
func (h *harness) setLevel(v float64) {
	h.t.Helper()
	h.platform.LastCapture().SetPower(-(1 - v) * h.params.InputDivisor)
}

func (h *harness) mustStart() {
	h.t.Helper()
	if err := h.c.StartCapture(); err != nil {
		h.t.Fatalf("StartCapture: %v", err)
	}
	h.wantPhase(RecordingSpeech)
}

func (h *harness) wantPhase(want Phase) {
	h.t.Helper()
	if got := h.c.State(); got.Phase != want {
		h.t.Fatalf("state = %s, want %s", got, want)
	}
}

// waitFor polls cond until it holds or a deadline passes.
func (h *harness) waitFor(what string, cond func() bool) {
	h.t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			h.t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func (h *harness) phases() []Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Phase, len(h.transitions))
	for i, tr := range h.transitions {
		out[i] = tr.To.Phase
	}
	return out
}

func (h *harness) lastTransition() Transition {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.transitions[len(h.transitions)-1]
}

// resources reports which turn resources the loop currently holds.
func (h *harness) resources() (rec, task, play bool) {
	h.t.Helper()
	_ = h.c.loop.do(func() error {
		rec, task, play = h.c.rec != nil, h.c.task != nil, h.c.play != nil
		return nil
	})
	return rec, task, play
}
