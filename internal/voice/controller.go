// Package voice implements the voice turn controller: it records an
// utterance, decides when the speaker has stopped, runs the transcribe, chat
// and synthesize pipeline and plays the answer back.
//
// All controller state is owned by the goroutine running [Controller.Run].
// Timer ticks, device notifications and pipeline completions are posted onto
// that goroutine; the exported commands block until it has applied them.
// At most one of recording, pipeline task and playback is live at any time,
// and every transition first tears down whatever the previous phase held.
package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/voiceturn/internal/observe"
	"github.com/MrWong99/voiceturn/pkg/audio"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// ErrNoAssistant is the cause of the Error phase when the controller was
// built without an assistant.
var ErrNoAssistant = errors.New("voice: no assistant")

// Controller drives voice turns. Create one with [New] and start it with
// [Controller.Run]. Its methods are safe for concurrent use.
type Controller struct {
	platform  audio.Platform
	assistant Assistant
	sched     Scheduler
	metrics   *observe.Metrics
	log       *slog.Logger
	now       func() time.Time

	loop      *loop
	running   atomic.Bool
	pipelines sync.WaitGroup

	// Published snapshots, readable from any goroutine.
	state atomic.Pointer[State]
	power atomic.Pointer[Sample]
	voice atomic.Pointer[tts.Voice]

	listenersMu sync.Mutex
	listeners   map[int]func(Transition)
	nextID      int

	// Owned by the loop goroutine.
	ctx      context.Context
	params   Params
	turnID   string
	detector silenceDetector
	rec      *recording
	task     *pipelineTask
	play     *playback
}

// Option configures a [Controller].
type Option func(*Controller)

// WithScheduler replaces the [TimeScheduler].
func WithScheduler(s Scheduler) Option {
	return func(c *Controller) { c.sched = s }
}

// WithParams sets the initial tuning. Invalid params are ignored in favour
// of [DefaultParams]; use [Params.Validate] beforehand.
func WithParams(p Params) Option {
	return func(c *Controller) {
		if p.Validate() == nil {
			c.params = p
		}
	}
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// WithVoice sets the initially selected voice.
func WithVoice(v tts.Voice) Option {
	return func(c *Controller) {
		if v.Valid() {
			c.voice.Store(&v)
		}
	}
}

// WithClock overrides time.Now for sample and transition timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// New builds a controller. A nil platform or assistant leaves it in the
// Error phase; every capture attempt will fail again until it is rebuilt.
func New(platform audio.Platform, assistant Assistant, opts ...Option) *Controller {
	c := &Controller{
		platform:  platform,
		assistant: assistant,
		sched:     TimeScheduler{},
		log:       slog.Default(),
		now:       time.Now,
		loop:      newLoop(),
		listeners: make(map[int]func(Transition)),
		params:    DefaultParams(),
		ctx:       context.Background(),
	}
	v := tts.DefaultVoice
	c.voice.Store(&v)
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}

	initial := State{Phase: Idle}
	switch {
	case platform == nil:
		initial = State{Phase: Error, Err: &ResourceError{Op: "init", Err: ErrNoPlatform}}
	case assistant == nil:
		initial = State{Phase: Error, Err: &ResourceError{Op: "init", Err: ErrNoAssistant}}
	}
	c.state.Store(&initial)
	c.power.Store(&Sample{})
	return c
}

// Run processes events until ctx is cancelled, then releases every live
// resource and waits for an in-flight pipeline to observe the cancellation.
// Commands issued before Run wait for it to start.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	c.ctx = ctx
	defer c.pipelines.Wait()
	defer close(c.loop.stopped)

	for {
		select {
		case fn := <-c.loop.events:
			fn()
		case <-ctx.Done():
			if c.State().Phase.busy() {
				c.reset()
				c.setState(State{Phase: Idle})
			}
			c.log.Debug("voice: controller stopped")
			return nil
		}
	}
}

// ─── commands ─────────────────────────────────────────────────────────────────

// StartCapture opens the microphone and starts listening for the end of
// speech. It returns [ErrBusy] while a turn is in progress. Device failures
// are not returned; they move the controller into the Error phase.
func (c *Controller) StartCapture() error {
	return c.loop.do(c.startCapture)
}

// FinishCapture ends the recording now instead of waiting for silence. It
// is a no-op unless recording.
func (c *Controller) FinishCapture() error {
	return c.loop.do(func() error {
		if c.rec != nil {
			c.finishCapture("explicit")
		}
		return nil
	})
}

// Cancel abandons the current turn and returns to Idle. It is a no-op in
// Idle and Error.
func (c *Controller) Cancel() error {
	return c.loop.do(func() error {
		if !c.State().Phase.busy() {
			return nil
		}
		c.log.Info("voice: turn cancelled", "turn_id", c.turnID, "phase", c.State().Phase)
		c.reset()
		c.metrics.RecordTurn(c.ctx, "cancelled")
		c.setState(State{Phase: Idle})
		return nil
	})
}

// Fail moves the controller into the Error phase with cause, tearing down
// any live turn.
func (c *Controller) Fail(cause error) error {
	if cause == nil {
		cause = errors.New("voice: unspecified failure")
	}
	return c.loop.do(func() error {
		c.reset()
		c.setState(State{Phase: Error, Err: cause})
		return nil
	})
}

// SelectVoice changes the voice used by the next synthesis, including one
// for a turn that is already processing.
func (c *Controller) SelectVoice(v tts.Voice) error {
	if !v.Valid() {
		return fmt.Errorf("voice: select %q: %w", v, tts.ErrUnknownVoice)
	}
	c.voice.Store(&v)
	return nil
}

// Reconfigure replaces the tuning from the next capture on.
func (c *Controller) Reconfigure(p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return c.loop.do(func() error {
		c.params = p
		return nil
	})
}

// ─── signals ──────────────────────────────────────────────────────────────────

// State returns the current state.
func (c *Controller) State() State { return *c.state.Load() }

// IsIdle reports whether the controller is in the Idle phase.
func (c *Controller) IsIdle() bool { return c.State().Phase == Idle }

// AudioPower returns the latest normalised level of the live capture or
// playback. It is zero between turns.
func (c *Controller) AudioPower() Sample { return *c.power.Load() }

// WaveformOpacity is 1 while audio is flowing and 0 otherwise.
func (c *Controller) WaveformOpacity() float64 {
	switch c.State().Phase {
	case RecordingSpeech, PlayingSpeech:
		return 1
	default:
		return 0
	}
}

// Voice returns the selected voice.
func (c *Controller) Voice() tts.Voice { return *c.voice.Load() }

// Subscribe registers fn for every transition and returns a function that
// removes it. Listeners run on the controller goroutine in registration
// order; they must return quickly and must not call controller commands.
func (c *Controller) Subscribe(fn func(Transition)) (unsubscribe func()) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// ─── loop-side handlers ───────────────────────────────────────────────────────

func (c *Controller) startCapture() error {
	if c.State().Phase.busy() {
		return ErrBusy
	}
	c.reset()
	c.turnID = uuid.NewString()

	if c.platform == nil {
		c.setState(State{Phase: Error, Err: &ResourceError{Op: "start capture", Err: ErrNoPlatform}})
		return nil
	}
	if c.assistant == nil {
		c.setState(State{Phase: Error, Err: &ResourceError{Op: "start capture", Err: ErrNoAssistant}})
		return nil
	}

	p := c.params
	capture, err := c.platform.StartCapture(c.ctx, p.Capture)
	if err != nil {
		c.log.Warn("voice: cannot start capture", "turn_id", c.turnID, "err", err)
		c.setState(State{Phase: Error, Err: &ResourceError{Op: "start capture", Err: err}})
		return nil
	}
	c.metrics.ResourceOpened(c.ctx, "capture")

	rec := &recording{turnID: c.turnID, capture: capture, path: p.Capture.Path, divisor: p.InputDivisor}
	c.detector = silenceDetector{previousThreshold: p.PreviousThreshold, currentThreshold: p.CurrentThreshold}
	rec.power = c.sched.Every(p.PowerInterval, func() {
		c.loop.post(func() { c.onCaptureTick(rec) })
	})
	rec.silence = c.sched.Every(p.SilenceInterval, func() {
		c.loop.post(func() { c.onSilenceTick(rec) })
	})
	c.rec = rec
	go c.watch(capture.Done(), func() { c.onCaptureEnded(rec) })

	c.setState(State{Phase: RecordingSpeech})
	return nil
}

func (c *Controller) onCaptureTick(rec *recording) {
	if c.rec != rec {
		return
	}
	c.sample(rec.capture, rec.divisor, &rec.ticks)
}

func (c *Controller) onSilenceTick(rec *recording) {
	if c.rec != rec {
		return
	}
	if c.detector.observe(c.AudioPower().Value) {
		c.finishCapture("silence")
	}
}

// onCaptureEnded handles a capture that ended without Stop.
func (c *Controller) onCaptureEnded(rec *recording) {
	if c.rec != rec {
		return
	}
	cause := rec.capture.Err()
	c.log.Warn("voice: recording ended unexpectedly", "turn_id", rec.turnID, "err", cause)
	c.reset()
	c.metrics.RecordTurn(c.ctx, "interrupted")
	if errors.Is(cause, audio.ErrPermissionDenied) {
		c.setState(State{Phase: Error, Err: &ResourceError{Op: "capture", Err: cause}})
		return
	}
	c.setState(State{Phase: Idle})
}

func (c *Controller) finishCapture(reason string) {
	rec := c.rec
	c.rec = nil
	c.metrics.ResourceClosed(c.ctx, "capture")
	artifact, err := rec.finish()
	c.reset()
	if err != nil {
		c.log.Error("voice: cannot finish recording", "turn_id", rec.turnID, "err", err)
		c.metrics.RecordTurn(c.ctx, "failed")
		c.setState(State{Phase: Error, Err: err})
		return
	}
	c.log.Info("voice: end of speech", "turn_id", rec.turnID, "reason", reason, "bytes", len(artifact))

	t := &pipelineTask{turnID: rec.turnID, started: c.now()}
	c.task = t
	c.setState(State{Phase: ProcessingSpeech})

	ctx := c.ctx
	c.pipelines.Add(1)
	go func() {
		defer c.pipelines.Done()
		speech, err := runPipeline(ctx, t, c.assistant, artifact, c.Voice)
		c.loop.post(func() { c.onPipelineDone(t, speech, err) })
	}()
}

func (c *Controller) onPipelineDone(t *pipelineTask, speech []byte, err error) {
	if c.task != t {
		c.log.Debug("voice: dropped stale pipeline result", "turn_id", t.turnID)
		return
	}
	c.task = nil
	c.reset()

	switch {
	case errors.Is(err, ErrCancelled):
		c.setState(State{Phase: Idle})
		return
	case err != nil:
		c.log.Error("voice: turn failed", "turn_id", t.turnID, "err", err)
		c.metrics.RecordTurn(c.ctx, "failed")
		c.setState(State{Phase: Error, Err: err})
		return
	}
	c.metrics.TurnDuration.Record(c.ctx, c.now().Sub(t.started).Seconds())
	c.startPlayback(speech)
}

// startPlayback hands synthesised speech to the platform. A device failure
// ends the turn quietly.
func (c *Controller) startPlayback(speech []byte) {
	res, err := c.platform.StartPlayback(c.ctx, speech)
	if err != nil {
		c.log.Warn("voice: cannot start playback", "turn_id", c.turnID, "err", err)
		c.metrics.RecordTurn(c.ctx, "playback_failed")
		c.setState(State{Phase: Idle})
		return
	}
	c.metrics.ResourceOpened(c.ctx, "playback")

	pb := &playback{turnID: c.turnID, res: res, divisor: c.params.OutputDivisor}
	pb.power = c.sched.Every(c.params.PowerInterval, func() {
		c.loop.post(func() { c.onPlaybackTick(pb) })
	})
	c.play = pb
	go c.watch(res.Done(), func() { c.onPlaybackEnded(pb) })

	c.setState(State{Phase: PlayingSpeech})
}

func (c *Controller) onPlaybackTick(pb *playback) {
	if c.play != pb {
		return
	}
	c.sample(pb.res, pb.divisor, &pb.ticks)
}

// onPlaybackEnded handles natural completion, successful or not.
func (c *Controller) onPlaybackEnded(pb *playback) {
	if c.play != pb {
		return
	}
	outcome := "played"
	if err := pb.res.Err(); err != nil {
		c.log.Warn("voice: playback failed", "turn_id", pb.turnID, "err", err)
		outcome = "playback_failed"
	}
	c.reset()
	c.metrics.RecordTurn(c.ctx, outcome)
	c.setState(State{Phase: Idle})
}

// ─── helpers ──────────────────────────────────────────────────────────────────

// sample reads one level from m. Closed or failing meters are skipped.
func (c *Controller) sample(m audio.Meter, divisor float64, ticks *int) {
	raw, err := m.AveragePower()
	if err != nil {
		return
	}
	*ticks++
	c.power.Store(&Sample{Value: normalize(raw, divisor), Tick: *ticks, At: c.now()})
}

// watch posts fn once done closes, unless the loop has exited.
func (c *Controller) watch(done <-chan struct{}, fn func()) {
	select {
	case <-done:
		c.loop.post(fn)
	case <-c.loop.stopped:
	}
}

// reset releases every live resource. It is idempotent.
func (c *Controller) reset() {
	if r := c.rec; r != nil {
		c.rec = nil
		r.cancel()
		c.metrics.ResourceClosed(c.ctx, "capture")
	}
	if t := c.task; t != nil {
		c.task = nil
		t.cancel()
	}
	if p := c.play; p != nil {
		c.play = nil
		p.stop()
		c.metrics.ResourceClosed(c.ctx, "playback")
	}
	c.detector.reset()
	c.power.Store(&Sample{})
}

// setState is the only writer of the published state.
func (c *Controller) setState(to State) {
	from := c.State()
	c.state.Store(&to)
	c.metrics.RecordTransition(c.ctx, from.Phase.String(), to.Phase.String())

	tr := Transition{From: from, To: to, TurnID: c.turnID, At: c.now()}
	c.listenersMu.Lock()
	fns := make([]func(Transition), 0, len(c.listeners))
	for id := 0; id < c.nextID; id++ {
		if fn, ok := c.listeners[id]; ok {
			fns = append(fns, fn)
		}
	}
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn(tr)
	}
}

// PowerGauge adapts [Controller.AudioPower] to a plain float source.
func (c *Controller) PowerGauge() float64 { return c.AudioPower().Value }
