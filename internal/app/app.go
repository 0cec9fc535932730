// Package app wires all voiceturn subsystems into a running application.
//
// The App struct owns the full lifecycle: New connects the provider fallback
// chains, the assistant client and the turn controller, Run executes the
// controller loop and the diagnostics server, and Shutdown tears everything
// down in order.
//
// For testing, inject mock providers through [Providers] and a fake scheduler
// via [WithScheduler].
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voiceturn/internal/assistant"
	"github.com/MrWong99/voiceturn/internal/config"
	"github.com/MrWong99/voiceturn/internal/health"
	"github.com/MrWong99/voiceturn/internal/observe"
	"github.com/MrWong99/voiceturn/internal/resilience"
	"github.com/MrWong99/voiceturn/internal/voice"
	"github.com/MrWong99/voiceturn/pkg/audio"
	"github.com/MrWong99/voiceturn/pkg/provider/llm"
	"github.com/MrWong99/voiceturn/pkg/provider/stt"
	"github.com/MrWong99/voiceturn/pkg/provider/tts"
)

// readHeaderTimeout bounds request header reads on the diagnostics server.
const readHeaderTimeout = 5 * time.Second

// Named pairs a provider with the config name it was created from.
type Named[T any] struct {
	Name     string
	Provider T
}

// Providers holds the constructed provider chains. The first entry of each
// slice is the primary; the rest are fallbacks in configured order. Populated
// by main.go via the config registry.
type Providers struct {
	STT   []Named[stt.Provider]
	LLM   []Named[llm.Provider]
	TTS   []Named[tts.Provider]
	Audio audio.Platform
}

// App owns all subsystem lifetimes.
type App struct {
	metrics *observe.Metrics
	level   *slog.LevelVar
	sched   voice.Scheduler

	stt        *resilience.STTFallback
	llm        *resilience.LLMFallback
	tts        *resilience.TTSFallback
	assistant  *assistant.Client
	controller *voice.Controller

	server *http.Server

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of a handler built
// by the caller.
func WithLevelVar(lv *slog.LevelVar) Option {
	return func(a *App) { a.level = lv }
}

// WithScheduler replaces the controller's wall-clock scheduler.
func WithScheduler(s voice.Scheduler) Option {
	return func(a *App) { a.sched = s }
}

// New wires the providers into fallback groups, builds the assistant client
// and the turn controller, and prepares the diagnostics server when
// cfg.Server.DiagnosticsAddr is set. Nothing is started until Run.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if len(providers.STT) == 0 || len(providers.LLM) == 0 || len(providers.TTS) == 0 {
		return nil, errors.New("app: stt, llm and tts providers are required")
	}

	a := &App{}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// The assistant overrides AttemptTimeout per call with its live
	// settings; the configured value bounds the diagnostic voice listing.
	fbCfg := resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			MaxFailures:  cfg.Resilience.MaxFailures,
			ResetTimeout: cfg.Resilience.ResetTimeout,
			HalfOpenMax:  cfg.Resilience.HalfOpenMax,
		},
		AttemptTimeout: cfg.Assistant.StageTimeout,
	}
	a.stt = resilience.NewSTTFallback(providers.STT[0].Provider, providers.STT[0].Name, fbCfg)
	for _, p := range providers.STT[1:] {
		a.stt.AddFallback(p.Name, p.Provider)
	}
	a.llm = resilience.NewLLMFallback(providers.LLM[0].Provider, providers.LLM[0].Name, fbCfg)
	for _, p := range providers.LLM[1:] {
		a.llm.AddFallback(p.Name, p.Provider)
	}
	a.tts = resilience.NewTTSFallback(providers.TTS[0].Provider, providers.TTS[0].Name, fbCfg)
	for _, p := range providers.TTS[1:] {
		a.tts.AddFallback(p.Name, p.Provider)
	}

	client, err := assistant.New(a.stt, a.llm, a.tts,
		assistant.WithSettings(settingsFrom(cfg.Assistant)),
		assistant.WithNames(assistant.Names{
			STT: providers.STT[0].Name,
			LLM: providers.LLM[0].Name,
			TTS: providers.TTS[0].Name,
		}),
		assistant.WithMetrics(a.metrics),
	)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.assistant = client

	if providers.Audio == nil {
		slog.Warn("no audio platform configured, the controller starts in the error phase")
	} else {
		a.closers = append(a.closers, providers.Audio.Close)
	}

	copts := []voice.Option{
		voice.WithParams(config.TurnParams(cfg.Turn)),
		voice.WithVoice(tts.Voice(cfg.Assistant.Voice)),
		voice.WithMetrics(a.metrics),
	}
	if a.sched != nil {
		copts = append(copts, voice.WithScheduler(a.sched))
	}
	a.controller = voice.New(providers.Audio, client, copts...)

	unsubscribe := a.controller.Subscribe(logTransition)
	a.closers = append(a.closers, func() error { unsubscribe(); return nil })

	unobserve, err := a.metrics.ObservePower(a.controller.PowerGauge)
	if err != nil {
		slog.Warn("failed to register audio power gauge", "err", err)
	} else {
		a.closers = append(a.closers, unobserve)
	}

	if addr := cfg.Server.DiagnosticsAddr; addr != "" {
		a.server = &http.Server{
			Addr:              addr,
			Handler:           a.Handler(),
			ReadHeaderTimeout: readHeaderTimeout,
			BaseContext:       func(net.Listener) context.Context { return ctx },
		}
	}
	return a, nil
}

// Controller returns the turn controller.
func (a *App) Controller() *voice.Controller { return a.controller }

// Assistant returns the assistant client.
func (a *App) Assistant() *assistant.Client { return a.assistant }

// BackendVoices lists the voices of the first healthy synthesis backend.
func (a *App) BackendVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return a.tts.ListVoices(ctx)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the controller loop and the diagnostics server and blocks until
// ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.controller.Run(gctx); err != nil {
			return fmt.Errorf("app: controller: %w", err)
		}
		return nil
	})

	if a.server != nil {
		g.Go(func() error {
			slog.Info("diagnostics server listening", "addr", a.server.Addr)
			if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("app: diagnostics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), readHeaderTimeout)
			defer cancel()
			return a.server.Shutdown(sctx)
		})
	}

	slog.Info("app running", "state", a.controller.State().String(), "voice", a.controller.Voice())
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

// ApplyConfig applies the live-reloadable parts of the difference between old
// and updated. Sections that need a restart are logged and left alone.
func (a *App) ApplyConfig(old, updated *config.Config) error {
	d := config.Diff(old, updated)
	if d.Empty() {
		return nil
	}

	var errs []error
	if d.LogLevelChanged {
		if a.level != nil {
			a.level.Set(d.NewLogLevel.Slog())
			slog.Info("log level changed", "level", d.NewLogLevel)
		} else {
			slog.Warn("log level change ignored, no level var configured", "level", d.NewLogLevel)
		}
	}
	if d.VoiceChanged {
		if err := a.controller.SelectVoice(tts.Voice(d.NewVoice)); err != nil {
			errs = append(errs, err)
		} else {
			slog.Info("voice changed", "voice", d.NewVoice)
		}
	}
	if d.AssistantChanged {
		a.assistant.Update(settingsFrom(updated.Assistant))
		slog.Info("assistant settings updated")
	}
	if d.TurnChanged {
		if err := a.controller.Reconfigure(config.TurnParams(updated.Turn)); err != nil {
			errs = append(errs, err)
		} else {
			slog.Info("turn parameters updated, effective from the next turn")
		}
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes require a restart to take effect", "sections", d.RestartRequired)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: apply config: %w", err)
	}
	return nil
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases every subsystem. It respects the context deadline: if ctx
// expires before all closers finish, remaining closers are skipped and the
// context error is returned. Call it after Run has returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		if a.server != nil {
			if err := a.server.Shutdown(ctx); err != nil {
				slog.Warn("diagnostics server shutdown error", "err", err)
			}
		}

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

// settingsFrom converts the assistant config section to client settings.
func settingsFrom(c config.AssistantConfig) assistant.Settings {
	return assistant.Settings{
		SystemPrompt: c.SystemPrompt,
		Temperature:  c.Temperature,
		MaxTokens:    c.MaxTokens,
		Language:     c.Language,
		StageTimeout: c.StageTimeout,
	}
}

func logTransition(t voice.Transition) {
	attrs := []any{"from", t.From.Phase.String(), "to", t.To.Phase.String()}
	if t.TurnID != "" {
		attrs = append(attrs, "turn_id", t.TurnID)
	}
	if t.To.Err != nil {
		slog.Error("voice state changed", append(attrs, "err", t.To.Err)...)
		return
	}
	slog.Info("voice state changed", attrs...)
}

// Handler returns the diagnostics routes wrapped in the observability
// middleware: /metrics, /healthz, /readyz, /state and /voices.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	health.New(a.checkers()...).Register(mux)
	mux.HandleFunc("GET /state", a.serveState)
	mux.HandleFunc("GET /voices", a.serveVoices)
	return observe.Middleware(a.metrics)(mux)
}
