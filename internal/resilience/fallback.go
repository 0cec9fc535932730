package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrAllFailed is returned when every entry in a [FallbackGroup] failed or had
// an open circuit breaker. The last underlying error is wrapped alongside it.
var ErrAllFailed = errors.New("all providers failed")

// FallbackConfig configures the breaker created for each entry of a
// [FallbackGroup]. CircuitBreaker.Name is overwritten with the entry name.
type FallbackConfig struct {
	CircuitBreaker CircuitBreakerConfig

	// AttemptTimeout bounds each entry's call, so a hung backend leaves the
	// rest of the caller's budget to the next entry. A timed out attempt
	// counts as a failure. Zero leaves attempts bounded only by the caller's
	// context. [WithAttemptTimeout] overrides it per call.
	AttemptTimeout time.Duration
}

type (
	attemptTimeoutKey struct{}
	attemptsKey       struct{}
)

// WithAttemptTimeout returns a context under which every fallback attempt is
// bounded by d instead of the group's configured AttemptTimeout. A d of zero
// or less removes the bound.
func WithAttemptTimeout(ctx context.Context, d time.Duration) context.Context {
	return context.WithValue(ctx, attemptTimeoutKey{}, d)
}

// Attempt is one entry called by [ExecuteWithResult]. Err is nil for the
// entry that served the call.
type Attempt struct {
	Name string
	Err  error
}

type attemptLog struct {
	mu   sync.Mutex
	list []Attempt
}

func (l *attemptLog) add(name string, err error) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.list = append(l.list, Attempt{Name: name, Err: err})
	l.mu.Unlock()
}

// TrackAttempts returns a context under which [ExecuteWithResult] records the
// entries it calls, and a function that reports them in call order. Entries
// skipped because their breaker is open are not recorded.
func TrackAttempts(ctx context.Context) (context.Context, func() []Attempt) {
	l := &attemptLog{}
	return context.WithValue(ctx, attemptsKey{}, l), func() []Attempt {
		l.mu.Lock()
		defer l.mu.Unlock()
		return append([]Attempt(nil), l.list...)
	}
}

type fallbackEntry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker
}

// FallbackGroup holds a primary and zero or more fallback instances of one
// provider type. Calls go to the first entry whose breaker admits them; on
// failure the next entry is tried in registration order.
//
// Entries must be registered before the group is shared between goroutines.
type FallbackGroup[T any] struct {
	entries []fallbackEntry[T]
	cfg     FallbackConfig
}

// NewFallbackGroup creates a [FallbackGroup] with primary as the first entry.
func NewFallbackGroup[T any](primary T, primaryName string, cfg FallbackConfig) *FallbackGroup[T] {
	fg := &FallbackGroup[T]{cfg: cfg}
	fg.AddFallback(primaryName, primary)
	return fg
}

// AddFallback appends an entry that is tried after all previously added ones.
func (fg *FallbackGroup[T]) AddFallback(name string, fallback T) {
	cbCfg := fg.cfg.CircuitBreaker
	cbCfg.Name = name
	fg.entries = append(fg.entries, fallbackEntry[T]{
		name:    name,
		value:   fallback,
		breaker: NewCircuitBreaker(cbCfg),
	})
}

// Len returns the number of entries.
func (fg *FallbackGroup[T]) Len() int { return len(fg.entries) }

// Primary returns the first entry's value.
func (fg *FallbackGroup[T]) Primary() T { return fg.entries[0].value }

// EntryStatus is a point-in-time view of one entry's breaker.
type EntryStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Status reports the breaker state of every entry in order.
func (fg *FallbackGroup[T]) Status() []EntryStatus {
	out := make([]EntryStatus, len(fg.entries))
	for i, e := range fg.entries {
		out[i] = EntryStatus{Name: e.name, State: e.breaker.State().String()}
	}
	return out
}

// Execute calls fn for each entry until one succeeds. It stops early, returning
// ctx's error, once ctx is done or fn reports a cancellation.
func (fg *FallbackGroup[T]) Execute(ctx context.Context, fn func(context.Context, T) error) error {
	_, err := ExecuteWithResult(ctx, fg, func(ctx context.Context, v T) (struct{}, error) {
		return struct{}{}, fn(ctx, v)
	})
	return err
}

// ExecuteWithResult is [FallbackGroup.Execute] for calls that produce a value.
// It is a function because methods cannot declare type parameters. fn receives
// the attempt's context, which carries the attempt timeout.
func ExecuteWithResult[T, R any](ctx context.Context, fg *FallbackGroup[T], fn func(context.Context, T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error
	)
	timeout := fg.cfg.AttemptTimeout
	if d, ok := ctx.Value(attemptTimeoutKey{}).(time.Duration); ok {
		timeout = d
	}
	tried, _ := ctx.Value(attemptsKey{}).(*attemptLog)

	for i := range fg.entries {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		entry := &fg.entries[i]
		var result R
		err := entry.breaker.Execute(func() error {
			actx, cancel := ctx, context.CancelFunc(func() {})
			if timeout > 0 {
				actx, cancel = context.WithTimeout(ctx, timeout)
			}
			defer cancel()
			var callErr error
			result, callErr = fn(actx, entry.value)
			if callErr != nil && ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
				callErr = fmt.Errorf("attempt timed out after %s: %w", timeout, callErr)
			}
			return callErr
		})
		if err == nil {
			tried.add(entry.name, nil)
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider, circuit open", "provider", entry.name)
			continue
		}
		tried.add(entry.name, err)
		if IsCancellation(err) {
			return zero, err
		}
		if i < len(fg.entries)-1 {
			slog.Warn("provider failed, trying next", "provider", entry.name, "err", err)
		}
	}
	return zero, fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
