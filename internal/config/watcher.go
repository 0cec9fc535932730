package config

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"
)

// revision identifies one version of the watched file. A new mtime with the
// same digest is a touch, not an edit.
type revision struct {
	modTime time.Time
	digest  [sha256.Size]byte
}

// Watcher polls a config file and hands each valid edit to a callback along
// with the config it replaces. Edits that fail to load are logged and the
// last good config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	current atomic.Pointer[Config]
	cancel  context.CancelFunc
	done    chan struct{}
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often the file is checked. Default 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads path and polls it until [Watcher.Stop]. onChange runs on
// the polling goroutine and may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{path: path, interval: 5 * time.Second, onChange: onChange, done: make(chan struct{})}
	for _, opt := range opts {
		opt(w)
	}

	cfg, rev, err := w.load()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current.Store(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.run(ctx, rev)
	return w, nil
}

// Current returns the last config that loaded successfully.
func (w *Watcher) Current() *Config { return w.current.Load() }

// Stop ends polling and waits for a running onChange to return. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.cancel()
	<-w.done
}

func (w *Watcher) run(ctx context.Context, last revision) {
	defer close(w.done)
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			last = w.poll(last)
		}
	}
}

// poll reloads the file when its mtime moved and returns the revision to
// compare against next time. A broken edit keeps the last good digest but
// its mtime, so it is parsed only once.
func (w *Watcher) poll(last revision) revision {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: stat failed", "path", w.path, "err", err)
		return last
	}
	if info.ModTime().Equal(last.modTime) {
		return last
	}

	cfg, rev, err := w.load()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		if rev.modTime.IsZero() {
			return last
		}
		return revision{modTime: rev.modTime, digest: last.digest}
	}
	if rev.digest == last.digest {
		return rev
	}

	old := w.current.Swap(cfg)
	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
	return rev
}

// load reads and validates the file. The returned revision is filled in as
// far as reading got, even on a validation error.
func (w *Watcher) load() (*Config, revision, error) {
	var rev revision
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, rev, err
	}
	rev.modTime = info.ModTime()
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, rev, err
	}
	rev.digest = sha256.Sum256(data)
	cfg, err := LoadFromReader(bytes.NewReader(data))
	return cfg, rev, err
}
