package voice

import (
	"sync"
	"time"
)

// Ticker is a running periodic timer.
type Ticker interface {
	// Stop cancels the timer. It does not wait for a callback already in
	// progress and is safe to call more than once.
	Stop()
}

// Scheduler starts periodic timers. The controller wraps every fn so that it
// only posts an event onto its loop; fn never touches controller state
// directly.
type Scheduler interface {
	Every(interval time.Duration, fn func()) Ticker
}

// TimeScheduler is the production [Scheduler] backed by [time.Ticker].
type TimeScheduler struct{}

// Every implements [Scheduler].
func (TimeScheduler) Every(interval time.Duration, fn func()) Ticker {
	t := &timeTicker{t: time.NewTicker(interval), stop: make(chan struct{})}
	go t.run(fn)
	return t
}

type timeTicker struct {
	t    *time.Ticker
	once sync.Once
	stop chan struct{}
}

func (t *timeTicker) run(fn func()) {
	for {
		select {
		case <-t.t.C:
			fn()
		case <-t.stop:
			return
		}
	}
}

func (t *timeTicker) Stop() {
	t.once.Do(func() {
		t.t.Stop()
		close(t.stop)
	})
}
