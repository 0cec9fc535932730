package voice

// loop serialises every state mutation onto the goroutine running
// Controller.Run.
type loop struct {
	events  chan func()
	stopped chan struct{}
}

func newLoop() *loop {
	return &loop{
		events:  make(chan func(), 64),
		stopped: make(chan struct{}),
	}
}

// post queues fn without waiting for it. It reports false if the loop has
// already exited.
func (l *loop) post(fn func()) bool {
	select {
	case l.events <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// do runs fn on the loop and waits for its result.
func (l *loop) do(fn func() error) error {
	errc := make(chan error, 1)
	if !l.post(func() { errc <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-errc:
		return err
	case <-l.stopped:
		// The loop may have run fn just before exiting.
		select {
		case err := <-errc:
			return err
		default:
			return ErrStopped
		}
	}
}
