package docstore

import (
	"context"
	"sync"
)

// Feed serialises listener delivery for one subscription. Backends call
// Notify whenever something may have changed; the feed coalesces bursts and
// runs refresh on its own goroutine so a listener is never invoked concurrently.
type Feed struct {
	ctx     context.Context
	cancel  context.CancelFunc
	trigger chan struct{}
	errs    chan error
	done    chan struct{}
	once    sync.Once

	mu      sync.Mutex
	stopped bool
	onStop  func()
}

// NewFeed starts a feed. refresh runs once immediately and after every Notify;
// onErr receives errors reported through Fail.
func NewFeed(ctx context.Context, refresh func(context.Context), onErr func(error)) *Feed {
	runCtx, cancel := context.WithCancel(ctx)
	f := &Feed{
		ctx:     runCtx,
		cancel:  cancel,
		trigger: make(chan struct{}, 1),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	go f.loop(refresh, onErr)
	return f
}

func (f *Feed) loop(refresh func(context.Context), onErr func(error)) {
	defer close(f.done)
	refresh(f.ctx)
	for {
		select {
		case <-f.ctx.Done():
			return
		case <-f.trigger:
			if f.ctx.Err() != nil {
				return
			}
			refresh(f.ctx)
		case err := <-f.errs:
			if f.ctx.Err() != nil {
				return
			}
			if onErr != nil {
				onErr(err)
			}
		}
	}
}

// Notify schedules a refresh. Calls made while a refresh is pending collapse into one.
func (f *Feed) Notify() {
	select {
	case f.trigger <- struct{}{}:
	default:
	}
}

// Fail delivers err to the error callback on the feed goroutine.
func (f *Feed) Fail(err error) {
	select {
	case f.errs <- err:
	case <-f.ctx.Done():
	}
}

// OnStop registers a cleanup hook that runs once when the feed is cancelled.
// Registering on a feed that has already stopped runs fn immediately.
func (f *Feed) OnStop(fn func()) {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		fn()
		return
	}
	f.onStop = fn
	f.mu.Unlock()
}

// Context is cancelled when the feed stops.
func (f *Feed) Context() context.Context {
	return f.ctx
}

// Done is closed once the delivery goroutine has exited.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}

// Cancel stops delivery. It is safe to call more than once.
func (f *Feed) Cancel() {
	f.once.Do(func() {
		f.cancel()
		f.mu.Lock()
		f.stopped = true
		stop := f.onStop
		f.onStop = nil
		f.mu.Unlock()
		if stop != nil {
			stop()
		}
	})
}
