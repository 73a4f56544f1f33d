package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// Loop is a real-time Clock. Timer callbacks and work submitted with Post are executed
// sequentially by Run.
type Loop struct {
	work chan func()
	done chan struct{}
}

func NewLoop() *Loop {
	return &Loop{
		work: make(chan func(), 1024),
		done: make(chan struct{}),
	}
}

func (l *Loop) Now() time.Time {
	return time.Now()
}

type loopTimer struct {
	t       *time.Timer
	stopped atomic.Bool
	fired   atomic.Bool
}

func (t *loopTimer) Stop() bool {
	if t.fired.Load() || !t.stopped.CompareAndSwap(false, true) {
		return false
	}

	t.t.Stop()
	return true
}

func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if lt.stopped.Load() {
				return
			}

			lt.fired.Store(true)
			f()
		})
	})

	return lt
}

// Post schedules f to run on the loop. It is safe to call from any goroutine. Work posted
// after Run has returned is dropped.
func (l *Loop) Post(f func()) {
	select {
	case l.work <- f:
	case <-l.done:
	}
}

// Run executes posted work until ctx is cancelled. A Loop can only be run once.
func (l *Loop) Run(ctx context.Context) error {
	defer close(l.done)

	for {
		select {
		case <-ctx.Done():
			return nil
		case f := <-l.work:
			f()
		}
	}
}
