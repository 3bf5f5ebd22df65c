package scheduler

import (
	"sync"
	"sync/atomic"
	"time"
)

// taskSet supervises attempt goroutines. Go must only be called from the
// coordinating goroutine; the counters may be read from anywhere.
type taskSet struct {
	wg        sync.WaitGroup
	inFlight  atomic.Int64
	launched  atomic.Int64
	completed atomic.Int64
	// finished receives a non-blocking signal whenever a task returns.
	finished chan struct{}
}

func newTaskSet() *taskSet {
	return &taskSet{finished: make(chan struct{}, 1)}
}

func (t *taskSet) Go(fn func()) {
	t.launched.Add(1)
	t.inFlight.Add(1)
	t.wg.Add(1)
	go func() {
		defer func() {
			t.inFlight.Add(-1)
			t.completed.Add(1)
			t.wg.Done()
			select {
			case t.finished <- struct{}{}:
			default:
			}
		}()
		fn()
	}()
}

// idle returns a channel closed once every launched task has returned.
func (t *taskSet) idle() <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(ch)
	}()
	return ch
}

// WaitTimeout waits up to d for all tasks and reports whether they finished.
func (t *taskSet) WaitTimeout(d time.Duration) bool {
	if t.inFlight.Load() == 0 {
		return true
	}
	if d <= 0 {
		return false
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.idle():
		return true
	case <-timer.C:
		return false
	}
}
