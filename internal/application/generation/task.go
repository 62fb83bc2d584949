package generation

import (
	"sync"
	"time"
)

type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskFinished
	taskCancelled
)

// Task is a cancellable scheduled call. Unlike a bare timer it reports
// whether cancellation won the race against the callback, and Done lets the
// owner wait for either outcome.
type Task struct {
	mu    sync.Mutex
	state taskState
	timer *time.Timer
	done  chan struct{}
}

// Schedule runs fn once after d unless the task is cancelled first.
func Schedule(d time.Duration, fn func()) *Task {
	t := &Task{done: make(chan struct{})}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.state != taskPending {
			t.mu.Unlock()
			return
		}
		t.state = taskRunning
		t.mu.Unlock()

		defer func() {
			t.mu.Lock()
			t.state = taskFinished
			t.mu.Unlock()
			close(t.done)
		}()
		fn()
	})
	return t
}

// Cancel stops the task if fn has not started. It reports true when fn will
// never run.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	switch t.state {
	case taskPending:
		t.state = taskCancelled
		t.timer.Stop()
		close(t.done)
		return true
	case taskCancelled:
		return true
	default:
		return false
	}
}

// Done is closed once fn has returned or the task was cancelled.
func (t *Task) Done() <-chan struct{} { return t.done }

// Pending reports whether fn is still waiting to run.
func (t *Task) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == taskPending
}

// Cancelled reports whether the task was cancelled before running.
func (t *Task) Cancelled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == taskCancelled
}
