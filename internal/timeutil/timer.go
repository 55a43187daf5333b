package timeutil

import (
	"sync"
	"time"
)

// TimerState represents the current state of a [Timer].
type TimerState string

const (
	// TimerStateRunning indicates the timer is currently running.
	TimerStateRunning TimerState = "running"
	// TimerStateStopped indicates the timer was stopped before expiration.
	TimerStateStopped TimerState = "stopped"
	// TimerStateExpired indicates the timer has expired.
	TimerStateExpired TimerState = "expired"
)

// Timer is a one-shot timer that tracks its own state and remaining time.
// The callback runs in its own goroutine at most once per start or [Timer.Reset].
type Timer struct {
	mu        sync.Mutex
	startTime time.Time
	duration  time.Duration
	state     TimerState
	stopTime  time.Time
	callback  func()
	realTimer *time.Timer
}

// AfterFunc starts a timer that calls f after d elapses.
func AfterFunc(d time.Duration, f func()) *Timer {
	t := &Timer{callback: f}
	t.Reset(d)
	return t
}

// State returns the current timer state.
func (t *Timer) State() TimerState {
	if t == nil {
		return ""
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Duration returns the timer's duration.
func (t *Timer) Duration() time.Duration {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Left returns the time remaining until the timer expires.
// Returns 0 if the timer is expired or stopped.
func (t *Timer) Left() time.Duration {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TimerStateRunning {
		return 0
	}
	left := t.duration - time.Since(t.startTime)
	if left < 0 {
		return 0
	}
	return left
}

// Stop stops the timer. It returns false if the timer was not running.
// The callback will not be executed after Stop returns true.
func (t *Timer) Stop() bool {
	if t == nil {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state != TimerStateRunning {
		return false
	}

	t.stopTime = time.Now()
	t.state = TimerStateStopped
	if t.realTimer != nil {
		t.realTimer.Stop()
		t.realTimer = nil
	}
	return true
}

// Reset restarts the timer with a new duration, starting from now.
// The callback is preserved.
func (t *Timer) Reset(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.realTimer != nil {
		t.realTimer.Stop()
	}

	t.startTime = time.Now()
	t.duration = d
	t.state = TimerStateRunning
	t.stopTime = time.Time{}

	var rt *time.Timer
	rt = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.realTimer != rt || t.state != TimerStateRunning {
			t.mu.Unlock()
			return
		}
		t.state = TimerStateExpired
		t.stopTime = time.Now()
		t.realTimer = nil
		cb := t.callback
		t.mu.Unlock()

		if cb != nil {
			cb()
		}
	})
	t.realTimer = rt
}
