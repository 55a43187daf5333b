package timeutil

import (
	"sync"
	"time"
)

// Stopwatch measures elapsed time between Start and Stop.
// The zero value is a stopwatch that was never started.
type Stopwatch struct {
	mu    sync.Mutex
	start time.Time
	stop  time.Time
	now   func() time.Time
}

// NewStopwatch returns a stopwatch that reads time from now.
// A nil now uses [time.Now].
func NewStopwatch(now func() time.Time) *Stopwatch {
	return &Stopwatch{now: now}
}

func (s *Stopwatch) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// Start starts the stopwatch. Starting a running stopwatch is a no-op.
func (s *Stopwatch) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.start.IsZero() && s.stop.IsZero() {
		return
	}
	s.start = s.clock()
	s.stop = time.Time{}
}

// Stop freezes the elapsed time. Stopping an idle stopwatch is a no-op.
func (s *Stopwatch) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.start.IsZero() || !s.stop.IsZero() {
		return
	}
	s.stop = s.clock()
}

// Running reports whether the stopwatch is started and not stopped.
func (s *Stopwatch) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.start.IsZero() && s.stop.IsZero()
}

// Elapsed returns the measured duration so far.
func (s *Stopwatch) Elapsed() time.Duration {
	if s == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.start.IsZero():
		return 0
	case s.stop.IsZero():
		return s.clock().Sub(s.start)
	default:
		return s.stop.Sub(s.start)
	}
}
