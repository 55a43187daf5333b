package platform

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"braces.dev/errtrace"
	"github.com/google/uuid"

	"github.com/ghettovoice/softphone/internal/errorutil"
	"github.com/ghettovoice/softphone/internal/log"
	"github.com/ghettovoice/softphone/internal/timeutil"
	"github.com/ghettovoice/softphone/internal/types"
)

// DefaultGrantDuration is the lifetime of a [ProcessHost] grant.
const DefaultGrantDuration = 3 * time.Minute

// ProcessHostOptions are options of the [ProcessHost].
type ProcessHostOptions struct {
	// GrantDuration limits each extended execution grant.
	// If zero, [DefaultGrantDuration] is used.
	GrantDuration time.Duration
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *ProcessHostOptions) grantDuration() time.Duration {
	if o == nil || o.GrantDuration <= 0 {
		return DefaultGrantDuration
	}
	return o.GrantDuration
}

func (o *ProcessHostOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// ProcessHost is a [Host] for a regular process.
// Grants are time-boxed and expire after the configured duration.
// Lifecycle changes are driven by the application through
// [ProcessHost.Background] and [ProcessHost.Foreground].
type ProcessHost struct {
	grantDur time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	grants    map[GrantID]*timeutil.Timer
	wake      *time.Ticker
	wakeDone  chan struct{}
	lifecycle Lifecycle
	closed    bool

	lcCbs types.CallbackManager[func(Lifecycle)]
	wg    sync.WaitGroup
}

// NewProcessHost creates a host in the [Active] phase.
func NewProcessHost(opts *ProcessHostOptions) *ProcessHost {
	return &ProcessHost{
		grantDur: opts.grantDuration(),
		log:      opts.log(),
		grants:   make(map[GrantID]*timeutil.Timer),
	}
}

// BeginExtendedExecution implements [Host].
func (h *ProcessHost) BeginExtendedExecution(onExpire func()) (GrantID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return "", errtrace.Wrap(ErrClosed)
	}

	id := GrantID(uuid.NewString())
	h.grants[id] = timeutil.AfterFunc(h.grantDur, func() {
		h.mu.Lock()
		_, ok := h.grants[id]
		delete(h.grants, id)
		h.mu.Unlock()
		if !ok {
			return
		}

		h.log.LogAttrs(context.Background(), slog.LevelDebug, "background grant expired", slog.Any("grant", id))
		if onExpire != nil {
			onExpire()
		}
	})
	h.log.LogAttrs(context.Background(), slog.LevelDebug, "background grant started",
		slog.Any("grant", id),
		slog.Duration("duration", h.grantDur),
	)
	return id, nil
}

// EndExtendedExecution implements [Host].
func (h *ProcessHost) EndExtendedExecution(id GrantID) {
	h.mu.Lock()
	tmr, ok := h.grants[id]
	delete(h.grants, id)
	h.mu.Unlock()

	if ok {
		tmr.Stop()
		h.log.LogAttrs(context.Background(), slog.LevelDebug, "background grant ended", slog.Any("grant", id))
	}
}

// ActiveGrants returns the number of grants not yet ended or expired.
func (h *ProcessHost) ActiveGrants() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.grants)
}

// SchedulePeriodicWake implements [Host].
func (h *ProcessHost) SchedulePeriodicWake(interval time.Duration, fn func()) error {
	if interval < MinWakeInterval {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("wake interval %v is less than %v", interval, MinWakeInterval))
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errtrace.Wrap(ErrClosed)
	}
	h.stopWakeLocked()
	tkr := time.NewTicker(interval)
	done := make(chan struct{})
	h.wake, h.wakeDone = tkr, done
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		for {
			select {
			case <-done:
				return
			case <-tkr.C:
				fn()
			}
		}
	}()
	return nil
}

// ClearPeriodicWake implements [Host].
func (h *ProcessHost) ClearPeriodicWake() {
	h.mu.Lock()
	h.stopWakeLocked()
	h.mu.Unlock()
}

func (h *ProcessHost) stopWakeLocked() {
	if h.wake == nil {
		return
	}
	h.wake.Stop()
	close(h.wakeDone)
	h.wake, h.wakeDone = nil, nil
}

// OnLifecycle implements [Host].
func (h *ProcessHost) OnLifecycle(fn func(Lifecycle)) (cancel func()) {
	return h.lcCbs.Add(fn)
}

// Lifecycle returns the current phase.
func (h *ProcessHost) Lifecycle() Lifecycle {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lifecycle
}

// Background moves the application to the [Background] phase.
func (h *ProcessHost) Background() { h.setLifecycle(Background) }

// Foreground moves the application to the [Active] phase.
func (h *ProcessHost) Foreground() { h.setLifecycle(Active) }

func (h *ProcessHost) setLifecycle(lc Lifecycle) {
	h.mu.Lock()
	if h.lifecycle == lc {
		h.mu.Unlock()
		return
	}
	h.lifecycle = lc
	h.mu.Unlock()

	h.log.LogAttrs(context.Background(), slog.LevelDebug, "application lifecycle changed", slog.Any("lifecycle", lc))
	for fn := range h.lcCbs.All() {
		fn(lc)
	}
}

// Close stops the periodic wake and all grants.
func (h *ProcessHost) Close() error {
	h.mu.Lock()
	h.closed = true
	h.stopWakeLocked()
	for id, tmr := range h.grants {
		tmr.Stop()
		delete(h.grants, id)
	}
	h.mu.Unlock()

	h.wg.Wait()
	h.lcCbs.Clear()
	return nil
}
