// Package platformfake provides controllable platform collaborators for tests.
package platformfake

import (
	"strconv"
	"sync"
	"time"

	"github.com/ghettovoice/softphone/internal/types"
	"github.com/ghettovoice/softphone/platform"
)

// Reachability is a fake [platform.Reachability].
type Reachability struct {
	mu     sync.Mutex
	status platform.Status
	cbs    types.CallbackManager[func(platform.Status)]
}

// NewReachability returns a fake with the initial status.
func NewReachability(st platform.Status) *Reachability {
	return &Reachability{status: st}
}

func (r *Reachability) CurrentStatus() platform.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Reachability) OnChange(fn func(platform.Status)) func() {
	return r.cbs.Add(fn)
}

// Notify sets the status and notifies subscribers, even if it did not change.
func (r *Reachability) Notify(st platform.Status) {
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
	for fn := range r.cbs.All() {
		fn(st)
	}
}

// Host is a fake [platform.Host].
type Host struct {
	mu       sync.Mutex
	nextID   int
	grants   map[platform.GrantID]func()
	begins   int
	ends     int
	wake     func()
	interval time.Duration
	wakes    int
	clears   int
	lcCbs    types.CallbackManager[func(platform.Lifecycle)]
}

// NewHost returns a new fake host.
func NewHost() *Host {
	return &Host{grants: make(map[platform.GrantID]func())}
}

func (h *Host) BeginExtendedExecution(onExpire func()) (platform.GrantID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := platform.GrantID("grant-" + strconv.Itoa(h.nextID))
	h.grants[id] = onExpire
	h.begins++
	return id, nil
}

func (h *Host) EndExtendedExecution(id platform.GrantID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.grants[id]; ok {
		delete(h.grants, id)
		h.ends++
	}
}

func (h *Host) SchedulePeriodicWake(interval time.Duration, fn func()) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.wake, h.interval = fn, interval
	h.wakes++
	return nil
}

func (h *Host) ClearPeriodicWake() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.wake = nil
	h.clears++
}

func (h *Host) OnLifecycle(fn func(platform.Lifecycle)) func() {
	return h.lcCbs.Add(fn)
}

// Grants returns the IDs of grants held.
func (h *Host) Grants() []platform.GrantID {
	h.mu.Lock()
	defer h.mu.Unlock()

	ids := make([]platform.GrantID, 0, len(h.grants))
	for id := range h.grants {
		ids = append(ids, id)
	}
	return ids
}

// Counts returns the number of begin and effective end calls.
func (h *Host) Counts() (begins, ends int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.begins, h.ends
}

// Expire revokes the grant and calls its expiration handler.
func (h *Host) Expire(id platform.GrantID) {
	h.mu.Lock()
	fn, ok := h.grants[id]
	delete(h.grants, id)
	h.mu.Unlock()

	if ok && fn != nil {
		fn()
	}
}

// Wake fires the scheduled periodic wake. It reports false if none is scheduled.
func (h *Host) Wake() bool {
	h.mu.Lock()
	fn := h.wake
	h.mu.Unlock()

	if fn == nil {
		return false
	}
	fn()
	return true
}

// WakeSchedule returns the wake interval and the number of schedule and clear calls.
func (h *Host) WakeSchedule() (interval time.Duration, schedules, clears int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval, h.wakes, h.clears
}

// SetLifecycle notifies subscribers about the lifecycle phase.
func (h *Host) SetLifecycle(lc platform.Lifecycle) {
	for fn := range h.lcCbs.All() {
		fn(lc)
	}
}
