// Package platform defines the host collaborators of the phone coordinator:
// network reachability and background execution. It also provides
// implementations suitable for a long-running process.
package platform

//go:generate go tool errtrace -w .
//go:generate go tool mockgen -destination=../internal/testutil/platformmock/platform.go -package=platformmock . Reachability,Host

import (
	"time"

	"github.com/ghettovoice/softphone/internal/errorutil"
)

const (
	ErrInvalidArgument                 = errorutil.ErrInvalidArgument
	ErrClosed          errorutil.Error = "platform closed"
)

// Status is a coarse network reachability status.
type Status int

const (
	Unreachable Status = iota
	ReachableViaWiFi
	ReachableViaCellular
)

func (s Status) String() string {
	switch s {
	case Unreachable:
		return "unreachable"
	case ReachableViaWiFi:
		return "wifi"
	case ReachableViaCellular:
		return "cellular"
	default:
		return "unknown"
	}
}

// Reachability reports coarse network status changes.
type Reachability interface {
	CurrentStatus() Status
	// OnChange registers fn to be called with each new status.
	// Implementations may call fn with the same status several times in a row.
	OnChange(fn func(Status)) (cancel func())
}

// Lifecycle is an application lifecycle phase.
type Lifecycle int

const (
	Active Lifecycle = iota
	Background
)

func (l Lifecycle) String() string {
	if l == Background {
		return "background"
	}
	return "active"
}

// GrantID identifies an extended background execution grant.
type GrantID string

// MinWakeInterval is the smallest accepted periodic wake interval.
const MinWakeInterval = 600 * time.Second

// Host grants extended background execution and periodic wake-ups.
type Host interface {
	// BeginExtendedExecution requests extra execution time.
	// onExpire is called if the host revokes the grant before it is ended.
	BeginExtendedExecution(onExpire func()) (GrantID, error)
	EndExtendedExecution(id GrantID)
	// SchedulePeriodicWake calls fn every interval, which must be at least
	// [MinWakeInterval]. A new schedule replaces the previous one.
	SchedulePeriodicWake(interval time.Duration, fn func()) error
	ClearPeriodicWake()
	OnLifecycle(fn func(Lifecycle)) (cancel func())
}
