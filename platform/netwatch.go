package platform

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"braces.dev/errtrace"
	"github.com/frostbyte73/core"

	"github.com/ghettovoice/softphone/internal/log"
	"github.com/ghettovoice/softphone/internal/types"
)

// DefaultPollInterval is the network poll interval of [NetWatcher].
const DefaultPollInterval = 2 * time.Second

// Iface is a network interface snapshot used by [Classify].
type Iface struct {
	Name  string
	Flags net.Flags
	Addrs int
}

var cellularPrefixes = []string{"rmnet", "pdp_ip", "wwan", "ccmni", "ppp"}

// Classify maps network interfaces to a coarse status.
// Any usable non-cellular interface wins over a cellular one.
func Classify(ifaces []Iface) Status {
	st := Unreachable
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 || ifc.Addrs == 0 {
			continue
		}
		if hasAnyPrefix(ifc.Name, cellularPrefixes) {
			if st == Unreachable {
				st = ReachableViaCellular
			}
			continue
		}
		return ReachableViaWiFi
	}
	return st
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

// SystemInterfaces lists the host network interfaces.
func SystemInterfaces() ([]Iface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	out := make([]Iface, 0, len(ifs))
	for _, ifc := range ifs {
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		out = append(out, Iface{Name: ifc.Name, Flags: ifc.Flags, Addrs: len(addrs)})
	}
	return out, nil
}

// NetWatcherOptions are options of the [NetWatcher].
type NetWatcherOptions struct {
	// Interval is the poll interval.
	// If zero, [DefaultPollInterval] is used.
	Interval time.Duration
	// Interfaces lists network interfaces.
	// If nil, [SystemInterfaces] is used.
	Interfaces func() ([]Iface, error)
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *NetWatcherOptions) interval() time.Duration {
	if o == nil || o.Interval <= 0 {
		return DefaultPollInterval
	}
	return o.Interval
}

func (o *NetWatcherOptions) interfaces() func() ([]Iface, error) {
	if o == nil || o.Interfaces == nil {
		return SystemInterfaces
	}
	return o.Interfaces
}

func (o *NetWatcherOptions) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// NetWatcher is a [Reachability] that polls the host network interfaces.
type NetWatcher struct {
	interval time.Duration
	list     func() ([]Iface, error)
	log      *slog.Logger

	mu     sync.RWMutex
	status Status
	cbs    types.CallbackManager[func(Status)]

	closed core.Fuse
	wg     sync.WaitGroup
}

// NewNetWatcher checks the current status and starts polling.
func NewNetWatcher(opts *NetWatcherOptions) *NetWatcher {
	w := &NetWatcher{
		interval: opts.interval(),
		list:     opts.interfaces(),
		log:      opts.log(),
	}
	w.status = w.check()

	w.wg.Add(1)
	go w.run()
	return w
}

func (w *NetWatcher) check() Status {
	ifs, err := w.list()
	if err != nil {
		w.log.LogAttrs(context.Background(), slog.LevelWarn, "failed to list network interfaces", slog.Any("error", err))
		return Unreachable
	}
	return Classify(ifs)
}

func (w *NetWatcher) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.closed.Watch():
			return
		case <-ticker.C:
			w.Poll()
		}
	}
}

// Poll checks the network now and notifies subscribers if the status changed.
func (w *NetWatcher) Poll() {
	st := w.check()

	w.mu.Lock()
	prev := w.status
	w.status = st
	w.mu.Unlock()

	if st == prev {
		return
	}

	w.log.LogAttrs(context.Background(), slog.LevelDebug, "network status changed",
		slog.Any("from", prev),
		slog.Any("to", st),
	)
	for fn := range w.cbs.All() {
		fn(st)
	}
}

// CurrentStatus returns the last checked status.
func (w *NetWatcher) CurrentStatus() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// OnChange registers fn to be called when the status changes.
func (w *NetWatcher) OnChange(fn func(Status)) (cancel func()) {
	return w.cbs.Add(fn)
}

// Close stops polling and drops all subscribers.
func (w *NetWatcher) Close() error {
	w.closed.Break()
	w.wg.Wait()
	w.cbs.Clear()
	return nil
}
