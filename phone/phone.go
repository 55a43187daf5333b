package phone

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/errorutil"
	"github.com/ghettovoice/softphone/internal/types"
	"github.com/ghettovoice/softphone/platform"
	"github.com/ghettovoice/softphone/user"
)

// Phone is the registration and call lifecycle coordinator.
type Phone struct {
	eng   engine.Engine
	reach platform.Reachability
	host  platform.Host
	tones engine.Tones

	regInterval  time.Duration
	firstRetry   time.Duration
	retry        time.Duration
	wakeInterval time.Duration
	tpType       engine.TransportType
	countryCode  string
	toneVolume   float64
	resolver     RegistrarResolver

	log     *slog.Logger
	metrics *metrics

	loop   *Loop
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	subs   types.CallbackManager[func(context.Context, Event)]
	unsubs []func()

	state atomic.Int32
	code  atomic.Int64

	// Fields below are owned by the loop.
	reg           *stateless.StateMachine
	user          *user.User
	tp            engine.Transport
	acct          accountSlot
	accGen        uint64
	call          *trackedCall
	speaker       bool
	netStatus     platform.Status
	grant         platform.GrantID
	wakeScheduled bool
	closed        bool
}

// New creates a coordinator in the [NotRegistered] state.
// tones is optional.
func New(
	eng engine.Engine,
	reach platform.Reachability,
	host platform.Host,
	tones engine.Tones,
	opts *Options,
) (*Phone, error) {
	if eng == nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("nil engine"))
	}
	if reach == nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("nil reachability"))
	}
	if host == nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("nil host"))
	}

	p := &Phone{
		eng:          eng,
		reach:        reach,
		host:         host,
		tones:        tones,
		regInterval:  opts.regInterval(),
		firstRetry:   opts.firstRetryInterval(),
		retry:        opts.retryInterval(),
		wakeInterval: opts.wakeInterval(),
		tpType:       opts.transportType(),
		countryCode:  opts.countryCode(),
		toneVolume:   opts.toneVolume(),
		resolver:     opts.resolver(),
		log:          opts.log(),
		metrics:      newMetrics(opts.metrics()),
		loop:         NewLoop(),
	}
	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.initRegFSM()
	p.netStatus = reach.CurrentStatus()

	p.unsubs = append(p.unsubs,
		reach.OnChange(func(st platform.Status) {
			p.loop.Post(func(ctx context.Context) { p.handleNetworkChange(ctx, st) })
		}),
		host.OnLifecycle(func(lc platform.Lifecycle) {
			p.loop.Post(func(ctx context.Context) { p.handleLifecycle(ctx, lc) })
		}),
	)
	return p, nil
}

func (p *Phone) do(ctx context.Context, fn func(ctx context.Context) error) error {
	return errtrace.Wrap(p.loop.Do(ctx, func(ctx context.Context) error {
		if p.closed {
			return errtrace.Wrap(ErrClosed)
		}
		return fn(ctx)
	}))
}

// Register registers the user.
// While registering or registered it forces a registration refresh of the
// existing account instead of creating another one.
// Engine failures are not returned; they are logged and reported
// as the [NotRegistered] state.
func (p *Phone) Register(ctx context.Context, u *user.User) error {
	if u == nil {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("nil user"))
	}
	if u.Realm() == "" {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("user without realm"))
	}

	return errtrace.Wrap(p.do(ctx, func(ctx context.Context) error {
		p.log.LogAttrs(ctx, slog.LevelInfo, "register user", slog.Any("user", u))
		p.register(ctx, u)
		return nil
	}))
}

// Unregister closes the account and the transport and forgets the user.
func (p *Phone) Unregister(ctx context.Context) error {
	return errtrace.Wrap(p.do(ctx, func(ctx context.Context) error {
		p.log.LogAttrs(ctx, slog.LevelInfo, "unregister user", slog.Any("user", p.user))
		p.shutdown(ctx)
		return nil
	}))
}

func (p *Phone) shutdown(ctx context.Context) {
	p.teardownEngine(ctx)
	p.user = nil
	p.releaseGrant(ctx)
	p.host.ClearPeriodicWake()
	p.wakeScheduled = false
	p.fireReg(ctx, regEvtTeardown)
}

func (p *Phone) teardownEngine(ctx context.Context) {
	p.terminateCall(ctx, engine.CallStateTerminated, true)
	p.closeAccount(ctx)
	p.closeTransport(ctx)
}

// RegistrationState returns the current registration state.
func (p *Phone) RegistrationState() RegistrationState {
	return RegistrationState(p.state.Load())
}

// LastRegistrationCode returns the last raw registration code reported by the engine.
func (p *Phone) LastRegistrationCode() int {
	return int(p.code.Load())
}

// User returns the remembered user or nil.
func (p *Phone) User(ctx context.Context) (*user.User, error) {
	var u *user.User
	err := p.do(ctx, func(context.Context) error {
		u = p.user
		return nil
	})
	return u, errtrace.Wrap(err)
}

// Status is a snapshot of the coordinator state.
type Status struct {
	State   RegistrationState
	Code    int
	User    *user.User
	Call    *CallInfo
	Network platform.Status
	Speaker bool
	// Background reports whether an extended background execution grant is held.
	Background bool
}

func (s Status) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Any("state", s.State),
		slog.Int("code", s.Code),
		slog.Any("network", s.Network),
		slog.Bool("speaker", s.Speaker),
		slog.Bool("background", s.Background),
	}
	if s.User != nil {
		attrs = append(attrs, slog.Any("user", s.User))
	}
	if s.Call != nil {
		attrs = append(attrs, slog.Any("call", *s.Call))
	}
	return slog.GroupValue(attrs...)
}

// Status returns a snapshot of the coordinator state.
func (p *Phone) Status(ctx context.Context) (Status, error) {
	var st Status
	err := p.do(ctx, func(context.Context) error {
		st = Status{
			State:      p.RegistrationState(),
			Code:       p.LastRegistrationCode(),
			User:       p.user,
			Network:    p.netStatus,
			Speaker:    p.speaker,
			Background: p.grant != "",
		}
		if p.call != nil {
			info := p.call.info()
			st.Call = &info
		}
		return nil
	})
	return st, errtrace.Wrap(err)
}

// Close tears down the account, the transport and the tracked call
// and stops the coordinator. It must not be called from an event subscriber.
func (p *Phone) Close() error {
	err := p.do(context.Background(), func(ctx context.Context) error {
		p.shutdown(ctx)
		p.closed = true
		return nil
	})

	for _, fn := range p.unsubs {
		if fn != nil {
			fn()
		}
	}
	p.cancel()
	p.wg.Wait()
	p.loop.Close()
	p.subs.Clear()

	if errors.Is(err, ErrClosed) {
		return nil
	}
	return errtrace.Wrap(err)
}
