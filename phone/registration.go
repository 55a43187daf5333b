package phone

import (
	"context"
	"log/slog"
	"reflect"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/user"
)

// RegistrationState is the registration state of the coordinator.
type RegistrationState int

const (
	NotRegistered RegistrationState = iota
	Registering
	Registered
)

func (s RegistrationState) String() string {
	switch s {
	case NotRegistered:
		return "not_registered"
	case Registering:
		return "registering"
	case Registered:
		return "registered"
	default:
		return "unknown"
	}
}

const (
	regEvtRegister = "register"
	regEvtActive   = "reg_active"
	regEvtInactive = "reg_inactive"
	regEvtTeardown = "teardown"
)

func (p *Phone) initRegFSM() {
	p.reg = stateless.NewStateMachineWithMode(NotRegistered, stateless.FiringQueued)
	p.reg.SetTriggerParameters(regEvtRegister, reflect.TypeOf((*user.User)(nil)))

	p.reg.Configure(NotRegistered).
		OnEntry(p.actRegEntered(NotRegistered)).
		Permit(regEvtRegister, Registering).
		Permit(regEvtActive, Registered).
		Ignore(regEvtInactive).
		Ignore(regEvtTeardown)

	p.reg.Configure(Registering).
		OnEntry(p.actRegEntered(Registering)).
		OnEntryFrom(regEvtRegister, p.actStartAccount).
		InternalTransition(regEvtRegister, p.actRefreshAccount).
		Permit(regEvtActive, Registered).
		Permit(regEvtInactive, NotRegistered).
		Permit(regEvtTeardown, NotRegistered)

	p.reg.Configure(Registered).
		OnEntry(p.actRegEntered(Registered)).
		OnEntry(p.actScheduleWake).
		InternalTransition(regEvtRegister, p.actRefreshAccount).
		Ignore(regEvtActive).
		Permit(regEvtInactive, NotRegistered).
		Permit(regEvtTeardown, NotRegistered)
}

func (p *Phone) fireReg(ctx context.Context, trigger string, args ...any) {
	if err := p.reg.FireCtx(ctx, trigger, args...); err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to fire registration event",
			slog.String("event", trigger),
			slog.Any("state", p.RegistrationState()),
			slog.Any("error", err),
		)
	}
}

func (p *Phone) actRegEntered(st RegistrationState) stateless.ActionFunc {
	return func(ctx context.Context, _ ...any) error {
		p.state.Store(int32(st))
		p.metrics.regState.Set(float64(st))

		ev := RegistrationChanged{State: st, Code: p.LastRegistrationCode()}
		p.log.LogAttrs(ctx, slog.LevelInfo, "registration state changed",
			slog.Any("state", st),
			slog.Int("code", ev.Code),
		)
		p.publish(ctx, ev)
		return nil
	}
}

func (p *Phone) actStartAccount(ctx context.Context, args ...any) error {
	p.startAccount(ctx, args[0].(*user.User)) //nolint:forcetypeassert
	return nil
}

func (p *Phone) actRefreshAccount(ctx context.Context, args ...any) error {
	p.refreshAccount(ctx, args[0].(*user.User)) //nolint:forcetypeassert
	return nil
}

func (p *Phone) register(ctx context.Context, u *user.User) {
	p.user = u
	p.fireReg(ctx, regEvtRegister, u)
}

// accountSlot holds the single account of the coordinator.
// The initializing tag marks an account whose registrar lookup is in flight.
type accountSlot struct {
	tag slotTag
	gen uint64
	acc engine.Account
}

type slotTag int

const (
	slotAbsent slotTag = iota
	slotInitializing
	slotPresent
)

func (p *Phone) isCurrentAccount(gen uint64) bool {
	return p.acct.tag == slotPresent && p.acct.gen == gen
}

func (p *Phone) startAccount(ctx context.Context, u *user.User) {
	if p.acct.tag != slotAbsent {
		p.refreshAccount(ctx, u)
		return
	}

	if err := p.ensureTransport(ctx); err != nil {
		p.failRegistration(ctx, "failed to create transport", err)
		return
	}

	p.accGen++
	gen := p.accGen
	if p.resolver == nil {
		p.createAccount(ctx, u, gen, "")
		return
	}

	p.acct = accountSlot{tag: slotInitializing, gen: gen}
	realm, transport := u.Realm(), string(p.tpType)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		target, err := p.resolver.ResolveRegistrar(p.ctx, realm, transport)
		p.loop.Post(func(ctx context.Context) {
			if p.acct.tag != slotInitializing || p.acct.gen != gen {
				p.log.LogAttrs(ctx, slog.LevelDebug, "drop stale registrar lookup", slog.String("realm", realm))
				return
			}
			if err != nil {
				p.log.LogAttrs(ctx, slog.LevelWarn, "failed to resolve registrar, fall back to realm",
					slog.String("realm", realm),
					slog.Any("error", err),
				)
				target = ""
			}
			p.createAccount(ctx, p.user, gen, target)
		})
	}()
}

func (p *Phone) createAccount(ctx context.Context, u *user.User, gen uint64, registrar string) {
	params := engine.AccountParams{
		Registrar: registrar,
		Domain:    u.Realm(),
		Username:  u.Endpoint.Credentials.Username,
		Password:  u.PasswordOrEmpty(),
	}
	acc, err := p.eng.NewAccount(p.tp, params, &accountHandler{p: p, gen: gen})
	if err != nil {
		p.acct = accountSlot{}
		p.failRegistration(ctx, "failed to create account", err)
		return
	}

	acc.SetRegistrationInterval(p.regInterval)
	acc.SetRegistrationFirstRetryInterval(p.firstRetry)
	acc.SetRegistrationRetryInterval(p.retry)
	p.acct = accountSlot{tag: slotPresent, gen: gen, acc: acc}

	p.log.LogAttrs(ctx, slog.LevelInfo, "account created",
		slog.String("domain", params.Domain),
		slog.String("registrar", params.Registrar),
		slog.String("username", params.Username),
	)

	if err := acc.Connect(); err != nil {
		p.failRegistration(ctx, "failed to connect account", err)
	}
}

func (p *Phone) refreshAccount(ctx context.Context, u *user.User) {
	switch p.acct.tag {
	case slotPresent:
		if err := p.acct.acc.UpdateRegistration(true); err != nil {
			p.failRegistration(ctx, "failed to update registration", err)
		}
	case slotInitializing:
		p.log.LogAttrs(ctx, slog.LevelDebug, "registration pending registrar lookup")
	default:
		p.startAccount(ctx, u)
	}
}

func (p *Phone) failRegistration(ctx context.Context, msg string, err error) {
	p.log.LogAttrs(ctx, slog.LevelError, msg, slog.Any("error", err))
	p.closeAccount(ctx)
	p.fireReg(ctx, regEvtInactive)
}

func (p *Phone) closeAccount(ctx context.Context) {
	if p.acct.tag == slotPresent {
		if err := p.acct.acc.Close(); err != nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "failed to close account", slog.Any("error", err))
		}
	}
	p.acct = accountSlot{}
}

func (p *Phone) ensureTransport(ctx context.Context) error {
	if p.tp != nil {
		return nil
	}

	tp, err := p.eng.NewTransport()
	if err != nil {
		return errtrace.Wrap(err)
	}
	if err := tp.SetTransportType(p.tpType); err != nil {
		tp.Close()
		return errtrace.Wrap(err)
	}
	if err := tp.Initialize(); err != nil {
		tp.Close()
		return errtrace.Wrap(err)
	}
	p.tp = tp

	p.log.LogAttrs(ctx, slog.LevelDebug, "transport initialized", slog.Any("type", p.tpType))
	return nil
}

func (p *Phone) closeTransport(ctx context.Context) {
	if p.tp == nil {
		return
	}
	if err := p.tp.Close(); err != nil {
		p.log.LogAttrs(ctx, slog.LevelWarn, "failed to close transport", slog.Any("error", err))
	}
	p.tp = nil
	p.speaker = false
}

func (p *Phone) handleRegState(ctx context.Context, gen uint64, code int, active bool) {
	if !p.isCurrentAccount(gen) {
		p.log.LogAttrs(ctx, slog.LevelDebug, "drop stale registration event", slog.Int("code", code))
		return
	}

	p.code.Store(int64(code))
	if active {
		p.metrics.regEvents.WithLabelValues("active").Inc()
		p.fireReg(ctx, regEvtActive)
	} else {
		p.metrics.regEvents.WithLabelValues("inactive").Inc()
		p.fireReg(ctx, regEvtInactive)
	}
}

type accountHandler struct {
	p   *Phone
	gen uint64
}

func (h *accountHandler) OnRegStateChanged(acc engine.Account, code int) {
	active := acc.IsRegistrationActive()
	h.p.loop.Post(func(ctx context.Context) {
		h.p.handleRegState(ctx, h.gen, code, active)
	})
}

func (h *accountHandler) OnIncomingCall(_ engine.Account, call engine.Call) {
	h.p.loop.Post(func(ctx context.Context) {
		h.p.handleIncomingCall(ctx, h.gen, call)
	})
}
