package phone

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"braces.dev/errtrace"
	"github.com/qmuntal/stateless"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/errorutil"
	"github.com/ghettovoice/softphone/internal/timeutil"
)

// Direction is a call direction.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// CallPhase is the coarse call state visible to observers.
type CallPhase int

const (
	CallConnecting CallPhase = iota
	CallEstablished
	CallTerminated
)

func (p CallPhase) String() string {
	switch p {
	case CallConnecting:
		return "connecting"
	case CallEstablished:
		return "established"
	case CallTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// CallInfo is an immutable snapshot of the tracked call.
type CallInfo struct {
	ID        string
	RemoteURI string
	Direction Direction
	Phase     CallPhase
	// State is the last raw state reported by the engine.
	State engine.CallState
	// Duration is the time spent in the established phase.
	Duration time.Duration
	Muted    bool
}

func (c CallInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", c.ID),
		slog.String("remote_uri", c.RemoteURI),
		slog.Any("direction", c.Direction),
		slog.Any("phase", c.Phase),
		slog.Any("state", c.State),
		slog.Duration("duration", c.Duration),
	)
}

const (
	callEvtProgress    = "progress"
	callEvtEstablished = "established"
	callEvtTerminate   = "terminate"
)

type trackedCall struct {
	call  engine.Call
	dir   Direction
	fsm   *stateless.StateMachine
	raw   engine.CallState
	sw    *timeutil.Stopwatch
	muted bool
}

func newTrackedCall(call engine.Call, dir Direction, raw engine.CallState) *trackedCall {
	tc := &trackedCall{
		call: call,
		dir:  dir,
		raw:  raw,
		sw:   timeutil.NewStopwatch(nil),
	}

	tc.fsm = stateless.NewStateMachineWithMode(CallConnecting, stateless.FiringQueued)
	tc.fsm.Configure(CallConnecting).
		Ignore(callEvtProgress).
		Permit(callEvtEstablished, CallEstablished).
		Permit(callEvtTerminate, CallTerminated)

	tc.fsm.Configure(CallEstablished).
		OnEntry(tc.actEstablished).
		Ignore(callEvtProgress).
		Ignore(callEvtEstablished).
		Permit(callEvtTerminate, CallTerminated)

	tc.fsm.Configure(CallTerminated).
		OnEntry(tc.actTerminated).
		Ignore(callEvtProgress).
		Ignore(callEvtEstablished).
		Ignore(callEvtTerminate)

	return tc
}

func (tc *trackedCall) actEstablished(context.Context, ...any) error {
	tc.sw.Start()
	return nil
}

func (tc *trackedCall) actTerminated(context.Context, ...any) error {
	tc.sw.Stop()
	return nil
}

func (tc *trackedCall) phase() CallPhase {
	return tc.fsm.MustState().(CallPhase) //nolint:forcetypeassert
}

func (tc *trackedCall) info() CallInfo {
	return CallInfo{
		ID:        tc.call.ID(),
		RemoteURI: tc.call.RemoteURI(),
		Direction: tc.dir,
		Phase:     tc.phase(),
		State:     tc.raw,
		Duration:  tc.sw.Elapsed(),
		Muted:     tc.muted,
	}
}

func (p *Phone) fireCall(ctx context.Context, tc *trackedCall, trigger string) {
	if err := tc.fsm.FireCtx(ctx, trigger); err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to fire call event",
			slog.String("event", trigger),
			slog.Any("call", tc.info()),
			slog.Any("error", err),
		)
	}
}

type callHandler struct {
	p *Phone
}

func (h *callHandler) OnCallStateChanged(call engine.Call, st engine.CallState) {
	h.p.loop.Post(func(ctx context.Context) {
		h.p.handleCallState(ctx, call, st)
	})
}

func (p *Phone) handleCallState(ctx context.Context, call engine.Call, st engine.CallState) {
	tc := p.call
	if tc == nil || tc.call != call {
		p.log.LogAttrs(ctx, slog.LevelDebug, "drop stale call event", slog.Any("state", st))
		return
	}

	tc.raw = st
	switch {
	case st == engine.CallStateEstablished:
		p.fireCall(ctx, tc, callEvtEstablished)
	case st.IsTerminal():
		p.fireCall(ctx, tc, callEvtTerminate)
	default:
		p.fireCall(ctx, tc, callEvtProgress)
	}

	if tc.phase() == CallTerminated {
		p.finishCall(ctx, tc)
		return
	}
	p.publish(ctx, CallStateChanged{Call: tc.info()})
}

func (p *Phone) finishCall(ctx context.Context, tc *trackedCall) {
	if p.call == tc {
		p.call = nil
	}
	p.metrics.calls.WithLabelValues(tc.dir.String(), tc.raw.String()).Inc()

	info := tc.info()
	p.log.LogAttrs(ctx, slog.LevelInfo, "call terminated", slog.Any("call", info))
	p.publish(ctx, CallStateChanged{Call: info})
}

// terminateCall ends the tracked call locally.
func (p *Phone) terminateCall(ctx context.Context, raw engine.CallState, hangup bool) {
	tc := p.call
	if tc == nil {
		return
	}
	if hangup {
		if err := tc.call.Hangup(); err != nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "failed to hang up call", slog.Any("call", tc.info()), slog.Any("error", err))
		}
	}
	tc.raw = raw
	p.fireCall(ctx, tc, callEvtTerminate)
	p.finishCall(ctx, tc)
}

func (p *Phone) handleIncomingCall(ctx context.Context, gen uint64, call engine.Call) {
	if !p.isCurrentAccount(gen) {
		p.log.LogAttrs(ctx, slog.LevelDebug, "drop incoming call of stale account", slog.String("remote_uri", call.RemoteURI()))
		return
	}

	if p.call != nil {
		p.log.LogAttrs(ctx, slog.LevelInfo, "reject incoming call, busy",
			slog.String("remote_uri", call.RemoteURI()),
			slog.Any("current_call", p.call.info()),
		)
		if err := call.Answer(engine.AnswerBusyHere); err != nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "failed to answer call", slog.Any("error", err))
		}
		p.metrics.calls.WithLabelValues(Incoming.String(), engine.AnswerBusyHere.String()).Inc()
		return
	}

	tc := newTrackedCall(call, Incoming, engine.CallStateIncomingTrying)
	p.call = tc
	call.SetHandler(&callHandler{p})

	if err := call.Answer(engine.AnswerRinging); err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to answer call", slog.Any("call", tc.info()), slog.Any("error", err))
		p.terminateCall(ctx, engine.CallStateError, false)
		return
	}

	info := tc.info()
	p.log.LogAttrs(ctx, slog.LevelInfo, "incoming call", slog.Any("call", info))
	p.publish(ctx, IncomingCall{Call: info})
}

// MakeCall places a call to the number within the realm of the registered user.
// The remote URI is the country code, the number, "@" and the realm.
func (p *Phone) MakeCall(ctx context.Context, number string) (CallInfo, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return CallInfo{}, errtrace.Wrap(errorutil.NewInvalidArgumentError("empty number"))
	}

	var info CallInfo
	err := p.do(ctx, func(ctx context.Context) error {
		if p.RegistrationState() != Registered || p.acct.tag != slotPresent || p.user == nil {
			return errtrace.Wrap(ErrNotRegistered)
		}
		if p.call != nil {
			return errtrace.Wrap(ErrCallInProgress)
		}

		uri := p.countryCode + number + "@" + p.user.Realm()
		call, err := p.acct.acc.MakeCall(uri, &callHandler{p})
		if err != nil {
			p.log.LogAttrs(ctx, slog.LevelError, "failed to make call", slog.String("uri", uri), slog.Any("error", err))
			return errtrace.Wrap(err)
		}

		tc := newTrackedCall(call, Outgoing, engine.CallStateTrying)
		p.call = tc
		info = tc.info()

		p.log.LogAttrs(ctx, slog.LevelInfo, "outgoing call", slog.Any("call", info))
		p.publish(ctx, CallStateChanged{Call: info})
		return nil
	})
	return info, errtrace.Wrap(err)
}

func (p *Phone) pendingIncoming() (*trackedCall, error) {
	tc := p.call
	if tc == nil || tc.dir != Incoming || tc.phase() != CallConnecting {
		return nil, errtrace.Wrap(ErrNoActiveCall)
	}
	return tc, nil
}

// Answer accepts the pending incoming call.
func (p *Phone) Answer(ctx context.Context) error {
	return errtrace.Wrap(p.do(ctx, func(ctx context.Context) error {
		tc, err := p.pendingIncoming()
		if err != nil {
			return errtrace.Wrap(err)
		}
		p.log.LogAttrs(ctx, slog.LevelInfo, "answer call", slog.Any("call", tc.info()))
		return errtrace.Wrap(tc.call.Answer(engine.AnswerOK))
	}))
}

// Reject declines the pending incoming call as busy.
func (p *Phone) Reject(ctx context.Context) error {
	return errtrace.Wrap(p.do(ctx, func(ctx context.Context) error {
		tc, err := p.pendingIncoming()
		if err != nil {
			return errtrace.Wrap(err)
		}
		p.log.LogAttrs(ctx, slog.LevelInfo, "reject call", slog.Any("call", tc.info()))
		if err := tc.call.Answer(engine.AnswerBusyHere); err != nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "failed to answer call", slog.Any("error", err))
		}
		p.terminateCall(ctx, engine.CallStateIncomingRejected, false)
		return nil
	}))
}

// Hangup ends the tracked call.
func (p *Phone) Hangup(ctx context.Context) error {
	return errtrace.Wrap(p.do(ctx, func(ctx context.Context) error {
		if p.call == nil {
			return errtrace.Wrap(ErrNoActiveCall)
		}
		p.terminateCall(ctx, engine.CallStateTerminated, true)
		return nil
	}))
}

// SetMute mutes or unmutes the microphone of the tracked call.
func (p *Phone) SetMute(ctx context.Context, mute bool) error {
	return errtrace.Wrap(p.do(ctx, func(context.Context) error {
		if p.call == nil {
			return errtrace.Wrap(ErrNoActiveCall)
		}
		if err := p.call.call.SetMute(mute); err != nil {
			return errtrace.Wrap(err)
		}
		p.call.muted = mute
		return nil
	}))
}

// SetSpeaker routes call audio to the loudspeaker or back to the earpiece.
func (p *Phone) SetSpeaker(ctx context.Context, on bool) error {
	return errtrace.Wrap(p.do(ctx, func(context.Context) error {
		if p.tp == nil {
			return errtrace.Wrap(ErrNoTransport)
		}
		route := engine.AudioRouteEarpiece
		if on {
			route = engine.AudioRouteLoudspeaker
		}
		if err := p.tp.SetAudioOutputRoute(route); err != nil {
			return errtrace.Wrap(err)
		}
		p.speaker = on
		return nil
	}))
}

// ValidDigit reports whether d is a single DTMF digit: 0-9, *, # or A-D.
func ValidDigit(d string) bool {
	if len(d) != 1 {
		return false
	}
	c := d[0]
	return c >= '0' && c <= '9' || c == '*' || c == '#' || c >= 'A' && c <= 'D'
}

// PlayDigit sends the DTMF digit to the tracked call, if any,
// and plays the local feedback tone.
func (p *Phone) PlayDigit(ctx context.Context, digit string) error {
	if !ValidDigit(digit) {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("invalid DTMF digit %q", digit))
	}

	return errtrace.Wrap(p.do(ctx, func(ctx context.Context) error {
		if p.call != nil {
			if err := p.call.call.DialDTMF(digit); err != nil {
				p.log.LogAttrs(ctx, slog.LevelWarn, "failed to send DTMF digit",
					slog.String("digit", digit),
					slog.Any("call", p.call.info()),
					slog.Any("error", err),
				)
			}
		} else if p.tones != nil {
			if err := p.tones.SetAmbientOutput(); err != nil {
				p.log.LogAttrs(ctx, slog.LevelWarn, "failed to set ambient audio output", slog.Any("error", err))
			}
		}

		if p.tones != nil {
			if err := p.tones.PlayDigit(digit, p.toneVolume); err != nil {
				p.log.LogAttrs(ctx, slog.LevelWarn, "failed to play tone", slog.String("digit", digit), slog.Any("error", err))
			}
		}
		return nil
	}))
}

// CurrentCall returns a snapshot of the tracked call or nil.
func (p *Phone) CurrentCall(ctx context.Context) (*CallInfo, error) {
	var info *CallInfo
	err := p.do(ctx, func(context.Context) error {
		if p.call != nil {
			i := p.call.info()
			info = &i
		}
		return nil
	})
	return info, errtrace.Wrap(err)
}
