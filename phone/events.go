package phone

import (
	"context"
	"log/slog"
)

// Event is a coordinator notification.
// It is one of [RegistrationChanged], [IncomingCall] or [CallStateChanged].
type Event interface {
	slog.LogValuer
	event()
}

// RegistrationChanged is published when the registration state changes.
type RegistrationChanged struct {
	State RegistrationState
	// Code is the last raw registration code reported by the engine.
	Code int
}

func (RegistrationChanged) event() {}

func (e RegistrationChanged) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("type", "registration_changed"),
		slog.Any("state", e.State),
		slog.Int("code", e.Code),
	)
}

// IncomingCall is published when a new incoming call becomes the tracked call.
type IncomingCall struct {
	Call CallInfo
}

func (IncomingCall) event() {}

func (e IncomingCall) LogValue() slog.Value {
	return slog.GroupValue(slog.String("type", "incoming_call"), slog.Any("call", e.Call))
}

// CallStateChanged is published when the tracked call changes its state.
type CallStateChanged struct {
	Call CallInfo
}

func (CallStateChanged) event() {}

func (e CallStateChanged) LogValue() slog.Value {
	return slog.GroupValue(slog.String("type", "call_state_changed"), slog.Any("call", e.Call))
}

// Subscribe registers fn to receive coordinator events.
// fn runs on the coordinator loop; ctx may be used to call back into the coordinator.
func (p *Phone) Subscribe(fn func(ctx context.Context, ev Event)) (cancel func()) {
	return p.subs.Add(fn)
}

func (p *Phone) publish(ctx context.Context, ev Event) {
	p.log.LogAttrs(ctx, slog.LevelDebug, "publish event", slog.Any("event", ev))
	for fn := range p.subs.All() {
		fn(ctx, ev)
	}
}
