package phone

import (
	"context"
	"log/slog"

	"braces.dev/errtrace"
)

// Presenter shows the call UI.
type Presenter interface {
	// IsPresenting reports whether a call UI is already shown.
	IsPresenting() bool
	Present(call CallInfo)
}

// Router presents incoming and outgoing calls to the UI.
// An incoming call that arrives while a call UI is shown is rejected as busy.
type Router struct {
	p      *Phone
	pres   Presenter
	cancel func()
}

// NewRouter subscribes to the coordinator events.
func NewRouter(p *Phone, pres Presenter) *Router {
	r := &Router{p: p, pres: pres}
	r.cancel = p.Subscribe(r.handleEvent)
	return r
}

func (r *Router) handleEvent(ctx context.Context, ev Event) {
	ic, ok := ev.(IncomingCall)
	if !ok {
		return
	}

	if r.pres.IsPresenting() {
		r.p.log.LogAttrs(ctx, slog.LevelInfo, "call UI is busy, reject incoming call", slog.Any("call", ic.Call))
		if err := r.p.Reject(ctx); err != nil {
			r.p.log.LogAttrs(ctx, slog.LevelWarn, "failed to reject call", slog.Any("error", err))
		}
		return
	}
	r.pres.Present(ic.Call)
}

// MakeCall places the call and presents it.
func (r *Router) MakeCall(ctx context.Context, number string) (CallInfo, error) {
	info, err := r.p.MakeCall(ctx, number)
	if err != nil {
		return info, errtrace.Wrap(err)
	}
	r.pres.Present(info)
	return info, nil
}

// Close stops routing.
func (r *Router) Close() {
	r.cancel()
}
