package phone

import (
	"context"
	"log/slog"

	"github.com/ghettovoice/softphone/platform"
)

// acquireGrant begins extended background execution unless a grant is already held.
func (p *Phone) acquireGrant(ctx context.Context) {
	if p.grant != "" {
		return
	}

	var id platform.GrantID
	id, err := p.host.BeginExtendedExecution(func() {
		p.loop.Post(func(ctx context.Context) {
			if p.grant != id {
				return
			}
			p.log.LogAttrs(ctx, slog.LevelDebug, "background grant expired", slog.Any("grant", id))
			p.grant = ""
		})
	})
	if err != nil {
		p.log.LogAttrs(ctx, slog.LevelWarn, "failed to begin background execution", slog.Any("error", err))
		return
	}
	p.grant = id
	p.log.LogAttrs(ctx, slog.LevelDebug, "background grant acquired", slog.Any("grant", id))
}

func (p *Phone) releaseGrant(ctx context.Context) {
	if p.grant == "" {
		return
	}
	id := p.grant
	p.grant = ""
	p.host.EndExtendedExecution(id)
	p.log.LogAttrs(ctx, slog.LevelDebug, "background grant released", slog.Any("grant", id))
}

func (p *Phone) actScheduleWake(ctx context.Context, _ ...any) error {
	if p.wakeScheduled {
		return nil
	}

	err := p.host.SchedulePeriodicWake(p.wakeInterval, func() {
		p.loop.Post(p.handleWake)
	})
	if err != nil {
		p.log.LogAttrs(ctx, slog.LevelWarn, "failed to schedule periodic wake", slog.Any("error", err))
		return nil
	}
	p.wakeScheduled = true
	p.log.LogAttrs(ctx, slog.LevelDebug, "periodic wake scheduled", slog.Duration("interval", p.wakeInterval))
	return nil
}

func (p *Phone) handleWake(ctx context.Context) {
	if p.closed {
		return
	}

	p.log.LogAttrs(ctx, slog.LevelDebug, "periodic wake", slog.Any("user", p.user))
	p.acquireGrant(ctx)
	if p.user != nil {
		p.register(ctx, p.user)
	}
}

func (p *Phone) handleLifecycle(ctx context.Context, lc platform.Lifecycle) {
	if p.closed {
		return
	}

	p.log.LogAttrs(ctx, slog.LevelDebug, "application lifecycle changed", slog.Any("lifecycle", lc))
	switch lc {
	case platform.Active:
		p.releaseGrant(ctx)
	case platform.Background:
		if p.user != nil {
			p.acquireGrant(ctx)
			p.register(ctx, p.user)
		}
	}
}
