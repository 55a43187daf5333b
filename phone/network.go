package phone

import (
	"context"
	"log/slog"

	"github.com/ghettovoice/softphone/platform"
)

// handleNetworkChange rebuilds the engine stack when the coarse network status changes.
// Repeated notifications of the same status are ignored.
func (p *Phone) handleNetworkChange(ctx context.Context, st platform.Status) {
	if p.closed || st == p.netStatus {
		return
	}

	p.log.LogAttrs(ctx, slog.LevelInfo, "network status changed",
		slog.Any("from", p.netStatus),
		slog.Any("to", st),
		slog.Any("user", p.user),
	)

	p.acquireGrant(ctx)
	p.teardownEngine(ctx)
	p.fireReg(ctx, regEvtTeardown)

	if st != platform.Unreachable && p.user != nil {
		p.metrics.reconnects.Inc()
		p.register(ctx, p.user)
	}
	p.netStatus = st
}
