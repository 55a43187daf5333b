package phone

import (
	"context"

	"braces.dev/errtrace"
	"github.com/frostbyte73/core"

	"github.com/ghettovoice/softphone/internal/types"
)

const loopCtxKey types.ContextKey = "phone_loop"

// Loop is a serial executor. Tasks run one at a time in submission order
// on a dedicated goroutine.
type Loop struct {
	queue  types.Deque[func(context.Context)]
	wake   chan struct{}
	ctx    context.Context
	closed core.Fuse
	done   chan struct{}
}

// NewLoop starts a new loop.
func NewLoop() *Loop {
	l := &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	l.ctx = context.WithValue(context.Background(), loopCtxKey, l)
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.done)

	for {
		select {
		case <-l.closed.Watch():
			return
		case <-l.wake:
		}

		for !l.closed.IsBroken() {
			task, ok := l.queue.PopFirst()
			if !ok {
				break
			}
			task(l.ctx)
		}
	}
}

// OnLoop reports whether ctx was handed out by the loop to a running task.
func (l *Loop) OnLoop(ctx context.Context) bool {
	v, _ := ctx.Value(loopCtxKey).(*Loop)
	return v == l
}

// Post enqueues fn and returns immediately.
// It returns false if the loop is closed.
func (l *Loop) Post(fn func(ctx context.Context)) bool {
	if l.closed.IsBroken() {
		return false
	}
	l.queue.Append(fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Do runs fn on the loop and waits for its result.
// If ctx comes from a task of this loop, fn runs inline.
// Calling Do from a loop task with any other context deadlocks.
func (l *Loop) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if l.OnLoop(ctx) {
		return errtrace.Wrap(fn(ctx))
	}

	res := make(chan error, 1)
	if !l.Post(func(context.Context) {
		res <- fn(context.WithValue(context.WithoutCancel(ctx), loopCtxKey, l))
	}) {
		return errtrace.Wrap(ErrClosed)
	}

	select {
	case err := <-res:
		return errtrace.Wrap(err)
	case <-ctx.Done():
		return errtrace.Wrap(ctx.Err())
	case <-l.closed.Watch():
		return errtrace.Wrap(ErrClosed)
	}
}

// Close stops the loop and waits for the running task to finish.
// Pending tasks are dropped. Close must not be called from a loop task.
func (l *Loop) Close() {
	l.closed.Break()
	<-l.done
}
