package sipua

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"braces.dev/errtrace"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/errorutil"
)

// Defaults of the registration timing.
const (
	DefaultRegistrationInterval = 1200 * time.Second
	DefaultFirstRetryInterval   = 8 * time.Second
	DefaultRetryInterval        = 60 * time.Second
)

// Account keeps a registration binding alive and places calls.
type Account struct {
	tp      *Transport
	params  engine.AccountParams
	handler engine.AccountHandler
	log     *slog.Logger

	callID  string
	fromTag string
	cseq    uint32

	mu         sync.Mutex
	interval   time.Duration
	firstRetry time.Duration
	retry      time.Duration
	started    bool
	closed     bool
	cancel     context.CancelFunc
	done       chan struct{}

	update chan struct{}
	active atomic.Bool
}

var _ engine.Account = (*Account)(nil)

func newAccount(tp *Transport, params engine.AccountParams, h engine.AccountHandler) *Account {
	return &Account{
		tp:         tp,
		params:     params,
		handler:    h,
		log:        tp.log.With(slog.String("account", params.Username+"@"+params.Domain)),
		callID:     uuid.NewString(),
		fromTag:    sip.GenerateTagN(16),
		interval:   DefaultRegistrationInterval,
		firstRetry: DefaultFirstRetryInterval,
		retry:      DefaultRetryInterval,
		update:     make(chan struct{}, 1),
	}
}

func (a *Account) SetRegistrationInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.interval = d
	a.mu.Unlock()
}

func (a *Account) SetRegistrationFirstRetryInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.firstRetry = d
	a.mu.Unlock()
}

func (a *Account) SetRegistrationRetryInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.retry = d
	a.mu.Unlock()
}

// Connect starts the registration loop.
func (a *Account) Connect() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return errtrace.Wrap(ErrClosed)
	}
	if a.started {
		return errtrace.Wrap(ErrConnected)
	}
	if _, _, err := a.tp.state(); err != nil {
		return errtrace.Wrap(err)
	}

	ctx, cancel := context.WithCancel(a.tp.ctx)
	a.started, a.cancel, a.done = true, cancel, make(chan struct{})
	go a.run(ctx, a.done)
	return nil
}

// UpdateRegistration schedules an immediate REGISTER. Without force it is
// skipped while the binding is active.
func (a *Account) UpdateRegistration(force bool) error {
	a.mu.Lock()
	started, closed := a.started, a.closed
	a.mu.Unlock()

	if closed {
		return errtrace.Wrap(ErrClosed)
	}
	if !started {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("account is not connected"))
	}
	if !force && a.active.Load() {
		return nil
	}

	select {
	case a.update <- struct{}{}:
	default:
	}
	return nil
}

func (a *Account) IsRegistrationActive() bool { return a.active.Load() }

// Close stops the registration loop and removes the binding from the registrar.
// The un-REGISTER request is sent before Close returns, its response is
// awaited in the background.
func (a *Account) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	cancel, done := a.cancel, a.done
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	a.tp.removeAccount(a)

	if !a.active.Swap(false) {
		return nil
	}

	ctx, cancelUnreg := context.WithTimeout(a.tp.ctx, a.tp.opts.reqTimeout())
	req, tx, err := a.sendRegister(ctx, 0)
	if err != nil {
		cancelUnreg()
		return errtrace.Wrap(err)
	}

	a.tp.wg.Add(1)
	go func() {
		defer a.tp.wg.Done()
		defer cancelUnreg()

		res, err := a.awaitRegister(ctx, req, tx)
		if err != nil {
			a.log.LogAttrs(ctx, slog.LevelDebug, "un-REGISTER failed", slog.Any("error", err))
			return
		}
		a.log.LogAttrs(ctx, slog.LevelDebug, "unregistered", slog.Int("code", int(res.StatusCode)))
	}()
	return nil
}

func (a *Account) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	timer := time.NewTimer(0)
	defer timer.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case <-a.update:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}

		a.mu.Lock()
		interval, firstRetry, retry := a.interval, a.firstRetry, a.retry
		a.mu.Unlock()

		code, granted := a.refresh(ctx, interval)
		if ctx.Err() != nil {
			return
		}

		var next time.Duration
		if a.active.Load() {
			failures = 0
			next = refreshDelay(granted)
		} else {
			failures++
			next = retry
			if failures == 1 {
				next = firstRetry
			}
		}
		a.log.LogAttrs(ctx, slog.LevelDebug, "registration attempt finished",
			slog.Int("code", code),
			slog.Duration("expires", granted),
			slog.Duration("next", next),
		)
		a.handler.OnRegStateChanged(a, code)

		timer.Reset(next)
	}
}

// refresh sends one REGISTER and updates the active flag.
func (a *Account) refresh(ctx context.Context, interval time.Duration) (int, time.Duration) {
	rctx, cancel := context.WithTimeout(ctx, a.tp.opts.reqTimeout())
	defer cancel()

	res, err := a.register(rctx, interval)
	if err != nil {
		a.active.Store(false)
		code := CodeServiceUnavailable
		if errorutil.IsTimeoutErr(err) || rctx.Err() != nil {
			code = CodeRequestTimeout
		}
		if ctx.Err() == nil {
			a.log.LogAttrs(ctx, slog.LevelWarn, "REGISTER failed", slog.Any("error", err))
		}
		return code, 0
	}

	code := int(res.StatusCode)
	granted := grantedExpires(res, interval)
	a.active.Store(RegistrationActive(code, int(granted/time.Second)))
	return code, granted
}

func (a *Account) register(ctx context.Context, expires time.Duration) (*sip.Response, error) {
	req, tx, err := a.sendRegister(ctx, expires)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return errtrace.Wrap2(a.awaitRegister(ctx, req, tx))
}

// sendRegister starts a REGISTER transaction without waiting for responses.
func (a *Account) sendRegister(ctx context.Context, expires time.Duration) (*sip.Request, sip.ClientTransaction, error) {
	cli := a.tp.client()
	if cli == nil {
		return nil, nil, errtrace.Wrap(ErrNotInitialized)
	}

	req := a.newRegister(expires)
	tx, err := cli.TransactionRequest(ctx, req)
	if err != nil {
		return nil, nil, errtrace.Wrap(err)
	}
	a.cseq = req.CSeq().SeqNo
	return req, tx, nil
}

// awaitRegister waits for the final response of the REGISTER transaction
// and answers a digest challenge once.
func (a *Account) awaitRegister(ctx context.Context, req *sip.Request, tx sip.ClientTransaction) (*sip.Response, error) {
	res, err := waitFinal(ctx, tx)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	if res.StatusCode != sip.StatusUnauthorized && res.StatusCode != sip.StatusProxyAuthRequired {
		return res, nil
	}

	tx, err = a.tp.client().DoDigestAuth(ctx, req, res, sipgo.DigestAuth{
		Username: a.params.Username,
		Password: a.params.Password,
	})
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	a.cseq = req.CSeq().SeqNo
	return errtrace.Wrap2(waitFinal(ctx, tx))
}

func (a *Account) newRegister(expires time.Duration) *sip.Request {
	recipient := a.registrarURI()
	req := sip.NewRequest(sip.REGISTER, recipient)

	aor := sip.Uri{Scheme: "sip", User: a.params.Username, Host: a.params.Domain}
	from := &sip.FromHeader{Address: aor, Params: sip.NewParams()}
	from.Params.Add("tag", a.fromTag)
	req.AppendHeader(from)
	req.AppendHeader(&sip.ToHeader{Address: aor, Params: sip.NewParams()})

	callID := sip.CallIDHeader(a.callID)
	req.AppendHeader(&callID)
	// the client increments the sequence number when it sends the request
	req.AppendHeader(&sip.CSeqHeader{SeqNo: a.cseq, MethodName: sip.REGISTER})
	req.AppendHeader(a.tp.contact(a.params.Username))
	exp := sip.ExpiresHeader(uint32(expires / time.Second))
	req.AppendHeader(&exp)
	if a.tp.transportType() == engine.TransportTCP {
		req.SetTransport("TCP")
	}
	return req
}

func (a *Account) registrarURI() sip.Uri {
	target := a.params.Registrar
	if target == "" {
		target = a.params.Domain
	}

	u := sip.Uri{Scheme: "sip", Host: target, UriParams: sip.NewParams()}
	if host, port, err := net.SplitHostPort(target); err == nil {
		u.Host = host
		u.Port, _ = strconv.Atoi(port)
	}
	if a.tp.transportType() == engine.TransportTCP {
		u.UriParams.Add("transport", "tcp")
	}
	return u
}

// MakeCall sends an INVITE to uri.
func (a *Account) MakeCall(uri string, h engine.CallHandler) (engine.Call, error) {
	a.mu.Lock()
	closed := a.closed
	a.mu.Unlock()
	if closed {
		return nil, errtrace.Wrap(ErrClosed)
	}

	c, err := newOutgoingCall(a.tp, a, uri, h)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return c, nil
}

// waitFinal waits for the final response of the client transaction.
func waitFinal(ctx context.Context, tx sip.ClientTransaction) (*sip.Response, error) {
	defer tx.Terminate()

	for {
		select {
		case res := <-tx.Responses():
			if res.StatusCode < 200 {
				continue
			}
			return res, nil
		case <-tx.Done():
			select {
			case res := <-tx.Responses():
				if res.StatusCode >= 200 {
					return res, nil
				}
			default:
			}
			if err := tx.Err(); err != nil {
				return nil, errtrace.Wrap(err)
			}
			return nil, errtrace.Wrap(context.DeadlineExceeded)
		case <-ctx.Done():
			return nil, errtrace.Wrap(ctx.Err())
		}
	}
}

// grantedExpires reads the binding lifetime granted by the registrar,
// from the Contact expires parameter or the Expires header.
func grantedExpires(res *sip.Response, requested time.Duration) time.Duration {
	if c := res.Contact(); c != nil && c.Params != nil {
		if v, ok := c.Params.Get("expires"); ok {
			if n, err := strconv.Atoi(v); err == nil {
				return time.Duration(n) * time.Second
			}
		}
	}
	if h := res.GetHeader("Expires"); h != nil {
		if n, err := strconv.Atoi(h.Value()); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return requested
}

// refreshDelay returns how long before expiration the binding is refreshed.
func refreshDelay(expires time.Duration) time.Duration {
	if expires <= 0 {
		return DefaultRetryInterval
	}
	margin := min(expires/10, 30*time.Second)
	return max(expires-margin, time.Second)
}
