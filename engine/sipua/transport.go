package sipua

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"

	"braces.dev/errtrace"
	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/errorutil"
)

// Transport is a SIP transport backed by a sipgo user agent.
type Transport struct {
	opts *Options
	log  *slog.Logger

	mu       sync.Mutex
	typ      engine.TransportType
	route    engine.AudioRoute
	ua       *sipgo.UserAgent
	srv      *sipgo.Server
	cli      *sipgo.Client
	dialogs  *sipgo.DialogUA
	listener io.Closer
	host     string
	port     int
	accounts []*Account
	calls    map[string]*Call
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ engine.Transport = (*Transport)(nil)

func newTransport(opts *Options) *Transport {
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		opts:   opts,
		log:    opts.log(),
		typ:    engine.TransportUDP,
		route:  engine.AudioRouteEarpiece,
		calls:  make(map[string]*Call),
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetTransportType selects the protocol. It must be called before [Transport.Initialize].
func (t *Transport) SetTransportType(typ engine.TransportType) error {
	switch typ {
	case engine.TransportUDP, engine.TransportTCP:
	default:
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("unsupported transport type %q", typ))
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ua != nil {
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("transport already initialized"))
	}
	t.typ = typ
	return nil
}

// SetAudioOutputRoute records the output route of call audio.
func (t *Transport) SetAudioOutputRoute(route engine.AudioRoute) error {
	switch route {
	case engine.AudioRouteEarpiece, engine.AudioRouteLoudspeaker:
	default:
		return errtrace.Wrap(errorutil.NewInvalidArgumentError("unsupported audio route %q", route))
	}

	t.mu.Lock()
	t.route = route
	t.mu.Unlock()

	t.log.LogAttrs(t.ctx, slog.LevelDebug, "audio route changed", slog.Any("route", route))
	return nil
}

// AudioOutputRoute returns the current audio output route.
func (t *Transport) AudioOutputRoute() engine.AudioRoute {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.route
}

// Initialize binds the listening socket and starts serving requests.
func (t *Transport) Initialize() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errtrace.Wrap(ErrClosed)
	}
	if t.ua != nil {
		return nil
	}

	ua, err := sipgo.NewUA(sipgo.WithUserAgent(t.opts.userAgent()))
	if err != nil {
		return errtrace.Wrap(err)
	}
	srv, err := sipgo.NewServer(ua)
	if err != nil {
		ua.Close()
		return errtrace.Wrap(err)
	}

	var (
		laddr net.Addr
		serve func() error
	)
	switch t.typ {
	case engine.TransportTCP:
		ln, err := net.Listen("tcp", t.opts.listenAddr())
		if err != nil {
			ua.Close()
			return errtrace.Wrap(err)
		}
		t.listener, laddr = ln, ln.Addr()
		serve = func() error { return srv.ServeTCP(ln) }
	default:
		conn, err := net.ListenPacket("udp", t.opts.listenAddr())
		if err != nil {
			ua.Close()
			return errtrace.Wrap(err)
		}
		t.listener, laddr = conn, conn.LocalAddr()
		serve = func() error { return srv.ServeUDP(conn) }
	}

	host, portStr, _ := net.SplitHostPort(laddr.String())
	port, _ := strconv.Atoi(portStr)
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = localIP()
	}
	// Client requests leave from their own ephemeral sockets bound to the
	// local host, the listener port stays with the server.
	var cliOpts []sipgo.ClientOption
	if h := t.opts.contactHost(); h != "" {
		host = h
	} else {
		cliOpts = append(cliOpts, sipgo.WithClientHostname(host))
	}

	cli, err := sipgo.NewClient(ua, cliOpts...)
	if err != nil {
		t.listener.Close()
		ua.Close()
		return errtrace.Wrap(err)
	}

	srv.OnInvite(t.onInvite)
	srv.OnAck(t.onAck)
	srv.OnBye(t.onBye)
	srv.OnCancel(t.onCancel)
	srv.OnInfo(t.onInfo)
	srv.OnOptions(t.onOptions)

	t.ua, t.srv, t.cli = ua, srv, cli
	t.host, t.port = host, port
	t.dialogs = &sipgo.DialogUA{
		Client: cli,
		ContactHDR: sip.ContactHeader{
			Address: t.uriLocked(""),
		},
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := serve(); err != nil && !errors.Is(err, net.ErrClosed) && t.ctx.Err() == nil {
			t.log.LogAttrs(t.ctx, slog.LevelError, "sip server stopped", slog.Any("error", err))
		}
	}()

	t.log.LogAttrs(t.ctx, slog.LevelInfo, "sip transport listening",
		slog.Any("type", t.typ),
		slog.String("local_addr", laddr.String()),
		slog.String("contact_host", host),
	)
	return nil
}

// LocalAddr returns the advertised host:port or an empty string before initialization.
func (t *Transport) LocalAddr() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ua == nil {
		return ""
	}
	return net.JoinHostPort(t.host, strconv.Itoa(t.port))
}

// Close hangs up active calls, closes accounts and releases the socket.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	accs := t.accounts
	t.accounts = nil
	calls := make([]*Call, 0, len(t.calls))
	for _, c := range t.calls {
		calls = append(calls, c)
	}
	t.mu.Unlock()

	for _, c := range calls {
		c.Hangup()
	}
	for _, a := range accs {
		a.Close()
	}

	t.cancel()

	t.mu.Lock()
	ua, cli, ln := t.ua, t.cli, t.listener
	t.mu.Unlock()

	var errs []error
	if cli != nil {
		errs = append(errs, cli.Close())
	}
	if ln != nil {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if ua != nil {
		errs = append(errs, ua.Close())
	}
	t.wg.Wait()

	t.log.LogAttrs(context.Background(), slog.LevelDebug, "sip transport closed")
	return errtrace.Wrap(errors.Join(errs...))
}

func (t *Transport) state() (*sipgo.Client, *sipgo.DialogUA, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, nil, errtrace.Wrap(ErrClosed)
	}
	if t.ua == nil {
		return nil, nil, errtrace.Wrap(ErrNotInitialized)
	}
	return t.cli, t.dialogs, nil
}

// client returns the sipgo client even while the transport is closing,
// so that final requests still go out.
func (t *Transport) client() *sipgo.Client {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cli
}

func (t *Transport) newAccount(params engine.AccountParams, h engine.AccountHandler) (*Account, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errtrace.Wrap(ErrClosed)
	}
	if t.ua == nil {
		return nil, errtrace.Wrap(ErrNotInitialized)
	}

	a := newAccount(t, params, h)
	t.accounts = append(t.accounts, a)
	return a, nil
}

func (t *Transport) removeAccount(a *Account) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, acc := range t.accounts {
		if acc == a {
			t.accounts = append(t.accounts[:i], t.accounts[i+1:]...)
			return
		}
	}
}

// accountFor picks the account addressed by the request URI user,
// falling back to the first account.
func (t *Transport) accountFor(req *sip.Request) *Account {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, a := range t.accounts {
		if a.params.Username == req.Recipient.User {
			return a
		}
	}
	if len(t.accounts) > 0 {
		return t.accounts[0]
	}
	return nil
}

// uriLocked builds a SIP URI of the local contact for user.
func (t *Transport) uriLocked(user string) sip.Uri {
	u := sip.Uri{
		Scheme:    "sip",
		User:      user,
		Host:      t.host,
		Port:      t.port,
		UriParams: sip.NewParams(),
	}
	if t.typ == engine.TransportTCP {
		u.UriParams.Add("transport", "tcp")
	}
	return u
}

func (t *Transport) contact(user string) *sip.ContactHeader {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &sip.ContactHeader{Address: t.uriLocked(user)}
}

func (t *Transport) media() (string, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.host, t.opts.mediaPort()
}

func (t *Transport) transportType() engine.TransportType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typ
}

func (t *Transport) addCall(c *Call) {
	t.mu.Lock()
	t.calls[c.id] = c
	t.mu.Unlock()
}

func (t *Transport) removeCall(c *Call) {
	t.mu.Lock()
	if t.calls[c.id] == c {
		delete(t.calls, c.id)
	}
	t.mu.Unlock()
}

func (t *Transport) callFor(req *sip.Request) *Call {
	id := req.CallID()
	if id == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls[string(*id)]
}

func (t *Transport) onInvite(req *sip.Request, tx sip.ServerTransaction) {
	if c := t.callFor(req); c != nil {
		// re-INVITE inside an existing dialog
		c.onReinvite(req, tx)
		return
	}

	acc := t.accountFor(req)
	if acc == nil {
		respond(tx, req, 480, "Temporarily Unavailable")
		return
	}
	if req.CallID() == nil {
		respond(tx, req, 400, "Missing Call-ID")
		return
	}

	respond(tx, req, 100, "Trying")
	c := newIncomingCall(t, acc, req, tx)
	t.addCall(c)

	t.log.LogAttrs(t.ctx, slog.LevelInfo, "incoming call",
		slog.String("call_id", c.id),
		slog.String("from", c.remote),
	)
	c.watchInvite()
	acc.handler.OnIncomingCall(acc, c)
}

func (t *Transport) onAck(req *sip.Request, tx sip.ServerTransaction) {
	if c := t.callFor(req); c != nil {
		c.onAck(req, tx)
	}
}

func (t *Transport) onBye(req *sip.Request, tx sip.ServerTransaction) {
	c := t.callFor(req)
	if c == nil {
		respond(tx, req, 481, "Call/Transaction Does Not Exist")
		return
	}
	c.onBye(req, tx)
}

func (t *Transport) onCancel(req *sip.Request, tx sip.ServerTransaction) {
	c := t.callFor(req)
	if c == nil {
		respond(tx, req, 481, "Call/Transaction Does Not Exist")
		return
	}
	respond(tx, req, 200, "OK")
	c.onCancel()
}

func (t *Transport) onInfo(req *sip.Request, tx sip.ServerTransaction) {
	if t.callFor(req) == nil {
		respond(tx, req, 481, "Call/Transaction Does Not Exist")
		return
	}
	respond(tx, req, 200, "OK")
}

func (t *Transport) onOptions(req *sip.Request, tx sip.ServerTransaction) {
	res := sip.NewResponseFromRequest(req, 200, "OK", nil)
	res.AppendHeader(sip.NewHeader("Allow", "INVITE, ACK, CANCEL, BYE, INFO, OPTIONS"))
	if err := tx.Respond(res); err != nil {
		t.log.LogAttrs(t.ctx, slog.LevelDebug, "failed to respond to OPTIONS", slog.Any("error", err))
	}
}

func respond(tx sip.ServerTransaction, req *sip.Request, code int, reason string) error {
	return errtrace.Wrap(tx.Respond(sip.NewResponseFromRequest(req, sip.StatusCode(code), reason, nil)))
}

// localIP returns the first non-loopback IPv4 address of the host.
func localIP() string {
	addrs, err := net.InterfaceAddrs()
	if err == nil {
		for _, a := range addrs {
			if n, ok := a.(*net.IPNet); ok && !n.IP.IsLoopback() && n.IP.To4() != nil {
				return n.IP.String()
			}
		}
	}
	return "127.0.0.1"
}
