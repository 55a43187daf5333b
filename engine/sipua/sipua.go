// Package sipua implements the phone engine on top of the sipgo SIP stack.
//
// A [Transport] owns one sipgo user agent with its server and client bound to
// a single listening socket. Accounts keep their registration alive with a
// refresh loop; calls are sipgo dialog sessions. Audio is signalled in SDP
// only, no media is sent or received.
package sipua

//go:generate go tool errtrace -w .

import (
	"log/slog"
	"time"

	"braces.dev/errtrace"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/errorutil"
	"github.com/ghettovoice/softphone/internal/log"
)

const (
	ErrInvalidArgument                 = errorutil.ErrInvalidArgument
	ErrClosed          errorutil.Error = "sip transport closed"
	ErrNotInitialized  errorutil.Error = "sip transport not initialized"
	ErrConnected       errorutil.Error = "account already connected"
	ErrInvalidState    errorutil.Error = "invalid call state"
)

// Defaults of [Options].
const (
	DefaultListenAddr     = "0.0.0.0:0"
	DefaultUserAgent      = "softphone"
	DefaultMediaPort      = 40000
	DefaultRequestTimeout = 10 * time.Second
)

// Options are options of the [Engine].
type Options struct {
	// ListenAddr is the local SIP address.
	// If empty, [DefaultListenAddr] is used.
	ListenAddr string
	// ContactHost is the host advertised in Contact and SDP.
	// If empty, the listen host or the first non-loopback interface address is used.
	ContactHost string
	// UserAgent is the User-Agent header value.
	// If empty, [DefaultUserAgent] is used.
	UserAgent string
	// MediaPort is the RTP port advertised in SDP.
	// If zero, [DefaultMediaPort] is used.
	MediaPort int
	// RequestTimeout bounds each non-INVITE transaction.
	// If zero, [DefaultRequestTimeout] is used.
	RequestTimeout time.Duration
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *Options) listenAddr() string {
	if o == nil || o.ListenAddr == "" {
		return DefaultListenAddr
	}
	return o.ListenAddr
}

func (o *Options) contactHost() string {
	if o == nil {
		return ""
	}
	return o.ContactHost
}

func (o *Options) userAgent() string {
	if o == nil || o.UserAgent == "" {
		return DefaultUserAgent
	}
	return o.UserAgent
}

func (o *Options) mediaPort() int {
	if o == nil || o.MediaPort <= 0 {
		return DefaultMediaPort
	}
	return o.MediaPort
}

func (o *Options) reqTimeout() time.Duration {
	if o == nil || o.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return o.RequestTimeout
}

func (o *Options) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}

// Engine creates sipgo backed transports and accounts.
type Engine struct {
	opts *Options
}

var _ engine.Engine = (*Engine)(nil)

// New creates an engine.
func New(opts *Options) *Engine {
	return &Engine{opts: opts}
}

// NewTransport creates a transport that is bound on [Transport.Initialize].
func (e *Engine) NewTransport() (engine.Transport, error) {
	return newTransport(e.opts), nil
}

// NewAccount creates an account on an initialized transport of this engine.
func (e *Engine) NewAccount(tp engine.Transport, params engine.AccountParams, h engine.AccountHandler) (engine.Account, error) {
	t, ok := tp.(*Transport)
	if !ok {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("unsupported transport %T", tp))
	}
	if params.Domain == "" || params.Username == "" {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("domain and username are required"))
	}
	if h == nil {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError("nil account handler"))
	}
	acc, err := t.newAccount(params, h)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return acc, nil
}
