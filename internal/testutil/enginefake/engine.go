// Package enginefake provides an in-memory SIP engine for tests.
// Every command is recorded; tests drive callbacks explicitly.
package enginefake

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ghettovoice/softphone/engine"
)

// Engine is a fake [engine.Engine].
type Engine struct {
	mu         sync.Mutex
	transports []*Transport
	accounts   []*Account

	// Errors returned by the next constructor calls.
	NewTransportErr error
	NewAccountErr   error
}

// New returns a new fake engine.
func New() *Engine { return &Engine{} }

func (e *Engine) NewTransport() (engine.Transport, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.NewTransportErr != nil {
		return nil, e.NewTransportErr
	}
	tp := &Transport{}
	e.transports = append(e.transports, tp)
	return tp, nil
}

func (e *Engine) NewAccount(tp engine.Transport, params engine.AccountParams, h engine.AccountHandler) (engine.Account, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.NewAccountErr != nil {
		return nil, e.NewAccountErr
	}
	acc := &Account{tp: tp, params: params, handler: h}
	e.accounts = append(e.accounts, acc)
	return acc, nil
}

// Accounts returns all accounts created so far.
func (e *Engine) Accounts() []*Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Account(nil), e.accounts...)
}

// LastAccount returns the last created account or nil.
func (e *Engine) LastAccount() *Account {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.accounts) == 0 {
		return nil
	}
	return e.accounts[len(e.accounts)-1]
}

// Transports returns all transports created so far.
func (e *Engine) Transports() []*Transport {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Transport(nil), e.transports...)
}

// Transport is a fake [engine.Transport].
type Transport struct {
	mu          sync.Mutex
	initialized bool
	typ         engine.TransportType
	route       engine.AudioRoute
	closed      bool
}

func (t *Transport) Initialize() error {
	t.mu.Lock()
	t.initialized = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) SetTransportType(typ engine.TransportType) error {
	t.mu.Lock()
	t.typ = typ
	t.mu.Unlock()
	return nil
}

func (t *Transport) SetAudioOutputRoute(route engine.AudioRoute) error {
	t.mu.Lock()
	t.route = route
	t.mu.Unlock()
	return nil
}

func (t *Transport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *Transport) Initialized() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.initialized
}

func (t *Transport) Type() engine.TransportType {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.typ
}

func (t *Transport) Route() engine.AudioRoute {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.route
}

func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Account is a fake [engine.Account].
type Account struct {
	tp      engine.Transport
	params  engine.AccountParams
	handler engine.AccountHandler

	mu         sync.Mutex
	interval   time.Duration
	firstRetry time.Duration
	retry      time.Duration
	connects   int
	updates    []bool
	active     bool
	closed     bool
	calls      []*Call

	// MakeCallErr is returned by MakeCall when set.
	MakeCallErr error
}

func (a *Account) SetRegistrationInterval(d time.Duration) {
	a.mu.Lock()
	a.interval = d
	a.mu.Unlock()
}

func (a *Account) SetRegistrationFirstRetryInterval(d time.Duration) {
	a.mu.Lock()
	a.firstRetry = d
	a.mu.Unlock()
}

func (a *Account) SetRegistrationRetryInterval(d time.Duration) {
	a.mu.Lock()
	a.retry = d
	a.mu.Unlock()
}

func (a *Account) Connect() error {
	a.mu.Lock()
	a.connects++
	a.mu.Unlock()
	return nil
}

func (a *Account) UpdateRegistration(force bool) error {
	a.mu.Lock()
	a.updates = append(a.updates, force)
	a.mu.Unlock()
	return nil
}

func (a *Account) IsRegistrationActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

func (a *Account) MakeCall(uri string, h engine.CallHandler) (engine.Call, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.MakeCallErr != nil {
		return nil, a.MakeCallErr
	}
	c := newCall(uri)
	c.handler = h
	a.calls = append(a.calls, c)
	return c, nil
}

func (a *Account) Close() error {
	a.mu.Lock()
	a.closed = true
	a.active = false
	a.mu.Unlock()
	return nil
}

// Params returns the account parameters.
func (a *Account) Params() engine.AccountParams { return a.params }

// Transport returns the transport the account was created on.
func (a *Account) Transport() engine.Transport { return a.tp }

// Intervals returns the registration, first retry and retry intervals.
func (a *Account) Intervals() (reg, firstRetry, retry time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interval, a.firstRetry, a.retry
}

// Connects returns the number of Connect calls.
func (a *Account) Connects() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connects
}

// Updates returns the force flags of UpdateRegistration calls.
func (a *Account) Updates() []bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]bool(nil), a.updates...)
}

func (a *Account) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// Calls returns outgoing calls made on the account.
func (a *Account) Calls() []*Call {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*Call(nil), a.calls...)
}

// Report sets the registration activity and reports code to the handler.
func (a *Account) Report(active bool, code int) {
	a.mu.Lock()
	a.active = active
	a.mu.Unlock()
	a.handler.OnRegStateChanged(a, code)
}

// Ring delivers a new incoming call from remoteURI.
func (a *Account) Ring(remoteURI string) *Call {
	c := newCall(remoteURI)
	a.handler.OnIncomingCall(a, c)
	return c
}

// Call is a fake [engine.Call].
type Call struct {
	id     string
	remote string

	mu      sync.Mutex
	handler engine.CallHandler
	answers []engine.AnswerCode
	hangups int
	muted   bool
	dtmf    []string
	dtmfErr error
}

func newCall(remote string) *Call {
	return &Call{id: uuid.NewString(), remote: remote}
}

func (c *Call) ID() string        { return c.id }
func (c *Call) RemoteURI() string { return c.remote }

func (c *Call) Answer(code engine.AnswerCode) error {
	c.mu.Lock()
	c.answers = append(c.answers, code)
	c.mu.Unlock()
	return nil
}

func (c *Call) Hangup() error {
	c.mu.Lock()
	c.hangups++
	c.mu.Unlock()
	return nil
}

func (c *Call) SetMute(mute bool) error {
	c.mu.Lock()
	c.muted = mute
	c.mu.Unlock()
	return nil
}

func (c *Call) DialDTMF(digits string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dtmfErr != nil {
		return c.dtmfErr
	}
	c.dtmf = append(c.dtmf, digits)
	return nil
}

// FailDTMF makes following DialDTMF calls fail with err.
func (c *Call) FailDTMF(err error) {
	c.mu.Lock()
	c.dtmfErr = err
	c.mu.Unlock()
}

func (c *Call) SetHandler(h engine.CallHandler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Answers returns the answer codes sent for the call.
func (c *Call) Answers() []engine.AnswerCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]engine.AnswerCode(nil), c.answers...)
}

func (c *Call) Hangups() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hangups
}

func (c *Call) Muted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.muted
}

func (c *Call) DTMF() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.dtmf...)
}

// Report delivers a call state to the handler.
func (c *Call) Report(st engine.CallState) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()
	if h != nil {
		h.OnCallStateChanged(c, st)
	}
}

// Tones is a fake [engine.Tones].
type Tones struct {
	mu      sync.Mutex
	ambient int
	digits  []string
	volumes []float64
}

func (t *Tones) SetAmbientOutput() error {
	t.mu.Lock()
	t.ambient++
	t.mu.Unlock()
	return nil
}

func (t *Tones) PlayDigit(digit string, volume float64) error {
	t.mu.Lock()
	t.digits = append(t.digits, digit)
	t.volumes = append(t.volumes, volume)
	t.mu.Unlock()
	return nil
}

// Ambient returns the number of SetAmbientOutput calls.
func (t *Tones) Ambient() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ambient
}

// Played returns the played digits and their volumes.
func (t *Tones) Played() ([]string, []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.digits...), append([]float64(nil), t.volumes...)
}
