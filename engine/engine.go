// Package engine defines the contract of the SIP engine the phone coordinator
// drives. The engine owns SIP transport, registration and call signalling;
// the coordinator only issues commands and reacts to callbacks.
//
// Callbacks may be invoked from any goroutine. Implementations must not call
// back into the handler while holding their own locks.
package engine

import (
	"fmt"
	"time"
)

// Engine creates transports and accounts.
type Engine interface {
	NewTransport() (Transport, error)
	NewAccount(tp Transport, params AccountParams, h AccountHandler) (Account, error)
}

// TransportType is a SIP transport protocol.
type TransportType string

const (
	TransportUDP TransportType = "udp"
	TransportTCP TransportType = "tcp"
)

// AudioRoute is an audio output route of a call.
type AudioRoute string

const (
	AudioRouteEarpiece    AudioRoute = "earpiece"
	AudioRouteLoudspeaker AudioRoute = "loudspeaker"
)

// Transport is a SIP transport instance.
type Transport interface {
	Initialize() error
	SetTransportType(typ TransportType) error
	SetAudioOutputRoute(route AudioRoute) error
	Close() error
}

// AccountParams are parameters of a SIP account.
type AccountParams struct {
	// Registrar is the host[:port] to send REGISTER requests to.
	// If empty, Domain is used.
	Registrar string
	Domain    string
	Username  string
	Password  string
}

// AccountHandler receives account events.
type AccountHandler interface {
	// OnRegStateChanged is called after each registration attempt with the raw
	// engine code. Use [Account.IsRegistrationActive] to interpret it.
	OnRegStateChanged(acc Account, code int)
	// OnIncomingCall is called for each new incoming call.
	OnIncomingCall(acc Account, call Call)
}

// Account is a SIP account bound to a transport.
type Account interface {
	SetRegistrationInterval(d time.Duration)
	SetRegistrationFirstRetryInterval(d time.Duration)
	SetRegistrationRetryInterval(d time.Duration)
	// Connect starts registration.
	Connect() error
	// UpdateRegistration refreshes the registration.
	// With force the refresh is sent even if the current one is still valid.
	UpdateRegistration(force bool) error
	IsRegistrationActive() bool
	MakeCall(uri string, h CallHandler) (Call, error)
	Close() error
}

// AnswerCode is a status code of a call answer.
type AnswerCode int

const (
	AnswerRinging  AnswerCode = 180
	AnswerOK       AnswerCode = 200
	AnswerBusyHere AnswerCode = 486
)

func (c AnswerCode) String() string {
	switch c {
	case AnswerRinging:
		return "ringing"
	case AnswerOK:
		return "ok"
	case AnswerBusyHere:
		return "busy_here"
	default:
		return fmt.Sprintf("AnswerCode(%d)", int(c))
	}
}

// Call is a call handle owned by the engine.
type Call interface {
	ID() string
	RemoteURI() string
	Answer(code AnswerCode) error
	Hangup() error
	SetMute(mute bool) error
	DialDTMF(digits string) error
	SetHandler(h CallHandler)
}

// CallHandler receives call events.
type CallHandler interface {
	OnCallStateChanged(call Call, state CallState)
}

// Tones plays local feedback tones.
type Tones interface {
	// SetAmbientOutput routes local tones to the ambient output when no call
	// audio session is active.
	SetAmbientOutput() error
	PlayDigit(digit string, volume float64) error
}
