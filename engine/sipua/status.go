package sipua

import "github.com/ghettovoice/softphone/engine"

// Registration codes reported for failures without a SIP response.
const (
	CodeRequestTimeout     = 408
	CodeServiceUnavailable = 503
)

// RegistrationActive reports whether a REGISTER response code with the
// granted expiration means the binding is in place.
func RegistrationActive(code int, expires int) bool {
	return code >= 200 && code < 300 && expires > 0
}

// OutgoingCallState maps a response to an outgoing INVITE to a call state.
func OutgoingCallState(code int) engine.CallState {
	switch {
	case code == 100:
		return engine.CallStateTrying
	case code > 100 && code < 200:
		return engine.CallStateRinging
	case code >= 200 && code < 300:
		return engine.CallStateEstablished
	case code == 380:
		return engine.CallStateRedirectedToAlternativeService
	case code == 401 || code == 407:
		return engine.CallStateUnauthorized
	case code == 486 || code == 600:
		return engine.CallStateBusy
	case code == 487:
		return engine.CallStateTerminated
	default:
		return engine.CallStateError
	}
}

// IncomingCallState maps a local answer code of an incoming call to a call state.
func IncomingCallState(code engine.AnswerCode) engine.CallState {
	switch {
	case code == 100:
		return engine.CallStateIncomingTrying
	case code > 100 && code < 200:
		return engine.CallStateIncomingRinging
	case code >= 200 && code < 300:
		return engine.CallStateEstablished
	case code == 302:
		return engine.CallStateIncomingForwarded
	default:
		return engine.CallStateIncomingRejected
	}
}
