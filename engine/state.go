package engine

import "fmt"

// CallState is the raw call state reported by the engine.
type CallState int

const (
	CallStateUnknown CallState = iota
	CallStateTrying
	CallStateRinging
	CallStateBusy
	CallStateIncomingTrying
	CallStateIncomingRinging
	CallStateIncomingIgnored
	CallStateIncomingRejected
	CallStateIncomingMissed
	CallStateEstablished
	CallStateError
	CallStateUnauthorized
	CallStateTerminated
	CallStateIncomingForwarded
	CallStateIncomingAnsweredElsewhere
	CallStateRedirectedToAlternativeService
)

var callStateNames = [...]string{
	CallStateUnknown:                        "unknown",
	CallStateTrying:                         "trying",
	CallStateRinging:                        "ringing",
	CallStateBusy:                           "busy",
	CallStateIncomingTrying:                 "incoming_trying",
	CallStateIncomingRinging:                "incoming_ringing",
	CallStateIncomingIgnored:                "incoming_ignored",
	CallStateIncomingRejected:               "incoming_rejected",
	CallStateIncomingMissed:                 "incoming_missed",
	CallStateEstablished:                    "established",
	CallStateError:                          "error",
	CallStateUnauthorized:                   "unauthorized",
	CallStateTerminated:                     "terminated",
	CallStateIncomingForwarded:              "incoming_forwarded",
	CallStateIncomingAnsweredElsewhere:      "incoming_answered_elsewhere",
	CallStateRedirectedToAlternativeService: "redirected_to_alternative_service",
}

func (s CallState) String() string {
	if s >= 0 && int(s) < len(callStateNames) {
		return callStateNames[s]
	}
	return fmt.Sprintf("CallState(%d)", int(s))
}

// IsProgress reports whether the state precedes call establishment.
func (s CallState) IsProgress() bool {
	switch s {
	case CallStateTrying, CallStateRinging, CallStateIncomingTrying, CallStateIncomingRinging:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the call is over in this state.
// Every state that is neither progress nor established is terminal,
// including [CallStateUnknown].
func (s CallState) IsTerminal() bool {
	return !s.IsProgress() && s != CallStateEstablished
}
