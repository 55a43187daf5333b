package engine_test

import (
	"testing"

	"github.com/ghettovoice/softphone/engine"
)

func TestCallState(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state    engine.CallState
		name     string
		progress bool
		terminal bool
	}{
		{engine.CallStateUnknown, "unknown", false, true},
		{engine.CallStateTrying, "trying", true, false},
		{engine.CallStateIncomingRinging, "incoming_ringing", true, false},
		{engine.CallStateEstablished, "established", false, false},
		{engine.CallStateBusy, "busy", false, true},
		{engine.CallStateUnauthorized, "unauthorized", false, true},
		{engine.CallStateRedirectedToAlternativeService, "redirected_to_alternative_service", false, true},
		{engine.CallState(100), "CallState(100)", false, true},
	}
	for _, c := range cases {
		if got := c.state.String(); got != c.name {
			t.Errorf("CallState(%d).String() = %q, want %q", int(c.state), got, c.name)
		}
		if got := c.state.IsProgress(); got != c.progress {
			t.Errorf("%v.IsProgress() = %v, want %v", c.state, got, c.progress)
		}
		if got := c.state.IsTerminal(); got != c.terminal {
			t.Errorf("%v.IsTerminal() = %v, want %v", c.state, got, c.terminal)
		}
	}
}

func TestAnswerCode_String(t *testing.T) {
	t.Parallel()

	cases := map[engine.AnswerCode]string{
		engine.AnswerRinging:  "ringing",
		engine.AnswerOK:       "ok",
		engine.AnswerBusyHere: "busy_here",
		603:                   "AnswerCode(603)",
	}
	for code, want := range cases {
		if got := code.String(); got != want {
			t.Errorf("AnswerCode(%d).String() = %q, want %q", int(code), got, want)
		}
	}
}
