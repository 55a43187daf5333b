package phone_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/phone"
)

func TestPhone_MakeCall(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()

	_, got := e.phone.MakeCall(ctx, "5551234567")
	if diff := cmp.Diff(got, error(phone.ErrNotRegistered), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.MakeCall() error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrNotRegistered, diff)
	}

	acc := e.register(t)
	_, got = e.phone.MakeCall(ctx, "5551234567")
	if diff := cmp.Diff(got, error(phone.ErrNotRegistered), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.MakeCall() while registering error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrNotRegistered, diff)
	}

	acc.Report(true, 200)
	e.sync(t)
	info, err := e.phone.MakeCall(ctx, "5551234567")
	if err != nil {
		t.Fatalf("p.MakeCall() error = %v, want nil", err)
	}
	if got, want := info.RemoteURI, "+15551234567@example.com"; got != want {
		t.Errorf("call remote URI = %q, want %q", got, want)
	}
	if info.Direction != phone.Outgoing || info.Phase != phone.CallConnecting {
		t.Errorf("call = %v/%v, want %v/%v", info.Direction, info.Phase, phone.Outgoing, phone.CallConnecting)
	}

	_, got = e.phone.MakeCall(ctx, "5559876543")
	if diff := cmp.Diff(got, error(phone.ErrCallInProgress), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.MakeCall() error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrCallInProgress, diff)
	}
	if got := len(acc.Calls()); got != 1 {
		t.Errorf("engine calls = %d, want 1", got)
	}

	_, got = e.phone.MakeCall(ctx, " ")
	if diff := cmp.Diff(got, error(phone.ErrInvalidArgument), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.MakeCall(\" \") error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrInvalidArgument, diff)
	}
}

func TestPhone_MakeCall_CountryCode(t *testing.T) {
	t.Parallel()

	e := newEnv(t, &phone.Options{CountryCode: "+44"})
	e.registered(t)

	info, err := e.phone.MakeCall(context.Background(), "2071234567")
	if err != nil {
		t.Fatalf("p.MakeCall() error = %v, want nil", err)
	}
	if got, want := info.RemoteURI, "+442071234567@example.com"; got != want {
		t.Errorf("call remote URI = %q, want %q", got, want)
	}
}

func TestPhone_OutgoingCall_Lifecycle(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	acc := e.registered(t)
	if _, err := e.phone.MakeCall(context.Background(), "5551234567"); err != nil {
		t.Fatalf("p.MakeCall() error = %v, want nil", err)
	}
	call := acc.Calls()[0]

	call.Report(engine.CallStateTrying)
	call.Report(engine.CallStateRinging)
	st := e.sync(t)
	if st.Call == nil || st.Call.Phase != phone.CallConnecting || st.Call.State != engine.CallStateRinging {
		t.Fatalf("p.Status().Call = %+v, want connecting call in ringing state", st.Call)
	}

	call.Report(engine.CallStateEstablished)
	st = e.sync(t)
	if st.Call == nil || st.Call.Phase != phone.CallEstablished {
		t.Fatalf("p.Status().Call = %+v, want established call", st.Call)
	}

	call.Report(engine.CallStateTerminated)
	st = e.sync(t)
	if st.Call != nil {
		t.Errorf("p.Status().Call = %+v, want nil", st.Call)
	}

	var phases []phone.CallPhase
	for _, c := range e.evs.calls() {
		phases = append(phases, c.Phase)
	}
	want := []phone.CallPhase{
		phone.CallConnecting,
		phone.CallConnecting,
		phone.CallConnecting,
		phone.CallEstablished,
		phone.CallTerminated,
	}
	if diff := cmp.Diff(phases, want); diff != "" {
		t.Errorf("call phases mismatch\ndiff (-got +want):\n%v", diff)
	}

	// Late events of the finished call are dropped.
	call.Report(engine.CallStateEstablished)
	if st := e.sync(t); st.Call != nil {
		t.Errorf("p.Status().Call = %+v, want nil", st.Call)
	}
}

func TestPhone_OutgoingCall_Busy(t *testing.T) {
	t.Parallel()

	for _, raw := range []engine.CallState{
		engine.CallStateBusy,
		engine.CallStateError,
		engine.CallStateUnauthorized,
		engine.CallStateUnknown,
	} {
		t.Run(raw.String(), func(t *testing.T) {
			t.Parallel()

			e := newEnv(t, nil)
			acc := e.registered(t)
			if _, err := e.phone.MakeCall(context.Background(), "5551234567"); err != nil {
				t.Fatalf("p.MakeCall() error = %v, want nil", err)
			}
			acc.Calls()[0].Report(raw)
			if st := e.sync(t); st.Call != nil {
				t.Errorf("p.Status().Call = %+v, want nil", st.Call)
			}

			calls := e.evs.calls()
			last := calls[len(calls)-1]
			if last.Phase != phone.CallTerminated || last.State != raw {
				t.Errorf("last call event = %v/%v, want %v/%v", last.Phase, last.State, phone.CallTerminated, raw)
			}
		})
	}
}

func TestPhone_IncomingCall(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	acc := e.registered(t)

	first := acc.Ring("sip:bob@example.com")
	e.sync(t)
	if diff := cmp.Diff(first.Answers(), []engine.AnswerCode{engine.AnswerRinging}); diff != "" {
		t.Errorf("first call answers mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got := e.evs.incoming(); got != 1 {
		t.Errorf("incoming call events = %d, want 1", got)
	}

	second := acc.Ring("sip:carol@example.com")
	st := e.sync(t)
	if diff := cmp.Diff(second.Answers(), []engine.AnswerCode{engine.AnswerBusyHere}); diff != "" {
		t.Errorf("second call answers mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got := e.evs.incoming(); got != 1 {
		t.Errorf("incoming call events = %d, want 1", got)
	}
	if st.Call == nil || st.Call.ID != first.ID() || st.Call.RemoteURI != "sip:bob@example.com" {
		t.Errorf("p.Status().Call = %+v, want the first call", st.Call)
	}
	if st.Call.Direction != phone.Incoming || st.Call.Phase != phone.CallConnecting {
		t.Errorf("tracked call = %v/%v, want %v/%v", st.Call.Direction, st.Call.Phase, phone.Incoming, phone.CallConnecting)
	}
}

func TestPhone_IncomingCall_AnswerAndHangup(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	acc := e.registered(t)
	ctx := context.Background()

	got := e.phone.Answer(ctx)
	if diff := cmp.Diff(got, error(phone.ErrNoActiveCall), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.Answer() error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrNoActiveCall, diff)
	}

	call := acc.Ring("sip:bob@example.com")
	e.sync(t)
	if err := e.phone.Answer(ctx); err != nil {
		t.Fatalf("p.Answer() error = %v, want nil", err)
	}
	if diff := cmp.Diff(call.Answers(), []engine.AnswerCode{engine.AnswerRinging, engine.AnswerOK}); diff != "" {
		t.Errorf("call answers mismatch\ndiff (-got +want):\n%v", diff)
	}

	call.Report(engine.CallStateEstablished)
	e.sync(t)

	got = e.phone.Reject(ctx)
	if diff := cmp.Diff(got, error(phone.ErrNoActiveCall), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.Reject() error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrNoActiveCall, diff)
	}

	if err := e.phone.SetMute(ctx, true); err != nil {
		t.Fatalf("p.SetMute() error = %v, want nil", err)
	}
	if !call.Muted() {
		t.Error("call is not muted")
	}
	if info, _ := e.phone.CurrentCall(ctx); info == nil || !info.Muted {
		t.Errorf("p.CurrentCall() = %+v, want muted call", info)
	}

	if err := e.phone.Hangup(ctx); err != nil {
		t.Fatalf("p.Hangup() error = %v, want nil", err)
	}
	if got := call.Hangups(); got != 1 {
		t.Errorf("call hangups = %d, want 1", got)
	}
	if info, _ := e.phone.CurrentCall(ctx); info != nil {
		t.Errorf("p.CurrentCall() = %+v, want nil", info)
	}

	got = e.phone.Hangup(ctx)
	if diff := cmp.Diff(got, error(phone.ErrNoActiveCall), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.Hangup() error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrNoActiveCall, diff)
	}
}

func TestPhone_IncomingCall_Reject(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	acc := e.registered(t)
	call := acc.Ring("sip:bob@example.com")
	e.sync(t)

	if err := e.phone.Reject(context.Background()); err != nil {
		t.Fatalf("p.Reject() error = %v, want nil", err)
	}
	if diff := cmp.Diff(call.Answers(), []engine.AnswerCode{engine.AnswerRinging, engine.AnswerBusyHere}); diff != "" {
		t.Errorf("call answers mismatch\ndiff (-got +want):\n%v", diff)
	}
	if st := e.sync(t); st.Call != nil {
		t.Errorf("p.Status().Call = %+v, want nil", st.Call)
	}

	// A new call is accepted again.
	next := acc.Ring("sip:carol@example.com")
	e.sync(t)
	if diff := cmp.Diff(next.Answers(), []engine.AnswerCode{engine.AnswerRinging}); diff != "" {
		t.Errorf("next call answers mismatch\ndiff (-got +want):\n%v", diff)
	}
}

func TestPhone_PlayDigit(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()

	if err := e.phone.PlayDigit(ctx, "5"); err != nil {
		t.Fatalf("p.PlayDigit(\"5\") error = %v, want nil", err)
	}
	if got := e.tones.Ambient(); got != 1 {
		t.Errorf("ambient output sets = %d, want 1", got)
	}

	acc := e.registered(t)
	if _, err := e.phone.MakeCall(ctx, "5551234567"); err != nil {
		t.Fatalf("p.MakeCall() error = %v, want nil", err)
	}
	if err := e.phone.PlayDigit(ctx, "#"); err != nil {
		t.Fatalf("p.PlayDigit(\"#\") error = %v, want nil", err)
	}
	if diff := cmp.Diff(acc.Calls()[0].DTMF(), []string{"#"}); diff != "" {
		t.Errorf("dialed DTMF mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got := e.tones.Ambient(); got != 1 {
		t.Errorf("ambient output sets = %d, want 1", got)
	}

	digits, volumes := e.tones.Played()
	if diff := cmp.Diff(digits, []string{"5", "#"}); diff != "" {
		t.Errorf("played digits mismatch\ndiff (-got +want):\n%v", diff)
	}
	if diff := cmp.Diff(volumes, []float64{0.006, 0.006}); diff != "" {
		t.Errorf("played volumes mismatch\ndiff (-got +want):\n%v", diff)
	}

	for _, d := range []string{"", "E", "12", "x"} {
		got := e.phone.PlayDigit(ctx, d)
		if diff := cmp.Diff(got, error(phone.ErrInvalidArgument), cmpopts.EquateErrors()); diff != "" {
			t.Errorf("p.PlayDigit(%q) error = %v, want %v\ndiff (-got +want):\n%v", d, got, phone.ErrInvalidArgument, diff)
		}
	}
}

func TestPhone_PlayDigit_DTMFFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()

	acc := e.registered(t)
	if _, err := e.phone.MakeCall(ctx, "5551234567"); err != nil {
		t.Fatalf("p.MakeCall() error = %v, want nil", err)
	}
	acc.Calls()[0].FailDTMF(errors.New("call is not established"))

	if err := e.phone.PlayDigit(ctx, "7"); err != nil {
		t.Fatalf("p.PlayDigit(\"7\") error = %v, want nil", err)
	}
	if got := acc.Calls()[0].DTMF(); len(got) != 0 {
		t.Errorf("dialed DTMF = %v, want none", got)
	}
	digits, _ := e.tones.Played()
	if diff := cmp.Diff(digits, []string{"7"}); diff != "" {
		t.Errorf("played digits mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got := e.tones.Ambient(); got != 0 {
		t.Errorf("ambient output sets = %d, want 0 during a call", got)
	}
}

func TestPhone_SetSpeaker(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	ctx := context.Background()

	got := e.phone.SetSpeaker(ctx, true)
	if diff := cmp.Diff(got, error(phone.ErrNoTransport), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.SetSpeaker(true) error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrNoTransport, diff)
	}

	e.register(t)
	tp := e.eng.Transports()[0]
	if err := e.phone.SetSpeaker(ctx, true); err != nil {
		t.Fatalf("p.SetSpeaker(true) error = %v, want nil", err)
	}
	if got, want := tp.Route(), engine.AudioRouteLoudspeaker; got != want {
		t.Errorf("audio route = %q, want %q", got, want)
	}
	if !e.sync(t).Speaker {
		t.Error("p.Status().Speaker = false, want true")
	}
	if err := e.phone.SetSpeaker(ctx, false); err != nil {
		t.Fatalf("p.SetSpeaker(false) error = %v, want nil", err)
	}
	if got, want := tp.Route(), engine.AudioRouteEarpiece; got != want {
		t.Errorf("audio route = %q, want %q", got, want)
	}

	got = e.phone.SetMute(ctx, true)
	if diff := cmp.Diff(got, error(phone.ErrNoActiveCall), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.SetMute(true) error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrNoActiveCall, diff)
	}
}

func TestValidDigit(t *testing.T) {
	t.Parallel()

	for _, d := range []string{"0", "9", "*", "#", "A", "D"} {
		if !phone.ValidDigit(d) {
			t.Errorf("phone.ValidDigit(%q) = false, want true", d)
		}
	}
	for _, d := range []string{"", "a", "E", "+", "11"} {
		if phone.ValidDigit(d) {
			t.Errorf("phone.ValidDigit(%q) = true, want false", d)
		}
	}
}
