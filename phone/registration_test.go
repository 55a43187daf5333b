package phone_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/phone"
	"github.com/ghettovoice/softphone/user"
)

func TestPhone_Register(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	if got, want := e.phone.RegistrationState(), phone.NotRegistered; got != want {
		t.Fatalf("p.RegistrationState() = %v, want %v", got, want)
	}

	acc := e.register(t)
	if got, want := e.phone.RegistrationState(), phone.Registering; got != want {
		t.Errorf("p.RegistrationState() = %v, want %v", got, want)
	}

	tps := e.eng.Transports()
	if len(tps) != 1 {
		t.Fatalf("created transports = %d, want 1", len(tps))
	}
	if !tps[0].Initialized() || tps[0].Type() != engine.TransportUDP {
		t.Errorf("transport initialized = %v, type = %q, want true, %q", tps[0].Initialized(), tps[0].Type(), engine.TransportUDP)
	}

	wantParams := engine.AccountParams{Domain: "example.com", Username: "alice-sip", Password: "s3cret"}
	if diff := cmp.Diff(acc.Params(), wantParams); diff != "" {
		t.Errorf("account params mismatch\ndiff (-got +want):\n%v", diff)
	}
	reg, first, retry := acc.Intervals()
	if reg != 1200*time.Second || first != 8*time.Second || retry != 60*time.Second {
		t.Errorf("account intervals = %v, %v, %v, want 20m0s, 8s, 1m0s", reg, first, retry)
	}
	if got := acc.Connects(); got != 1 {
		t.Errorf("acc.Connects() = %d, want 1", got)
	}

	acc.Report(true, 200)
	e.sync(t)
	if got, want := e.phone.RegistrationState(), phone.Registered; got != want {
		t.Errorf("p.RegistrationState() = %v, want %v", got, want)
	}

	acc.Report(false, 408)
	e.sync(t)
	if got, want := e.phone.RegistrationState(), phone.NotRegistered; got != want {
		t.Errorf("p.RegistrationState() = %v, want %v", got, want)
	}
	if got, want := e.phone.LastRegistrationCode(), 408; got != want {
		t.Errorf("p.LastRegistrationCode() = %d, want %d", got, want)
	}

	acc.Report(true, 200)
	e.sync(t)
	if got, want := e.phone.RegistrationState(), phone.Registered; got != want {
		t.Errorf("p.RegistrationState() = %v, want %v", got, want)
	}

	wantStates := []phone.RegistrationState{phone.Registering, phone.Registered, phone.NotRegistered, phone.Registered}
	if diff := cmp.Diff(e.evs.regStates(), wantStates); diff != "" {
		t.Errorf("registration events mismatch\ndiff (-got +want):\n%v", diff)
	}
}

func TestPhone_Register_Twice(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	acc := e.register(t)
	e.register(t)

	if got := len(e.eng.Accounts()); got != 1 {
		t.Fatalf("created accounts = %d, want 1", got)
	}
	if got := len(e.eng.Transports()); got != 1 {
		t.Errorf("created transports = %d, want 1", got)
	}
	if diff := cmp.Diff(acc.Updates(), []bool{true}); diff != "" {
		t.Errorf("acc.Updates() mismatch\ndiff (-got +want):\n%v", diff)
	}

	acc.Report(true, 200)
	e.register(t)
	if got := len(e.eng.Accounts()); got != 1 {
		t.Errorf("created accounts = %d, want 1", got)
	}
	if diff := cmp.Diff(acc.Updates(), []bool{true, true}); diff != "" {
		t.Errorf("acc.Updates() mismatch\ndiff (-got +want):\n%v", diff)
	}
	if got, want := e.phone.RegistrationState(), phone.Registered; got != want {
		t.Errorf("p.RegistrationState() = %v, want %v", got, want)
	}
}

func TestPhone_Register_AfterFailureReusesAccount(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	acc := e.register(t)
	acc.Report(false, 403)
	e.sync(t)

	e.register(t)
	if got := len(e.eng.Accounts()); got != 1 {
		t.Errorf("created accounts = %d, want 1", got)
	}
	if got, want := e.phone.RegistrationState(), phone.Registering; got != want {
		t.Errorf("p.RegistrationState() = %v, want %v", got, want)
	}
}

func TestPhone_Register_InvalidUser(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	for _, u := range []*user.User{nil, {Username: "bob"}} {
		got := e.phone.Register(context.Background(), u)
		if diff := cmp.Diff(got, error(phone.ErrInvalidArgument), cmpopts.EquateErrors()); diff != "" {
			t.Errorf("p.Register(%v) error = %v, want %v\ndiff (-got +want):\n%v", u, got, phone.ErrInvalidArgument, diff)
		}
	}
}

func TestPhone_Register_EngineFailure(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	e.eng.NewAccountErr = errors.New("no memory")

	if err := e.phone.Register(context.Background(), testUser()); err != nil {
		t.Fatalf("p.Register() error = %v, want nil", err)
	}
	st := e.sync(t)
	if st.State != phone.NotRegistered {
		t.Errorf("p.Status().State = %v, want %v", st.State, phone.NotRegistered)
	}
	if st.User == nil {
		t.Error("p.Status().User = nil, want remembered user")
	}

	e.eng.NewAccountErr = nil
	e.register(t)
	if got, want := e.phone.RegistrationState(), phone.Registering; got != want {
		t.Errorf("p.RegistrationState() = %v, want %v", got, want)
	}
}

func TestPhone_Unregister(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	acc := e.registered(t)
	e.host.Wake()
	e.sync(t)

	if err := e.phone.Unregister(context.Background()); err != nil {
		t.Fatalf("p.Unregister() error = %v, want nil", err)
	}
	st := e.sync(t)
	if st.State != phone.NotRegistered || st.User != nil || st.Background {
		t.Errorf("p.Status() = %+v, want not registered without user and grant", st)
	}
	if !acc.Closed() {
		t.Error("account is not closed")
	}
	if !e.eng.Transports()[0].Closed() {
		t.Error("transport is not closed")
	}
	if _, _, clears := e.host.WakeSchedule(); clears != 1 {
		t.Errorf("periodic wake clears = %d, want 1", clears)
	}

	// Engine events of the closed account are dropped.
	acc.Report(true, 200)
	if got := e.sync(t).State; got != phone.NotRegistered {
		t.Errorf("p.Status().State = %v, want %v", got, phone.NotRegistered)
	}

	e.register(t)
	if got := len(e.eng.Transports()); got != 2 {
		t.Errorf("created transports = %d, want 2", got)
	}
}

type blockingResolver struct {
	target    string
	err       error
	release   chan struct{}
	transport atomic.Value
}

func (r *blockingResolver) ResolveRegistrar(ctx context.Context, _, transport string) (string, error) {
	r.transport.Store(transport)
	select {
	case <-r.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return r.target, r.err
}

func TestPhone_Register_WithResolver(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		res  *blockingResolver
		want string
	}{
		{"resolved", &blockingResolver{target: "sip.example.com:5070"}, "sip.example.com:5070"},
		{"failed", &blockingResolver{err: errors.New("no such host")}, ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			c.res.release = make(chan struct{})
			e := newEnv(t, &phone.Options{Resolver: c.res, TransportType: engine.TransportTCP})

			for range 3 {
				if err := e.phone.Register(context.Background(), testUser()); err != nil {
					t.Fatalf("p.Register() error = %v, want nil", err)
				}
			}
			if got := len(e.eng.Accounts()); got != 0 {
				t.Fatalf("created accounts = %d, want 0 before lookup completes", got)
			}
			if got, want := e.phone.RegistrationState(), phone.Registering; got != want {
				t.Errorf("p.RegistrationState() = %v, want %v", got, want)
			}

			close(c.res.release)
			eventually(t, func() bool {
				e.sync(t)
				return len(e.eng.Accounts()) > 0
			})
			e.sync(t)

			accs := e.eng.Accounts()
			if len(accs) != 1 {
				t.Fatalf("created accounts = %d, want 1", len(accs))
			}
			if got := accs[0].Params().Registrar; got != c.want {
				t.Errorf("account registrar = %q, want %q", got, c.want)
			}
			if got := accs[0].Connects(); got != 1 {
				t.Errorf("acc.Connects() = %d, want 1", got)
			}
			if got, want := c.res.transport.Load(), "tcp"; got != want {
				t.Errorf("resolver transport = %v, want %q", got, want)
			}
		})
	}
}

func TestPhone_Register_StaleLookupDropped(t *testing.T) {
	t.Parallel()

	res := &blockingResolver{target: "sip.example.com:5070", release: make(chan struct{})}
	e := newEnv(t, &phone.Options{Resolver: res})

	if err := e.phone.Register(context.Background(), testUser()); err != nil {
		t.Fatalf("p.Register() error = %v, want nil", err)
	}
	if err := e.phone.Unregister(context.Background()); err != nil {
		t.Fatalf("p.Unregister() error = %v, want nil", err)
	}
	close(res.release)

	// Give the lookup a chance to post its result.
	time.Sleep(20 * time.Millisecond)
	e.sync(t)
	if got := len(e.eng.Accounts()); got != 0 {
		t.Errorf("created accounts = %d, want 0", got)
	}
}

func TestPhone_Close(t *testing.T) {
	t.Parallel()

	e := newEnv(t, nil)
	acc := e.registered(t)

	if err := e.phone.Close(); err != nil {
		t.Fatalf("p.Close() error = %v, want nil", err)
	}
	if err := e.phone.Close(); err != nil {
		t.Errorf("second p.Close() error = %v, want nil", err)
	}
	if !acc.Closed() {
		t.Error("account is not closed")
	}

	got := e.phone.Register(context.Background(), testUser())
	if diff := cmp.Diff(got, error(phone.ErrClosed), cmpopts.EquateErrors()); diff != "" {
		t.Errorf("p.Register() error = %v, want %v\ndiff (-got +want):\n%v", got, phone.ErrClosed, diff)
	}
}
