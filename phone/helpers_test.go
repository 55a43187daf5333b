package phone_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ghettovoice/softphone/internal/log"
	"github.com/ghettovoice/softphone/internal/testutil/enginefake"
	"github.com/ghettovoice/softphone/internal/testutil/platformfake"
	"github.com/ghettovoice/softphone/phone"
	"github.com/ghettovoice/softphone/platform"
	"github.com/ghettovoice/softphone/user"
)

type env struct {
	phone *phone.Phone
	eng   *enginefake.Engine
	reach *platformfake.Reachability
	host  *platformfake.Host
	tones *enginefake.Tones
	evs   *recorder
}

func newEnv(t *testing.T, opts *phone.Options) *env {
	t.Helper()

	if opts == nil {
		opts = &phone.Options{}
	}
	if opts.Log == nil {
		opts.Log = log.Noop
	}

	e := &env{
		eng:   enginefake.New(),
		reach: platformfake.NewReachability(platform.ReachableViaWiFi),
		host:  platformfake.NewHost(),
		tones: &enginefake.Tones{},
		evs:   &recorder{},
	}
	p, err := phone.New(e.eng, e.reach, e.host, e.tones, opts)
	if err != nil {
		t.Fatalf("phone.New() error = %v, want nil", err)
	}
	t.Cleanup(func() { p.Close() })
	e.phone = p
	p.Subscribe(e.evs.record)
	return e
}

func testUser() *user.User {
	pwd := "s3cret"
	return &user.User{
		Username: "alice",
		Password: &pwd,
		Number:   "+15550001111",
		Endpoint: user.Endpoint{
			ID:          "ep-1",
			Enabled:     true,
			SIPURI:      "sip:alice-sip@example.com",
			Credentials: user.Credentials{Username: "alice-sip", Realm: "example.com"},
		},
	}
}

// sync waits until every task posted to the coordinator loop so far is done.
func (e *env) sync(t *testing.T) phone.Status {
	t.Helper()

	st, err := e.phone.Status(context.Background())
	if err != nil {
		t.Fatalf("p.Status() error = %v, want nil", err)
	}
	return st
}

func (e *env) register(t *testing.T) *enginefake.Account {
	t.Helper()

	if err := e.phone.Register(context.Background(), testUser()); err != nil {
		t.Fatalf("p.Register() error = %v, want nil", err)
	}
	acc := e.eng.LastAccount()
	if acc == nil {
		t.Fatal("no account created")
	}
	return acc
}

func (e *env) registered(t *testing.T) *enginefake.Account {
	t.Helper()

	acc := e.register(t)
	acc.Report(true, 200)
	if got := e.sync(t).State; got != phone.Registered {
		t.Fatalf("p.Status().State = %v, want %v", got, phone.Registered)
	}
	return acc
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type recorder struct {
	mu  sync.Mutex
	evs []phone.Event
}

func (r *recorder) record(_ context.Context, ev phone.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, ev)
	r.mu.Unlock()
}

func (r *recorder) regStates() []phone.RegistrationState {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []phone.RegistrationState
	for _, ev := range r.evs {
		if rc, ok := ev.(phone.RegistrationChanged); ok {
			out = append(out, rc.State)
		}
	}
	return out
}

func (r *recorder) calls() []phone.CallInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []phone.CallInfo
	for _, ev := range r.evs {
		switch ev := ev.(type) {
		case phone.IncomingCall:
			out = append(out, ev.Call)
		case phone.CallStateChanged:
			out = append(out, ev.Call)
		}
	}
	return out
}

func (r *recorder) incoming() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, ev := range r.evs {
		if _, ok := ev.(phone.IncomingCall); ok {
			n++
		}
	}
	return n
}
