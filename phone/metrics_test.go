package phone_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/phone"
	"github.com/ghettovoice/softphone/platform"
)

func TestPhone_Metrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	e := newEnv(t, &phone.Options{Metrics: reg})

	acc := e.registered(t)
	if _, err := e.phone.MakeCall(context.Background(), "5551234567"); err != nil {
		t.Fatalf("p.MakeCall() error = %v, want nil", err)
	}
	acc.Calls()[0].Report(engine.CallStateBusy)
	e.reach.Notify(platform.ReachableViaCellular)
	e.sync(t)

	cases := []struct {
		name string
		want float64
	}{
		{"softphone_registration_state", float64(phone.Registering)},
		{"softphone_registration_events_total", 1},
		{"softphone_reconnects_total", 1},
		{"softphone_calls_total", 1},
	}
	for _, c := range cases {
		mfs, err := reg.Gather()
		if err != nil {
			t.Fatalf("reg.Gather() error = %v, want nil", err)
		}
		var got float64
		found := false
		for _, mf := range mfs {
			if mf.GetName() != c.name {
				continue
			}
			found = true
			for _, m := range mf.GetMetric() {
				switch {
				case m.GetGauge() != nil:
					got += m.GetGauge().GetValue()
				case m.GetCounter() != nil:
					got += m.GetCounter().GetValue()
				}
			}
		}
		if !found {
			t.Errorf("metric %q is not registered", c.name)
			continue
		}
		if got != c.want {
			t.Errorf("metric %q = %v, want %v", c.name, got, c.want)
		}
	}

	if n, err := testutil.GatherAndCount(reg, "softphone_calls_total"); err != nil || n != 1 {
		t.Errorf("testutil.GatherAndCount(calls) = %d, %v, want 1, nil", n, err)
	}
}
