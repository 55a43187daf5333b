package phone

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	regState   prometheus.Gauge
	regEvents  *prometheus.CounterVec
	reconnects prometheus.Counter
	calls      *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		regState: mustRegister(reg, prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "softphone",
			Name:      "registration_state",
			Help:      "Current registration state (0 not registered, 1 registering, 2 registered)",
		})),
		regEvents: mustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softphone",
			Name:      "registration_events_total",
			Help:      "Number of registration reports received from the SIP engine",
		}, []string{"result"})),
		reconnects: mustRegister(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "softphone",
			Name:      "reconnects_total",
			Help:      "Number of re-registrations caused by network changes",
		})),
		calls: mustRegister(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "softphone",
			Name:      "calls_total",
			Help:      "Number of finished calls",
		}, []string{"direction", "outcome"})),
	}
}

func mustRegister[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	if err := reg.Register(c); err != nil {
		var e prometheus.AlreadyRegisteredError
		if errors.As(err, &e) {
			return e.ExistingCollector.(T) //nolint:forcetypeassert
		}
		panic(err)
	}
	return c
}
