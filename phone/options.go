package phone

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/log"
	"github.com/ghettovoice/softphone/platform"
)

// Defaults of [Options].
const (
	DefaultRegistrationInterval = 1200 * time.Second
	DefaultFirstRetryInterval   = 8 * time.Second
	DefaultRetryInterval        = 60 * time.Second
	DefaultWakeInterval         = platform.MinWakeInterval
	DefaultCountryCode          = "+1"
	DefaultToneVolume           = 0.006
)

// RegistrarResolver resolves the registrar address of a SIP domain.
type RegistrarResolver interface {
	// ResolveRegistrar returns the host:port to register with over transport.
	ResolveRegistrar(ctx context.Context, realm, transport string) (string, error)
}

// Options are options of the [Phone].
type Options struct {
	// RegistrationInterval is the registration refresh interval.
	// If zero, [DefaultRegistrationInterval] is used.
	RegistrationInterval time.Duration
	// FirstRetryInterval is the delay before the first retry of a failed registration.
	// If zero, [DefaultFirstRetryInterval] is used.
	FirstRetryInterval time.Duration
	// RetryInterval is the delay between subsequent registration retries.
	// If zero, [DefaultRetryInterval] is used.
	RetryInterval time.Duration
	// WakeInterval is the periodic background wake interval.
	// If less than [platform.MinWakeInterval], [DefaultWakeInterval] is used.
	WakeInterval time.Duration
	// TransportType is the SIP transport protocol.
	// If empty, [engine.TransportUDP] is used.
	TransportType engine.TransportType
	// CountryCode prefixes dialed numbers.
	// If empty, [DefaultCountryCode] is used.
	CountryCode string
	// ToneVolume is the volume of local DTMF tones.
	// If zero, [DefaultToneVolume] is used.
	ToneVolume float64
	// Resolver resolves registrars before the account is created.
	// If nil, the account registers with its realm directly.
	Resolver RegistrarResolver
	// Metrics registers the coordinator collectors.
	// If nil, metrics are collected but not registered.
	Metrics prometheus.Registerer
	// Log is the logger.
	// If nil, the [log.Default] is used.
	Log *slog.Logger
}

func (o *Options) regInterval() time.Duration {
	if o == nil || o.RegistrationInterval <= 0 {
		return DefaultRegistrationInterval
	}
	return o.RegistrationInterval
}

func (o *Options) firstRetryInterval() time.Duration {
	if o == nil || o.FirstRetryInterval <= 0 {
		return DefaultFirstRetryInterval
	}
	return o.FirstRetryInterval
}

func (o *Options) retryInterval() time.Duration {
	if o == nil || o.RetryInterval <= 0 {
		return DefaultRetryInterval
	}
	return o.RetryInterval
}

func (o *Options) wakeInterval() time.Duration {
	if o == nil || o.WakeInterval < platform.MinWakeInterval {
		return DefaultWakeInterval
	}
	return o.WakeInterval
}

func (o *Options) transportType() engine.TransportType {
	if o == nil || o.TransportType == "" {
		return engine.TransportUDP
	}
	return o.TransportType
}

func (o *Options) countryCode() string {
	if o == nil || o.CountryCode == "" {
		return DefaultCountryCode
	}
	return o.CountryCode
}

func (o *Options) toneVolume() float64 {
	if o == nil || o.ToneVolume <= 0 {
		return DefaultToneVolume
	}
	return o.ToneVolume
}

func (o *Options) resolver() RegistrarResolver {
	if o == nil {
		return nil
	}
	return o.Resolver
}

func (o *Options) metrics() prometheus.Registerer {
	if o == nil {
		return nil
	}
	return o.Metrics
}

func (o *Options) log() *slog.Logger {
	if o == nil || o.Log == nil {
		return log.Default()
	}
	return o.Log
}
