// Package config loads the softphone host configuration from YAML with
// environment overrides.
package config

//go:generate go tool errtrace -w .

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"braces.dev/errtrace"
	"gopkg.in/yaml.v3"

	"github.com/ghettovoice/softphone/engine"
	"github.com/ghettovoice/softphone/internal/errorutil"
	"github.com/ghettovoice/softphone/phone"
	"github.com/ghettovoice/softphone/platform"
)

const ErrInvalidArgument = errorutil.ErrInvalidArgument

// Environment variables overriding the file configuration.
const (
	EnvServerURL = "SOFTPHONE_SERVER_URL"
	EnvConfig    = "SOFTPHONE_CONFIG"
)

// SIPConfig configures the SIP user agent.
type SIPConfig struct {
	ListenAddr string               `yaml:"listen_addr"`
	Transport  engine.TransportType `yaml:"transport"`
	UserAgent  string               `yaml:"user_agent"`
}

// RegistrationConfig configures registration timing.
type RegistrationConfig struct {
	Interval           time.Duration `yaml:"interval"`
	FirstRetryInterval time.Duration `yaml:"first_retry_interval"`
	RetryInterval      time.Duration `yaml:"retry_interval"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
}

// Config is the host application configuration.
type Config struct {
	ServerURL    string             `yaml:"server_url"`
	SIP          SIPConfig          `yaml:"sip"`
	Registration RegistrationConfig `yaml:"registration"`
	WakeInterval time.Duration      `yaml:"wake_interval"`
	CountryCode  string             `yaml:"country_code"`
	ToneVolume   float64            `yaml:"tone_volume"`
	SessionDB    string             `yaml:"session_db"`
	Log          LogConfig          `yaml:"log"`
	NetPoll      time.Duration      `yaml:"net_poll_interval"`
	GrantTime    time.Duration      `yaml:"grant_duration"`
	MetricsAddr  string             `yaml:"metrics_addr"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		SIP: SIPConfig{
			ListenAddr: "0.0.0.0:0",
			Transport:  engine.TransportUDP,
			UserAgent:  "softphone",
		},
		Registration: RegistrationConfig{
			Interval:           phone.DefaultRegistrationInterval,
			FirstRetryInterval: phone.DefaultFirstRetryInterval,
			RetryInterval:      phone.DefaultRetryInterval,
		},
		WakeInterval: phone.DefaultWakeInterval,
		CountryCode:  phone.DefaultCountryCode,
		ToneVolume:   phone.DefaultToneVolume,
		SessionDB:    "softphone.db",
		Log:          LogConfig{Format: "console", Level: "info"},
		NetPoll:      platform.DefaultPollInterval,
		GrantTime:    platform.DefaultGrantDuration,
	}
}

// Parse decodes YAML over the defaults. Unknown fields are rejected.
func Parse(r io.Reader) (*Config, error) {
	c := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, errtrace.Wrap(errorutil.NewInvalidArgumentError(err))
	}
	return c, nil
}

// Load reads the configuration from path, or from the file named by
// [EnvConfig] when path is empty. Without any file the defaults are used.
// Environment overrides are applied and the result is validated.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errtrace.Wrap(fmt.Errorf("read config: %w", err))
		}
		if c, err = Parse(bytes.NewReader(data)); err != nil {
			return nil, errtrace.Wrap(err)
		}
	}

	c.ApplyEnv(os.LookupEnv)
	if err := c.Validate(); err != nil {
		return nil, errtrace.Wrap(err)
	}
	return c, nil
}

// ApplyEnv overrides fields from the environment looked up by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvServerURL); ok && v != "" {
		c.ServerURL = v
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.ServerURL != "" {
		u, err := url.Parse(c.ServerURL)
		switch {
		case err != nil:
			errs = append(errs, errorutil.NewInvalidArgumentError("server_url: %v", err))
		case u.Scheme != "http" && u.Scheme != "https" || u.Host == "":
			errs = append(errs, errorutil.NewInvalidArgumentError("server_url: %q is not an http(s) URL", c.ServerURL))
		}
	}
	if _, _, err := net.SplitHostPort(c.SIP.ListenAddr); err != nil {
		errs = append(errs, errorutil.NewInvalidArgumentError("sip.listen_addr: %v", err))
	}
	switch c.SIP.Transport {
	case engine.TransportUDP, engine.TransportTCP:
	default:
		errs = append(errs, errorutil.NewInvalidArgumentError("sip.transport: unsupported %q", c.SIP.Transport))
	}
	for _, f := range []struct {
		name string
		d    time.Duration
	}{
		{"registration.interval", c.Registration.Interval},
		{"registration.first_retry_interval", c.Registration.FirstRetryInterval},
		{"registration.retry_interval", c.Registration.RetryInterval},
		{"net_poll_interval", c.NetPoll},
		{"grant_duration", c.GrantTime},
	} {
		if f.d <= 0 {
			errs = append(errs, errorutil.NewInvalidArgumentError("%s: must be positive, got %v", f.name, f.d))
		}
	}
	if c.WakeInterval < platform.MinWakeInterval {
		errs = append(errs, errorutil.NewInvalidArgumentError("wake_interval: must be at least %v, got %v",
			platform.MinWakeInterval, c.WakeInterval))
	}
	if !strings.HasPrefix(c.CountryCode, "+") || len(c.CountryCode) < 2 {
		errs = append(errs, errorutil.NewInvalidArgumentError("country_code: %q must start with '+'", c.CountryCode))
	}
	if c.ToneVolume <= 0 || c.ToneVolume > 1 {
		errs = append(errs, errorutil.NewInvalidArgumentError("tone_volume: %v is out of range (0, 1]", c.ToneVolume))
	}
	if c.SessionDB == "" {
		errs = append(errs, errorutil.NewInvalidArgumentError("session_db: must not be empty"))
	}

	return errtrace.Wrap(errorutil.JoinPrefix("invalid config:", errs...))
}

// PhoneOptions maps the configuration onto coordinator options.
// Resolver, metrics and logger are left to the caller.
func (c *Config) PhoneOptions() *phone.Options {
	return &phone.Options{
		RegistrationInterval: c.Registration.Interval,
		FirstRetryInterval:   c.Registration.FirstRetryInterval,
		RetryInterval:        c.Registration.RetryInterval,
		WakeInterval:         c.WakeInterval,
		TransportType:        c.SIP.Transport,
		CountryCode:          c.CountryCode,
		ToneVolume:           c.ToneVolume,
	}
}
