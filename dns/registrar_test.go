package dns_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ghettovoice/softphone/dns"
	"github.com/ghettovoice/softphone/internal/log"
)

type fakeLookuper struct {
	mu     sync.Mutex
	naptrs map[string][]*dns.NAPTR
	srvs   map[string][]*dns.SRV
	calls  int
}

func (f *fakeLookuper) LookupNAPTR(_ context.Context, host string) ([]*dns.NAPTR, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if recs, ok := f.naptrs[host]; ok {
		return recs, nil
	}
	return nil, errors.New("no such host")
}

func (f *fakeLookuper) LookupSRV(_ context.Context, service, proto, host string) ([]*dns.SRV, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	name := host
	if service != "" || proto != "" {
		name = "_" + service + "._" + proto + "." + host
	}
	if recs, ok := f.srvs[name]; ok {
		return recs, nil
	}
	return nil, errors.New("no such host")
}

func TestLookupRegistrar(t *testing.T) {
	t.Parallel()

	naptrBoth := map[string][]*dns.NAPTR{
		"example.com": {
			{Order: 10, Flags: "s", Service: "SIP+D2T", Replacement: "_sip._tcp.example.com."},
			{Order: 20, Flags: "s", Service: "SIP+D2U", Replacement: "_sip._udp.example.com."},
		},
	}

	cases := []struct {
		name      string
		lk        *fakeLookuper
		realm     string
		transport string
		want      dns.Registrar
	}{
		{
			"naptr tcp",
			&fakeLookuper{
				naptrs: naptrBoth,
				srvs: map[string][]*dns.SRV{
					"_sip._udp.example.com": {{Target: "udp.example.com.", Port: 5060}},
					"_sip._tcp.example.com": {{Target: "tcp.example.com.", Port: 5070}},
				},
			},
			"example.com",
			"tcp",
			dns.Registrar{Host: "tcp.example.com", Port: 5070, Transport: "tcp"},
		},
		{
			"naptr udp skips tcp service",
			&fakeLookuper{
				naptrs: naptrBoth,
				srvs: map[string][]*dns.SRV{
					"_sip._udp.example.com": {{Target: "udp.example.com.", Port: 5062}},
					"_sip._tcp.example.com": {{Target: "tcp-only.example.com.", Port: 5070}},
				},
			},
			"example.com",
			"udp",
			dns.Registrar{Host: "udp.example.com", Port: 5062, Transport: "udp"},
		},
		{
			"tcp only realm over udp falls back",
			&fakeLookuper{
				naptrs: map[string][]*dns.NAPTR{
					"example.com": {{Flags: "s", Service: "SIP+D2T", Replacement: "_sip._tcp.example.com."}},
				},
				srvs: map[string][]*dns.SRV{
					"_sip._tcp.example.com": {{Target: "tcp-only.example.com.", Port: 5070}},
				},
			},
			"example.com",
			"",
			dns.Registrar{Host: "example.com", Port: 5060, Transport: "udp"},
		},
		{
			"direct srv",
			&fakeLookuper{
				srvs: map[string][]*dns.SRV{
					"_sip._udp.example.com": {{Target: ".", Port: 1}, {Target: "sip.example.com.", Port: 5080}},
				},
			},
			"example.com.",
			"UDP",
			dns.Registrar{Host: "sip.example.com", Port: 5080, Transport: "udp"},
		},
		{
			"direct srv of transport",
			&fakeLookuper{
				srvs: map[string][]*dns.SRV{
					"_sip._udp.example.com": {{Target: "udp.example.com.", Port: 5080}},
					"_sip._tcp.example.com": {{Target: "tcp.example.com.", Port: 5090}},
				},
			},
			"example.com",
			"tcp",
			dns.Registrar{Host: "tcp.example.com", Port: 5090, Transport: "tcp"},
		},
		{
			"fallback",
			&fakeLookuper{},
			"example.com",
			"tcp",
			dns.Registrar{Host: "example.com", Port: 5060, Transport: "tcp"},
		},
		{
			"ip literal",
			&fakeLookuper{},
			"192.0.2.10",
			"udp",
			dns.Registrar{Host: "192.0.2.10", Port: 5060, Transport: "udp"},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			got := dns.LookupRegistrar(context.Background(), c.lk, c.realm, c.transport)
			if diff := cmp.Diff(got, c.want); diff != "" {
				t.Errorf("dns.LookupRegistrar(%q, %q) = %+v, want %+v\ndiff (-got +want):\n%v", c.realm, c.transport, got, c.want, diff)
			}
		})
	}
}

func TestRegistrar_Addr(t *testing.T) {
	t.Parallel()

	cases := map[dns.Registrar]string{
		{Host: "sip.example.com", Port: 5060}: "sip.example.com:5060",
		{Host: "2001:db8::1", Port: 5070}:     "[2001:db8::1]:5070",
	}
	for reg, want := range cases {
		if got := reg.Addr(); got != want {
			t.Errorf("%+v.Addr() = %q, want %q", reg, got, want)
		}
	}
}

func TestCache(t *testing.T) {
	t.Parallel()

	lk := &fakeLookuper{
		naptrs: map[string][]*dns.NAPTR{
			"example.com": {{Flags: "s", Service: "SIP+D2T", Replacement: "_sip._tcp.example.com."}},
		},
		srvs: map[string][]*dns.SRV{
			"_sip._udp.example.com": {{Target: "sip.example.com.", Port: 5080}},
			"_sip._tcp.example.com": {{Target: "tcp-only.example.com.", Port: 5070}},
		},
	}
	c := dns.NewCache(lk, &dns.CacheOptions{TTL: time.Hour, Log: log.Noop})

	for _, realm := range []string{"example.com", "EXAMPLE.com.", "example.com"} {
		got, err := c.ResolveRegistrar(context.Background(), realm, "udp")
		if err != nil {
			t.Fatalf("c.ResolveRegistrar(%q, udp) error = %v, want nil", realm, err)
		}
		if want := "sip.example.com:5080"; got != want {
			t.Errorf("c.ResolveRegistrar(%q, udp) = %q, want %q", realm, got, want)
		}
	}
	if lk.calls != 1 {
		t.Errorf("NAPTR lookups = %d, want 1", lk.calls)
	}

	reg, err := c.Lookup(context.Background(), "example.com", "tcp")
	if err != nil {
		t.Fatalf("c.Lookup(example.com, tcp) error = %v, want nil", err)
	}
	if diff := cmp.Diff(reg, dns.Registrar{Host: "tcp-only.example.com", Port: 5070, Transport: "tcp"}); diff != "" {
		t.Errorf("c.Lookup(example.com, tcp) diff (-got +want):\n%v", diff)
	}
	if lk.calls != 2 {
		t.Errorf("NAPTR lookups = %d, want 2", lk.calls)
	}

	if _, err := c.ResolveRegistrar(context.Background(), "", "udp"); err == nil {
		t.Error("c.ResolveRegistrar(\"\") error = nil, want error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Lookup(ctx, "other.example.com", "udp"); !errors.Is(err, context.Canceled) {
		t.Errorf("c.Lookup(canceled) error = %v, want %v", err, context.Canceled)
	}
}
