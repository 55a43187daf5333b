package dns_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	mdns "github.com/miekg/dns"

	"github.com/ghettovoice/softphone/dns"
)

func serveDNS(t *testing.T, h mdns.HandlerFunc) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.ListenPacket() error = %v, want nil", err)
	}
	started := make(chan struct{})
	srv := &mdns.Server{PacketConn: pc, Handler: h, NotifyStartedFunc: func() { close(started) }}
	go srv.ActivateAndServe()
	t.Cleanup(func() { srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("DNS server did not start within 1s")
	}
	return pc.LocalAddr().String()
}

func TestResolver_LookupNAPTR(t *testing.T) {
	t.Parallel()

	addr := serveDNS(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
		res := new(mdns.Msg)
		res.SetReply(req)
		if req.Question[0].Name != "example.com." || req.Question[0].Qtype != mdns.TypeNAPTR {
			res.Rcode = mdns.RcodeNameError
			w.WriteMsg(res)
			return
		}
		hdr := mdns.RR_Header{Name: "example.com.", Rrtype: mdns.TypeNAPTR, Class: mdns.ClassINET, Ttl: 60}
		res.Answer = []mdns.RR{
			&mdns.NAPTR{Hdr: hdr, Order: 20, Preference: 10, Flags: "s", Service: "SIP+D2U", Replacement: "_sip._udp.example.com."},
			&mdns.NAPTR{Hdr: hdr, Order: 10, Preference: 10, Flags: "s", Service: "SIP+D2T", Replacement: "_sip._tcp.example.com."},
			&mdns.NAPTR{Hdr: hdr, Order: 5, Preference: 10, Flags: "u", Service: "E2U+sip", Regexp: "!^.*$!sip:info@example.com!"},
		}
		w.WriteMsg(res)
	})

	r := &dns.Resolver{NameServer: addr, Timeout: time.Second}
	got, err := r.LookupNAPTR(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("r.LookupNAPTR(\"example.com\") error = %v, want nil", err)
	}
	want := []*dns.NAPTR{
		{Order: 10, Preference: 10, Flags: "s", Service: "SIP+D2T", Replacement: "_sip._tcp.example.com."},
		{Order: 20, Preference: 10, Flags: "s", Service: "SIP+D2U", Replacement: "_sip._udp.example.com."},
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("r.LookupNAPTR(\"example.com\") = %v, want %v\ndiff (-got +want):\n%v", got, want, diff)
	}
	if tr := got[0].Transport(); tr != dns.TransportTCP {
		t.Errorf("got[0].Transport() = %q, want %q", tr, dns.TransportTCP)
	}

	_, err = r.LookupNAPTR(context.Background(), "missing.example.com")
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
		t.Errorf("r.LookupNAPTR(\"missing.example.com\") error = %v, want not found DNS error", err)
	}
}

func TestResolver_LookupSRV(t *testing.T) {
	t.Parallel()

	addr := serveDNS(t, func(w mdns.ResponseWriter, req *mdns.Msg) {
		res := new(mdns.Msg)
		res.SetReply(req)
		q := req.Question[0]
		if q.Qtype != mdns.TypeSRV || q.Name != "_sip._tcp.example.com." && q.Name != "sip.example.com." {
			res.Rcode = mdns.RcodeNameError
			w.WriteMsg(res)
			return
		}
		hdr := mdns.RR_Header{Name: q.Name, Rrtype: mdns.TypeSRV, Class: mdns.ClassINET, Ttl: 60}
		res.Answer = []mdns.RR{
			&mdns.SRV{Hdr: hdr, Priority: 20, Weight: 0, Port: 5060, Target: "backup.example.com."},
			&mdns.SRV{Hdr: hdr, Priority: 10, Weight: 10, Port: 5070, Target: "light.example.com."},
			&mdns.SRV{Hdr: hdr, Priority: 10, Weight: 90, Port: 5080, Target: "heavy.example.com."},
		}
		w.WriteMsg(res)
	})

	want := []*dns.SRV{
		{Target: "heavy.example.com.", Port: 5080, Priority: 10, Weight: 90},
		{Target: "light.example.com.", Port: 5070, Priority: 10, Weight: 10},
		{Target: "backup.example.com.", Port: 5060, Priority: 20, Weight: 0},
	}

	r := &dns.Resolver{NameServer: addr, Timeout: time.Second}
	got, err := r.LookupSRV(context.Background(), "sip", "tcp", "example.com")
	if err != nil {
		t.Fatalf("r.LookupSRV(sip, tcp, example.com) error = %v, want nil", err)
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("r.LookupSRV(sip, tcp, example.com) diff (-got +want):\n%v", diff)
	}

	got, err = r.LookupSRV(context.Background(), "", "", "sip.example.com.")
	if err != nil {
		t.Fatalf("r.LookupSRV(sip.example.com.) error = %v, want nil", err)
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("r.LookupSRV(sip.example.com.) diff (-got +want):\n%v", diff)
	}

	_, err = r.LookupSRV(context.Background(), "sip", "udp", "example.com")
	var dnsErr *net.DNSError
	if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
		t.Errorf("r.LookupSRV(sip, udp, example.com) error = %v, want not found DNS error", err)
	}
}
