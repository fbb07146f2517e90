package discovery

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

func startPTRServer(t *testing.T, records map[string]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		for _, q := range r.Question {
			if target, ok := records[q.Name]; ok && q.Qtype == dns.TypePTR {
				m.Answer = append(m.Answer, &dns.PTR{
					Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
					Ptr: target,
				})
			}
		}
		if len(m.Answer) == 0 {
			m.Rcode = dns.RcodeNameError
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	return pc.LocalAddr().String()
}

func TestPTRResolverLookupHostname(t *testing.T) {
	addr := startPTRServer(t, map[string]string{
		"5.0.0.10.in-addr.arpa.": "laptop.lan.",
	})

	r, err := NewPTRResolver(addr, time.Second)
	if err != nil {
		t.Fatalf("NewPTRResolver failed: %v", err)
	}

	name, err := r.LookupHostname(context.Background(), "10.0.0.5")
	if err != nil {
		t.Fatalf("LookupHostname failed: %v", err)
	}
	if name != "laptop.lan" {
		t.Errorf("LookupHostname = %q, want laptop.lan", name)
	}

	if _, err := r.LookupHostname(context.Background(), "10.0.0.6"); err == nil {
		t.Error("expected error for address without PTR record")
	}
}

func TestPTRResolverInvalidAddress(t *testing.T) {
	r, err := NewPTRResolver("127.0.0.1", time.Second)
	if err != nil {
		t.Fatalf("NewPTRResolver failed: %v", err)
	}
	if r.Server != "127.0.0.1:53" {
		t.Errorf("Server = %q, want 127.0.0.1:53", r.Server)
	}
	if _, err := r.LookupHostname(context.Background(), "not-an-ip"); err == nil {
		t.Error("expected error for invalid address")
	}
}
