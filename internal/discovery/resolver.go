package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ResolvConf is consulted when no DNS server is configured.
const ResolvConf = "/etc/resolv.conf"

// PTRResolver resolves host names with reverse DNS queries.
type PTRResolver struct {
	Server string
	client *dns.Client
}

// NewPTRResolver returns a resolver that queries server, or the first
// nameserver in ResolvConf when server is empty.
func NewPTRResolver(server string, timeout time.Duration) (*PTRResolver, error) {
	if server == "" {
		conf, err := dns.ClientConfigFromFile(ResolvConf)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", ResolvConf, err)
		}
		if len(conf.Servers) == 0 {
			return nil, fmt.Errorf("no nameserver in %s", ResolvConf)
		}
		server = net.JoinHostPort(conf.Servers[0], conf.Port)
	} else if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}

	return &PTRResolver{
		Server: server,
		client: &dns.Client{Net: "udp", Timeout: timeout},
	}, nil
}

// LookupHostname returns the first PTR target for ip without the trailing dot.
func (r *PTRResolver) LookupHostname(ctx context.Context, ip string) (string, error) {
	name, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", err
	}

	m := new(dns.Msg)
	m.SetQuestion(name, dns.TypePTR)
	m.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, m, r.Server)
	if err != nil {
		return "", fmt.Errorf("ptr query %s: %w", name, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("ptr query %s: %s", name, dns.RcodeToString[in.Rcode])
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", errNoPTR
}

var errNoPTR = errors.New("no PTR record")
