package resolver

import (
	"context"
	"net"
	"strings"

	"github.com/miekg/dns"

	"github.com/anstrom/reconnode/internal/errors"
)

const resolvConfPath = "/etc/resolv.conf"

// ReverseDNS looks up PTR records.
type ReverseDNS struct {
	server string
	client *dns.Client
}

// NewReverseDNS queries server (host:port). When server is empty the first
// nameserver of the system resolver configuration is used.
func NewReverseDNS(server string) *ReverseDNS {
	if server == "" {
		server = systemNameserver()
	}
	return &ReverseDNS{
		server: server,
		client: &dns.Client{Net: "udp"},
	}
}

func systemNameserver() string {
	cc, err := dns.ClientConfigFromFile(resolvConfPath)
	if err != nil || len(cc.Servers) == 0 {
		return ""
	}
	return net.JoinHostPort(cc.Servers[0], cc.Port)
}

// Name implements Method.
func (r *ReverseDNS) Name() string { return "dns" }

// Lookup returns the first PTR target for addr, without the trailing dot.
func (r *ReverseDNS) Lookup(ctx context.Context, addr string) (string, error) {
	if r.server == "" {
		return "", errors.NewScanErrorWithTarget(errors.CodeResolveFailed, "no nameserver configured", addr)
	}

	arpa, err := dns.ReverseAddr(addr)
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeTargetInvalid, "invalid address", addr, err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	in, _, err := r.client.ExchangeContext(ctx, msg, r.server)
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "PTR query failed", addr, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", nil
	}

	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", nil
}
