package resolver

import (
	"context"
	"net"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"github.com/anstrom/reconnode/internal/errors"
)

const defaultMDNSPort = 5353

// MDNSName asks the host's own multicast DNS responder for its name. The
// query is a unicast PTR lookup sent straight to port 5353 on the target,
// which responders answer like a legacy DNS query.
type MDNSName struct {
	port   int
	client *dns.Client
}

// NewMDNSName creates an mDNS lookup on UDP 5353.
func NewMDNSName() *MDNSName {
	return &MDNSName{
		port:   defaultMDNSPort,
		client: &dns.Client{Net: "udp"},
	}
}

// Name implements Method.
func (m *MDNSName) Name() string { return "mdns" }

// Lookup returns the first PTR target, typically "host.local", without the
// trailing dot.
func (m *MDNSName) Lookup(ctx context.Context, addr string) (string, error) {
	arpa, err := dns.ReverseAddr(addr)
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeTargetInvalid, "invalid address", addr, err)
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = false

	in, _, err := m.client.ExchangeContext(ctx, msg, net.JoinHostPort(addr, strconv.Itoa(m.port)))
	if err != nil {
		return "", errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "mdns query failed", addr, err)
	}

	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", nil
}
