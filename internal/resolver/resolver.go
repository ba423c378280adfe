// Package resolver looks up display names for scanned hosts. Several methods
// are tried in order under one deadline; the first name found wins. Every
// failure is treated as "no name".
package resolver

import (
	"context"
	"time"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/logging"
)

// DefaultTimeout bounds a whole Resolve call.
const DefaultTimeout = 200 * time.Millisecond

// Method resolves one address by a single protocol.
type Method interface {
	Name() string
	Lookup(ctx context.Context, addr string) (string, error)
}

// Chain tries its methods in order.
type Chain struct {
	methods []Method
	timeout time.Duration
	logger  *logging.Logger
}

// NewChain creates a resolver over methods.
func NewChain(timeout time.Duration, methods ...Method) *Chain {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Chain{
		methods: methods,
		timeout: timeout,
		logger:  logging.Default().WithComponent("resolver"),
	}
}

// New builds the chain enabled by cfg: reverse DNS always, then mDNS, NetBIOS
// and SNMP when configured.
func New(cfg config.ResolverConfig) *Chain {
	methods := []Method{NewReverseDNS(cfg.DNSServer)}
	if cfg.EnableMDNS {
		methods = append(methods, NewMDNSName())
	}
	if cfg.EnableNetBIOS {
		methods = append(methods, NewNetBIOS())
	}
	if cfg.SNMPCommunity != "" {
		methods = append(methods, NewSNMPName(cfg.SNMPCommunity))
	}
	return NewChain(cfg.Timeout, methods...)
}

// Resolve returns the first name any method finds for hostID under prefix.
func (c *Chain) Resolve(ctx context.Context, prefix string, hostID uint8) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	addr := config.HostAddr(prefix, hostID)
	for _, m := range c.methods {
		if ctx.Err() != nil {
			return "", false
		}
		name, err := m.Lookup(ctx, addr)
		if err != nil {
			c.logger.Debug("Hostname lookup failed", "method", m.Name(), "target", addr, "error", err)
			continue
		}
		if name != "" {
			return name, true
		}
	}
	return "", false
}
