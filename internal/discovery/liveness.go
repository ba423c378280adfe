package discovery

import (
	"context"
	"time"

	"github.com/anstrom/reconnode/internal/config"
)

const defaultLivenessTimeout = 30 * time.Millisecond

// FallbackPorts are tried in order when a host is not in the sweep cache.
var FallbackPorts = []uint16{80, 443, 22}

// HostCache answers whether a host was seen by discovery.
type HostCache interface {
	Contains(prefix string, hostID uint8) bool
}

// Prober is the connect check used for the fallback.
type Prober interface {
	Probe(ctx context.Context, addr string, port uint16, timeout time.Duration) bool
}

// Liveness decides whether a host should be port scanned.
type Liveness struct {
	cache   HostCache
	prober  Prober
	timeout time.Duration
}

// NewLiveness creates a liveness check. cache may be nil.
func NewLiveness(cfg config.DiscoveryConfig, cache HostCache, prober Prober) *Liveness {
	timeout := cfg.LivenessTimeout
	if timeout <= 0 {
		timeout = defaultLivenessTimeout
	}
	return &Liveness{
		cache:   cache,
		prober:  prober,
		timeout: timeout,
	}
}

// IsAlive reports true when the host was seen by the last sweep or accepts a
// connection on one of FallbackPorts.
func (l *Liveness) IsAlive(ctx context.Context, prefix string, hostID uint8) bool {
	if l.cache != nil && l.cache.Contains(prefix, hostID) {
		return true
	}
	if l.prober == nil {
		return false
	}

	addr := config.HostAddr(prefix, hostID)
	for _, port := range FallbackPorts {
		if ctx.Err() != nil {
			return false
		}
		if l.prober.Probe(ctx, addr, port, l.timeout) {
			return true
		}
	}
	return false
}
