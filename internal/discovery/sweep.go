// Package discovery finds live hosts on the scanned /24 ahead of a port scan.
// NmapSweeper runs an nmap ping sweep and caches the responding host ids and
// their MAC addresses; Liveness answers per-host checks from that cache with
// a TCP fallback.
package discovery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/reconnode/internal/config"
	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
)

const (
	defaultSweepTimeout = 30 * time.Second

	addrTypeIPv4 = "ipv4"
	addrTypeMAC  = "mac"
	stateUp      = "up"
)

// runFunc executes nmap with opts and returns the parsed run.
type runFunc func(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error)

// sweepResult is what one successful sweep of a /24 found.
type sweepResult struct {
	prefix string
	active []uint8
	index  map[uint8]bool
	macs   map[uint8]string
}

// NmapSweeper discovers live hosts with `nmap -sn`. The network is chosen per
// sweep; cached answers are only given for the prefix that was last swept.
type NmapSweeper struct {
	timeout time.Duration
	run     runFunc
	logger  *logging.Logger

	mu   sync.RWMutex
	last sweepResult
}

// NewNmapSweeper creates a sweeper.
func NewNmapSweeper(cfg config.DiscoveryConfig) *NmapSweeper {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSweepTimeout
	}
	return &NmapSweeper{
		timeout: timeout,
		run:     runNmap,
		logger:  logging.Default().WithComponent("discovery"),
	}
}

func runNmap(ctx context.Context, opts ...nmap.Option) (*nmap.Run, error) {
	scanner, err := nmap.NewScanner(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create nmap scanner: %w", err)
	}
	result, warnings, err := scanner.Run()
	if err != nil {
		return nil, fmt.Errorf("nmap discovery failed: %w", err)
	}
	if warnings != nil && len(*warnings) > 0 {
		logging.Debug("Discovery completed with warnings", "warnings", *warnings)
	}
	return result, nil
}

// buildSweepOptions constructs nmap options for a ping sweep of network.
func buildSweepOptions(network string, timeout time.Duration) []nmap.Option {
	options := []nmap.Option{
		nmap.WithTargets(network),
		nmap.WithPingScan(),
		nmap.WithDisabledDNSResolution(),
	}

	switch {
	case timeout <= 5*time.Second:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingAggressive))
	case timeout <= 15*time.Second:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingNormal))
	default:
		options = append(options, nmap.WithTimingTemplate(nmap.TimingPolite))
	}
	return options
}

// Sweep refreshes the cache of active hosts for the /24 of prefix. On failure
// the previous cache is kept and a discovery error is returned.
func (s *NmapSweeper) Sweep(ctx context.Context, prefix string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	network := config.NetworkOf(prefix)
	start := time.Now()
	result, err := s.run(ctx, buildSweepOptions(network, s.timeout)...)
	if err != nil {
		return errors.ErrDiscoveryFailed(network, err)
	}

	hosts, macs := parseRun(result, prefix)
	index := make(map[uint8]bool, len(hosts))
	for _, id := range hosts {
		index[id] = true
	}

	s.mu.Lock()
	s.last = sweepResult{prefix: prefix, active: hosts, index: index, macs: macs}
	s.mu.Unlock()

	s.logger.InfoDiscovery("Ping sweep finished", network,
		"active_hosts", len(hosts),
		"hardware_addrs", len(macs),
		"duration", time.Since(start))
	return nil
}

// ActiveHosts returns the host ids found by the last successful sweep of
// prefix, in the order nmap reported them.
func (s *NmapSweeper) ActiveHosts(prefix string) []uint8 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last.prefix != prefix {
		return nil
	}
	return append([]uint8(nil), s.last.active...)
}

// Contains reports whether hostID under prefix answered the last sweep.
func (s *NmapSweeper) Contains(prefix string, hostID uint8) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last.prefix == prefix && s.last.index[hostID]
}

// HardwareAddr returns the MAC address nmap reported for the host. nmap only
// sees MACs of hosts on the local link.
func (s *NmapSweeper) HardwareAddr(prefix string, hostID uint8) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last.prefix != prefix {
		return "", false
	}
	mac, ok := s.last.macs[hostID]
	return mac, ok
}

// HostsFromRun extracts the ids of hosts that are up and whose IPv4 address
// starts with prefix. Each id appears once.
func HostsFromRun(run *nmap.Run, prefix string) []uint8 {
	hosts, _ := parseRun(run, prefix)
	return hosts
}

// parseRun returns the up hosts under prefix and the MAC of each host that
// had one.
func parseRun(run *nmap.Run, prefix string) ([]uint8, map[uint8]string) {
	macs := make(map[uint8]string)
	if run == nil {
		return nil, macs
	}

	var hosts []uint8
	seen := make(map[uint8]bool)
	for i := range run.Hosts {
		host := &run.Hosts[i]
		if host.Status.State != stateUp {
			continue
		}

		var mac string
		var ids []uint8
		for _, addr := range host.Addresses {
			switch addr.AddrType {
			case addrTypeMAC:
				mac = strings.ToUpper(addr.Addr)
			case addrTypeIPv4, "":
				if id, ok := hostID(addr.Addr, prefix); ok {
					ids = append(ids, id)
				}
			}
		}

		for _, id := range ids {
			if mac != "" {
				macs[id] = mac
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			hosts = append(hosts, id)
		}
	}
	return hosts, macs
}

// hostID returns the final octet of addr when addr lies under prefix.
func hostID(addr, prefix string) (uint8, bool) {
	if !strings.HasPrefix(addr, prefix) {
		return 0, false
	}
	n, err := strconv.Atoi(addr[len(prefix):])
	if err != nil || n < 1 || n > 254 {
		return 0, false
	}
	return uint8(n), true
}
