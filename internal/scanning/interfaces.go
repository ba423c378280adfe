package scanning

//go:generate mockgen -destination=mocks/mock_collaborators.go -package=mocks . DiscoveryProbe,LivenessProbe,PortProbe,HostnameResolver,HardwareLookup,Publisher,HistoryRecorder

import (
	"context"
	"time"
)

// DiscoveryProbe finds live hosts on the local network ahead of a scan.
// prefix is the scanned network prefix, e.g. "192.168.1.".
type DiscoveryProbe interface {
	Sweep(ctx context.Context, prefix string) error
	ActiveHosts(prefix string) []uint8
}

// LivenessProbe decides whether a host is worth port scanning.
type LivenessProbe interface {
	IsAlive(ctx context.Context, prefix string, hostID uint8) bool
}

// PortProbe tests a single TCP port. Any failure means closed.
type PortProbe interface {
	Probe(ctx context.Context, addr string, port uint16, timeout time.Duration) bool
	ProbeWithBanner(ctx context.Context, addr string, port uint16, timeout time.Duration) (bool, string)
}

// HostnameResolver looks up a display name for a host. Best effort.
type HostnameResolver interface {
	Resolve(ctx context.Context, prefix string, hostID uint8) (string, bool)
}

// HardwareLookup reports the MAC address seen for a host, if any.
type HardwareLookup interface {
	HardwareAddr(prefix string, hostID uint8) (string, bool)
}

// Publisher emits scan events. Delivery is not guaranteed.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) bool
}

// HistoryRecorder persists a summary of each finalized cycle.
type HistoryRecorder interface {
	RecordCycle(ctx context.Context, cycle Cycle) error
}
