// Package results holds the shared aggregate written by scan workers: a bounded
// ring of recent open-port observations, one endpoint record per host and the
// cumulative scan statistics. Every access goes through a single exclusive
// lock scoped to the Store; readers only ever receive copies.
package results

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/anstrom/reconnode/internal/risk"
)

const (
	// DefaultCapacity is the ring buffer size for recent results.
	DefaultCapacity = 100
	// DefaultMembershipWait bounds how long HasEndpoint waits for the lock.
	DefaultMembershipWait = 100 * time.Millisecond

	unknownLabel = "Unknown"
)

// ProbeResult is one open-port observation.
type ProbeResult struct {
	HostID    uint8
	Port      uint16
	Timestamp time.Time
}

// Endpoint is the accumulated profile of one host.
type Endpoint struct {
	HostID          uint8
	Hostname        string
	MAC             string
	OpenPorts       []uint16
	Banners         []string
	DeviceType      string
	RiskScore       uint8
	Findings        []risk.Finding
	FirstSeen       time.Time
	LastSeen        time.Time
	ScanCount       uint32
	AvgResponseTime time.Duration
}

func (e *Endpoint) hasPort(port uint16) bool {
	for _, p := range e.OpenPorts {
		if p == port {
			return true
		}
	}
	return false
}

func (e *Endpoint) clone() Endpoint {
	cp := *e
	cp.OpenPorts = append([]uint16(nil), e.OpenPorts...)
	cp.Banners = append([]string(nil), e.Banners...)
	cp.Findings = append([]risk.Finding(nil), e.Findings...)
	return cp
}

// Stats are cumulative over all finalized scans. Durations are whole seconds.
type Stats struct {
	TotalScans        uint32 `json:"totalScans"`
	TotalIPsScanned   uint32 `json:"totalIpsScanned"`
	TotalPortsChecked uint32 `json:"totalPortsChecked"`
	TotalOpenPorts    uint32 `json:"totalOpenPorts"`
	UniqueHosts       uint32 `json:"uniqueHosts"`
	LastScanDuration  uint32 `json:"lastScanDuration"`
	AvgScanDuration   uint32 `json:"avgScanDuration"`
}

// Config tunes a Store. Zero values select the defaults.
type Config struct {
	Capacity       int
	MembershipWait time.Duration
	Now            func() time.Time
}

// Store is safe for concurrent use.
type Store struct {
	// lock is a weight-1 semaphore so that HasEndpoint can give up after a wait.
	lock *semaphore.Weighted

	recent    *ring
	endpoints []*Endpoint
	index     map[uint8]*Endpoint
	stats     Stats

	membershipWait time.Duration
	now            func() time.Time
}

// New creates an empty Store.
func New(cfg Config) *Store {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.MembershipWait <= 0 {
		cfg.MembershipWait = DefaultMembershipWait
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Store{
		lock:           semaphore.NewWeighted(1),
		recent:         newRing(cfg.Capacity),
		index:          make(map[uint8]*Endpoint),
		membershipWait: cfg.MembershipWait,
		now:            cfg.Now,
	}
}

// NewDefault creates a Store with default settings.
func NewDefault() *Store {
	return New(Config{})
}

func (s *Store) acquire() {
	// Acquire only fails when its context ends; Background never does.
	_ = s.lock.Acquire(context.Background(), 1)
}

func (s *Store) tryAcquire(wait time.Duration) bool {
	if s.lock.TryAcquire(1) {
		return true
	}
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	return s.lock.Acquire(ctx, 1) == nil
}

func (s *Store) release() {
	s.lock.Release(1)
}

// endpointLocked returns the record for hostID, creating it when absent.
func (s *Store) endpointLocked(hostID uint8, now time.Time) *Endpoint {
	if ep, ok := s.index[hostID]; ok {
		return ep
	}
	ep := &Endpoint{
		HostID:     hostID,
		Hostname:   unknownLabel,
		MAC:        unknownLabel,
		DeviceType: unknownLabel,
		FirstSeen:  now,
		LastSeen:   now,
	}
	s.index[hostID] = ep
	s.endpoints = append(s.endpoints, ep)
	s.stats.UniqueHosts++
	return ep
}

// Add records an open port. The port is added to the host's record once; a
// non-empty banner is stored as "port: banner" alongside a newly seen port.
func (s *Store) Add(hostID uint8, port uint16, banner string) {
	now := s.now()

	s.acquire()
	defer s.release()

	s.recent.push(ProbeResult{HostID: hostID, Port: port, Timestamp: now})
	s.stats.TotalOpenPorts++

	ep := s.endpointLocked(hostID, now)
	ep.LastSeen = now
	if ep.hasPort(port) {
		return
	}
	ep.OpenPorts = append(ep.OpenPorts, port)
	if banner != "" {
		ep.Banners = append(ep.Banners, FormatBanner(port, banner))
	}
}

// UpdateEndpointMetadata overwrites the classification of an existing host.
// Findings are replaced, not merged. Unknown hosts are ignored.
func (s *Store) UpdateEndpointMetadata(hostID uint8, deviceType string, score uint8,
	avgResponse time.Duration, findings []risk.Finding) {
	s.acquire()
	defer s.release()

	ep, ok := s.index[hostID]
	if !ok {
		return
	}
	ep.DeviceType = deviceType
	ep.RiskScore = score
	ep.AvgResponseTime = avgResponse
	ep.Findings = append([]risk.Finding(nil), findings...)
}

// Reclassify runs classify over the host's current open ports and stores the
// outcome, all under one lock hold, so the stored classification always
// matches OpenPorts. It returns false for unknown hosts.
func (s *Store) Reclassify(hostID uint8, avgResponse time.Duration,
	classify func(ports []uint16) risk.Assessment) (risk.Assessment, bool) {
	s.acquire()
	defer s.release()

	ep, ok := s.index[hostID]
	if !ok {
		return risk.Assessment{}, false
	}
	a := classify(append([]uint16(nil), ep.OpenPorts...))
	ep.DeviceType = a.DeviceType
	ep.RiskScore = a.Score
	ep.AvgResponseTime = avgResponse
	ep.Findings = append([]risk.Finding(nil), a.Findings...)
	return a, true
}

// UpdateHostname sets the hostname, creating the record if absent.
func (s *Store) UpdateHostname(hostID uint8, name string) {
	now := s.now()

	s.acquire()
	defer s.release()

	s.endpointLocked(hostID, now).Hostname = name
}

// UpdateHardwareAddr sets the MAC address, creating the record if absent.
func (s *Store) UpdateHardwareAddr(hostID uint8, mac string) {
	now := s.now()

	s.acquire()
	defer s.release()

	s.endpointLocked(hostID, now).MAC = mac
}

// UpdateScanStats folds one finished scan into the totals and the running
// mean: avg' = (avg*(n-1) + d) / n in integer seconds.
func (s *Store) UpdateScanStats(ipsScanned, portsChecked, durationSeconds uint32) {
	s.acquire()
	defer s.release()

	st := &s.stats
	st.TotalScans++
	st.TotalIPsScanned += ipsScanned
	st.TotalPortsChecked += portsChecked
	st.LastScanDuration = durationSeconds

	n := uint64(st.TotalScans)
	st.AvgScanDuration = uint32((uint64(st.AvgScanDuration)*(n-1) + uint64(durationSeconds)) / n)
}

// MarkScanned increments the scan count of every listed host that has a record.
func (s *Store) MarkScanned(hostIDs []uint8) {
	s.acquire()
	defer s.release()

	for _, id := range hostIDs {
		if ep, ok := s.index[id]; ok {
			ep.ScanCount++
		}
	}
}

// Clear empties the recent results ring. Endpoints and stats are kept.
func (s *Store) Clear() {
	s.acquire()
	defer s.release()

	s.recent.reset()
}

// HasEndpoint reports whether hostID has a record. It gives up and returns
// false if the lock is not obtained within the membership wait.
func (s *Store) HasEndpoint(hostID uint8) bool {
	if !s.tryAcquire(s.membershipWait) {
		return false
	}
	defer s.release()

	_, ok := s.index[hostID]
	return ok
}

// Count returns the number of results in the ring.
func (s *Store) Count() int {
	s.acquire()
	defer s.release()

	return s.recent.len()
}

// OpenPorts returns a copy of the host's open ports in discovery order.
func (s *Store) OpenPorts(hostID uint8) []uint16 {
	s.acquire()
	defer s.release()

	ep, ok := s.index[hostID]
	if !ok {
		return nil
	}
	return append([]uint16(nil), ep.OpenPorts...)
}

// Endpoint returns a copy of one host's record.
func (s *Store) Endpoint(hostID uint8) (Endpoint, bool) {
	s.acquire()
	defer s.release()

	ep, ok := s.index[hostID]
	if !ok {
		return Endpoint{}, false
	}
	return ep.clone(), true
}

// Endpoints returns copies of all records in the order hosts were first seen.
func (s *Store) Endpoints() []Endpoint {
	s.acquire()
	defer s.release()

	out := make([]Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		out = append(out, ep.clone())
	}
	return out
}

// EndpointsByRisk returns copies of all records, highest risk first.
func (s *Store) EndpointsByRisk() []Endpoint {
	out := s.Endpoints()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RiskScore > out[j].RiskScore
	})
	return out
}

// Results returns the ring contents, oldest first.
func (s *Store) Results() []ProbeResult {
	s.acquire()
	defer s.release()

	return s.recent.items()
}

// Stats returns a copy of the cumulative statistics.
func (s *Store) Stats() Stats {
	s.acquire()
	defer s.release()

	return s.stats
}
