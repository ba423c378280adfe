// Package services finds what the hosts on the scanned network offer beyond
// open ports: services announced over multicast DNS and SMB servers that
// accept an unauthenticated session.
package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/results"
)

const (
	RiskCritical = "CRITICAL"
	RiskInfo     = "INFO"

	defaultShareWorkers = 8
)

// Share is an SMB server found on an endpoint.
type Share struct {
	IP          string    `json:"ip"`
	Port        uint16    `json:"port"`
	Hostname    string    `json:"hostname"`
	NullSession bool      `json:"nullSession"`
	Risk        string    `json:"risk"`
	Discovered  time.Time `json:"discovered"`
}

// Report is the outcome of one service scan.
type Report struct {
	Services   []Service `json:"services"`
	Shares     []Share   `json:"shares"`
	Vulnerable int       `json:"vulnerable"`
	ScannedAt  time.Time `json:"scannedAt"`
}

// Config tunes a Scanner.
type Config struct {
	MDNSAddr      string
	BrowseTimeout time.Duration
	SMBTimeout    time.Duration
	Workers       int
}

// Scanner runs mDNS browsing and SMB checks and keeps the latest report.
type Scanner struct {
	browser *Browser
	smb     *SMBChecker
	workers int
	logger  *logging.Logger
	now     func() time.Time

	running atomic.Bool

	mu   sync.RWMutex
	last Report
}

// NewScanner creates a scanner. A nil logger selects the default logger.
func NewScanner(cfg Config, logger *logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultShareWorkers
	}
	return &Scanner{
		browser: NewBrowser(cfg.MDNSAddr, cfg.BrowseTimeout),
		smb:     NewSMBChecker(cfg.SMBTimeout),
		workers: workers,
		logger:  logger.WithComponent("services"),
		now:     time.Now,
	}
}

// Run browses for services and checks every endpoint with an SMB port open.
// Only one run may be active at a time.
func (s *Scanner) Run(ctx context.Context, prefix string, endpoints []results.Endpoint) (Report, error) {
	if !s.running.CompareAndSwap(false, true) {
		return Report{}, errors.ErrScanInProgress()
	}
	defer s.running.Store(false)

	var (
		report = Report{ScannedAt: s.now()}
		mu     sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := s.browser.Browse(gctx)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.logger.Warn("mDNS browse failed", "error", err, "code", errors.GetCode(err))
		}
		mu.Lock()
		report.Services = found
		mu.Unlock()
		return nil
	})

	shares := s.checkShares(gctx, prefix, endpoints)
	if err := g.Wait(); err != nil {
		return Report{}, err
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	report.Shares = shares
	for _, sh := range shares {
		if sh.NullSession {
			report.Vulnerable++
		}
	}
	sortReport(&report)

	s.logger.Info("Service scan completed",
		"services", len(report.Services),
		"shares", len(report.Shares),
		"vulnerable", report.Vulnerable)

	s.mu.Lock()
	s.last = report
	s.mu.Unlock()
	return report, nil
}

// checkShares tests each endpoint's first open SMB port.
func (s *Scanner) checkShares(ctx context.Context, prefix string, endpoints []results.Endpoint) []Share {
	var (
		mu     sync.Mutex
		shares []Share
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, ep := range endpoints {
		port, ok := smbPort(ep, s.smb.ports)
		if !ok {
			continue
		}
		ep := ep
		g.Go(func() error {
			ip := results.HostAddr(prefix, ep.HostID)
			null, err := s.smb.Check(gctx, ip, port)
			if err != nil {
				s.logger.Debug("SMB check failed", "target", ip, "port", port, "error", err)
				return nil
			}
			sh := Share{
				IP:          ip,
				Port:        port,
				Hostname:    ep.Hostname,
				NullSession: null,
				Risk:        RiskInfo,
				Discovered:  s.now(),
			}
			if null {
				sh.Risk = RiskCritical
				s.logger.Warn("SMB null session accepted", "target", ip, "port", port)
			}
			mu.Lock()
			shares = append(shares, sh)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return shares
}

func smbPort(ep results.Endpoint, ports []uint16) (uint16, bool) {
	for _, want := range ports {
		for _, p := range ep.OpenPorts {
			if p == want {
				return want, true
			}
		}
	}
	return 0, false
}

func sortReport(r *Report) {
	sort.Slice(r.Services, func(i, j int) bool {
		if r.Services[i].IP != r.Services[j].IP {
			return r.Services[i].IP < r.Services[j].IP
		}
		return r.Services[i].Name < r.Services[j].Name
	})
	sort.Slice(r.Shares, func(i, j int) bool {
		if r.Shares[i].NullSession != r.Shares[j].NullSession {
			return r.Shares[i].NullSession
		}
		return r.Shares[i].IP < r.Shares[j].IP
	})
}

// Last returns the most recent report. ScannedAt is zero before the first run.
func (s *Scanner) Last() Report {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r := s.last
	r.Services = append([]Service(nil), s.last.Services...)
	r.Shares = append([]Share(nil), s.last.Shares...)
	return r
}

// Running reports whether a scan is in progress.
func (s *Scanner) Running() bool {
	return s.running.Load()
}
