// Package probe implements TCP connect port probing with optional banner
// capture. A probe never returns an error: anything short of a completed
// handshake is reported as closed.
package probe

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"time"
)

const (
	// MaxBannerLength caps a captured banner in characters.
	MaxBannerLength = 100

	defaultBannerWait = 50 * time.Millisecond
	defaultHTTPWait   = 100 * time.Millisecond

	httpHeadRequest = "HEAD / HTTP/1.0\r\n\r\n"
)

// httpPorts receive a HEAD request before the banner is read.
var httpPorts = map[uint16]bool{
	80:   true,
	8080: true,
}

// TCPProber probes ports with full TCP connects.
type TCPProber struct {
	dialer     net.Dialer
	bannerWait time.Duration
	httpWait   time.Duration
}

// Option configures a TCPProber.
type Option func(*TCPProber)

// WithBannerWait sets how long to wait for a server greeting.
func WithBannerWait(d time.Duration) Option {
	return func(p *TCPProber) { p.bannerWait = d }
}

// WithHTTPWait sets how long to wait for a reply to the HEAD request.
func WithHTTPWait(d time.Duration) Option {
	return func(p *TCPProber) { p.httpWait = d }
}

// NewTCPProber creates a prober.
func NewTCPProber(opts ...Option) *TCPProber {
	p := &TCPProber{
		bannerWait: defaultBannerWait,
		httpWait:   defaultHTTPWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *TCPProber) dial(ctx context.Context, addr string, port uint16, timeout time.Duration) (net.Conn, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return p.dialer.DialContext(ctx, "tcp", net.JoinHostPort(addr, strconv.Itoa(int(port))))
}

// Probe reports whether a TCP connection to addr:port completes within timeout.
func (p *TCPProber) Probe(ctx context.Context, addr string, port uint16, timeout time.Duration) bool {
	conn, err := p.dial(ctx, addr, port, timeout)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// ProbeWithBanner connects like Probe and then reads a single line from the
// service. HTTP ports are sent a HEAD request first. A port is open even when
// no banner arrives.
func (p *TCPProber) ProbeWithBanner(ctx context.Context, addr string, port uint16,
	timeout time.Duration) (bool, string) {
	conn, err := p.dial(ctx, addr, port, timeout)
	if err != nil {
		return false, ""
	}
	defer conn.Close()

	wait := p.bannerWait
	if httpPorts[port] {
		wait = p.httpWait
		if _, err := conn.Write([]byte(httpHeadRequest)); err != nil {
			return true, ""
		}
	}
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return true, ""
	}

	return true, readLine(conn)
}

// readLine returns the first line available on r, without the line
// terminator, truncated to MaxBannerLength characters.
func readLine(r interface{ Read([]byte) (int, error) }) string {
	reader := bufio.NewReaderSize(r, 512)
	line, _ := reader.ReadString('\n')
	line = strings.TrimRight(line, "\r\n")
	if runes := []rune(line); len(runes) > MaxBannerLength {
		line = string(runes[:MaxBannerLength])
	}
	return line
}
