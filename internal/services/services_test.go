package services

import (
	"bytes"
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/reconnode/internal/errors"
	"github.com/anstrom/reconnode/internal/logging"
	"github.com/anstrom/reconnode/internal/results"
)

func testLogger() *logging.Logger {
	return logging.NewWithWriter(&bytes.Buffer{}, logging.Config{Level: "error", Format: "text"})
}

func TestNegotiateRequest_WireBytes(t *testing.T) {
	want := []byte{
		0x00, 0x00, 0x00, 0x8C, 0xFF, 0x53, 0x4D, 0x42, 0x72, 0x00, 0x00, 0x00, 0x00, 0x18, 0x53, 0xC8,
	}
	want = append(want, make([]byte, 11)...)
	want = append(want, 0xFF, 0xFF, 0xFF, 0xFE)
	want = append(want, make([]byte, 12)...)
	want = append(want, 0x00, 0x62, 0x00)
	for _, d := range []string{
		"PC NETWORK PROGRAM 1.0", "LANMAN1.0", "Windows for Workgroups 3.1a",
		"LM1.2X002", "LANMAN2.1", "NT LM 0.12",
	} {
		want = append(want, 0x02)
		want = append(want, d...)
		want = append(want, 0x00)
	}

	got, err := newNegotiateRequest().MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Len(t, got, 144)
	assert.Equal(t, uint32(len(got)-4), binary.BigEndian.Uint32(got[:4]))
}

func negotiateReply(status uint32) []byte {
	b := []byte{0x00, 0x00, 0x00, 0x20, 0xFF, 'S', 'M', 'B', 0x72, 0, 0, 0, 0}
	binary.LittleEndian.PutUint32(b[9:], status)
	return append(b, make([]byte, 24)...)
}

func TestNegotiateResponse_Unmarshal(t *testing.T) {
	var r negotiateResponse
	require.NoError(t, r.UnmarshalBinary(negotiateReply(0xC0000022)))
	assert.Equal(t, uint32(0xC0000022), r.Status)

	err := r.UnmarshalBinary([]byte{0, 0, 0, 1, 0xFF})
	assert.True(t, errors.IsCode(err, errors.CodeProtocolDecode))

	err = r.UnmarshalBinary(append([]byte{0, 0, 0, 9, 0xFE, 'S', 'M', 'B'}, make([]byte, 8)...))
	assert.True(t, errors.IsCode(err, errors.CodeProtocolDecode))
}

// startSMBServer answers every connection with a negotiate reply carrying
// status.
func startSMBServer(t *testing.T, status uint32) uint16 {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				buf := make([]byte, 512)
				if _, err := c.Read(buf); err != nil {
					return
				}
				_, _ = c.Write(negotiateReply(status))
			}(conn)
		}
	}()
	return uint16(ln.Addr().(*net.TCPAddr).Port)
}

func TestSMBChecker_Check(t *testing.T) {
	checker := NewSMBChecker(time.Second)

	t.Run("null session accepted", func(t *testing.T) {
		port := startSMBServer(t, 0)
		ok, err := checker.Check(context.Background(), "127.0.0.1", port)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("access denied", func(t *testing.T) {
		port := startSMBServer(t, 0xC0000022)
		ok, err := checker.Check(context.Background(), "127.0.0.1", port)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("connection refused", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		port := uint16(ln.Addr().(*net.TCPAddr).Port)
		require.NoError(t, ln.Close())

		ok, err := checker.Check(context.Background(), "127.0.0.1", port)
		assert.False(t, ok)
		assert.True(t, errors.IsCode(err, errors.CodeResolveFailed))
	})
}

// startMDNSResponder answers _http._tcp.local. with one instance and every
// other query with an empty reply.
func startMDNSResponder(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			m.SetReply(r)
			if r.Question[0].Name == "_http._tcp.local." {
				hdr := func(name string, rrtype uint16) dns.RR_Header {
					return dns.RR_Header{Name: name, Rrtype: rrtype, Class: dns.ClassINET, Ttl: 120}
				}
				m.Answer = append(m.Answer, &dns.PTR{
					Hdr: hdr("_http._tcp.local.", dns.TypePTR),
					Ptr: "Router Admin._http._tcp.local.",
				})
				m.Extra = append(m.Extra,
					&dns.SRV{
						Hdr:    hdr("Router Admin._http._tcp.local.", dns.TypeSRV),
						Port:   8080,
						Target: "router.local.",
					},
					&dns.A{Hdr: hdr("router.local.", dns.TypeA), A: net.ParseIP("10.1.2.3")},
				)
			}
			_ = w.WriteMsg(m)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestBrowser_Browse(t *testing.T) {
	addr := startMDNSResponder(t)
	b := NewBrowser(addr, 300*time.Millisecond)

	found, err := b.Browse(context.Background())
	require.NoError(t, err)
	require.Len(t, found, 1)

	svc := found[0]
	assert.Equal(t, "Router Admin", svc.Name)
	assert.Equal(t, "_http._tcp.local", svc.Type)
	assert.Equal(t, "10.1.2.3", svc.IP)
	assert.Equal(t, uint16(8080), svc.Port)
	assert.Equal(t, "router.local", svc.Hostname)
	assert.Equal(t, "Web Server", svc.Description)
}

func TestBrowser_CancelEndsBrowse(t *testing.T) {
	addr := startMDNSResponder(t)
	b := NewBrowser(addr, 10*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Browse(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestServicesFromReply_FallsBackToSource(t *testing.T) {
	m := new(dns.Msg)
	m.Answer = []dns.RR{&dns.PTR{
		Hdr: dns.RR_Header{Name: "_ipp._tcp.local.", Rrtype: dns.TypePTR, Class: dns.ClassINET},
		Ptr: "Office._ipp._tcp.local.",
	}}

	got := servicesFromReply(m, "192.168.1.40")
	require.Len(t, got, 1)
	assert.Equal(t, "Office", got[0].Name)
	assert.Equal(t, "192.168.1.40", got[0].IP)
	assert.Equal(t, "Printer", got[0].Description)
	assert.Zero(t, got[0].Port)
}

func TestDescribe(t *testing.T) {
	tests := map[string]string{
		"_printer._tcp.local":         "Printer",
		"_raop._tcp.local":            "AirPlay",
		"_googlecast._tcp.local":      "Chromecast",
		"_http._tcp.local":            "Web Server",
		"_sftp-ssh._tcp.local":        "SSH",
		"_afpovertcp._tcp.local":      "File Share",
		"_spotify-connect._tcp.local": "Spotify",
		"_hap._tcp.local":             "HomeKit",
		"_workstation._tcp.local":     "Service",
	}
	for in, want := range tests {
		assert.Equal(t, want, describe(in), in)
	}
}

func TestScanner_Run(t *testing.T) {
	mdnsAddr := startMDNSResponder(t)
	openPort := startSMBServer(t, 0)
	closedPort := startSMBServer(t, 0xC0000022)

	s := NewScanner(Config{
		MDNSAddr:      mdnsAddr,
		BrowseTimeout: 200 * time.Millisecond,
		SMBTimeout:    time.Second,
	}, testLogger())
	s.smb.ports = []uint16{openPort, closedPort}

	endpoints := []results.Endpoint{
		{HostID: 1, Hostname: "nas", OpenPorts: []uint16{22, openPort}},
		{HostID: 1, Hostname: "pc", OpenPorts: []uint16{closedPort}},
		{HostID: 9, OpenPorts: []uint16{80}},
	}

	assert.True(t, s.Last().ScannedAt.IsZero())

	report, err := s.Run(context.Background(), "127.0.0.", endpoints)
	require.NoError(t, err)

	require.Len(t, report.Services, 1)
	require.Len(t, report.Shares, 2)
	assert.Equal(t, 1, report.Vulnerable)

	assert.True(t, report.Shares[0].NullSession)
	assert.Equal(t, RiskCritical, report.Shares[0].Risk)
	assert.Equal(t, "nas", report.Shares[0].Hostname)
	assert.Equal(t, "127.0.0.1", report.Shares[0].IP)
	assert.Equal(t, openPort, report.Shares[0].Port)
	assert.Equal(t, RiskInfo, report.Shares[1].Risk)

	last := s.Last()
	assert.Equal(t, report.Vulnerable, last.Vulnerable)
	assert.False(t, last.ScannedAt.IsZero())
	assert.False(t, s.Running())
}

func TestScanner_RejectsOverlappingRuns(t *testing.T) {
	mdnsAddr := startMDNSResponder(t)
	s := NewScanner(Config{MDNSAddr: mdnsAddr, BrowseTimeout: 300 * time.Millisecond}, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, err := s.Run(context.Background(), "127.0.0.", nil)
		assert.NoError(t, err)
	}()

	require.Eventually(t, s.Running, time.Second, 5*time.Millisecond)
	_, err := s.Run(context.Background(), "127.0.0.", nil)
	assert.True(t, errors.IsCode(err, errors.CodeScanInProgress))
	wg.Wait()
}

func TestSMBPortPrefersFirstListed(t *testing.T) {
	ep := results.Endpoint{OpenPorts: []uint16{139, 445}}
	port, ok := smbPort(ep, smbPorts)
	require.True(t, ok)
	assert.Equal(t, uint16(445), port)

	_, ok = smbPort(results.Endpoint{OpenPorts: []uint16{80}}, smbPorts)
	assert.False(t, ok)
}
