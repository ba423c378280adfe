package services

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/anstrom/reconnode/internal/errors"
)

const (
	// DefaultMDNSAddr is the IPv4 mDNS multicast group.
	DefaultMDNSAddr = "224.0.0.251:5353"

	defaultBrowseTimeout = 3 * time.Second
	mdnsReadBufferSize   = 9000
)

// serviceTypes are queried in one browse.
var serviceTypes = []string{
	"_http._tcp.local.",
	"_printer._tcp.local.",
	"_ipp._tcp.local.",
	"_airplay._tcp.local.",
	"_googlecast._tcp.local.",
	"_spotify-connect._tcp.local.",
	"_homekit._tcp.local.",
	"_hap._tcp.local.",
	"_smb._tcp.local.",
	"_afpovertcp._tcp.local.",
	"_ssh._tcp.local.",
	"_sftp-ssh._tcp.local.",
	"_workstation._tcp.local.",
	"_device-info._tcp.local.",
	"_raop._tcp.local.",
}

// Service is one advertised service instance.
type Service struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	IP          string    `json:"ip"`
	Port        uint16    `json:"port"`
	Hostname    string    `json:"hostname"`
	Description string    `json:"description"`
	Discovered  time.Time `json:"discovered"`
}

// Browser sends DNS-SD PTR queries and gathers the answers that arrive before
// the browse timeout.
type Browser struct {
	addr    string
	timeout time.Duration
	types   []string
}

// NewBrowser creates a browser that queries addr. An empty addr selects the
// multicast group.
func NewBrowser(addr string, timeout time.Duration) *Browser {
	if addr == "" {
		addr = DefaultMDNSAddr
	}
	if timeout <= 0 {
		timeout = defaultBrowseTimeout
	}
	return &Browser{addr: addr, timeout: timeout, types: serviceTypes}
}

// Browse returns the services announced in reply to one round of queries.
func (b *Browser) Browse(ctx context.Context) ([]Service, error) {
	dst, err := net.ResolveUDPAddr("udp4", b.addr)
	if err != nil {
		return nil, errors.WrapScanErrorWithTarget(errors.CodeTargetInvalid, "invalid mdns address", b.addr, err)
	}
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return nil, errors.WrapScanError(errors.CodeResolveFailed, "mdns socket failed", err)
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for _, t := range b.types {
		msg := new(dns.Msg)
		msg.SetQuestion(t, dns.TypePTR)
		msg.Id = 0
		msg.RecursionDesired = false
		packed, err := msg.Pack()
		if err != nil {
			return nil, errors.WrapScanError(errors.CodeProtocolDecode, "mdns query encode failed", err)
		}
		if _, err := conn.WriteToUDP(packed, dst); err != nil {
			return nil, errors.WrapScanErrorWithTarget(errors.CodeResolveFailed, "mdns query failed", b.addr, err)
		}
	}

	if err := conn.SetReadDeadline(time.Now().Add(b.timeout)); err != nil {
		return nil, err
	}

	var (
		found []Service
		seen  = make(map[string]bool)
		buf   = make([]byte, mdnsReadBufferSize)
	)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Deadline or cancellation ends the browse.
			break
		}
		in := new(dns.Msg)
		if err := in.Unpack(buf[:n]); err != nil {
			continue
		}
		for _, svc := range servicesFromReply(in, src.IP.String()) {
			key := svc.Name + "|" + svc.IP + "|" + svc.Type
			if seen[key] {
				continue
			}
			seen[key] = true
			found = append(found, svc)
		}
	}
	if err := ctx.Err(); err != nil {
		return found, err
	}
	return found, nil
}

// servicesFromReply follows each PTR to its SRV and the SRV target to an A
// record. Without an A record the reply's source address is used.
func servicesFromReply(msg *dns.Msg, source string) []Service {
	records := append(append([]dns.RR{}, msg.Answer...), msg.Extra...)

	srvs := make(map[string]*dns.SRV)
	addrs := make(map[string]string)
	for _, rr := range records {
		switch v := rr.(type) {
		case *dns.SRV:
			srvs[strings.ToLower(v.Hdr.Name)] = v
		case *dns.A:
			addrs[strings.ToLower(v.Hdr.Name)] = v.A.String()
		}
	}

	now := time.Now()
	var out []Service
	for _, rr := range records {
		ptr, ok := rr.(*dns.PTR)
		if !ok {
			continue
		}
		serviceType := strings.TrimSuffix(ptr.Hdr.Name, ".")
		svc := Service{
			Name:        instanceName(ptr.Ptr, ptr.Hdr.Name),
			Type:        serviceType,
			IP:          source,
			Description: describe(serviceType),
			Discovered:  now,
		}
		if srv, ok := srvs[strings.ToLower(ptr.Ptr)]; ok {
			svc.Port = srv.Port
			svc.Hostname = strings.TrimSuffix(srv.Target, ".")
			if ip, ok := addrs[strings.ToLower(srv.Target)]; ok {
				svc.IP = ip
			}
		}
		out = append(out, svc)
	}
	return out
}

// instanceName strips the service type from a PTR target.
func instanceName(instance, serviceType string) string {
	name := strings.TrimSuffix(instance, "."+serviceType)
	name = strings.TrimSuffix(name, ".")
	return name
}

func describe(serviceType string) string {
	switch {
	case strings.Contains(serviceType, "printer"), strings.Contains(serviceType, "ipp"):
		return "Printer"
	case strings.Contains(serviceType, "airplay"), strings.Contains(serviceType, "raop"):
		return "AirPlay"
	case strings.Contains(serviceType, "googlecast"):
		return "Chromecast"
	case strings.Contains(serviceType, "http"):
		return "Web Server"
	case strings.Contains(serviceType, "ssh"), strings.Contains(serviceType, "sftp"):
		return "SSH"
	case strings.Contains(serviceType, "smb"), strings.Contains(serviceType, "afp"):
		return "File Share"
	case strings.Contains(serviceType, "spotify"):
		return "Spotify"
	case strings.Contains(serviceType, "homekit"), strings.Contains(serviceType, "hap"):
		return "HomeKit"
	}
	return "Service"
}
