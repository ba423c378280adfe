// Package risk classifies a host from its set of open ports. Classification is
// a pure function: an ordered device rule table decides the device type and a
// fixed port weight table produces the score and findings.
package risk

import (
	"fmt"
	"strconv"
)

// Severity grades a finding.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
	SeverityInfo     Severity = "Info"
)

const (
	// MaxScore is the upper clamp for a risk score.
	MaxScore = 100
	// PointsPerOpenPort is added to the score for every open port.
	PointsPerOpenPort = 2
	// AnyPort marks a finding that is not tied to a single port.
	AnyPort = "*"

	DeviceUnknown = "Unknown"
)

// Finding is one contributor to a risk score.
type Finding struct {
	Port     string   `json:"port"`
	Service  string   `json:"service"`
	Severity Severity `json:"severity"`
	Points   uint8    `json:"points"`
}

// Assessment is the outcome of classifying one host.
type Assessment struct {
	DeviceType string
	Score      uint8
	Findings   []Finding
}

type weight struct {
	port     uint16
	service  string
	severity Severity
	points   uint8
}

// weights is evaluated in order; findings follow the same order.
var weights = []weight{
	{23, "Telnet", SeverityCritical, 30},
	{21, "FTP", SeverityHigh, 20},
	{3389, "RDP", SeverityHigh, 15},
	{445, "SMB", SeverityHigh, 15},
	{22, "SSH", SeverityMedium, 10},
	{3306, "MySQL", SeverityMedium, 10},
	{5432, "PostgreSQL", SeverityMedium, 10},
	{80, "HTTP", SeverityLow, 5},
	{443, "HTTPS", SeverityLow, 3},
}

type portSet map[uint16]struct{}

func (s portSet) has(port uint16) bool {
	_, ok := s[port]
	return ok
}

type deviceRule struct {
	device string
	match  func(s portSet) bool
}

// deviceRules is evaluated in order; the first match wins.
var deviceRules = []deviceRule{
	{"Windows PC", func(s portSet) bool { return s.has(3389) && s.has(445) }},
	{"IoT Device", func(s portSet) bool { return s.has(22) && s.has(80) && len(s) < 5 }},
	{"IoT/MQTT Device", func(s portSet) bool { return s.has(1883) }},
	{"Router/Gateway", func(s portSet) bool { return s.has(1900) }},
	{"Legacy Device", func(s portSet) bool { return s.has(23) && !s.has(22) }},
	{"Server", func(s portSet) bool { return s.has(80) && s.has(443) && len(s) > 10 }},
	{"Linux Server", func(s portSet) bool { return s.has(22) && len(s) > 5 }},
	{"Web Device", func(s portSet) bool { return s.has(80) || s.has(443) }},
}

func newPortSet(ports []uint16) portSet {
	s := make(portSet, len(ports))
	for _, p := range ports {
		s[p] = struct{}{}
	}
	return s
}

// Classify assesses a host. Duplicate ports count once.
func Classify(ports []uint16) Assessment {
	s := newPortSet(ports)
	return Assessment{
		DeviceType: identify(s),
		Score:      score(s),
		Findings:   findings(s),
	}
}

func identify(s portSet) string {
	for _, rule := range deviceRules {
		if rule.match(s) {
			return rule.device
		}
	}
	return DeviceUnknown
}

func score(s portSet) uint8 {
	total := 0
	for _, w := range weights {
		if s.has(w.port) {
			total += int(w.points)
		}
	}
	total += PointsPerOpenPort * len(s)
	if total > MaxScore {
		total = MaxScore
	}
	return uint8(total)
}

func findings(s portSet) []Finding {
	out := make([]Finding, 0, len(weights)+1)
	for _, w := range weights {
		if !s.has(w.port) {
			continue
		}
		out = append(out, Finding{
			Port:     strconv.Itoa(int(w.port)),
			Service:  w.service,
			Severity: w.severity,
			Points:   w.points,
		})
	}

	if n := len(s); n > 0 {
		points := PointsPerOpenPort * n
		if points > 255 {
			points = 255
		}
		out = append(out, Finding{
			Port:     AnyPort,
			Service:  fmt.Sprintf("%d open ports", n),
			Severity: SeverityInfo,
			Points:   uint8(points),
		})
	}
	return out
}
