package results

import (
	"encoding/json"
	"strconv"

	"github.com/anstrom/reconnode/internal/risk"
)

// ResultView is the serialized form of a ProbeResult.
type ResultView struct {
	IP        string `json:"ip"`
	Port      uint16 `json:"port"`
	Timestamp int64  `json:"timestamp"`
}

// EndpointView is the serialized form of an Endpoint. Times are Unix seconds
// and the response time is in milliseconds.
type EndpointView struct {
	IP              string         `json:"ip"`
	Hostname        string         `json:"hostname"`
	MAC             string         `json:"mac"`
	DeviceType      string         `json:"deviceType"`
	RiskScore       uint8          `json:"riskScore"`
	AvgResponseTime int64          `json:"avgResponseTime"`
	PortCount       int            `json:"portCount"`
	Ports           []uint16       `json:"ports"`
	Banners         []string       `json:"banners"`
	RiskFindings    []risk.Finding `json:"riskFindings"`
	FirstSeen       int64          `json:"firstSeen"`
	LastSeen        int64          `json:"lastSeen"`
	ScanCount       uint32         `json:"scanCount"`
}

// HostAddr joins a network prefix such as "192.168.1." and a host ID.
func HostAddr(prefix string, hostID uint8) string {
	return prefix + strconv.Itoa(int(hostID))
}

// NewEndpointView converts an Endpoint for serialization.
func NewEndpointView(prefix string, ep Endpoint) EndpointView {
	v := EndpointView{
		IP:              HostAddr(prefix, ep.HostID),
		Hostname:        ep.Hostname,
		MAC:             ep.MAC,
		DeviceType:      ep.DeviceType,
		RiskScore:       ep.RiskScore,
		AvgResponseTime: ep.AvgResponseTime.Milliseconds(),
		PortCount:       len(ep.OpenPorts),
		Ports:           ep.OpenPorts,
		Banners:         ep.Banners,
		RiskFindings:    ep.Findings,
		FirstSeen:       ep.FirstSeen.Unix(),
		LastSeen:        ep.LastSeen.Unix(),
		ScanCount:       ep.ScanCount,
	}
	if v.Ports == nil {
		v.Ports = []uint16{}
	}
	if v.Banners == nil {
		v.Banners = []string{}
	}
	if v.RiskFindings == nil {
		v.RiskFindings = []risk.Finding{}
	}
	return v
}

// ResultViews converts the ring contents for serialization.
func (s *Store) ResultViews(prefix string) []ResultView {
	items := s.Results()
	out := make([]ResultView, 0, len(items))
	for _, r := range items {
		out = append(out, ResultView{
			IP:        HostAddr(prefix, r.HostID),
			Port:      r.Port,
			Timestamp: r.Timestamp.Unix(),
		})
	}
	return out
}

// EndpointViews converts every endpoint for serialization.
func (s *Store) EndpointViews(prefix string) []EndpointView {
	eps := s.Endpoints()
	out := make([]EndpointView, 0, len(eps))
	for _, ep := range eps {
		out = append(out, NewEndpointView(prefix, ep))
	}
	return out
}

// ResultsJSON serializes the ring as a JSON array.
func (s *Store) ResultsJSON(prefix string) ([]byte, error) {
	return json.Marshal(s.ResultViews(prefix))
}

// StatsJSON serializes the cumulative statistics.
func (s *Store) StatsJSON() ([]byte, error) {
	return json.Marshal(s.Stats())
}

// EndpointsJSON serializes every endpoint as a JSON array.
func (s *Store) EndpointsJSON(prefix string) ([]byte, error) {
	return json.Marshal(s.EndpointViews(prefix))
}
