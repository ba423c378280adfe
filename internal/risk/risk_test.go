package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func portRange(from, to uint16) []uint16 {
	ports := make([]uint16, 0, int(to-from)+1)
	for p := from; p <= to; p++ {
		ports = append(ports, p)
	}
	return ports
}

func TestClassify_DeviceRules(t *testing.T) {
	tests := []struct {
		name     string
		ports    []uint16
		expected string
	}{
		{"rdp and smb", []uint16{3389, 445, 80}, "Windows PC"},
		{"ssh and http small", []uint16{22, 80}, "IoT Device"},
		{"ssh and http at five ports is not iot", []uint16{22, 80, 81, 82, 83}, "Web Device"},
		{"mqtt", []uint16{1883}, "IoT/MQTT Device"},
		{"upnp", []uint16{1900, 80}, "Router/Gateway"},
		{"telnet without ssh", []uint16{23, 80}, "Legacy Device"},
		{"telnet with ssh", []uint16{23, 22}, "Unknown"},
		{"many web ports", append([]uint16{80, 443}, portRange(8000, 8009)...), "Server"},
		{"ssh heavy", []uint16{22, 25, 53, 110, 143, 993}, "Linux Server"},
		{"https only", []uint16{443}, "Web Device"},
		{"nothing known", []uint16{9999}, "Unknown"},
		{"empty", nil, "Unknown"},
		{"windows beats mqtt", []uint16{3389, 445, 1883}, "Windows PC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.ports).DeviceType)
		})
	}
}

func TestClassify_TelnetAndHTTP(t *testing.T) {
	a := Classify([]uint16{23, 80})

	assert.Equal(t, "Legacy Device", a.DeviceType)
	assert.Equal(t, uint8(39), a.Score)
	assert.GreaterOrEqual(t, a.Score, uint8(35))

	require.Len(t, a.Findings, 3)
	assert.Equal(t, Finding{Port: "23", Service: "Telnet", Severity: SeverityCritical, Points: 30}, a.Findings[0])
	assert.Equal(t, Finding{Port: "80", Service: "HTTP", Severity: SeverityLow, Points: 5}, a.Findings[1])
	assert.Equal(t, Finding{Port: AnyPort, Service: "2 open ports", Severity: SeverityInfo, Points: 4}, a.Findings[2])
}

func TestClassify_SSHAndHTTP(t *testing.T) {
	a := Classify([]uint16{80, 22})

	assert.Equal(t, "IoT Device", a.DeviceType)
	assert.Equal(t, uint8(19), a.Score)
	require.Len(t, a.Findings, 3)
	assert.Equal(t, "22", a.Findings[0].Port)
	assert.Equal(t, "80", a.Findings[1].Port)
}

func TestClassify_DuplicatesCountOnce(t *testing.T) {
	a := Classify([]uint16{22, 22, 80, 80, 80})
	assert.Equal(t, uint8(19), a.Score)
	assert.Equal(t, "2 open ports", a.Findings[len(a.Findings)-1].Service)
}

func TestClassify_ScoreClamped(t *testing.T) {
	ports := []uint16{23, 21, 3389, 445, 22, 3306, 5432, 80, 443}
	// 118 from weights alone.
	assert.Equal(t, uint8(MaxScore), Classify(ports).Score)

	wide := portRange(1, 1024)
	a := Classify(wide)
	assert.Equal(t, uint8(MaxScore), a.Score)
	last := a.Findings[len(a.Findings)-1]
	assert.Equal(t, "1024 open ports", last.Service)
	assert.Equal(t, uint8(255), last.Points)
}

func TestClassify_Empty(t *testing.T) {
	a := Classify(nil)
	assert.Equal(t, DeviceUnknown, a.DeviceType)
	assert.Equal(t, uint8(0), a.Score)
	assert.Empty(t, a.Findings)
}

func TestClassify_FindingsFollowTableOrder(t *testing.T) {
	a := Classify([]uint16{443, 80, 5432, 22, 21, 23})

	var ports []string
	for _, f := range a.Findings {
		ports = append(ports, f.Port)
	}
	assert.Equal(t, []string{"23", "21", "22", "5432", "80", "443", AnyPort}, ports)
}
