package scanning

import (
	"fmt"
	"time"
)

// Task is a contiguous, inclusive port range on one host.
type Task struct {
	HostID    uint8
	PortStart uint16
	PortEnd   uint16
}

// Size returns the number of ports in the task.
func (t Task) Size() int {
	return int(t.PortEnd) - int(t.PortStart) + 1
}

func (t Task) String() string {
	return fmt.Sprintf("host %d ports %d-%d", t.HostID, t.PortStart, t.PortEnd)
}

// Progress is an advisory snapshot of the running cycle. Fields are updated
// by several goroutines and are last-writer-wins.
type Progress struct {
	CurrentHost     string `json:"currentIP"`
	CurrentPort     uint16 `json:"currentPort"`
	IPsScanned      uint32 `json:"ipsScanned"`
	TotalIPs        uint32 `json:"totalIPs"`
	PortsScanned    uint32 `json:"portsScanned"`
	TotalPorts      uint32 `json:"totalPorts"`
	PercentComplete uint8  `json:"percentComplete"`
}

// State is the orchestrator lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StatePaused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Cycle summarizes one finalized scan cycle.
type Cycle struct {
	ID              string
	StartedAt       time.Time
	FinishedAt      time.Time
	DurationSeconds uint32
	HostsPlanned    int
	IPsScanned      uint32
	PortsChecked    uint32
	OpenResults     int
	DrainTimedOut   bool
}
