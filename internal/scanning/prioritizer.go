package scanning

// Plan is the visiting order of one cycle. Unknown hosts have no endpoint
// record yet and are visited before Known ones.
type Plan struct {
	Unknown []uint8
	Known   []uint8
}

// Hosts returns the full visiting order.
func (p Plan) Hosts() []uint8 {
	out := make([]uint8, 0, len(p.Unknown)+len(p.Known))
	out = append(out, p.Unknown...)
	return append(out, p.Known...)
}

// Len returns the number of hosts in the plan.
func (p Plan) Len() int {
	return len(p.Unknown) + len(p.Known)
}

// Prioritize orders the range [start, end]. Discovered hosts inside the range
// come first in discovery order, then the rest of the range ascending. Each
// host is placed in exactly one bucket, decided by known, and appears once.
func Prioritize(discovered []uint8, start, end uint8, known func(uint8) bool) Plan {
	var plan Plan
	if start > end {
		return plan
	}

	var seen [256]bool
	place := func(id uint8) {
		if seen[id] {
			return
		}
		seen[id] = true
		if known != nil && known(id) {
			plan.Known = append(plan.Known, id)
			return
		}
		plan.Unknown = append(plan.Unknown, id)
	}

	for _, id := range discovered {
		if id >= start && id <= end {
			place(id)
		}
	}
	for id := int(start); id <= int(end); id++ {
		place(uint8(id))
	}
	return plan
}

// ChunkSize splits portCount ports evenly across workers, rounding up.
func ChunkSize(portCount, workers int) int {
	if workers <= 0 {
		workers = 1
	}
	size := (portCount + workers - 1) / workers
	if size < 1 {
		size = 1
	}
	return size
}

// Chunks splits [startPort, endPort] on hostID into tasks of at most size
// ports. The last task may be shorter.
func Chunks(hostID uint8, startPort, endPort uint16, size int) []Task {
	if size < 1 {
		size = 1
	}
	var tasks []Task
	for lo := int(startPort); lo <= int(endPort); lo += size {
		hi := lo + size - 1
		if hi > int(endPort) {
			hi = int(endPort)
		}
		tasks = append(tasks, Task{HostID: hostID, PortStart: uint16(lo), PortEnd: uint16(hi)})
	}
	return tasks
}
