package results

// ring is a fixed-capacity FIFO that overwrites its oldest entry when full.
// It is not synchronized; Store serializes access.
type ring struct {
	buf   []ProbeResult
	start int
	size  int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]ProbeResult, capacity)}
}

func (r *ring) push(v ProbeResult) {
	if r.size < len(r.buf) {
		r.buf[(r.start+r.size)%len(r.buf)] = v
		r.size++
		return
	}
	r.buf[r.start] = v
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int {
	return r.size
}

func (r *ring) items() []ProbeResult {
	out := make([]ProbeResult, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) reset() {
	r.start, r.size = 0, 0
}
