package capture

import "sync"

// ring is the recording buffer the capture device writes into. Positions
// are in frames and wrap at the ring length.
type ring struct {
	mu         sync.Mutex
	data       []byte
	frameBytes int
	frames     int
	pos        int
}

func newRing(frames, frameBytes int) *ring {
	return &ring{
		data:       make([]byte, frames*frameBytes),
		frameBytes: frameBytes,
		frames:     frames,
	}
}

// write runs on the device thread.
func (r *ring) write(p []byte) {
	p = p[:len(p)-len(p)%r.frameBytes]
	if len(p) > len(r.data) {
		p = p[len(p)-len(r.data):]
	}

	r.mu.Lock()
	off := r.pos * r.frameBytes
	n := copy(r.data[off:], p)
	copy(r.data, p[n:])
	r.pos = (r.pos + len(p)/r.frameBytes) % r.frames
	r.mu.Unlock()
}

func (r *ring) position() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos
}

// lock pins the region of frames starting at from and returns it as one or
// two slices, the second one set when the region wraps. The ring stays
// locked until unlock.
func (r *ring) lock(from, frames int) (a, b []byte) {
	r.mu.Lock()

	if frames > r.frames {
		frames = r.frames
	}
	start := from * r.frameBytes
	end := start + frames*r.frameBytes
	if end <= len(r.data) {
		return r.data[start:end], nil
	}
	return r.data[start:], r.data[:end-len(r.data)]
}

func (r *ring) unlock() {
	r.mu.Unlock()
}

// zero clears the given regions of the ring.
func (r *ring) zero(regions ...[]byte) {
	r.mu.Lock()
	for _, reg := range regions {
		clear(reg)
	}
	r.mu.Unlock()
}
