package wakeword

import "sync"

// Ring is a fixed-capacity sample buffer. Writes overwrite the oldest samples
// once full; reads copy without draining. It is safe for one writer and any
// number of readers.
type Ring struct {
	mu   sync.Mutex
	buf  []float32
	head int // next write position
	n    int // valid samples, at most len(buf)
}

// NewRing returns a ring holding capacity samples.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Cap returns the capacity in samples.
func (r *Ring) Cap() int { return len(r.buf) }

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

// Write appends samples, overwriting the oldest once full.
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(samples) >= len(r.buf) {
		copy(r.buf, samples[len(samples)-len(r.buf):])
		r.head, r.n = 0, len(r.buf)
		return
	}
	for len(samples) > 0 {
		c := copy(r.buf[r.head:], samples)
		samples = samples[c:]
		r.head = (r.head + c) % len(r.buf)
		r.n = min(r.n+c, len(r.buf))
	}
}

// Latest copies the most recent n samples in chronological order. ok is false
// when fewer than n samples are buffered.
func (r *Ring) Latest(n int) (out []float32, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n <= 0 || n > r.n {
		return nil, false
	}
	out = make([]float32, n)
	start := (r.head - n + len(r.buf)) % len(r.buf)
	c := copy(out, r.buf[start:])
	if c < n {
		copy(out[c:], r.buf[:n-c])
	}
	return out, true
}

// Reset empties the ring.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.head, r.n = 0, 0
	r.mu.Unlock()
}
