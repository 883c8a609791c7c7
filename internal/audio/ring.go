package audio

import "sync"

// Ring is a fixed-capacity sample queue between the network receive
// path and the playback callback. Write never blocks: when full, the
// oldest samples are overwritten.
type Ring struct {
	mu      sync.Mutex
	buf     []int16
	head    int
	count   int
	dropped uint64
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]int16, capacity)}
}

func (r *Ring) Write(samples []int16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.buf)
	if len(samples) >= n {
		r.dropped += uint64(r.count + len(samples) - n)
		copy(r.buf, samples[len(samples)-n:])
		r.head = 0
		r.count = n
		return
	}
	for _, s := range samples {
		idx := (r.head + r.count) % n
		r.buf[idx] = s
		if r.count == n {
			r.head = (r.head + 1) % n
			r.dropped++
		} else {
			r.count++
		}
	}
}

// Read fills out completely, padding with silence on underrun, and
// returns how many real samples were copied.
func (r *Ring) Read(out []int16) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.buf)
	got := 0
	for got < len(out) && r.count > 0 {
		out[got] = r.buf[r.head]
		r.head = (r.head + 1) % n
		r.count--
		got++
	}
	for i := got; i < len(out); i++ {
		out[i] = 0
	}
	return got
}

func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Dropped is the number of samples overwritten since creation.
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Ring) Reset() {
	r.mu.Lock()
	r.head, r.count = 0, 0
	r.mu.Unlock()
}
