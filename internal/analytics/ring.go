package analytics

// ring is a fixed-size ring buffer of float64 samples. Appends are
// O(1); old samples are overwritten once the buffer is full.
type ring struct {
	buf  []float64
	next int
	full bool
}

func newRing(size int) *ring {
	if size <= 0 {
		size = 1
	}
	return &ring{buf: make([]float64, size)}
}

func (r *ring) add(v float64) {
	r.buf[r.next] = v
	r.next++
	if r.next == len(r.buf) {
		r.next = 0
		r.full = true
	}
}

func (r *ring) len() int {
	if r.full {
		return len(r.buf)
	}
	return r.next
}

func (r *ring) last() float64 {
	if r.len() == 0 {
		return 0
	}
	idx := r.next - 1
	if idx < 0 {
		idx = len(r.buf) - 1
	}
	return r.buf[idx]
}

func (r *ring) avg() float64 {
	n := r.len()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += r.buf[i]
	}
	return sum / float64(n)
}

func (r *ring) max() float64 {
	n := r.len()
	if n == 0 {
		return 0
	}
	m := r.buf[0]
	for i := 1; i < n; i++ {
		if r.buf[i] > m {
			m = r.buf[i]
		}
	}
	return m
}
