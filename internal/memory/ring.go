package memory

// turnRing is a fixed-capacity FIFO of turns. The oldest turn is
// overwritten once the ring is full.
type turnRing struct {
	buf  []Turn
	head int // index of the oldest turn
	size int
}

func newTurnRing(capacity int) *turnRing {
	return &turnRing{buf: make([]Turn, capacity)}
}

// push appends t and reports whether a turn was evicted.
func (r *turnRing) push(t Turn) bool {
	if len(r.buf) == 0 {
		return false
	}
	if r.size < len(r.buf) {
		r.buf[(r.head+r.size)%len(r.buf)] = t
		r.size++
		return false
	}
	r.buf[r.head] = t
	r.head = (r.head + 1) % len(r.buf)
	return true
}

func (r *turnRing) len() int { return r.size }

// last returns up to n most recent turns, oldest first.
func (r *turnRing) last(n int) []Turn {
	if n <= 0 || n > r.size {
		n = r.size
	}
	out := make([]Turn, 0, n)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

func (r *turnRing) all() []Turn { return r.last(r.size) }
