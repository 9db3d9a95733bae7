package framing

// RingBuffer is a circular byte buffer with explicit head, tail and count
// cursors. When a write does not fit, the capacity doubles until it does and
// unread bytes are preserved in order.
//
// RingBuffer is NOT goroutine-safe.
type RingBuffer struct {
	buf   []byte
	head  int // next byte to read
	tail  int // next byte to write
	count int
}

// NewRingBuffer creates a RingBuffer with the given initial capacity.
// Capacities below 1 are raised to 1.
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}

	return &RingBuffer{buf: make([]byte, capacity)}
}

// Len returns the number of unread bytes.
func (r *RingBuffer) Len() int { return r.count }

// Cap returns the current capacity.
func (r *RingBuffer) Cap() int { return len(r.buf) }

// Write appends p, growing the buffer if needed. It never fails.
func (r *RingBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}
	r.grow(n)

	first := copy(r.buf[r.tail:], p)
	if first < n {
		copy(r.buf, p[first:])
	}
	r.tail = (r.tail + n) % len(r.buf)
	r.count += n

	return n, nil
}

// At returns the unread byte at offset i from the read cursor.
// It panics if i is out of range.
func (r *RingBuffer) At(i int) byte {
	if i < 0 || i >= r.count {
		panic("framing: ring buffer index out of range")
	}

	return r.buf[(r.head+i)%len(r.buf)]
}

// Peek copies up to len(dst) unread bytes into dst without consuming them.
func (r *RingBuffer) Peek(dst []byte) int {
	n := min(len(dst), r.count)
	if n == 0 {
		return 0
	}

	first := copy(dst[:n], r.buf[r.head:])
	if first < n {
		copy(dst[first:n], r.buf)
	}

	return n
}

// Discard drops up to n unread bytes and returns how many were dropped.
func (r *RingBuffer) Discard(n int) int {
	n = min(max(n, 0), r.count)
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
	if r.count == 0 {
		r.head, r.tail = 0, 0
	}

	return n
}

// Reset drops every unread byte, keeping the current capacity.
func (r *RingBuffer) Reset() {
	r.head, r.tail, r.count = 0, 0, 0
}

func (r *RingBuffer) grow(n int) {
	need := r.count + n
	if need <= len(r.buf) {
		return
	}

	newCap := len(r.buf)
	for newCap < need {
		newCap *= 2
	}

	nb := make([]byte, newCap)
	r.Peek(nb[:r.count])
	r.buf = nb
	r.head = 0
	r.tail = r.count
}
