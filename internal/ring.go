package internal

// Ring implements a fixed-capacity circular byte queue with head/count
// bookkeeping. It backs the per-socket receive buffers: the packet receive
// path writes into it and socket reads drain it.
//
// Writes beyond the free space are truncated, not refused. The receive path
// has nowhere to push back to, so excess bytes are dropped without signaling
// the writer.
type Ring struct {
	// Buf stores the queued bytes. Its length is the ring capacity.
	Buf []byte
	// head indexes the first readable byte in Buf.
	head int
	// count is the number of readable bytes starting at head.
	count int
}

// Write appends as much of b as fits and returns the number of bytes stored.
// Bytes that do not fit are silently discarded.
func (r *Ring) Write(b []byte) int {
	free := r.Free()
	if len(b) > free {
		b = b[:free]
	}
	tail := r.tail()
	n := copy(r.Buf[tail:], b)
	if n < len(b) {
		n += copy(r.Buf, b[n:])
	}
	r.count += n
	return n
}

// Read drains up to len(b) bytes into b and returns the number of bytes read.
// Read returns 0 when the ring is empty.
func (r *Ring) Read(b []byte) int {
	if r.count == 0 {
		return 0
	}
	if len(b) > r.count {
		b = b[:r.count]
	}
	n := copy(b, r.Buf[r.head:min(r.head+r.count, len(r.Buf))])
	if n < len(b) {
		n += copy(b[n:], r.Buf)
	}
	r.head = r.add(r.head, n)
	r.count -= n
	if r.count == 0 {
		r.head = 0 // Contiguity optimization for the common drained case.
	}
	return n
}

// Buffered returns the number of bytes ready to be read.
func (r *Ring) Buffered() int { return r.count }

// Free returns the number of bytes that can be written before truncation begins.
func (r *Ring) Free() int { return len(r.Buf) - r.count }

// Size returns the total capacity of the ring.
func (r *Ring) Size() int { return len(r.Buf) }

// Reset discards all buffered data.
func (r *Ring) Reset() {
	r.head = 0
	r.count = 0
}

func (r *Ring) tail() int { return r.add(r.head, r.count) }

func (r *Ring) add(a, b int) int {
	result := a + b
	if result >= len(r.Buf) {
		result -= len(r.Buf)
	}
	return result
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
