package tiledbcore

// Buffer is an owning, growable byte range with a write cursor. It is
// the I/O currency threaded through every codec and serializer in the
// filter pipeline (spec §4.2). Unlike bytes.Buffer it tracks size
// (valid bytes written) separately from the backing capacity, so
// SetSize and Realloc adjust one without touching the other.
type Buffer struct {
	data []byte
	size int
}

// NewBuffer returns an empty Buffer with the given initial capacity hint.
func NewBuffer(capHint int) *Buffer {
	return &Buffer{data: make([]byte, 0, capHint)}
}

// NewBufferFromBytes wraps an existing slice as a Buffer whose current
// contents are considered already-written (size == len(b)).
func NewBufferFromBytes(b []byte) *Buffer {
	return &Buffer{data: b, size: len(b)}
}

// Write appends bytes to the buffer, growing the backing array (amortized
// O(n) via append) and advancing both size and capacity as needed.
func (b *Buffer) Write(p []byte) (int, error) {
	if b.size+len(p) > len(b.data) {
		b.data = append(b.data[:b.size], p...)
	} else {
		copy(b.data[b.size:], p)
	}
	b.size += len(p)
	return len(p), nil
}

// Bytes returns the valid (written) portion of the buffer.
func (b *Buffer) Bytes() []byte {
	if b.data == nil {
		return nil
	}
	return b.data[:b.size]
}

// Size returns the number of valid bytes currently written.
func (b *Buffer) Size() int {
	return b.size
}

// SetSize truncates or (if the backing array is large enough) extends
// the valid region without touching contents beyond zero-filling growth.
func (b *Buffer) SetSize(n int) {
	if n > cap(b.data) {
		grown := make([]byte, n)
		copy(grown, b.data)
		b.data = grown
	} else if n > len(b.data) {
		b.data = b.data[:n]
	}
	b.size = n
}

// Realloc ensures the backing array has at least n bytes of capacity,
// without changing the valid size.
func (b *Buffer) Realloc(n int) {
	if cap(b.data) >= n {
		return
	}
	grown := make([]byte, len(b.data), n)
	copy(grown, b.data)
	b.data = grown
}

// ConstBuffer is a read-only view over a byte range with its own cursor,
// used by filters reading their input without risk of mutating it.
type ConstBuffer struct {
	data   []byte
	offset int
}

// NewConstBuffer wraps b as a ConstBuffer starting at offset 0.
func NewConstBuffer(b []byte) *ConstBuffer {
	return &ConstBuffer{data: b}
}

// Size is the total length of the wrapped range.
func (c *ConstBuffer) Size() int {
	return len(c.data)
}

// Offset is the current read cursor.
func (c *ConstBuffer) Offset() int {
	return c.offset
}

// SetOffset repositions the read cursor.
func (c *ConstBuffer) SetOffset(off int) {
	c.offset = off
}

// Remaining is the number of unread bytes.
func (c *ConstBuffer) Remaining() int {
	return len(c.data) - c.offset
}

// Read copies min(len(p), Remaining()) bytes into p and advances the
// cursor, returning the number of bytes copied.
func (c *ConstBuffer) Read(p []byte) (int, error) {
	n := copy(p, c.data[c.offset:])
	c.offset += n
	if n == 0 && len(p) > 0 {
		return 0, ErrBufferTooSmall
	}
	return n, nil
}

// Bytes returns the full wrapped range regardless of cursor position.
func (c *ConstBuffer) Bytes() []byte {
	return c.data
}

// PreallocatedBuffer is a fixed-capacity, non-owning write target: writes
// past its capacity fail rather than growing, which is what query result
// buffers (owned by the caller, per spec §6 query_set_data_buffer) need.
type PreallocatedBuffer struct {
	data []byte
	size int
}

// NewPreallocatedBuffer wraps a caller-owned fixed-size slice.
func NewPreallocatedBuffer(data []byte) *PreallocatedBuffer {
	return &PreallocatedBuffer{data: data}
}

// Write appends p if it fits within capacity; otherwise returns
// ErrBufferTooSmall without partially writing, so the caller's
// INCOMPLETE-pagination logic (spec §4.7) can resume cleanly.
func (p *PreallocatedBuffer) Write(b []byte) (int, error) {
	if p.size+len(b) > len(p.data) {
		return 0, ErrBufferTooSmall
	}
	n := copy(p.data[p.size:], b)
	p.size += n
	return n, nil
}

// Size returns the number of bytes written so far.
func (p *PreallocatedBuffer) Size() int {
	return p.size
}

// Cap returns the total capacity of the backing slice.
func (p *PreallocatedBuffer) Cap() int {
	return len(p.data)
}

// Remaining returns the free capacity left.
func (p *PreallocatedBuffer) Remaining() int {
	return len(p.data) - p.size
}

// Reset clears the written-size marker without touching the backing array.
func (p *PreallocatedBuffer) Reset() {
	p.size = 0
}

// SetSize marks the first n bytes of the backing array as valid,
// without copying anything. Used to treat a caller-supplied, already
// -populated slice (a write query's input buffer) as pre-filled.
func (p *PreallocatedBuffer) SetSize(n int) {
	if n > len(p.data) {
		n = len(p.data)
	}
	p.size = n
}

// Bytes returns the valid (written) portion.
func (p *PreallocatedBuffer) Bytes() []byte {
	return p.data[:p.size]
}
