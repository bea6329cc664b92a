package recbuf

// Buffer is a growable, length-prefixed byte buffer holding a contiguous
// run of records (see Walk). It implements the wire buffer format of
// spec §6: the first PrefixSize bytes are the used length, including the
// prefix itself; the rest is record bytes.
//
// A Buffer is not safe for concurrent use; every buffer in the system is
// owned by exactly one stage at a time (see the concurrency model in
// internal/dispatch).
type Buffer struct {
	data []byte
}

// NewBuffer returns a freshly reset buffer with the given capacity hint.
func NewBuffer(capacityHint int) *Buffer {
	b := &Buffer{data: make([]byte, PrefixSize, max(capacityHint, PrefixSize))}
	SetUsedLength(b.data, PrefixSize)
	return b
}

// Reset truncates the buffer back to just its length prefix.
func (b *Buffer) Reset() {
	b.data = b.data[:PrefixSize]
	SetUsedLength(b.data, PrefixSize)
}

// Grow ensures the buffer has at least n spare bytes of capacity beyond its
// current length, without changing the length.
func (b *Buffer) Grow(n int) {
	if cap(b.data)-len(b.data) >= n {
		return
	}
	grown := make([]byte, len(b.data), len(b.data)+n)
	copy(grown, b.data)
	b.data = grown
}

// AppendRaw appends already-encoded record bytes (as produced by
// AppendRecord or sliced out of another buffer) and advances the used
// length prefix accordingly.
func (b *Buffer) AppendRaw(recordBytes []byte) {
	b.data = append(b.data, recordBytes...)
	SetUsedLength(b.data, uint32(len(b.data)))
}

// AppendRecord encodes and appends a single record, advancing the used
// length prefix.
func (b *Buffer) AppendRecord(h Header, payload []byte) {
	h.Size = uint32(len(payload))
	b.data = AppendRecord(b.data, h, payload)
	SetUsedLength(b.data, uint32(len(b.data)))
}

// Bytes returns the full underlying wire representation, prefix included.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// UsedLength returns the buffer's declared used length.
func (b *Buffer) UsedLength() uint32 {
	return UsedLength(b.data)
}

// RecordBytes returns the record-stream portion of the buffer (everything
// after the prefix, up to the used length), with no trailing capacity
// slop included.
func (b *Buffer) RecordBytes() []byte {
	return b.data[PrefixSize:b.UsedLength()]
}

// Len returns the total number of valid bytes in the buffer, prefix
// included.
func (b *Buffer) Len() int {
	return int(b.UsedLength())
}

// Walk walks the buffer's records in append order.
func (b *Buffer) Walk(visit Visitor) error {
	return Walk(b.data[:b.UsedLength()], visit)
}

// ResizeTo grows or truncates the underlying storage to exactly n bytes of
// capacity, used to enforce BLOCK_SIZE-sized inbound/MPI buffers. Existing
// content is preserved up to min(n, current length); the used length is
// clamped to fit.
func (b *Buffer) ResizeTo(n int) {
	if cap(b.data) != n {
		resized := make([]byte, min(len(b.data), n), n)
		copy(resized, b.data)
		b.data = resized
	}
	if len(b.data) > n {
		b.data = b.data[:n]
	}
	if int(b.UsedLength()) > len(b.data) {
		SetUsedLength(b.data, uint32(len(b.data)))
	}
}
