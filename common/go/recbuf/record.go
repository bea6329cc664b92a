// Package recbuf implements the packed message-record wire format shared by
// every queue, merge, exchange and dispatch stage of the simulation kernel:
// a fixed-width header followed by a variable-length payload, laid end to
// end inside a length-prefixed byte buffer.
//
// The layout is fixed on the wire (little-endian, identical on every node)
// so that a buffer produced on one node can be exchanged to, and walked on,
// any other node without translation.
package recbuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrCorruptBuffer is returned by Walk when a buffer's declared used length
// does not match its actual contents, or a record's size field would step
// the cursor past the end of the buffer.
var ErrCorruptBuffer = errors.New("recbuf: corrupt buffer")

// PrefixSize is the width, in bytes, of a Buffer's leading used-length field.
const PrefixSize = 4

// HeaderSize is the fixed width, in bytes, of a record header.
//
// Layout (little-endian):
//
//	offset 0  : flags byte (bit0 UseExplicitTarget, bit1 IsForward)
//	offset 1-7: padding, aligns MessageID to 8 bytes
//	offset 8  : message_id  (u64)
//	offset 16 : function_id (u32)
//	offset 20 : src_index   (DataId: 2x u32)
//	offset 28 : size        (u32)
const HeaderSize = 32

const (
	flagUseExplicitTarget = 1 << 0
	flagIsForward          = 1 << 1
)

// DataId identifies a single row/field instance of an element.
type DataId struct {
	Row   uint32
	Field uint32
}

// DataIdSize is the serialised width of a DataId on the wire.
const DataIdSize = 8

// Encode writes the DataId into dst[:DataIdSize].
func (d DataId) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:4], d.Row)
	binary.LittleEndian.PutUint32(dst[4:8], d.Field)
}

// DecodeDataId reads a DataId from src[:DataIdSize].
func DecodeDataId(src []byte) DataId {
	return DataId{
		Row:   binary.LittleEndian.Uint32(src[0:4]),
		Field: binary.LittleEndian.Uint32(src[4:8]),
	}
}

// Header is the fixed portion of a record, preceding its payload.
type Header struct {
	// UseExplicitTarget indicates the payload's trailing DataIdSize bytes
	// are the target row within the target element, overriding the
	// binding's own addressing.
	UseExplicitTarget bool
	// IsForward selects the direction of the binding this record travels
	// along: source->target when true, target->source when false.
	IsForward bool
	// MessageID is the opaque handle into the registry identifying the
	// binding between two elements.
	MessageID uint64
	// FunctionID is the opaque handle into the target element's handler
	// table.
	FunctionID uint32
	// SrcIndex is the source row, used by message variants (e.g. sparse
	// projection) that must pick a specific row/column.
	SrcIndex DataId
	// Size is the payload length in bytes, excluding the header.
	Size uint32
}

// Encode writes h into dst[:HeaderSize].
func (h Header) Encode(dst []byte) {
	var flags byte
	if h.UseExplicitTarget {
		flags |= flagUseExplicitTarget
	}
	if h.IsForward {
		flags |= flagIsForward
	}
	dst[0] = flags
	for i := 1; i < 8; i++ {
		dst[i] = 0
	}
	binary.LittleEndian.PutUint64(dst[8:16], h.MessageID)
	binary.LittleEndian.PutUint32(dst[16:20], h.FunctionID)
	h.SrcIndex.Encode(dst[20:28])
	binary.LittleEndian.PutUint32(dst[28:32], h.Size)
}

// DecodeHeader reads a Header from src[:HeaderSize].
func DecodeHeader(src []byte) Header {
	flags := src[0]
	return Header{
		UseExplicitTarget: flags&flagUseExplicitTarget != 0,
		IsForward:         flags&flagIsForward != 0,
		MessageID:         binary.LittleEndian.Uint64(src[8:16]),
		FunctionID:        binary.LittleEndian.Uint32(src[16:20]),
		SrcIndex:          DecodeDataId(src[20:28]),
		Size:              binary.LittleEndian.Uint32(src[28:32]),
	}
}

// RecordSize returns the total on-wire size of a record with the given
// payload length.
func RecordSize(payloadSize int) int {
	return HeaderSize + payloadSize
}

// AppendRecord appends a record (header + payload) to dst and returns the
// extended slice. The header's Size field must already equal len(payload).
func AppendRecord(dst []byte, h Header, payload []byte) []byte {
	start := len(dst)
	dst = append(dst, make([]byte, HeaderSize+len(payload))...)
	h.Encode(dst[start : start+HeaderSize])
	copy(dst[start+HeaderSize:], payload)
	return dst
}

// Visitor is called once per record encountered by Walk. payload is the
// record's payload slice (length h.Size), sharing storage with the walked
// buffer -- it must not be retained past the call or mutated.
type Visitor func(h Header, payload []byte) error

// Walk reads a used-length-prefixed buffer and invokes visit once per
// record, in append order, without copying record bytes.
//
// It fails with ErrCorruptBuffer if the declared used length exceeds
// len(buf), or if any record's Size field would advance the cursor past
// the declared used length.
func Walk(buf []byte, visit Visitor) error {
	if len(buf) < PrefixSize {
		return fmt.Errorf("%w: buffer shorter than prefix (%d bytes)", ErrCorruptBuffer, len(buf))
	}

	used := binary.LittleEndian.Uint32(buf[:PrefixSize])
	if int(used) > len(buf) {
		return fmt.Errorf("%w: declared used length %d exceeds buffer size %d", ErrCorruptBuffer, used, len(buf))
	}

	cursor := PrefixSize
	for cursor < int(used) {
		if cursor+HeaderSize > int(used) {
			return fmt.Errorf("%w: truncated header at offset %d", ErrCorruptBuffer, cursor)
		}

		h := DecodeHeader(buf[cursor : cursor+HeaderSize])
		recordEnd := cursor + HeaderSize + int(h.Size)
		if recordEnd > int(used) {
			return fmt.Errorf("%w: record at offset %d (size %d) overruns used length %d", ErrCorruptBuffer, cursor, h.Size, used)
		}

		if err := visit(h, buf[cursor+HeaderSize:recordEnd]); err != nil {
			return err
		}

		cursor = recordEnd
	}

	return nil
}

// UsedLength reads a buffer's length-prefix field.
func UsedLength(buf []byte) uint32 {
	return binary.LittleEndian.Uint32(buf[:PrefixSize])
}

// SetUsedLength writes a buffer's length-prefix field.
func SetUsedLength(buf []byte, n uint32) {
	binary.LittleEndian.PutUint32(buf[:PrefixSize], n)
}
