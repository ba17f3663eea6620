package avro

import (
	"fmt"
	"math"
)

// Buffer is a forward-only cursor over a decompressed block's bytes. It
// never copies the underlying slice; strings and byte-slice reads borrow
// from it directly, so callers that need to retain a value across the
// buffer's next read must copy it themselves.
//
// Shaped after the teacher's Reader (position/mark over a byte slice) but
// trimmed to what the core decoder needs: no write-side methods, and an
// explicit record-start mark so the block decoder can rewind and re-walk
// the same record for projection without recompressing or reparsing.
type Buffer struct {
	bytes       []byte
	position    int
	recordStart int
}

// NewBuffer wraps a decompressed block's bytes for reading.
func NewBuffer(b []byte) *Buffer {
	return &Buffer{bytes: b}
}

// Len reports how many bytes remain unread.
func (b *Buffer) Len() int { return len(b.bytes) - b.position }

// Eof reports whether every byte has been consumed.
func (b *Buffer) Eof() bool { return b.position >= len(b.bytes) }

// MarkRecordStart records the current position as the start of the record
// currently being decoded.
func (b *Buffer) MarkRecordStart() { b.recordStart = b.position }

// RewindToRecordStart resets the cursor to the last MarkRecordStart call,
// letting the orchestrator re-walk a record (e.g. for TSV projection)
// without touching the underlying bytes again.
func (b *Buffer) RewindToRecordStart() { b.position = b.recordStart }

func (b *Buffer) readByte() (byte, error) {
	if b.position >= len(b.bytes) {
		return 0, ErrEndOfInput
	}
	v := b.bytes[b.position]
	b.position++
	return v, nil
}

// Skip advances the cursor by n bytes without interpreting them.
func (b *Buffer) Skip(n int) error {
	if n < 0 || b.position+n > len(b.bytes) {
		return ErrEndOfInput
	}
	b.position += n
	return nil
}

// Read returns the next n bytes, borrowed from the underlying slice.
func (b *Buffer) Read(n int) ([]byte, error) {
	if n < 0 || b.position+n > len(b.bytes) {
		return nil, ErrEndOfInput
	}
	out := b.bytes[b.position : b.position+n]
	b.position += n
	return out, nil
}

// ReadVarint reads an unsigned LEB128 varint: 7 payload bits per byte,
// little-endian, high bit set on every byte but the last. A 10th
// continuation byte is always malformed (the format cannot exceed 64
// bits), matching the original's readZigZagLong shift >= 64 guard.
func (b *Buffer) ReadVarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if shift >= 64 {
			return 0, ErrMalformedVarint
		}
		c, err := b.readByte()
		if err != nil {
			return 0, err
		}
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// SkipVarint advances past a varint without decoding it.
func (b *Buffer) SkipVarint() error {
	for shift := uint(0); ; shift += 7 {
		if shift >= 64 {
			return ErrMalformedVarint
		}
		c, err := b.readByte()
		if err != nil {
			return err
		}
		if c&0x80 == 0 {
			return nil
		}
	}
}

// decodeZigzag maps an unsigned varint payload back to a signed value:
// (n>>1) ^ -(n&1).
func decodeZigzag(n uint64) int64 {
	return int64(n>>1) ^ -int64(n&1)
}

// ReadZigzag reads a zigzag-encoded signed varint (Avro's int/long wire
// format).
func (b *Buffer) ReadZigzag() (int64, error) {
	n, err := b.ReadVarint()
	if err != nil {
		return 0, err
	}
	return decodeZigzag(n), nil
}

// ReadInt reads an Avro "int" (32-bit, zigzag-varint encoded).
func (b *Buffer) ReadInt() (int32, error) {
	v, err := b.ReadZigzag()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadLong reads an Avro "long" (64-bit, zigzag-varint encoded).
func (b *Buffer) ReadLong() (int64, error) {
	return b.ReadZigzag()
}

// ReadFloat reads an Avro "float" (4 bytes, little-endian IEEE 754).
func (b *Buffer) ReadFloat() (float32, error) {
	raw, err := b.Read(4)
	if err != nil {
		return 0, err
	}
	bits := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	return math.Float32frombits(bits), nil
}

// ReadDouble reads an Avro "double" (8 bytes, little-endian IEEE 754).
func (b *Buffer) ReadDouble() (float64, error) {
	raw, err := b.Read(8)
	if err != nil {
		return 0, err
	}
	var bits uint64
	for i := 7; i >= 0; i-- {
		bits = bits<<8 | uint64(raw[i])
	}
	return math.Float64frombits(bits), nil
}

// ReadBoolean reads an Avro "boolean" (single byte, 0 or 1).
func (b *Buffer) ReadBoolean() (bool, error) {
	v, err := b.readByte()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadBytes reads an Avro "bytes"/"string": a zigzag-varint length prefix
// followed by that many raw bytes, borrowed from the underlying slice.
func (b *Buffer) ReadBytes() ([]byte, error) {
	n, err := b.ReadZigzag()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrMalformedVarint, n)
	}
	return b.Read(int(n))
}

// ReadString reads an Avro "string" as a Go string. The returned string
// aliases the underlying buffer via an unsafe no-copy cast, the same
// trick the teacher's reader.go uses for its ReadString.
func (b *Buffer) ReadString() (string, error) {
	raw, err := b.ReadBytes()
	if err != nil {
		return "", err
	}
	return bytesToString(raw), nil
}

// SkipString skips a length-prefixed string/bytes value without
// allocating or returning it.
func (b *Buffer) SkipString() error {
	n, err := b.ReadZigzag()
	if err != nil {
		return err
	}
	if n < 0 {
		return fmt.Errorf("%w: negative length %d", ErrMalformedVarint, n)
	}
	return b.Skip(int(n))
}
