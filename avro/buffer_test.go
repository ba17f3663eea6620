package avro

import (
	"errors"
	"testing"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 300, 1 << 20, 1 << 40, ^uint64(0) >> 1}
	for _, v := range cases {
		buf := appendVarint(nil, v)
		b := NewBuffer(buf)
		got, err := b.ReadVarint()
		if err != nil {
			t.Fatalf("ReadVarint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("ReadVarint(%d) = %d", v, got)
		}
		if !b.Eof() {
			t.Fatalf("expected Eof after reading the only varint")
		}
	}
}

func TestZigzagRoundTrip(t *testing.T) {
	cases := []int64{0, -1, 1, -64, 64, 1 << 30, -(1 << 30)}
	for _, v := range cases {
		u := zigzagEncode(v)
		if decodeZigzag(u) != v {
			t.Fatalf("zigzag round trip broke for %d", v)
		}
	}
}

func TestReadVarintMalformedAtTenBytes(t *testing.T) {
	// ten continuation bytes, no terminator: shift reaches 70 before a
	// byte without the high bit appears.
	raw := make([]byte, 10)
	for i := range raw {
		raw[i] = 0x80
	}
	b := NewBuffer(raw)
	_, err := b.ReadVarint()
	if !errors.Is(err, ErrMalformedVarint) {
		t.Fatalf("err = %v, want ErrMalformedVarint", err)
	}
}

func TestReadVarintEndOfInput(t *testing.T) {
	b := NewBuffer([]byte{0x80})
	_, err := b.ReadVarint()
	if !errors.Is(err, ErrEndOfInput) {
		t.Fatalf("err = %v, want ErrEndOfInput", err)
	}
}

func TestReadStringBorrowsUnderlyingBytes(t *testing.T) {
	raw := appendVarint(nil, zigzagEncode(5))
	raw = append(raw, "hello"...)
	b := NewBuffer(raw)
	s, err := b.ReadString()
	if err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if s != "hello" {
		t.Fatalf("ReadString = %q", s)
	}
	if !b.Eof() {
		t.Fatalf("expected Eof")
	}
}

func TestRewindToRecordStart(t *testing.T) {
	raw := appendVarint(nil, zigzagEncode(3))
	raw = append(raw, "abc"...)
	b := NewBuffer(raw)
	b.MarkRecordStart()
	if _, err := b.ReadString(); err != nil {
		t.Fatalf("ReadString: %v", err)
	}
	if !b.Eof() {
		t.Fatalf("expected Eof before rewind")
	}
	b.RewindToRecordStart()
	s, err := b.ReadString()
	if err != nil {
		t.Fatalf("ReadString after rewind: %v", err)
	}
	if s != "abc" {
		t.Fatalf("ReadString after rewind = %q", s)
	}
}

// appendVarint and zigzagEncode mirror Avro's write side; they exist only
// in tests since the core, by spec, never writes Avro.
func appendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

func zigzagEncode(v int64) uint64 {
	return uint64((v << 1) ^ (v >> 63))
}
