// Package codec decompresses Avro object container blocks. It is a
// collaborator named but not specified by the core decoder: by the time
// avro.BlockDecoder sees a block's bytes, they're already plain.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/s2"
)

// ErrUnknownCodec is returned for any avro.codec metadata value this
// package doesn't implement.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Decode decompresses compressed using the named Avro block codec,
// reusing scratch's backing array when it has enough capacity.
func Decode(name string, compressed []byte, scratch []byte) ([]byte, error) {
	switch name {
	case "", "null":
		return compressed, nil
	case "deflate":
		return decodeDeflate(compressed, scratch)
	case "snappy":
		return decodeSnappy(compressed, scratch)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
}

func decodeDeflate(compressed []byte, scratch []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(compressed))
	defer r.Close()
	buf := bytes.NewBuffer(scratch[:0])
	if _, err := io.Copy(buf, r); err != nil {
		return nil, fmt.Errorf("codec: deflate: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeSnappy undoes Avro's framed snappy variant: the compressed block
// is a snappy-compressed payload followed by a 4-byte big-endian CRC32
// trailer (not part of the snappy stream itself).
func decodeSnappy(compressed []byte, scratch []byte) ([]byte, error) {
	if len(compressed) < 4 {
		return nil, fmt.Errorf("codec: snappy: block too short for CRC32 trailer")
	}
	payload := compressed[:len(compressed)-4]
	out, err := s2.Decode(scratch[:0], payload)
	if err != nil {
		return nil, fmt.Errorf("codec: snappy: %w", err)
	}
	return out, nil
}
