package codec_test

import (
	"bytes"
	"errors"
	"testing"

	kflate "github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/s2"

	"github.com/negram/aq/codec"
)

func TestDecodeNullPassthrough(t *testing.T) {
	in := []byte("raw bytes")
	out, err := codec.Decode("null", in, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("out = %q, want %q", out, in)
	}
}

func TestDecodeEmptyNameIsNull(t *testing.T) {
	in := []byte("raw bytes")
	out, err := codec.Decode("", in, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Fatalf("out = %q, want %q", out, in)
	}
}

func TestDecodeDeflateRoundTrip(t *testing.T) {
	want := []byte("hello avro world, hello avro world")
	var buf bytes.Buffer
	w, err := kflate.NewWriter(&buf, kflate.DefaultCompression)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got, err := codec.Decode("deflate", buf.Bytes(), nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got = %q, want %q", got, want)
	}
}

func TestDecodeSnappyStripsCRCTrailer(t *testing.T) {
	want := []byte("hello avro snappy world")
	compressed := s2.EncodeSnappy(nil, want)
	framed := append(append([]byte{}, compressed...), 0, 0, 0, 0)

	got, err := codec.Decode("snappy", framed, nil)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got = %q, want %q", got, want)
	}
}

func TestDecodeUnknownCodec(t *testing.T) {
	_, err := codec.Decode("bzip2", []byte("x"), nil)
	if !errors.Is(err, codec.ErrUnknownCodec) {
		t.Fatalf("err = %v, want ErrUnknownCodec", err)
	}
}
