package worker_test

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/negram/aq/avro"
	"github.com/negram/aq/container"
	"github.com/negram/aq/worker"
)

func appendVarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

func zigzagEncode(v int64) uint64 { return uint64((v << 1) ^ (v >> 63)) }

func appendLong(buf []byte, v int64) []byte { return appendVarint(buf, zigzagEncode(v)) }

func appendBytesField(buf []byte, v []byte) []byte {
	buf = appendLong(buf, int64(len(v)))
	return append(buf, v...)
}

func appendStringField(buf []byte, s string) []byte { return appendBytesField(buf, []byte(s)) }

const userSchemaJSON = `{"type":"record","name":"User","fields":[{"name":"id","type":"long"}]}`

func writeAvroFile(t *testing.T, path string, recordCount int64) {
	t.Helper()
	sync := [16]byte{9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9, 9}

	var out []byte
	out = append(out, 'O', 'b', 'j', 0x01)
	out = appendLong(out, 2)
	out = appendStringField(out, "avro.schema")
	out = appendBytesField(out, []byte(userSchemaJSON))
	out = appendStringField(out, "avro.codec")
	out = appendBytesField(out, []byte("null"))
	out = appendLong(out, 0)
	out = append(out, sync[:]...)

	var block []byte
	for i := int64(0); i < recordCount; i++ {
		block = appendLong(block, i)
	}
	out = appendLong(out, recordCount)
	out = appendLong(out, int64(len(block)))
	out = append(out, block...)
	out = append(out, sync[:]...)

	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestPoolRunCountsRecordsAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.avro")
	pathB := filepath.Join(dir, "b.avro")
	writeAvroFile(t, pathA, 3)
	writeAvroFile(t, pathB, 5)

	var total int64
	factory := func(f *container.File) (*avro.BlockDecoder, error) {
		shared, err := avro.NewShared(f.Schema, nil, nil, false)
		if err != nil {
			return nil, err
		}
		return avro.NewBlockDecoder(avro.Config{
			Shared:    shared,
			CountOnly: true,
			OnCount:   func(n int64) { atomic.AddInt64(&total, n) },
		})
	}

	p := worker.NewPool(2, nil)
	errs := p.Run(context.Background(), []string{pathA, pathB}, factory)
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %+v", errs)
	}
	if total != 8 {
		t.Fatalf("total = %d, want 8", total)
	}
}

func TestPoolRunReportsPerFileError(t *testing.T) {
	p := worker.NewPool(1, nil)
	factory := func(f *container.File) (*avro.BlockDecoder, error) {
		return avro.NewBlockDecoder(avro.Config{})
	}
	errs := p.Run(context.Background(), []string{"/nonexistent/path.avro"}, factory)
	if len(errs) != 1 {
		t.Fatalf("errs = %+v, want one FileError", errs)
	}
	if errs[0].Path != "/nonexistent/path.avro" {
		t.Fatalf("unexpected path in FileError: %+v", errs[0])
	}
}
