// Package container reads the Avro object container format: the
// 4-byte magic, the metadata map (schema + codec name), the 16-byte
// sync marker, and the block stream that follows. It hands decompressed
// block bytes and a parsed schema tree to callers; it never interprets
// record contents itself.
package container

import (
	"bytes"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/negram/aq/avro"
	"github.com/negram/aq/codec"
	"github.com/negram/aq/schema"
)

var magic = []byte{'O', 'b', 'j', 0x01}

// ErrBadMagic is returned when a file doesn't start with the Avro
// object container magic bytes.
var ErrBadMagic = errors.New("container: bad magic")

// ErrSyncMismatch is returned when a block's trailing 16 bytes don't
// match the sync marker declared in the file header.
var ErrSyncMismatch = errors.New("container: sync marker mismatch")

const syncSize = 16

// File is a memory-mapped, parsed Avro object container. Open it once
// per input path; Blocks iterates its block stream lazily.
type File struct {
	data   []byte // mmap'd whole-file contents
	sync   [syncSize]byte
	codec  string
	Schema schema.Node

	body []byte // file data past the header, positioned at the first block
}

// Open memory-maps path and parses its object container header. The
// returned File must be closed to release the mapping.
func Open(path string) (*File, error) {
	data, err := mmapFile(path)
	if err != nil {
		return nil, err
	}
	f, err := parseHeader(data)
	if err != nil {
		_ = unix.Munmap(data)
		return nil, err
	}
	return f, nil
}

func mmapFile(path string) ([]byte, error) {
	fd, err := unix.Open(path, unix.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("container: open %s: %w", path, err)
	}
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("container: fstat %s: %w", path, err)
	}
	if st.Size == 0 {
		return nil, fmt.Errorf("container: %s is empty", path)
	}
	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("container: mmap %s: %w", path, err)
	}
	return data, nil
}

func parseHeader(data []byte) (*File, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrBadMagic
	}

	buf := avro.NewBuffer(data[len(magic):])
	meta, err := readMetadata(buf)
	if err != nil {
		return nil, fmt.Errorf("container: metadata: %w", err)
	}
	syncBytes, err := buf.Read(syncSize)
	if err != nil {
		return nil, fmt.Errorf("container: sync marker: %w", err)
	}

	schemaJSON, ok := meta["avro.schema"]
	if !ok {
		return nil, fmt.Errorf("container: missing avro.schema metadata key")
	}
	root, err := schema.Parse(schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("container: parsing avro.schema: %w", err)
	}

	f := &File{
		data:   data,
		codec:  string(meta["avro.codec"]),
		Schema: root,
	}
	copy(f.sync[:], syncBytes)

	consumed := len(magic) + (len(data[len(magic):]) - buf.Len())
	f.body = data[consumed:]
	return f, nil
}

// readMetadata decodes the map<bytes> that follows the magic: a
// zigzag-varint block-count sequence (terminated by a zero count),
// each block holding that many key/value pairs, ended by the final
// zero-count block.
func readMetadata(buf *avro.Buffer) (map[string][]byte, error) {
	meta := make(map[string][]byte)
	for {
		count, err := buf.ReadLong()
		if err != nil {
			return nil, err
		}
		if count == 0 {
			return meta, nil
		}
		if count < 0 {
			count = -count
			if _, err := buf.ReadLong(); err != nil { // byte-size hint, unused here
				return nil, err
			}
		}
		for i := int64(0); i < count; i++ {
			key, err := buf.ReadString()
			if err != nil {
				return nil, err
			}
			val, err := buf.ReadBytes()
			if err != nil {
				return nil, err
			}
			meta[key] = append([]byte(nil), val...)
		}
	}
}

// Block is one decompressed object container block, ready for
// avro.BlockDecoder.DecodeBlock.
type Block struct {
	RecordCount  int64
	Decompressed []byte
}

// Blocks calls fn once per block in file order, stopping at the first
// error fn returns or the first errors.Is(err, avro.ErrFinished). A
// scratch buffer is reused across codec.Decode calls when the codec
// supports it (deflate and snappy decode into it when its capacity
// suffices; null returns the raw block bytes and never uses it).
func (f *File) Blocks(fn func(Block) error) error {
	buf := avro.NewBuffer(f.body)
	var scratch []byte
	for !buf.Eof() {
		count, err := buf.ReadLong()
		if err != nil {
			return fmt.Errorf("container: block record count: %w", err)
		}
		byteCount, err := buf.ReadLong()
		if err != nil {
			return fmt.Errorf("container: block byte count: %w", err)
		}
		raw, err := buf.Read(int(byteCount))
		if err != nil {
			return fmt.Errorf("container: block body: %w", err)
		}
		trailer, err := buf.Read(syncSize)
		if err != nil {
			return fmt.Errorf("container: block sync: %w", err)
		}
		if !bytes.Equal(trailer, f.sync[:]) {
			return ErrSyncMismatch
		}

		decompressed, err := codec.Decode(f.codec, raw, scratch)
		if err != nil {
			return fmt.Errorf("container: decoding block: %w", err)
		}
		scratch = decompressed[:0]

		if err := fn(Block{RecordCount: count, Decompressed: decompressed}); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the memory mapping backing the file.
func (f *File) Close() error {
	return unix.Munmap(f.data)
}
