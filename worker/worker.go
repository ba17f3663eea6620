// Package worker runs a fixed-size goroutine pool over a set of Avro
// object container files. Each file is owned by exactly one goroutine
// for its whole lifetime, so the BlockDecoder working on it never sees
// blocks out of order and never needs locking of its own; concurrency
// happens across files, not within one.
//
// This mirrors the task-pull loop of the original avroq worker (a
// decoder reused across consecutive blocks belonging to the same file,
// discarded when the file changes) collapsed to its simplest safe Go
// shape: one goroutine keeps that decoder for a file's entire block
// stream instead of re-acquiring it task by task from a shared emitor.
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/negram/aq/avro"
	"github.com/negram/aq/container"
)

// DecoderFactory builds the BlockDecoder (and whatever Dumper it writes
// to) that will process every block of f. Called once per file, before
// any of that file's blocks are decoded.
type DecoderFactory func(f *container.File) (*avro.BlockDecoder, error)

// FileError pairs a failed input path with the error a worker hit while
// decoding it. A FileError never aborts sibling files.
type FileError struct {
	Path string
	Err  error
}

// Pool runs DecoderFactory-built decoders over many files concurrently,
// bounded to a fixed number of in-flight files at a time.
type Pool struct {
	size   int
	logger *zap.Logger
}

// NewPool builds a Pool with the given concurrency, defaulting to
// runtime.GOMAXPROCS(0) when size <= 0 (spec.md §5's "one worker per
// core" default). logger may be nil to suppress per-file diagnostics.
func NewPool(size int, logger *zap.Logger) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{size: size, logger: logger}
}

// Run opens and decodes every path in paths, calling factory once per
// file to build its decoder. It blocks until every file has been
// processed (or ctx is cancelled) and returns one FileError per file
// that failed — decoder-finished (the shared limiter was hit) is not an
// error and is never reported here.
func (p *Pool) Run(ctx context.Context, paths []string, factory DecoderFactory) []FileError {
	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, p.size)

	var mu sync.Mutex
	var errs []FileError

	for _, path := range paths {
		path := path
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			mu.Lock()
			errs = append(errs, FileError{Path: path, Err: ctx.Err()})
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			defer func() { <-sem }()
			if err := p.runFile(gctx, path, factory); err != nil {
				if p.logger != nil {
					p.logger.Error("file decode failed", zap.String("path", path), zap.Error(err))
				}
				mu.Lock()
				errs = append(errs, FileError{Path: path, Err: err})
				mu.Unlock()
			}
			return nil // per-file errors never cancel sibling files
		})
	}
	_ = g.Wait()
	return errs
}

func (p *Pool) runFile(ctx context.Context, path string, factory DecoderFactory) error {
	f, err := container.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	bd, err := factory(f)
	if err != nil {
		return err
	}

	err = f.Blocks(func(b container.Block) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return bd.DecodeBlock(avro.Block{RecordCount: b.RecordCount, Bytes: b.Decompressed})
	})
	if errors.Is(err, avro.ErrFinished) {
		return nil
	}
	return err
}
