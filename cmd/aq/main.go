// Command aq queries Avro object container files: filter records, project
// fields to TSV, or just count what matches. See the root command's
// flags (run with --help) for the flag surface.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/negram/aq/avro"
	"github.com/negram/aq/avro/dumper"
	"github.com/negram/aq/container"
	"github.com/negram/aq/filter"
	"github.com/negram/aq/limiter"
	"github.com/negram/aq/worker"
)

type options struct {
	filterExpr string
	selectCols string
	countOnly  bool
	compiled   bool
	limit      int64
	workers    int
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "aq: failed to initialize logger:", err)
		return 1
	}
	defer logger.Sync() //nolint:errcheck

	var opts options
	root := &cobra.Command{
		Use:   "aq [flags] FILE...",
		Short: "query Avro object container files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, fileArgs []string) error {
			return execute(cmd.Context(), opts, fileArgs, logger)
		},
	}
	root.SetArgs(args)

	flags := root.Flags()
	flags.StringVarP(&opts.filterExpr, "filter", "f", "", `predicate expression, e.g. user.name == "bob"`)
	flags.StringVarP(&opts.selectCols, "select", "s", "", "comma-separated projection field paths, enables TSV output")
	flags.BoolVarP(&opts.countOnly, "count", "c", false, "count matching records instead of dumping them")
	flags.BoolVar(&opts.compiled, "compiled", false, "use the compiled instruction-array walker instead of the recursive one")
	flags.Int64VarP(&opts.limit, "limit", "n", 0, "stop after this many matching records (0 = unlimited)")
	flags.IntVar(&opts.workers, "workers", 0, "worker pool size (0 = GOMAXPROCS)")

	if err := root.ExecuteContext(context.Background()); err != nil {
		logger.Error("aq failed", zap.Error(err))
		return 1
	}
	return 0
}

func execute(ctx context.Context, opts options, paths []string, logger *zap.Logger) error {
	var filterExpr avro.Expr
	if opts.filterExpr != "" {
		expr, err := filter.Compile(opts.filterExpr)
		if err != nil {
			return fmt.Errorf("aq: compiling --filter: %w", err)
		}
		filterExpr = expr
	}

	var selectPaths []string
	if opts.selectCols != "" {
		selectPaths = strings.Split(opts.selectCols, ",")
		for i := range selectPaths {
			selectPaths[i] = strings.TrimSpace(selectPaths[i])
		}
	}

	var lim *limiter.Limiter
	if opts.limit > 0 {
		lim = limiter.New(opts.limit)
	}

	out := &syncWriter{w: os.Stdout}
	var totalCount int64
	var countMu sync.Mutex

	factory := func(f *container.File) (*avro.BlockDecoder, error) {
		var projection *avro.Projection
		if len(selectPaths) > 0 {
			p, err := avro.NewProjection(f.Schema, selectPaths)
			if err != nil {
				return nil, fmt.Errorf("building projection: %w", err)
			}
			projection = p
		}

		shared, err := avro.NewShared(f.Schema, filterExpr, projection, opts.compiled)
		if err != nil {
			return nil, fmt.Errorf("compiling query against schema: %w", err)
		}

		cfg := avro.Config{
			Shared:    shared,
			Limiter:   lim,
			CountOnly: opts.countOnly,
			Compiled:  opts.compiled,
		}
		if opts.countOnly {
			cfg.OnCount = func(n int64) {
				countMu.Lock()
				totalCount += n
				countMu.Unlock()
			}
		} else if projection != nil {
			cfg.Dumper = dumper.NewTSV(out, projection)
		} else {
			cfg.Dumper = dumper.NewFool(out)
		}
		return avro.NewBlockDecoder(cfg)
	}

	pool := worker.NewPool(opts.workers, logger)
	fileErrs := pool.Run(ctx, paths, factory)

	if opts.countOnly {
		fmt.Fprintln(os.Stdout, totalCount)
	}

	if len(fileErrs) > 0 {
		for _, fe := range fileErrs {
			logger.Error("file failed", zap.String("path", fe.Path), zap.Error(fe.Err))
		}
		return fmt.Errorf("aq: %d of %d files failed", len(fileErrs), len(paths))
	}
	return nil
}

// syncWriter serializes writes from concurrent workers. Both dumpers
// write each record in a single Write call, so TSV/structured output
// lines never interleave mid-record.
type syncWriter struct {
	mu sync.Mutex
	w  *os.File
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
