// Package avro is THE CORE: a schema-directed decoder for Avro block
// bodies. It assumes file framing, codec decompression, the filter
// grammar, and the JSON schema parser have already run — it only ever
// sees a parsed schema.Node and a block's decompressed bytes.
package avro

import (
	"github.com/negram/aq/limiter"
	"github.com/negram/aq/schema"
)

// Shared holds everything about a schema + query that is built once and
// then only ever read by every worker decoding blocks of that schema —
// the schema tree itself, a filter program compiled against a probe
// PredicateList (if a filter is set; each BlockDecoder runs its own copy
// bound to its own PredicateList), and the compiled TSV program (if a
// projection is active). None of it is
// mutated after construction, so many BlockDecoders (one per worker, per
// spec.md §5) can point at the same Shared concurrently.
type Shared struct {
	Root       schema.Node
	FilterExpr Expr
	Projection *Projection

	filterProg []filterInstr
	tsvProg    []tsvInstr
}

// NewShared builds the schema-wide compiled programs a BlockDecoder will
// need. filterExpr and projection may each be nil. compiled controls
// whether the (possibly nil) filter and TSV programs are actually
// compiled — when false, BlockDecoder always falls back to the
// recursive walker regardless of what's built here.
func NewShared(root schema.Node, filterExpr Expr, projection *Projection, compiled bool) (*Shared, error) {
	s := &Shared{Root: root, FilterExpr: filterExpr, Projection: projection}
	if !compiled {
		return s, nil
	}
	if filterExpr != nil {
		// A throwaway PredicateList, so the filter program is checked to
		// compile once per schema. Its instructions apply values to this
		// probe, so every BlockDecoder sharing this Shared compiles its
		// own program against its own live PredicateList with
		// independent per-record state.
		probe, err := NewPredicateList(root, filterExpr)
		if err != nil {
			return nil, err
		}
		prog, err := CompileFilterProgram(root, probe)
		if err != nil {
			return nil, err
		}
		s.filterProg = prog
	}
	if projection != nil {
		prog, err := CompileTSVProgram(root, projection)
		if err != nil {
			return nil, err
		}
		s.tsvProg = prog
	}
	return s, nil
}

// Block is one decompressed Avro container block: a record count and
// the bytes those records are packed into.
type Block struct {
	RecordCount int64
	Bytes       []byte
}

// BlockDecoder decodes and dumps the blocks of a single file. It is
// single-threaded and not safe for concurrent use — a worker pool gives
// each goroutine its own BlockDecoder, all pointed at the same read-only
// Shared (spec.md §5).
type BlockDecoder struct {
	shared  *Shared
	pl      *PredicateList
	dumper  Dumper
	limiter *limiter.Limiter

	countOnly bool
	compiled  bool
	onCount   func(n int64)

	// filterProg is compiled against pl: compiled filter instructions
	// apply values to the PredicateList they were built with.
	filterProg []filterInstr
}

// Config configures one BlockDecoder.
type Config struct {
	Shared    *Shared
	Dumper    Dumper // nil when CountOnly
	Limiter   *limiter.Limiter
	CountOnly bool
	Compiled  bool
	OnCount   func(n int64)
}

// NewBlockDecoder builds a BlockDecoder from cfg, binding its own
// PredicateList if cfg.Shared.FilterExpr is set, and its own compiled
// filter program over that list when cfg.Compiled is set too.
func NewBlockDecoder(cfg Config) (*BlockDecoder, error) {
	bd := &BlockDecoder{
		shared:    cfg.Shared,
		dumper:    cfg.Dumper,
		limiter:   cfg.Limiter,
		countOnly: cfg.CountOnly,
		compiled:  cfg.Compiled,
		onCount:   cfg.OnCount,
	}
	if cfg.Shared.FilterExpr != nil {
		pl, err := NewPredicateList(cfg.Shared.Root, cfg.Shared.FilterExpr)
		if err != nil {
			return nil, err
		}
		bd.pl = pl
		if bd.compiled && cfg.Shared.filterProg != nil {
			prog, err := CompileFilterProgram(cfg.Shared.Root, pl)
			if err != nil {
				return nil, err
			}
			bd.filterProg = prog
		}
	}
	return bd, nil
}

// DecodeBlock runs spec.md §4.6's per-block algorithm: the count-only/
// no-filter fast path bypasses the walker entirely; otherwise every
// record is filtered (recursive or compiled, per bd.compiled), and
// records that pass are either counted or rewound and re-walked in dump
// mode. Returns ErrFinished as soon as the shared limiter reports its
// cap was reached, so the caller can stop feeding this decoder further
// blocks for this file.
func (bd *BlockDecoder) DecodeBlock(block Block) error {
	if bd.countOnly && bd.pl == nil {
		if bd.onCount != nil {
			bd.onCount(block.RecordCount)
		}
		return nil
	}

	buf := NewBuffer(block.Bytes)
	for i := int64(0); i < block.RecordCount; i++ {
		if bd.limiter != nil && bd.limiter.Finished() {
			return ErrFinished
		}

		buf.MarkRecordStart()
		passed := true

		if bd.pl != nil {
			bd.pl.ResetState()
			var err error
			if bd.compiled && bd.filterProg != nil {
				err = RunFilterProgram(bd.filterProg, buf)
			} else {
				err = WalkFilter(buf, bd.shared.Root, bd.pl)
			}
			if err != nil {
				return err
			}
			passed = bd.pl.Evaluate()
		}

		if !passed {
			continue
		}

		if bd.limiter != nil {
			bd.limiter.RecordPassed()
		}

		if bd.countOnly {
			if bd.onCount != nil {
				bd.onCount(1)
			}
			continue
		}

		if bd.pl != nil {
			buf.RewindToRecordStart()
		}

		var err error
		if bd.compiled && bd.shared.Projection != nil && bd.shared.tsvProg != nil {
			err = RunTSVProgram(bd.shared.tsvProg, buf, bd.dumper)
		} else {
			err = WalkDump(buf, bd.shared.Root, bd.dumper)
		}
		if err != nil {
			return err
		}
		bd.dumper.EndDocument()
	}
	return nil
}
