// Package limiter implements the process-wide record limit every worker
// shares (spec.md §4.6/§7): once the configured number of records have
// passed the filter, every decoder currently running should stop as soon
// as it notices, not just the one that hit the limit.
package limiter

import "sync/atomic"

// Limiter counts records that have passed a filter across every worker
// and reports when the configured cap has been reached.
type Limiter struct {
	max   int64
	count atomic.Int64
}

// New builds a Limiter. max <= 0 means unlimited.
func New(max int64) *Limiter {
	return &Limiter{max: max}
}

// Finished reports whether the limit has already been reached. Workers
// check this before starting a new record so a limit hit by one worker
// is observed by every other worker's next iteration without any
// explicit signalling channel.
func (l *Limiter) Finished() bool {
	if l.max <= 0 {
		return false
	}
	return l.count.Load() >= l.max
}

// RecordPassed increments the shared count by one, called once per
// record that passes the filter (every record when no filter is set).
// The block decoder's count-only fast path with no filter does not call
// it, so that mode is not limited.
func (l *Limiter) RecordPassed() {
	l.count.Add(1)
}

// Count returns the current shared count.
func (l *Limiter) Count() int64 { return l.count.Load() }
