// Package scan implements the parallel scan orchestrator (spec component
// C7) and the row emitter (C8). It realizes the shared bind -> init-global
// -> init-local -> scan skeleton every kernel package in kernel/ drives:
// an atomic fetch-add claim cursor, a traverse.Each-based worker fan-out,
// and a fixed-capacity output batch, the same division of labor
// pileup/snp/pileup.go's traverse.Each call and pileupShardContext apply
// to its own per-shard workers.
package scan

import (
	"sync/atomic"

	"github.com/grailbio/base/traverse"

	"github.com/plinkql/pgencore/variantmeta"
)

// Range is the half-open variant interval a query operates over.
type Range = variantmeta.VariantRange

// MaxThreads implements spec.md §4.6's heuristic: min(range_size/500+1, 16).
// Kernels that cannot parallelize (LD pairwise, score, sample-mode
// missingness) ignore this and hardcode 1.
func MaxThreads(rangeSize int) int {
	if rangeSize < 0 {
		rangeSize = 0
	}
	n := rangeSize/500 + 1
	if n > 16 {
		n = 16
	}
	return n
}

// Cursor is the shared atomic claim counter over a variant (or sample)
// range. Workers call Claim to grab a contiguous block; the counter never
// moves backward and is safe for concurrent use.
type Cursor struct {
	next int64
	end  int64
}

// NewCursor creates a cursor over [start, end).
func NewCursor(start, end int) *Cursor {
	return &Cursor{next: int64(start), end: int64(end)}
}

// Claim grabs up to batchSize contiguous indices starting at the cursor's
// current position. ok is false once the range is exhausted.
func (c *Cursor) Claim(batchSize int) (start, n int, ok bool) {
	s := atomic.AddInt64(&c.next, int64(batchSize)) - int64(batchSize)
	if s >= c.end {
		return 0, 0, false
	}
	e := s + int64(batchSize)
	if e > c.end {
		e = c.end
	}
	return int(s), int(e - s), true
}

// CancelFlag is a settable, concurrency-safe cancellation signal. Cursor.Claim
// and the kernels' Scan loops do not consult it: setting it does not stop
// a scan.
type CancelFlag struct{ v int32 }

func (f *CancelFlag) Set()          { atomic.StoreInt32(&f.v, 1) }
func (f *CancelFlag) IsSet() bool   { return atomic.LoadInt32(&f.v) != 0 }

// FanOut runs fn once per worker thread, 0..nThreads-1, via
// traverse.Each, the fan-out primitive the teacher's pileup driver uses
// (spec.md §0 AMBIENT STACK, §4.6 "Worker fan-out").
func FanOut(nThreads int, fn func(threadIdx int) error) error {
	return traverse.Each(nThreads, fn)
}
