// Package align provides scoped, cache-line-aligned byte buffers used as
// decoder working memory (spec component C1). There is no global pool:
// every Block is acquired per-query or per-thread and released on every
// exit path, the same discipline circular.Bitmap applies to its own
// SIMD-vector-rounded row buffers (see NewBitmap's bytesPerVec rounding in
// the teacher package this module descends from).
package align

import (
	"github.com/grailbio/base/simd"
	"github.com/plinkql/pgencore/pgenerr"
)

// MinAlign is the minimum alignment, in bytes, of any acquired Block. It is
// at least one cache line (64 bytes), and is always a multiple of
// simd.BytesPerVec() so that a Block's backing array is safe to hand to
// SIMD-width decoder primitives.
const MinAlign = 64

// Block is an exclusively-owned, aligned byte region. A Block must not be
// shared between concurrent acquirers; the sample subset descriptor is the
// one documented exception (spec.md §4.4, §5), and it owns its Blocks for
// the lifetime of the query rather than scoping them per-call.
type Block struct {
	raw   []byte // over-allocated backing array
	bytes []byte // aligned, correctly-sized view into raw
}

func alignment() int {
	a := simd.BytesPerVec()
	if a < MinAlign {
		a = MinAlign
	}
	// Round up to a multiple of MinAlign.
	if a%MinAlign != 0 {
		a = ((a / MinAlign) + 1) * MinAlign
	}
	return a
}

// Acquire allocates a Block of at least nBytes, aligned to MinAlign (and to
// simd.BytesPerVec(), whichever is larger). Allocation failure is a fatal
// IO-class error (spec.md §4.1).
func Acquire(nBytes int) (*Block, error) {
	if nBytes < 0 {
		return nil, pgenerr.E(pgenerr.Invalid, "align: negative size", nBytes)
	}
	align := alignment()
	raw := make([]byte, nBytes+align)
	if raw == nil {
		return nil, pgenerr.E(pgenerr.IO, "align: allocation failed", nBytes)
	}
	base := uintptrOf(raw)
	pad := (align - int(base%uintptr(align))) % align
	return &Block{raw: raw, bytes: raw[pad : pad+nBytes]}, nil
}

// Release returns the Block's memory. It is idempotent and safe to call via
// defer on every exit path, including error paths.
func (b *Block) Release() {
	if b == nil {
		return
	}
	b.raw = nil
	b.bytes = nil
}

// Bytes returns the aligned byte view.
func (b *Block) Bytes() []byte { return b.bytes }
