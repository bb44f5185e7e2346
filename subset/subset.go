// Package subset builds the sample-subset descriptor (spec.md §4.4): a
// triple of {include bitmask, interleaved transposition, cumulative
// popcounts} kept co-located in one immutable value that every scan worker
// borrows by reference (spec.md §9 "Sample subset triple representation").
// The bit-popcount bookkeeping mirrors circular.Bitmap's wordPops
// accumulator in the teacher package, generalized from "nonzero words per
// row" to "cumulative included-sample count per word".
package subset

import (
	"sort"
	"sync"

	"github.com/antzucaro/matchr"
	"github.com/minio/highwayhash"

	"github.com/plinkql/pgencore/align"
	"github.com/plinkql/pgencore/pgenerr"
)

const wordBits = 32

// SamplesParam is the dynamic parameter the host passes for `samples=`.
// It is either an IntList (raw sample indices) or a StringList (IIDs,
// requiring a loaded samplemeta.Table).
type SamplesParam interface{ isSamplesParam() }

type IntList []uint32

func (IntList) isSamplesParam() {}

type StringList []string

func (StringList) isSamplesParam() {}

// IIDLookup is the minimal sample-metadata surface subset needs; satisfied
// by *samplemeta.Table.
type IIDLookup interface {
	IndexOf(iid string) (int, bool)
	AllIIDs() []string
}

// closestIID finds the sidecar IID with the smallest Levenshtein distance
// to want, for a "did you mean" hint on an unknown sample id error
// (grounded on util/distance_test.go's use of matchr.Levenshtein as the
// reference string-distance comparator, generalized here from barcode
// correction to sample id typo detection).
func closestIID(want string, all []string) (string, int) {
	best := ""
	bestDist := -1
	for _, iid := range all {
		d := matchr.Levenshtein(want, iid)
		if bestDist < 0 || d < bestDist {
			bestDist = d
			best = iid
		}
	}
	return best, bestDist
}

// ResolveIndices dispatches on the dynamic type of value, producing a
// deduplicated slice of raw sample indices (spec.md §4.4).
func ResolveIndices(value SamplesParam, rawSampleCt int, meta IIDLookup) ([]uint32, error) {
	seen := make(map[uint32]bool)
	var out []uint32
	switch v := value.(type) {
	case IntList:
		for _, idx := range v {
			if int(idx) < 0 || int(idx) >= rawSampleCt {
				return nil, pgenerr.E(pgenerr.Invalid, "subset: sample index out of range", idx)
			}
			if seen[idx] {
				return nil, pgenerr.E(pgenerr.Invalid, "subset: duplicate sample index", idx)
			}
			seen[idx] = true
			out = append(out, idx)
		}
	case StringList:
		if meta == nil {
			return nil, pgenerr.E(pgenerr.Invalid, "subset: string sample list requires a sample sidecar")
		}
		for _, iid := range v {
			i, ok := meta.IndexOf(iid)
			if !ok {
				if suggestion, dist := closestIID(iid, meta.AllIIDs()); suggestion != "" && dist <= 2 {
					return nil, pgenerr.E(pgenerr.Invalid, "subset: unknown sample id, did you mean", iid, suggestion)
				}
				return nil, pgenerr.E(pgenerr.Invalid, "subset: unknown sample id", iid)
			}
			idx := uint32(i)
			if seen[idx] {
				return nil, pgenerr.E(pgenerr.Invalid, "subset: duplicate sample id", iid)
			}
			seen[idx] = true
			out = append(out, idx)
		}
	default:
		return nil, pgenerr.E(pgenerr.Invalid, "subset: unsupported samples parameter")
	}
	if len(out) == 0 {
		return nil, pgenerr.E(pgenerr.Invalid, "subset: empty sample list")
	}
	return out, nil
}

// Subset is the immutable sample-subset descriptor. It is built once at
// bind and shared by reference, read-only, across every worker thread
// (spec.md §3 "Lifecycle", §5).
type Subset struct {
	RawSampleCt int
	// SortedIndices is the ascending list of raw sample indices included in
	// the subset. Build sorts but does not remove duplicates;
	// ResolveIndices rejects them before Build is called.
	SortedIndices []uint32

	include     *align.Block
	interleaved *align.Block
	cumPop      []uint32

	fingerprint uint64
	cacheKey    uint64
}

// SampleCt is the effective sample count consumed by every kernel.
func (s *Subset) SampleCt() int { return len(s.SortedIndices) }

// Include returns the raw include bitmask, one bit per raw sample index.
func (s *Subset) Include() []uint32 { return s.include.Words32Unsafe() }

// Interleaved returns the decoder's transposed form of Include, required
// by the fast-count reader entry point (spec.md §4.4/§4.5).
func (s *Subset) Interleaved() []uint32 { return s.interleaved.Words32Unsafe() }

// CumulativePopcounts returns one entry per word of Include, each the
// popcount of all earlier words.
func (s *Subset) CumulativePopcounts() []uint32 { return s.cumPop }

// Fingerprint is a content hash of the subset's sorted index list. Build
// uses it (combined with the raw sample count) as the buildCache key so
// repeated binds against the same `samples=` selection share one computed
// Subset instead of re-deriving Include/Interleaved/CumulativePopcounts.
func (s *Subset) Fingerprint() uint64 { return s.fingerprint }

// highwayKey is a fixed, non-secret key: the fingerprint is used for
// cache-keying, not authentication.
var highwayKey = [highwayhash.Size]byte{}

// samplesPerGenovecWord is the decoder's own packing density: genovec
// words are 32 bits at 2 bits/sample, so 16 samples/word, half of
// Include's 32 samples/word (spec.md §4.4/§4.5).
const samplesPerGenovecWord = 16

// buildCache deduplicates Build calls across binds that request the same
// raw sample count and the same (already-sorted) index list: pgen.Reader's
// fast-count path is rebuilt once per kernel Bind, and a CLI invocation or
// host query plan that runs several kernels over one `samples=` parameter
// would otherwise re-derive Include/Interleaved/CumulativePopcounts from
// scratch for each one. Entries are refcounted so Release only frees the
// underlying aligned blocks once every borrower has released its copy.
var buildCache = struct {
	mu      sync.Mutex
	entries map[uint64]*cacheEntry
}{entries: make(map[uint64]*cacheEntry)}

type cacheEntry struct {
	s    *Subset
	refs int
}

// Build sorts indices ascending (required for the decoder's subset output
// order) and derives the three forms described in spec.md §4.4, or returns
// a shared, refcounted Subset already computed for the same raw sample
// count and fingerprint.
func Build(rawSampleCt int, indices []uint32) (*Subset, error) {
	sorted := append([]uint32(nil), indices...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	fp := fingerprintOf(sorted)
	key := cacheKey(rawSampleCt, fp)

	buildCache.mu.Lock()
	if e, ok := buildCache.entries[key]; ok {
		e.refs++
		buildCache.mu.Unlock()
		return e.s, nil
	}
	buildCache.mu.Unlock()

	nWords := (rawSampleCt + wordBits - 1) / wordBits
	includeBlock, err := align.Acquire(nWords * 4)
	if err != nil {
		return nil, err
	}
	nInterleavedWords := (rawSampleCt + samplesPerGenovecWord - 1) / samplesPerGenovecWord
	interleavedBlock, err := align.Acquire(nInterleavedWords * 4)
	if err != nil {
		includeBlock.Release()
		return nil, err
	}

	include := includeBlock.Words32Unsafe()
	for _, idx := range sorted {
		include[idx/wordBits] |= 1 << (idx % wordBits)
	}

	interleaved := interleavedBlock.Words32Unsafe()
	buildInterleaved(sorted, interleaved)

	cumPop := make([]uint32, nWords)
	var running uint32
	for w := 0; w < nWords; w++ {
		cumPop[w] = running
		running += uint32(popcount32(include[w]))
	}

	s := &Subset{
		RawSampleCt:   rawSampleCt,
		SortedIndices: sorted,
		include:       includeBlock,
		interleaved:   interleavedBlock,
		cumPop:        cumPop,
		fingerprint:   fp,
		cacheKey:      key,
	}

	buildCache.mu.Lock()
	if e, ok := buildCache.entries[key]; ok {
		// Lost a race with a concurrent Build of the same subset: keep the
		// winner, discard ours.
		e.refs++
		buildCache.mu.Unlock()
		s.include.Release()
		s.interleaved.Release()
		return e.s, nil
	}
	buildCache.entries[key] = &cacheEntry{s: s, refs: 1}
	buildCache.mu.Unlock()
	return s, nil
}

func cacheKey(rawSampleCt int, fp uint64) uint64 {
	return fp ^ uint64(rawSampleCt)*0x9e3779b97f4a7c15
}

func fingerprintOf(sorted []uint32) uint64 {
	buf := make([]byte, 4*len(sorted))
	for i, v := range sorted {
		buf[4*i] = byte(v)
		buf[4*i+1] = byte(v >> 8)
		buf[4*i+2] = byte(v >> 16)
		buf[4*i+3] = byte(v >> 24)
	}
	sum := highwayhash.Sum(buf, highwayKey[:])
	return uint64(sum[0]) | uint64(sum[1])<<8 | uint64(sum[2])<<16 | uint64(sum[3])<<24 |
		uint64(sum[4])<<32 | uint64(sum[5])<<40 | uint64(sum[6])<<48 | uint64(sum[7])<<56
}

func popcount32(w uint32) int {
	c := 0
	for w != 0 {
		w &= w - 1
		c++
	}
	return c
}

// buildInterleaved derives the decoder's "interleaved" form of the include
// set: for every included raw sample index, both bits of its 2-bit genovec
// field are set in out (which is sized to the decoder's own 16-sample-per-
// word genovec packing, not Include's 32-sample-per-word packing). This is
// the transposition pgen.Reader.GetCounts ANDs directly against genovec
// words to fuse subsetting into its masked-popcount fast-count loop,
// instead of testing Include one sample at a time (spec.md §4.4 "a
// transposed form required by the fast-count path").
func buildInterleaved(sorted []uint32, out []uint32) {
	for _, idx := range sorted {
		word := idx / samplesPerGenovecWord
		shift := (idx % samplesPerGenovecWord) * 2
		out[word] |= 3 << shift
	}
}

// Release drops the caller's reference to s. Call once per Build call that
// returned s, after that caller's workers have completed (spec.md §5
// "Metadata backing storage lives until all workers have completed"); the
// underlying aligned buffers are only actually freed once every bind that
// shared this cached Subset (same raw sample count, same sample selection)
// has released it.
func (s *Subset) Release() {
	if s == nil {
		return
	}
	buildCache.mu.Lock()
	e, ok := buildCache.entries[s.cacheKey]
	if !ok || e.s != s {
		buildCache.mu.Unlock()
		s.include.Release()
		s.interleaved.Release()
		return
	}
	e.refs--
	if e.refs > 0 {
		buildCache.mu.Unlock()
		return
	}
	delete(buildCache.entries, s.cacheKey)
	buildCache.mu.Unlock()
	s.include.Release()
	s.interleaved.Release()
}
