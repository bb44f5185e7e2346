package pgen

import (
	"encoding/binary"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/plinkql/pgencore/align"
	"github.com/plinkql/pgencore/pgenerr"
	"github.com/plinkql/pgencore/subset"
)

// GenoCall is the four-valued genotype domain {0,1,2,Missing} (spec.md §3).
type GenoCall = uint8

// SubsetView is the minimal surface Reader needs from a sample subset;
// satisfied by *subset.Subset.
type SubsetView interface {
	SampleCt() int
	Include() []uint32
	Interleaved() []uint32
	SortedIndices() []uint32
}

// subsetAdapter adapts *subset.Subset (whose SortedIndices is a field, not
// a method) to SubsetView.
type subsetAdapter struct{ s *subset.Subset }

func (a subsetAdapter) SampleCt() int           { return a.s.SampleCt() }
func (a subsetAdapter) Include() []uint32       { return a.s.Include() }
func (a subsetAdapter) Interleaved() []uint32   { return a.s.Interleaved() }
func (a subsetAdapter) SortedIndices() []uint32 { return a.s.SortedIndices }

// Reader is a per-thread decoder handle. It owns its own Header (opened
// independently so concurrent threads never share a file handle), a
// working-memory buffer, and decode scratch holding one unpacked call per
// byte: rawScratch sized to the raw sample count and effScratch sized to the
// effective sample count. No packed, vector-aligned genovec scratch is kept.
type Reader struct {
	header *Header
	layout *Layout

	workBuf      *align.Block
	rawScratch   []GenoCall // len RawSampleCt, reused across calls
	effScratch   []GenoCall // len effective sample count, reused across calls
	subset       SubsetView // nil if no subset
	zstdDecoder  *zstd.Decoder
}

// InitReader constructs a fresh per-thread reader: probe, populate, init,
// exactly the dance spec.md §4.5 documents for per-thread construction. sub
// may be nil (no subset).
func InitReader(path string, sub *subset.Subset) (*Reader, error) {
	h, err := Probe(path)
	if err != nil {
		return nil, err
	}
	layout, err := Populate(h)
	if err != nil {
		h.Close()
		return nil, err
	}
	workBuf, err := align.Acquire(layout.RequiredAllocCt + 1)
	if err != nil {
		h.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		workBuf.Release()
		h.Close()
		return nil, pgenerr.E(pgenerr.IO, err, "pgen: init zstd decoder")
	}

	r := &Reader{
		header:      h,
		layout:      layout,
		workBuf:     workBuf,
		rawScratch:  make([]GenoCall, h.RawSampleCt),
		zstdDecoder: dec,
	}
	if sub != nil {
		r.subset = subsetAdapter{sub}
		r.effScratch = make([]GenoCall, sub.SampleCt())
	} else {
		r.effScratch = r.rawScratch
	}
	return r, nil
}

// Close releases the reader, then its header, in that fixed order
// (spec.md §4.5, §9 "cyclic-lifetime pitfalls"): the reader must never
// outlive the header it borrows record offsets from, but equally the
// header must not be torn down while the reader still holds a view into
// its mapping.
func (r *Reader) Close() error {
	if r == nil {
		return nil
	}
	if r.zstdDecoder != nil {
		r.zstdDecoder.Close()
	}
	r.workBuf.Release()
	return r.header.Close()
}

func (r *Reader) record(vidx int) ([]byte, recordTag, error) {
	if vidx < 0 || vidx >= r.header.RawVariantCt {
		return nil, 0, pgenerr.E(pgenerr.IO, "pgen: variant index out of range", vidx)
	}
	start, end := r.layout.Offsets[vidx], r.layout.Offsets[vidx+1]
	if end <= start || int(end) > len(r.header.mapped) {
		return nil, 0, pgenerr.E(pgenerr.IO, "pgen: corrupt record", vidx)
	}
	raw := r.header.mapped[start:end]
	tag := recordTag(raw[0])
	if err := checkTag(tag); err != nil {
		return nil, 0, pgenerr.E(pgenerr.IO, err, "pgen: read variant", vidx)
	}
	return raw[1:], tag, nil
}

// genovecBytes returns the packed 2-bit genovec payload for vidx,
// transparently inflating a zstd-compressed record into the reader's
// working buffer.
func (r *Reader) genovecBytes(vidx int) ([]byte, recordTag, error) {
	payload, tag, err := r.record(vidx)
	if err != nil {
		return nil, 0, err
	}
	if tag != recordPlainZstd {
		return payload, tag, nil
	}
	if len(payload) < 4 {
		return nil, 0, pgenerr.E(pgenerr.IO, "pgen: truncated compressed record", vidx)
	}
	decompSize := binary.LittleEndian.Uint32(payload[:4])
	dst := r.workBuf.Bytes()
	if cap(dst) < int(decompSize) {
		dst = make([]byte, decompSize)
	}
	out, err := r.zstdDecoder.DecodeAll(payload[4:], dst[:0])
	if err != nil {
		return nil, 0, pgenerr.E(pgenerr.IO, err, "pgen: zstd decode", vidx)
	}
	return out, recordPlain, nil
}

func unpack2bit(dst []GenoCall, src []byte) {
	for i := range dst {
		b := src[i/4]
		shift := uint((i % 4) * 2)
		dst[i] = (b >> shift) & 3
	}
}

// decodeRaw unpacks vidx's dense genovec into r.rawScratch (raw sample
// space).
func (r *Reader) decodeRaw(vidx int) error {
	payload, _, err := r.genovecBytes(vidx)
	if err != nil {
		return err
	}
	n := r.header.RawSampleCt
	need := (n + 3) / 4
	if len(payload) < need {
		return pgenerr.E(pgenerr.IO, "pgen: truncated genovec", vidx)
	}
	unpack2bit(r.rawScratch, payload[:need])
	return nil
}

// gatherSubset projects r.rawScratch down to effective sample space,
// following SortedIndices order (spec.md §4.4/§9 Open Question: sample
// output order is the ascending sorted original sample index order).
func (r *Reader) gatherSubset() []GenoCall {
	if r.subset == nil {
		return r.rawScratch
	}
	idxs := r.subset.SortedIndices()
	for i, raw := range idxs {
		r.effScratch[i] = r.rawScratch[raw]
	}
	return r.effScratch
}

// GetGenotypes returns vidx's dense, subset-aware genovec over the
// effective sample count (spec.md §4.5).
func (r *Reader) GetGenotypes(vidx int) ([]GenoCall, error) {
	if err := r.decodeRaw(vidx); err != nil {
		return nil, err
	}
	return r.gatherSubset(), nil
}

// GetCounts is the fast path: it yields [hom_ref_ct, het_ct, hom_alt_ct,
// missing_ct] without materializing a gathered genovec, fusing sample
// subsetting directly into a word-level masked-popcount loop over the
// packed genovec via the subset's interleaved bitmask (spec.md §4.5, and
// the "hard part" (b) in spec.md §1). Samples excluded from the subset
// never contribute a set bit to either lowBits or highBits once ANDed with
// the interleaved mask, so each category's popcount counts only included
// samples, with no per-sample branch.
func (r *Reader) GetCounts(vidx int) ([4]uint32, error) {
	var counts [4]uint32
	payload, _, err := r.genovecBytes(vidx)
	if err != nil {
		return counts, err
	}
	n := r.header.RawSampleCt
	need := (n + 3) / 4
	if len(payload) < need {
		return counts, pgenerr.E(pgenerr.IO, "pgen: truncated genovec", vidx)
	}
	var interleaved []uint32
	if r.subset != nil {
		interleaved = r.subset.Interleaved()
	}
	nWords := (n + 15) / 16
	for wi := 0; wi < nWords; wi++ {
		lo := wi * 4
		hi := lo + 4
		if hi > len(payload) {
			hi = len(payload)
		}
		var word uint32
		for i, b := range payload[lo:hi] {
			word |= uint32(b) << uint(8*i)
		}

		var inclMask uint32 = 0x55555555
		if interleaved != nil {
			inclMask = interleaved[wi] & 0x55555555
		}
		if wi == nWords-1 {
			// The last word may cover fewer than 16 real samples; clamp both
			// the genovec word and the inclusion mask so the padding slots
			// never get miscounted as hom-ref-and-included.
			tailSamples := n - wi*16
			if tailSamples < 16 {
				validMask := (uint32(1) << uint(tailSamples*2)) - 1
				word &= validMask
				inclMask &= validMask
			}
		}

		lowBits := word & 0x55555555
		highBits := (word >> 1) & 0x55555555

		counts[0] += uint32(bitsOnesCount32((^lowBits) & (^highBits) & inclMask))
		counts[1] += uint32(bitsOnesCount32(lowBits & (^highBits) & inclMask))
		counts[2] += uint32(bitsOnesCount32((^lowBits) & highBits & inclMask))
		counts[3] += uint32(bitsOnesCount32(lowBits & highBits & inclMask))
	}
	return counts, nil
}

func bitsOnesCount32(w uint32) int {
	c := 0
	for w != 0 {
		w &= w - 1
		c++
	}
	return c
}

// GetMissingness returns a bitmask over the effective sample count marking
// missing calls (spec.md §4.5's fast path for missing bits only; here
// implemented by reusing the dense decode, since the decode loop already
// has to touch every packed byte once).
func (r *Reader) GetMissingness(vidx int) ([]uint32, error) {
	geno, err := r.GetGenotypes(vidx)
	if err != nil {
		return nil, err
	}
	nWords := (len(geno) + 31) / 32
	mask := make([]uint32, nWords)
	for i, g := range geno {
		if g == Missing {
			mask[i/32] |= 1 << (uint(i) % 32)
		}
	}
	return mask, nil
}

// GetDosages returns vidx's genovec together with its dosage track: a
// dosage-present bitmask and dense dosage values over the effective
// sample count, plus the count of present entries (spec.md §4.5). Variants
// stored without a dosage track (recordPlain/recordPlainZstd) are not an
// error: every non-missing hard call is reported as a present dosage equal
// to its genotype value, and missing calls are reported absent. Dosage is
// documented as a per-variant optional track (spec.md §3), while
// NotImplemented is reserved for reader-level unsupported modes (spec.md
// §6/§7 category 3).
func (r *Reader) GetDosages(vidx int) (genovec []GenoCall, dosagePresent []uint32, dosageDense []float64, dosagePresentCt int, err error) {
	payload, tag, err := r.genovecBytes(vidx)
	if err != nil {
		return nil, nil, nil, 0, err
	}
	n := r.header.RawSampleCt
	need := (n + 3) / 4
	if len(payload) < need {
		return nil, nil, nil, 0, pgenerr.E(pgenerr.IO, "pgen: truncated genovec", vidx)
	}
	unpack2bit(r.rawScratch, payload[:need])
	geno := r.gatherSubset()

	// Variants stored without an explicit dosage track fall back to the
	// hard-call genotype as the dosage value, the conventional PLINK2
	// behavior of treating genovec as a degenerate all-present dosage
	// track (spec.md §3 "Dosage" is silent on this; §9 resolves it as a
	// fallback rather than reporting every sample absent).
	if tag != recordDosage {
		present := make([]uint32, (len(geno)+31)/32)
		dense := make([]float64, 0, len(geno))
		ct := 0
		for i, g := range geno {
			if g == Missing {
				continue
			}
			present[i/32] |= 1 << (uint(i) % 32)
			dense = append(dense, float64(g))
			ct++
		}
		return geno, present, dense, ct, nil
	}

	rest := payload[need:]
	bitmaskLen := (n + 7) / 8
	if len(rest) < bitmaskLen {
		return nil, nil, nil, 0, pgenerr.E(pgenerr.IO, "pgen: truncated dosage bitmask", vidx)
	}
	rawPresent := rest[:bitmaskLen]
	rest = rest[bitmaskLen:]

	effLen := len(geno)
	presentOut := make([]uint32, (effLen+31)/32)
	dense := make([]float64, 0, effLen)
	srcIdx := 0 // index into rest's float32 stream, raw-sample ordered

	rawPresentBit := func(raw int) bool {
		return rawPresent[raw/8]&(1<<(uint(raw)%8)) != 0
	}

	effIdxForRaw := func(raw int) (int, bool) {
		if r.subset == nil {
			return raw, true
		}
		idxs := r.subset.SortedIndices()
		// Linear scan is fine: called only for set dosage bits, which are
		// typically a minority of samples.
		for i, v := range idxs {
			if int(v) == raw {
				return i, true
			}
		}
		return 0, false
	}

	for raw := 0; raw < n; raw++ {
		if !rawPresentBit(raw) {
			continue
		}
		if len(rest) < (srcIdx+1)*4 {
			return nil, nil, nil, 0, pgenerr.E(pgenerr.IO, "pgen: truncated dosage values", vidx)
		}
		bits := binary.LittleEndian.Uint32(rest[srcIdx*4 : srcIdx*4+4])
		val := float64(math.Float32frombits(bits))
		srcIdx++
		if eff, ok := effIdxForRaw(raw); ok {
			presentOut[eff/32] |= 1 << (uint(eff) % 32)
			dense = append(dense, val)
			dosagePresentCt++
		}
	}
	return geno, presentOut, dense, dosagePresentCt, nil
}
