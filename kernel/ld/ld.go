// Package ld implements the linkage-disequilibrium kernel (K4): a
// single-pair mode and a windowed sliding-scan mode with a resumable
// per-thread cursor (spec.md §4.7 K4, "the hard part" (d)).
package ld

import (
	"math"

	"github.com/plinkql/pgencore/pgen"
	"github.com/plinkql/pgencore/pgenerr"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/subset"
	"github.com/plinkql/pgencore/variantmeta"
)

// Row is K4's output schema.
type Row struct {
	ChromA, ChromB string
	PosA, PosB     int32
	IDA, IDB       *string
	R2, DPrime     *float64
	ObsCt          int
}

// ResolveVariantID finds vidx for a variant id by linear scan. Variant
// sidecars have no id index (spec.md §4.2 only documents positional and
// region access); LD's bind-time pair resolution does its own lookup here
// (as K5's id-keyed weights resolution builds its own range-restricted
// map) rather than burdening every variantmeta.Index with an id index.
func ResolveVariantID(varIndex *variantmeta.Index, id string) (int, bool) {
	for vidx := 0; vidx < varIndex.NumVariants(); vidx++ {
		if got, ok := varIndex.ID(vidx); ok && got == id {
			return vidx, true
		}
	}
	return -1, false
}

// Stats computes (r2, D', obs_ct) from two genovecs over the same
// effective sample count (spec.md §4.7 K4 "LD statistics from two
// genovecs"). r2/D' are nil when the result is invalid (n < 2, or either
// variance below 1e-15).
func Stats(a, b []pgen.GenoCall) (r2, dprime *float64, obsCt int) {
	var sumA, sumB, sumAB, sumA2, sumB2 float64
	var n int
	for i := range a {
		if a[i] == pgen.Missing || b[i] == pgen.Missing {
			continue
		}
		ga, gb := float64(a[i]), float64(b[i])
		sumA += ga
		sumB += gb
		sumAB += ga * gb
		sumA2 += ga * ga
		sumB2 += gb * gb
		n++
	}
	if n < 2 {
		return nil, nil, n
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)
	cov := sumAB/float64(n) - meanA*meanB
	varA := sumA2/float64(n) - meanA*meanA
	varB := sumB2/float64(n) - meanB*meanB
	if varA < 1e-15 || varB < 1e-15 {
		return nil, nil, n
	}
	r2v := cov * cov / (varA * varB)

	d := cov / 4
	pA := sumA / (2 * float64(n))
	pB := sumB / (2 * float64(n))
	var dMax float64
	if d >= 0 {
		dMax = math.Min(pA*(1-pB), (1-pA)*pB)
	} else {
		dMax = math.Max(-pA*pB, -(1-pA)*(1-pB))
	}
	var dprimeV float64
	if math.Abs(dMax) < 1e-15 {
		dprimeV = 0
	} else {
		dprimeV = d / dMax
	}
	return &r2v, &dprimeV, n
}

// Pairwise is K4's single-pair mode: max threads = 1, exactly one row.
type Pairwise struct {
	Path       string
	Subset     *subset.Subset
	VidxA, VidxB int
	VarIndex   *variantmeta.Index

	emitted bool
}

func BindPairwise(path string, varIndex *variantmeta.Index, sub *subset.Subset, idA, idB string) (*Pairwise, error) {
	vidxA, ok := ResolveVariantID(varIndex, idA)
	if !ok {
		return nil, pgenerr.E(pgenerr.Invalid, "ld: unknown variant1 id", idA)
	}
	vidxB, ok := ResolveVariantID(varIndex, idB)
	if !ok {
		return nil, pgenerr.E(pgenerr.Invalid, "ld: unknown variant2 id", idB)
	}
	return &Pairwise{Path: path, Subset: sub, VidxA: vidxA, VidxB: vidxB, VarIndex: varIndex}, nil
}

func (p *Pairwise) MaxThreads() int { return 1 }

type PairwiseLocal struct{ reader *pgen.Reader }

func (p *Pairwise) InitLocal() (*PairwiseLocal, error) {
	r, err := pgen.InitReader(p.Path, p.Subset)
	if err != nil {
		return nil, err
	}
	return &PairwiseLocal{reader: r}, nil
}

func (l *PairwiseLocal) Close() error { return l.reader.Close() }

func (p *Pairwise) Scan(local *PairwiseLocal, batch *scan.Batch[Row]) (done bool, err error) {
	if p.emitted {
		return true, nil
	}
	p.emitted = true
	genoA, err := local.reader.GetGenotypes(p.VidxA)
	if err != nil {
		return false, err
	}
	genoB, err := local.reader.GetGenotypes(p.VidxB)
	if err != nil {
		return false, err
	}
	r2, dprime, obsCt := Stats(genoA, genoB)
	row := Row{
		ChromA: p.VarIndex.Chrom(p.VidxA), PosA: p.VarIndex.Pos(p.VidxA),
		ChromB: p.VarIndex.Chrom(p.VidxB), PosB: p.VarIndex.Pos(p.VidxB),
		R2: r2, DPrime: dprime, ObsCt: obsCt,
	}
	if id, ok := p.VarIndex.ID(p.VidxA); ok {
		row.IDA = &id
	}
	if id, ok := p.VarIndex.ID(p.VidxB); ok {
		row.IDB = &id
	}
	batch.Add(row)
	return true, nil
}

// Windowed is K4's windowed sliding-scan mode (spec.md §4.7 K4 "Windowed").
type Windowed struct {
	Path        string
	VarIndex    *variantmeta.Index
	Subset      *subset.Subset
	Range       scan.Range
	WindowBP    int64
	R2Threshold float64
	InterChr    bool

	cursor *scan.Cursor
}

func BindWindowed(path string, varIndex *variantmeta.Index, sub *subset.Subset, rng scan.Range, windowBP int64, r2Threshold float64, interChr bool) *Windowed {
	return &Windowed{
		Path: path, VarIndex: varIndex, Subset: sub, Range: rng,
		WindowBP: windowBP, R2Threshold: r2Threshold, InterChr: interChr,
		cursor: scan.NewCursor(rng.Start, rng.End),
	}
}

// MaxThreads follows the same heuristic as other variant-parallel kernels;
// windowed LD may use 1 or parallel depending on complexity (spec.md
// §4.6).
func (w *Windowed) MaxThreads() int { return scan.MaxThreads(w.Range.Len()) }

// WindowedLocal is the per-thread resumable cursor spec.md §9 "LD windowed
// resumability" requires: preserved across Scan calls so an anchor's
// decoded genovec is never re-read.
type WindowedLocal struct {
	reader   *pgen.Reader
	anchorVidx        int
	nextPartnerVidx   int
	inWindow          bool
	cachedAnchorGeno  []pgen.GenoCall
	anchorChrom       string
	anchorPos         int32
}

func (w *Windowed) InitLocal() (*WindowedLocal, error) {
	r, err := pgen.InitReader(w.Path, w.Subset)
	if err != nil {
		return nil, err
	}
	return &WindowedLocal{reader: r}, nil
}

func (l *WindowedLocal) Close() error { return l.reader.Close() }

// Scan runs the windowed inner/outer loop of spec.md §4.7 K4 "Windowed",
// resuming from l's cursor fields across calls and saving them again the
// moment the batch fills.
func (w *Windowed) Scan(local *WindowedLocal, batch *scan.Batch[Row]) (done bool, err error) {
	for {
		if !local.inWindow {
			start, n, ok := w.cursor.Claim(1)
			if !ok {
				return true, nil
			}
			if n == 0 {
				return true, nil
			}
			anchor := start
			geno, err := local.reader.GetGenotypes(anchor)
			if err != nil {
				return false, err
			}
			local.anchorVidx = anchor
			local.cachedAnchorGeno = geno
			local.anchorChrom = w.VarIndex.Chrom(anchor)
			local.anchorPos = w.VarIndex.Pos(anchor)
			local.nextPartnerVidx = anchor + 1
			local.inWindow = true
		}

		for local.nextPartnerVidx < w.Range.End {
			if batch.Full() {
				return false, nil
			}
			partner := local.nextPartnerVidx
			partnerChrom := w.VarIndex.Chrom(partner)
			sameChrom := partnerChrom == local.anchorChrom

			if sameChrom {
				dist := int64(w.VarIndex.Pos(partner)) - int64(local.anchorPos)
				if dist > w.WindowBP {
					if !w.InterChr {
						break
					}
					local.nextPartnerVidx = skipPastChrom(w.VarIndex, partner, w.Range.End, partnerChrom)
					continue
				}
			} else if !w.InterChr {
				break
			}

			genoB, err := local.reader.GetGenotypes(partner)
			if err != nil {
				return false, err
			}
			r2, dprime, obsCt := Stats(local.cachedAnchorGeno, genoB)
			local.nextPartnerVidx++
			if r2 != nil && *r2 >= w.R2Threshold {
				row := Row{
					ChromA: local.anchorChrom, PosA: local.anchorPos,
					ChromB: partnerChrom, PosB: w.VarIndex.Pos(partner),
					R2: r2, DPrime: dprime, ObsCt: obsCt,
				}
				if id, ok := w.VarIndex.ID(local.anchorVidx); ok {
					row.IDA = &id
				}
				if id, ok := w.VarIndex.ID(partner); ok {
					row.IDB = &id
				}
				if batch.Add(row) {
					return false, nil
				}
			}
		}
		local.inWindow = false
	}
}

func skipPastChrom(varIndex *variantmeta.Index, from, end int, chrom string) int {
	i := from
	for i < end && varIndex.Chrom(i) == chrom {
		i++
	}
	return i
}
