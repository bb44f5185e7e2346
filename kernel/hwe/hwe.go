// Package hwe implements the Hardy-Weinberg exact-test kernel (K2): a
// bidirectional recurrence over heterozygote counts (spec.md §4.7 K2, "the
// hard part" (c)).
package hwe

import (
	"math"

	"github.com/plinkql/pgencore/pgen"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/subset"
	"github.com/plinkql/pgencore/variantmeta"
)

// Opts are K2's bind-time options (spec.md §6 "Hardy-Weinberg").
type Opts struct {
	Midp bool
}

// Row is K2's output schema.
type Row struct {
	Chrom       string
	Pos         int32
	ID          *string
	Ref         string
	Alt         *string
	PHWE        float64
	OHet, EHet  *float64
}

// Kernel is K2's bound state.
type Kernel struct {
	Path     string
	VarIndex *variantmeta.Index
	Subset   *subset.Subset
	Range    scan.Range
	Opts     Opts

	cursor *scan.Cursor
}

const batchSize = 128

func Bind(path string, varIndex *variantmeta.Index, sub *subset.Subset, rng scan.Range, opts Opts) (*Kernel, error) {
	return &Kernel{
		Path: path, VarIndex: varIndex, Subset: sub, Range: rng, Opts: opts,
		cursor: scan.NewCursor(rng.Start, rng.End),
	}, nil
}

func (k *Kernel) MaxThreads() int { return scan.MaxThreads(k.Range.Len()) }

type Local struct{ reader *pgen.Reader }

func (k *Kernel) InitLocal() (*Local, error) {
	r, err := pgen.InitReader(k.Path, k.Subset)
	if err != nil {
		return nil, err
	}
	return &Local{reader: r}, nil
}

func (l *Local) Close() error { return l.reader.Close() }

func (k *Kernel) Scan(local *Local, batch *scan.Batch[Row]) (done bool, err error) {
	for {
		start, n, ok := k.cursor.Claim(batchSize)
		if !ok {
			return true, nil
		}
		for vidx := start; vidx < start+n; vidx++ {
			counts, err := local.reader.GetCounts(vidx)
			if err != nil {
				return false, err
			}
			row := k.computeRow(vidx, counts)
			if batch.Add(row) {
				return false, nil
			}
		}
	}
}

func (k *Kernel) computeRow(vidx int, counts [4]uint32) Row {
	row := Row{
		Chrom: k.VarIndex.Chrom(vidx),
		Pos:   k.VarIndex.Pos(vidx),
		Ref:   k.VarIndex.Ref(vidx),
	}
	if id, ok := k.VarIndex.ID(vidx); ok {
		row.ID = &id
	}
	if alt, ok := k.VarIndex.Alt(vidx); ok {
		row.Alt = &alt
	}
	homRef, het, homAlt := counts[0], counts[1], counts[2]
	obs := homRef + het + homAlt
	row.PHWE, row.OHet, row.EHet = ExactTest(homRef, het, homAlt, k.Opts.Midp)
	_ = obs
	return row
}

// ExactTest computes p_hwe for observed (hom_ref_ct, het_ct, hom_alt_ct)
// via the bidirectional recurrence of spec.md §4.7 K2. Returns null
// o_het/e_het (nil) when obs_sample_ct == 0.
func ExactTest(homRefCt, hetCt, homAltCt uint32, midp bool) (pHWE float64, oHet, eHet *float64) {
	obsSampleCt := homRefCt + hetCt + homAltCt
	if obsSampleCt == 0 {
		return 1.0, nil, nil
	}

	rareCt := 2*min32(homRefCt, homAltCt) + hetCt
	commonCt := 2*max32(homRefCt, homAltCt) + hetCt
	n := rareCt + commonCt

	mid := int64(rareCt) * int64(commonCt) / (2 * int64(n))
	if (mid^int64(rareCt))&1 != 0 {
		mid++
	}

	probs := make([]float64, int(rareCt)+1)
	probs[mid] = 1.0
	sum := 1.0

	// Upward recurrence: p[k+2] = p[k] * 4*homr_k*homc_k / ((k+1)(k+2)),
	// where homr_k/homc_k are the rare/common homozygote counts consistent
	// with het count k (homr_k = (rare_ct-k)/2, homc_k = (common_ct-k)/2).
	for k := mid; k+2 <= int64(rareCt); k += 2 {
		homrK := (int64(rareCt) - k) / 2
		homcK := (int64(commonCt) - k) / 2
		probs[k+2] = probs[k] * 4 * float64(homrK) * float64(homcK) / float64((k+1)*(k+2))
		sum += probs[k+2]
	}
	// Downward recurrence: p[k-2] = p[k] * k(k-1) / (4*(homr_k+1)(homc_k+1)).
	for k := mid; k-2 >= 0; k -= 2 {
		homrK := (int64(rareCt) - k) / 2
		homcK := (int64(commonCt) - k) / 2
		probs[k-2] = probs[k] * float64(k*(k-1)) / (4 * float64((homrK+1)*(homcK+1)))
		sum += probs[k-2]
	}

	pObs := probs[hetCt] / sum
	tau := pObs * (1 + 1e-8)
	pValue := 0.0
	for _, p := range probs {
		if p/sum <= tau {
			pValue += p / sum
		}
	}
	if midp {
		pValue -= 0.5 * pObs
	}
	pValue = math.Max(0, math.Min(1, pValue))

	p := (2*float64(homRefCt) + float64(hetCt)) / (2 * float64(obsSampleCt))
	o := float64(hetCt) / float64(obsSampleCt)
	e := 2 * p * (1 - p)
	return pValue, &o, &e
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}
