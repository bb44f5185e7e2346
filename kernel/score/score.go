// Package score implements the polygenic-score kernel (K5): two-phase
// weighted dosage summation with mean-imputation, skip, or
// variance-standardized modes (spec.md §4.7 K5, "the hard part" (e)).
package score

import (
	"math"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/plinkql/pgencore/pgen"
	"github.com/plinkql/pgencore/pgenerr"
	"github.com/plinkql/pgencore/samplemeta"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/subset"
	"github.com/plinkql/pgencore/variantmeta"
)

// Mode selects K5's missing-data/standardization policy.
type Mode int

const (
	// ModeDefault is mean imputation: missing dosages are replaced by the
	// variant's mean before scoring.
	ModeDefault Mode = iota
	// ModeNoMeanImputation skips missing samples entirely per variant.
	ModeNoMeanImputation
	// ModeCenter variance-standardizes scored dosages.
	ModeCenter
)

// ScoredVariant is one resolved entry of the scored-variants list (spec.md
// §4.7 K5 "Weights").
type ScoredVariant struct {
	Vidx   int
	Weight float64
	Flip   bool
}

// WeightsParam is the dynamic `weights=` parameter shape.
type WeightsParam interface{ isWeightsParam() }

// Positional is a positional list of doubles, length end_idx-start_idx;
// index i maps to variant start_idx+i.
type Positional []float64

func (Positional) isWeightsParam() {}

// IDWeight is one entry of the id-keyed weights shape.
type IDWeight struct {
	ID     string
	Allele string
	Weight float64
}

// IDKeyed is the {id, allele, weight} list shape.
type IDKeyed []IDWeight

func (IDKeyed) isWeightsParam() {}

// ResolveScoredVariants implements spec.md §4.7 K5 "Weights": dispatches on
// the dynamic type of weights and produces the ascending-by-vidx scored
// list.
func ResolveScoredVariants(weights WeightsParam, varIndex *variantmeta.Index, rng scan.Range) ([]ScoredVariant, error) {
	switch w := weights.(type) {
	case Positional:
		if len(w) != rng.Len() {
			return nil, pgenerr.E(pgenerr.Invalid, "score: weight list wrong length", len(w), rng.Len())
		}
		var out []ScoredVariant
		for i, weight := range w {
			if weight == 0 {
				continue
			}
			out = append(out, ScoredVariant{Vidx: rng.Start + i, Weight: weight, Flip: false})
		}
		return out, nil
	case IDKeyed:
		idToVidx := make(map[string]int, rng.Len())
		for vidx := rng.Start; vidx < rng.End; vidx++ {
			if id, ok := varIndex.ID(vidx); ok {
				idToVidx[id] = vidx
			}
		}
		var out []ScoredVariant
		for _, entry := range w {
			if entry.Weight == 0 {
				continue
			}
			vidx, ok := idToVidx[entry.ID]
			if !ok {
				return nil, pgenerr.E(pgenerr.Invalid, "score: unknown variant id", entry.ID)
			}
			alt, _ := varIndex.Alt(vidx)
			ref := varIndex.Ref(vidx)
			var flip bool
			// varIndex.Ref/Alt upper-case their tokens; fold the weights-file
			// allele the same way so a soft-masked sidecar still matches.
			switch strings.ToUpper(entry.Allele) {
			case alt:
				flip = false
			case ref:
				flip = true
			default:
				continue // allele mismatch: silently dropped (spec.md §7 category 5)
			}
			out = append(out, ScoredVariant{Vidx: vidx, Weight: entry.Weight, Flip: flip})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Vidx < out[j].Vidx })
		return out, nil
	default:
		return nil, pgenerr.E(pgenerr.Invalid, "score: unsupported weights parameter")
	}
}

// Row is K5's output schema (spec.md §4.7 K5 "Phase B").
type Row struct {
	FID            *string
	IID            string
	AlleleCt       uint32
	Denom          uint32
	NamedAlleleSum float64
	ScoreSum       float64
	ScoreAvg       float64
}

// Kernel is K5's bound state.
type Kernel struct {
	Path          string
	Meta          *samplemeta.Table
	Subset        *subset.Subset
	ScoredVariants []ScoredVariant
	Mode          Mode
	EffSampleCt   int

	scoringDone  int32
	scoringMu    sync.Mutex
	scoreSum     []float64
	namedAlleleSum []float64
	alleleCt     []uint32

	sampleCursor *scan.Cursor
}

// ResolveMode maps the host's two independent boolean options onto a
// single Mode, rejecting the mutually-exclusive combination at bind time
// (spec.md §4.7 K5 step 4, §7 category 1).
func ResolveMode(center, noMeanImputation bool) (Mode, error) {
	switch {
	case center && noMeanImputation:
		return 0, pgenerr.E(pgenerr.Invalid, "score: center and no_mean_imputation are mutually exclusive")
	case center:
		return ModeCenter, nil
	case noMeanImputation:
		return ModeNoMeanImputation, nil
	default:
		return ModeDefault, nil
	}
}

// Bind allocates per-sample accumulators for an already-resolved mode and
// scored-variants list.
func Bind(path string, meta *samplemeta.Table, sub *subset.Subset, scored []ScoredVariant, mode Mode, rawSampleCt int) (*Kernel, error) {
	effCt := rawSampleCt
	if sub != nil {
		effCt = sub.SampleCt()
	}
	return &Kernel{
		Path: path, Meta: meta, Subset: sub, ScoredVariants: scored, Mode: mode, EffSampleCt: effCt,
		scoreSum: make([]float64, effCt), namedAlleleSum: make([]float64, effCt), alleleCt: make([]uint32, effCt),
		sampleCursor: scan.NewCursor(0, effCt),
	}, nil
}

// MaxThreads is always 1 for K5 (spec.md §4.7 K5).
func (k *Kernel) MaxThreads() int { return 1 }

type Local struct{ reader *pgen.Reader }

func (k *Kernel) InitLocal() (*Local, error) {
	r, err := pgen.InitReader(k.Path, k.Subset)
	if err != nil {
		return nil, err
	}
	return &Local{reader: r}, nil
}

func (l *Local) Close() error { return l.reader.Close() }

func expandDosages(present []uint32, dense []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = pgen.DosageMissing
	}
	j := 0
	for i := 0; i < n; i++ {
		if present[i/32]&(1<<(uint(i)%32)) != 0 {
			out[i] = dense[j]
			j++
		}
	}
	return out
}

// runScoring is phase A, serialized under a mutex (spec.md §5 "Guarded by
// a mutex: K5's scoring phase").
func (k *Kernel) runScoring(local *Local) error {
	if atomic.LoadInt32(&k.scoringDone) != 0 {
		return nil
	}
	k.scoringMu.Lock()
	defer k.scoringMu.Unlock()
	if k.scoringDone != 0 {
		return nil
	}
	for _, sv := range k.ScoredVariants {
		_, present, dense, presentCt, err := local.reader.GetDosages(sv.Vidx)
		if err != nil {
			return err
		}
		if presentCt == 0 {
			continue // all missing: skip variant (spec.md §4.7 K5 phase A step 2)
		}
		dosages := expandDosages(present, dense, k.EffSampleCt)

		var sumAlt float64
		for _, d := range dosages {
			if d != pgen.DosageMissing {
				sumAlt += d
			}
		}
		meanAlt := sumAlt / float64(presentCt)

		switch k.Mode {
		case ModeDefault:
			for s, d := range dosages {
				alt := d
				if alt == pgen.DosageMissing {
					alt = meanAlt
				}
				scored := alt
				if sv.Flip {
					scored = 2 - alt
				}
				k.scoreSum[s] += sv.Weight * scored
				k.namedAlleleSum[s] += scored
				k.alleleCt[s] += 2
			}
		case ModeNoMeanImputation:
			for s, d := range dosages {
				if d == pgen.DosageMissing {
					continue
				}
				scored := d
				if sv.Flip {
					scored = 2 - d
				}
				k.scoreSum[s] += sv.Weight * scored
				k.namedAlleleSum[s] += scored
				k.alleleCt[s] += 2
			}
		case ModeCenter:
			freq := meanAlt / 2
			sd := math.Sqrt(2 * freq * (1 - freq))
			if sd == 0 {
				continue // skip variant: zero variance
			}
			meanScored := meanAlt
			if sv.Flip {
				meanScored = 2 - meanAlt
			}
			for s, d := range dosages {
				if d == pgen.DosageMissing {
					continue
				}
				scored := d
				if sv.Flip {
					scored = 2 - d
				}
				standardized := (scored - meanScored) / sd
				k.scoreSum[s] += sv.Weight * standardized
				k.alleleCt[s] += 2
			}
		}
	}
	atomic.StoreInt32(&k.scoringDone, 1)
	return nil
}

// Scan runs phase A once, then emits rows for claimed sample slots (spec.md
// §4.7 K5 "Phase B").
func (k *Kernel) Scan(local *Local, batch *scan.Batch[Row]) (done bool, err error) {
	if err := k.runScoring(local); err != nil {
		return false, err
	}
	const batchSize = 128
	for {
		start, n, ok := k.sampleCursor.Claim(batchSize)
		if !ok {
			return true, nil
		}
		for s := start; s < start+n; s++ {
			origIdx := s
			if k.Subset != nil {
				origIdx = int(k.Subset.SortedIndices[s])
			}
			sample := k.Meta.Samples[origIdx]
			allele := k.alleleCt[s]
			var avg float64
			if allele > 0 {
				avg = k.scoreSum[s] / float64(allele)
			}
			row := Row{
				FID: sample.FID, IID: sample.IID,
				AlleleCt: allele, Denom: allele,
				NamedAlleleSum: k.namedAlleleSum[s], ScoreSum: k.scoreSum[s], ScoreAvg: avg,
			}
			if batch.Add(row) {
				return false, nil
			}
		}
	}
}
