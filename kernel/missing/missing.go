// Package missing implements the missingness kernel (K3): a
// parallel variant-oriented mode and a serialized two-phase
// sample-oriented mode (spec.md §4.7 K3).
package missing

import (
	"math/bits"
	"sync"
	"sync/atomic"

	"github.com/plinkql/pgencore/pgen"
	"github.com/plinkql/pgencore/samplemeta"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/subset"
	"github.com/plinkql/pgencore/variantmeta"
)

const batchSize = 128

// VariantRow is variant-mode's output schema.
type VariantRow struct {
	Chrom               string
	Pos                 int32
	ID                  *string
	Ref                 string
	Alt                 *string
	MissingCt, ObsCt     uint32
	FMiss               float64
}

// VariantKernel runs K3 in variant mode (parallel).
type VariantKernel struct {
	Path        string
	VarIndex    *variantmeta.Index
	Subset      *subset.Subset
	Range       scan.Range
	EffSampleCt int

	cursor *scan.Cursor
}

func BindVariant(path string, varIndex *variantmeta.Index, sub *subset.Subset, rng scan.Range, rawSampleCt int) *VariantKernel {
	effCt := rawSampleCt
	if sub != nil {
		effCt = sub.SampleCt()
	}
	return &VariantKernel{
		Path: path, VarIndex: varIndex, Subset: sub, Range: rng, EffSampleCt: effCt,
		cursor: scan.NewCursor(rng.Start, rng.End),
	}
}

func (k *VariantKernel) MaxThreads() int { return scan.MaxThreads(k.Range.Len()) }

type VariantLocal struct{ reader *pgen.Reader }

func (k *VariantKernel) InitLocal() (*VariantLocal, error) {
	r, err := pgen.InitReader(k.Path, k.Subset)
	if err != nil {
		return nil, err
	}
	return &VariantLocal{reader: r}, nil
}

func (l *VariantLocal) Close() error { return l.reader.Close() }

func (k *VariantKernel) Scan(local *VariantLocal, batch *scan.Batch[VariantRow]) (done bool, err error) {
	for {
		start, n, ok := k.cursor.Claim(batchSize)
		if !ok {
			return true, nil
		}
		for vidx := start; vidx < start+n; vidx++ {
			mask, err := local.reader.GetMissingness(vidx)
			if err != nil {
				return false, err
			}
			missingCt := popcountWords(mask)
			obsCt := uint32(k.EffSampleCt) - missingCt
			var fMiss float64
			if k.EffSampleCt > 0 {
				fMiss = float64(missingCt) / float64(k.EffSampleCt)
			}
			row := VariantRow{
				Chrom: k.VarIndex.Chrom(vidx), Pos: k.VarIndex.Pos(vidx), Ref: k.VarIndex.Ref(vidx),
				MissingCt: missingCt, ObsCt: obsCt, FMiss: fMiss,
			}
			if id, ok := k.VarIndex.ID(vidx); ok {
				row.ID = &id
			}
			if alt, ok := k.VarIndex.Alt(vidx); ok {
				row.Alt = &alt
			}
			if batch.Add(row) {
				return false, nil
			}
		}
	}
}

func popcountWords(words []uint32) uint32 {
	var c uint32
	for _, w := range words {
		c += uint32(bits.OnesCount32(w))
	}
	return c
}

// SampleRow is sample-mode's output schema.
type SampleRow struct {
	FID            *string
	IID            string
	MissingCt, ObsCt uint32
	FMiss          float64
}

// SampleKernel runs K3 in sample mode: a serialized two-phase scan
// (spec.md §4.7 K3 "Sample mode"). Max threads = 1.
type SampleKernel struct {
	Path         string
	Meta         *samplemeta.Table
	Subset       *subset.Subset
	Range        scan.Range
	RawSampleCt  int

	phaseADone   int32
	phaseAMu     sync.Mutex
	missingCount []uint32 // len effective sample count, filled by phase A

	sampleCursor *scan.Cursor
}

func BindSample(path string, meta *samplemeta.Table, sub *subset.Subset, rng scan.Range, rawSampleCt int) *SampleKernel {
	effCt := rawSampleCt
	if sub != nil {
		effCt = sub.SampleCt()
	}
	return &SampleKernel{
		Path: path, Meta: meta, Subset: sub, Range: rng, RawSampleCt: rawSampleCt,
		missingCount: make([]uint32, effCt),
		sampleCursor: scan.NewCursor(0, effCt),
	}
}

// MaxThreads is always 1 for sample mode (spec.md §4.7 K3).
func (k *SampleKernel) MaxThreads() int { return 1 }

type SampleLocal struct{ reader *pgen.Reader }

func (k *SampleKernel) InitLocal() (*SampleLocal, error) {
	r, err := pgen.InitReader(k.Path, k.Subset)
	if err != nil {
		return nil, err
	}
	return &SampleLocal{reader: r}, nil
}

func (l *SampleLocal) Close() error { return l.reader.Close() }

// ensurePhaseA runs the serialized single-pass accumulation the first time
// any worker calls Scan, guarded by a one-shot atomic flag with a mutex for
// coordination (spec.md §5 "Guarded by a mutex: ... K3-sample's phase-A
// initialization").
func (k *SampleKernel) ensurePhaseA(local *SampleLocal) error {
	if atomic.LoadInt32(&k.phaseADone) != 0 {
		return nil
	}
	k.phaseAMu.Lock()
	defer k.phaseAMu.Unlock()
	if k.phaseADone != 0 {
		return nil
	}
	for vidx := k.Range.Start; vidx < k.Range.End; vidx++ {
		mask, err := local.reader.GetMissingness(vidx)
		if err != nil {
			return err
		}
		for wi, w := range mask {
			for w != 0 {
				tz := bits.TrailingZeros32(w)
				s := wi*32 + tz
				if s < len(k.missingCount) {
					k.missingCount[s]++
				}
				w &= w - 1
			}
		}
	}
	atomic.StoreInt32(&k.phaseADone, 1)
	return nil
}

// Scan runs phase A once (serialized), then emits rows for claimed
// effective-sample slots, mapping each to its original sample index via
// the (sorted) subset indices (spec.md §4.7 K3 "Phase B").
func (k *SampleKernel) Scan(local *SampleLocal, batch *scan.Batch[SampleRow]) (done bool, err error) {
	if err := k.ensurePhaseA(local); err != nil {
		return false, err
	}
	totalVariantCt := k.Range.Len()
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
			missingCt := k.missingCount[s]
			obsCt := uint32(totalVariantCt) - missingCt
			var fMiss float64
			if totalVariantCt > 0 {
				fMiss = float64(missingCt) / float64(totalVariantCt)
			}
			row := SampleRow{FID: sample.FID, IID: sample.IID, MissingCt: missingCt, ObsCt: obsCt, FMiss: fMiss}
			if batch.Add(row) {
				return false, nil
			}
		}
	}
}
