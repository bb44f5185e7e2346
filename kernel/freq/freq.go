// Package freq implements the allele-frequency kernel (K1): for each
// variant in range, the fast-count decoder path yields [hom_ref, het,
// hom_alt, missing] and alt_freq/obs_ct are derived directly, without
// materializing a genovec (spec.md §4.7 K1, "the hard part" (b)).
package freq

import (
	"github.com/plinkql/pgencore/pgen"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/subset"
	"github.com/plinkql/pgencore/variantmeta"
)

// Opts are K1's bind-time options (spec.md §6 "Frequency").
type Opts struct {
	// Counts, when true, projects hom_ref_ct/het_ct/hom_alt_ct/missing_ct.
	Counts bool
	// NeedGenotypes is the projection-pushdown flag (spec.md §4.6): true
	// iff any of alt_freq, obs_ct, or the count columns are projected. If
	// false, no decoder reader is ever allocated.
	NeedGenotypes bool
}

// Row is K1's output schema.
type Row struct {
	Chrom               string
	Pos                 int32
	ID                  *string
	Ref                 string
	Alt                 *string
	AltFreq             *float64
	ObsCt               uint32
	HomRefCt, HetCt, HomAltCt, MissingCt *uint32
}

// Kernel is K1's bound, immutable, shared-by-reference state.
type Kernel struct {
	Path     string
	VarIndex *variantmeta.Index
	Subset   *subset.Subset
	Range    scan.Range
	Opts     Opts

	cursor *scan.Cursor
}

const batchSize = 128

// Bind validates the range against the sidecar and constructs the shared
// claim cursor (spec.md §2 "bind resolves sidecars... produces the output
// schema"; here narrowed to this kernel's own bind responsibilities, with
// sidecar loading and sample resolution performed by the caller).
func Bind(path string, varIndex *variantmeta.Index, sub *subset.Subset, rng scan.Range, opts Opts) (*Kernel, error) {
	return &Kernel{
		Path: path, VarIndex: varIndex, Subset: sub, Range: rng, Opts: opts,
		cursor: scan.NewCursor(rng.Start, rng.End),
	}, nil
}

// MaxThreads implements spec.md §4.6's heuristic for this kernel.
func (k *Kernel) MaxThreads() int { return scan.MaxThreads(k.Range.Len()) }

// Local is per-thread init-local state: an optional decoder reader, absent
// entirely when no genotype column is projected.
type Local struct {
	reader *pgen.Reader
}

// InitLocal constructs a per-thread reader, or none if genotypes are not
// needed for this query (spec.md §4.6 "Projection pushdown").
func (k *Kernel) InitLocal() (*Local, error) {
	if !k.Opts.NeedGenotypes {
		return &Local{}, nil
	}
	r, err := pgen.InitReader(k.Path, k.Subset)
	if err != nil {
		return nil, err
	}
	return &Local{reader: r}, nil
}

// Close releases the thread's reader, if any.
func (l *Local) Close() error {
	if l.reader == nil {
		return nil
	}
	return l.reader.Close()
}

// Scan claims and processes variants into batch until it is full or the
// range is exhausted. done reports exhaustion.
func (k *Kernel) Scan(local *Local, batch *scan.Batch[Row]) (done bool, err error) {
	for {
		start, n, ok := k.cursor.Claim(batchSize)
		if !ok {
			return true, nil
		}
		for vidx := start; vidx < start+n; vidx++ {
			row, err := k.computeRow(local, vidx)
			if err != nil {
				return false, err
			}
			if batch.Add(row) {
				return false, nil
			}
		}
	}
}

func (k *Kernel) computeRow(local *Local, vidx int) (Row, error) {
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
	if !k.Opts.NeedGenotypes {
		return row, nil
	}
	counts, err := local.reader.GetCounts(vidx)
	if err != nil {
		return Row{}, err
	}
	homRef, het, homAlt, missing := counts[0], counts[1], counts[2], counts[3]
	obsSampleCt := homRef + het + homAlt
	row.ObsCt = 2 * obsSampleCt
	if obsSampleCt > 0 {
		f := (float64(het) + 2*float64(homAlt)) / (2 * float64(obsSampleCt))
		row.AltFreq = &f
	}
	if k.Opts.Counts {
		row.HomRefCt, row.HetCt, row.HomAltCt, row.MissingCt = &homRef, &het, &homAlt, &missing
	}
	return row, nil
}
