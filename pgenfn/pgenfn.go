// Package pgenfn realizes the function surface of spec.md §6: one Opts
// struct per SQL function (Frequency/Hardy-Weinberg/Missingness/LD/Score),
// sidecar auto-discovery, and the shared bind -> init-global -> init-local
// -> scan control flow (spec.md §2, §9 "Polymorphic-over-kernel scan
// dispatch"). Each function is its own concrete type with
// Bind/MaxThreads/InitLocal/Scan methods wrapping one kernel package; there
// is no shared Function interface and no DefaultOpts value, and callers
// pick a function by constructing its type directly.
package pgenfn

import (
	"os"
	"strings"

	"github.com/plinkql/pgencore/pgen"
	"github.com/plinkql/pgencore/pgenerr"
	"github.com/plinkql/pgencore/samplemeta"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/subset"
	"github.com/plinkql/pgencore/variantmeta"
)

// CommonOpts is embedded by every function's Opts struct (spec.md §6
// "Each SQL function accepts one positional argument... plus the named
// parameters documented below").
type CommonOpts struct {
	// Path is the positional genotype-file argument.
	Path string
	// PVAR/PSAM override sidecar auto-discovery when non-empty.
	PVAR, PSAM string
	// Samples is the dynamic `samples=` value, or nil for no subsetting.
	Samples subset.SamplesParam
	// Region is the `region=` chrom:start-end string, or "" for the full
	// range.
	Region string
}

// resolveSidecars implements spec.md §6's auto-discovery: replace the
// genotype-file extension with .pvar then .bim; for samples, .psam then
// .fam. Explicit named paths override.
func resolveSidecars(opts CommonOpts) (pvarPath, psamPath string) {
	base := strings.TrimSuffix(opts.Path, pgenExt(opts.Path))
	pvarPath = opts.PVAR
	if pvarPath == "" {
		pvarPath = base + ".pvar"
		if _, err := os.Stat(pvarPath); err != nil {
			if _, err := os.Stat(base + ".bim"); err == nil {
				pvarPath = base + ".bim"
			}
		}
	}
	psamPath = opts.PSAM
	if psamPath == "" {
		psamPath = base + ".psam"
		if _, err := os.Stat(psamPath); err != nil {
			if _, err := os.Stat(base + ".fam"); err == nil {
				psamPath = base + ".fam"
			}
		}
	}
	return pvarPath, psamPath
}

func pgenExt(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i:]
	}
	return ""
}

// bound is the shared bind-phase result every function's own Bind
// derives from: loaded metadata, resolved subset, and the variant range.
type bound struct {
	varIndex    *variantmeta.Index
	sampMeta    *samplemeta.Table
	sub         *subset.Subset
	rng         scan.Range
	rawSampleCt int
}

// bindCommon performs spec.md §2's bind step shared by every function:
// resolve sidecars, probe the decoder header, load metadata, validate the
// sample/variant count invariants (spec.md §3), build the subset
// descriptor, and parse the region filter.
func bindCommon(opts CommonOpts, requireSampleMeta bool) (*bound, error) {
	pvarPath, psamPath := resolveSidecars(opts)

	h, err := pgen.Probe(opts.Path)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	varIndex, err := variantmeta.Load(pvarPath)
	if err != nil {
		return nil, err
	}
	if varIndex.NumVariants() != h.RawVariantCt {
		return nil, pgenerr.E(pgenerr.Invalid, "pgenfn: variant sidecar count mismatch",
			varIndex.NumVariants(), h.RawVariantCt)
	}

	var sampMeta *samplemeta.Table
	if requireSampleMeta || opts.Samples != nil {
		sampMeta, err = samplemeta.Load(psamPath)
		if err != nil {
			return nil, err
		}
		if sampMeta.SampleCount() != h.RawSampleCt {
			return nil, pgenerr.E(pgenerr.Invalid, "pgenfn: sample sidecar count mismatch",
				sampMeta.SampleCount(), h.RawSampleCt)
		}
	}

	var sub *subset.Subset
	if opts.Samples != nil {
		indices, err := subset.ResolveIndices(opts.Samples, h.RawSampleCt, sampleLookup{sampMeta})
		if err != nil {
			return nil, err
		}
		sub, err = subset.Build(h.RawSampleCt, indices)
		if err != nil {
			return nil, err
		}
	}

	rng := scan.Range{Start: 0, End: h.RawVariantCt}
	if opts.Region != "" {
		rng, err = varIndex.ParseRegion(opts.Region)
		if err != nil {
			return nil, err
		}
	}

	return &bound{varIndex: varIndex, sampMeta: sampMeta, sub: sub, rng: rng, rawSampleCt: h.RawSampleCt}, nil
}

// sampleLookup adapts a possibly-nil *samplemeta.Table to subset.IIDLookup,
// returning not-found rather than panicking when no sidecar was loaded.
type sampleLookup struct{ t *samplemeta.Table }

func (s sampleLookup) IndexOf(iid string) (int, bool) {
	if s.t == nil {
		return 0, false
	}
	return s.t.IndexOf(iid)
}

func (s sampleLookup) AllIIDs() []string {
	if s.t == nil {
		return nil
	}
	return s.t.AllIIDs()
}
