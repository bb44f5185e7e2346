// Package region implements the pure-syntax half of spec.md §4.2's
// parse_region: parsing "chrom:start-end" without requiring a loaded
// variantmeta.Index. cmd/pgenquery's --region flag uses this directly to
// validate region syntax before any sidecar is opened; variantmeta.Index.
// ParseRegion uses the same parser before resolving against its chrom
// blocks.
package region

import "github.com/plinkql/pgencore/variantmeta"

// Spec is a parsed, not-yet-resolved "chrom:start-end" region.
type Spec struct {
	Chrom      string
	Start, End int64
}

// Parse parses s and fails with pgenerr.Invalid on malformed syntax.
func Parse(s string) (Spec, error) {
	chrom, start, end, err := variantmeta.ParseRegionSyntax(s)
	if err != nil {
		return Spec{}, err
	}
	return Spec{Chrom: chrom, Start: start, End: end}, nil
}
