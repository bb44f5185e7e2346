// Package samplemeta loads a PSAM or FAM sample sidecar (spec.md §4.3, §6).
// Sample sidecars are small, so unlike variantmeta's lazy line index this
// table is always eagerly parsed in one pass, the same way the teacher's
// encoding/fasta/index.go eagerly scans a whole .fai rather than indexing
// it lazily.
package samplemeta

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	"github.com/plinkql/pgencore/pgenerr"
)

// Format is the detected sample-sidecar format.
type Format int

const (
	FormatPSAMWithFID Format = iota
	FormatPSAMNoFID
	FormatFAM
)

// Sample is one parsed sample record (spec.md §3).
type Sample struct {
	FID   *string
	IID   string
	Pat   *string
	Mat   *string
	Sex   *int32
	Pheno []string
}

// Table is an immutable, fully-parsed sample sidecar.
type Table struct {
	Format   Format
	Samples  []Sample
	IIDIndex map[string]int
}

func missingToken(s string) bool {
	switch s {
	case "", ".", "NA":
		return true
	default:
		return false
	}
}

// Load parses path eagerly. Format is detected from the first line:
// "#FID" => PSAM-with-FID, "#IID" => PSAM-without-FID, otherwise FAM
// (whitespace-delimited, fixed six columns {fid, iid, pat, mat, sex,
// pheno1}).
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pgenerr.E(pgenerr.IO, err, "samplemeta: open", path)
	}
	if len(data) == 0 {
		return nil, pgenerr.E(pgenerr.Invalid, "samplemeta: empty sidecar", path)
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	rawLines := bytes.Split(data, []byte("\n"))
	for len(rawLines) > 0 && len(bytes.TrimSpace(rawLines[len(rawLines)-1])) == 0 {
		rawLines = rawLines[:len(rawLines)-1]
	}
	if len(rawLines) == 0 {
		return nil, pgenerr.E(pgenerr.Invalid, "samplemeta: no data rows", path)
	}

	t := &Table{IIDIndex: make(map[string]int)}

	first := rawLines[0]
	var fidCol, iidCol, patCol, matCol, sexCol int
	var phenoCols []int
	dataLines := rawLines

	switch {
	case bytes.HasPrefix(first, []byte("#FID")):
		t.Format = FormatPSAMWithFID
		cols := bytes.Split(first, []byte{'\t'})
		colIdx := map[string]int{}
		for i, c := range cols {
			name := strings.ToUpper(strings.TrimPrefix(string(bytes.TrimSpace(c)), "#"))
			colIdx[name] = i
		}
		fidCol, _ = colIdx["FID"]
		var ok bool
		if iidCol, ok = colIdx["IID"]; !ok {
			return nil, pgenerr.E(pgenerr.Invalid, "samplemeta: no IID column", path)
		}
		patCol = colIdx["PAT"]
		matCol = colIdx["MAT"]
		sexCol = colIdx["SEX"]
		phenoCols = remainingPhenoCols(colIdx, len(cols), map[string]bool{
			"FID": true, "IID": true, "PAT": true, "MAT": true, "SEX": true,
		})
		dataLines = rawLines[1:]
	case bytes.HasPrefix(first, []byte("#IID")):
		t.Format = FormatPSAMNoFID
		cols := bytes.Split(first, []byte{'\t'})
		colIdx := map[string]int{}
		for i, c := range cols {
			name := strings.ToUpper(strings.TrimPrefix(string(bytes.TrimSpace(c)), "#"))
			colIdx[name] = i
		}
		fidCol = -1
		var ok bool
		if iidCol, ok = colIdx["IID"]; !ok {
			return nil, pgenerr.E(pgenerr.Invalid, "samplemeta: no IID column", path)
		}
		patCol = colIdx["PAT"]
		matCol = colIdx["MAT"]
		sexCol = colIdx["SEX"]
		phenoCols = remainingPhenoCols(colIdx, len(cols), map[string]bool{
			"IID": true, "PAT": true, "MAT": true, "SEX": true,
		})
		dataLines = rawLines[1:]
	default:
		t.Format = FormatFAM
		fidCol, iidCol, patCol, matCol, sexCol = 0, 1, 2, 3, 4
		phenoCols = []int{5}
		dataLines = rawLines
	}

	for _, ln := range dataLines {
		if len(bytes.TrimSpace(ln)) == 0 {
			continue
		}
		var toks [][]byte
		if t.Format == FormatFAM {
			toks = bytes.Fields(ln)
		} else {
			toks = bytes.Split(ln, []byte{'\t'})
		}
		minCols := iidCol + 1
		if len(toks) < minCols {
			return nil, pgenerr.E(pgenerr.Invalid, "samplemeta: row has too few fields", path)
		}
		s := Sample{IID: string(bytes.TrimSpace(toks[iidCol]))}
		if fidCol >= 0 && fidCol < len(toks) {
			if v := string(bytes.TrimSpace(toks[fidCol])); !missingToken(v) {
				vv := v
				s.FID = &vv
			}
		}
		if patCol < len(toks) {
			if v := string(bytes.TrimSpace(toks[patCol])); !missingToken(v) && v != "0" {
				vv := v
				s.Pat = &vv
			}
		}
		if matCol < len(toks) {
			if v := string(bytes.TrimSpace(toks[matCol])); !missingToken(v) && v != "0" {
				vv := v
				s.Mat = &vv
			}
		}
		if sexCol < len(toks) {
			v := string(bytes.TrimSpace(toks[sexCol]))
			if !missingToken(v) && v != "0" {
				if n, err := strconv.ParseInt(v, 10, 32); err == nil {
					nn := int32(n)
					s.Sex = &nn
				}
			}
		}
		for _, pc := range phenoCols {
			if pc >= len(toks) {
				s.Pheno = append(s.Pheno, "")
				continue
			}
			v := string(bytes.TrimSpace(toks[pc]))
			// FAM's PHENO1 preserves "-9" verbatim: PLINK's missing-phenotype
			// sentinel is not normalized (spec.md §6).
			if t.Format == FormatFAM && v == "-9" {
				s.Pheno = append(s.Pheno, v)
				continue
			}
			if missingToken(v) {
				s.Pheno = append(s.Pheno, "")
			} else {
				s.Pheno = append(s.Pheno, v)
			}
		}
		if _, dup := t.IIDIndex[s.IID]; !dup {
			t.IIDIndex[s.IID] = len(t.Samples)
		}
		t.Samples = append(t.Samples, s)
	}
	return t, nil
}

func remainingPhenoCols(colIdx map[string]int, nCols int, taken map[string]bool) []int {
	used := make(map[int]bool, len(colIdx))
	for name, i := range colIdx {
		if taken[name] {
			used[i] = true
		}
	}
	var out []int
	for i := 0; i < nCols; i++ {
		if !used[i] {
			out = append(out, i)
		}
	}
	return out
}

// SampleCount returns the number of parsed samples (== raw_sample_ct when
// the sidecar matches the decoder, spec.md §3 invariant).
func (t *Table) SampleCount() int { return len(t.Samples) }

// IndexOf returns the sample index for iid, or (-1, false) if unknown.
func (t *Table) IndexOf(iid string) (int, bool) {
	i, ok := t.IIDIndex[iid]
	if !ok {
		return -1, false
	}
	return i, true
}

// AllIIDs returns every sample IID in file order, for fuzzy "did you mean"
// suggestions when a requested IID is not found (subset.ResolveIndices).
func (t *Table) AllIIDs() []string {
	out := make([]string, len(t.Samples))
	for i, s := range t.Samples {
		out[i] = s.IID
	}
	return out
}
