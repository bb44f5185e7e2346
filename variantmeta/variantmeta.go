// Package variantmeta loads and indexes a PVAR or BIM variant sidecar
// (spec.md §4.2, §6). Construction is a single linear scan, eager enough to
// build a per-line byte-offset table (grounded on the teacher's
// encoding/fasta/index.go single-pass fai-style scan); field extraction
// then re-splits the backing line on demand, the same lazy, zero-copy
// style encoding/fasta/fasta_indexed.go applies to random-access FASTA
// lookups, since an index this style is immutable and safe to share by
// reference across every scan worker (spec.md §3 "Lifecycle", §5).
package variantmeta

import (
	"bytes"
	"os"
	"strconv"
	"strings"

	farm "github.com/dgryski/go-farm"

	"github.com/plinkql/pgencore/pgenerr"
)

// Field identifies a logical variant column.
type Field int

const (
	FieldChrom Field = iota
	FieldPos
	FieldID
	FieldRef
	FieldAlt
	FieldCM
)

// Format is the detected sidecar format.
type Format int

const (
	FormatPVAR Format = iota
	FormatBIM
)

// VariantRange is a half-open interval [Start, End) over [0, variant_ct).
type VariantRange struct {
	Start, End int
}

// Empty reports whether the range contains no variants.
func (r VariantRange) Empty() bool { return r.End <= r.Start }

// Len returns the number of variants in the range.
func (r VariantRange) Len() int {
	if r.Empty() {
		return 0
	}
	return r.End - r.Start
}

// chromBlock records the [start,end) line range covered by one contiguous
// chromosome block, along with a farmhash fingerprint of its name so
// ParseRegion can skip straight to the right block without re-comparing
// strings for every preceding line (the sidecar invariant in spec.md §3
// guarantees chrom blocks are contiguous and pos-sorted within a block).
type chromBlock struct {
	fp         uint64
	name       string
	start, end int // line indices, not byte offsets
}

// Index is an immutable, thread-safe view over a variant sidecar.
type Index struct {
	format  Format
	data    []byte
	lines   [][]byte // one slice per data record, already trimmed of EOL
	columns map[Field]int
	nCols   int
	blocks  []chromBlock
}

var pvarHeaderNames = map[string]Field{
	"CHROM": FieldChrom,
	"POS":   FieldPos,
	"ID":    FieldID,
	"REF":   FieldRef,
	"ALT":   FieldAlt,
	"CM":    FieldCM,
}

// bimColumns is BIM's fixed physical order {CHROM, ID, CM, POS, ALT, REF}
// mapped onto the logical order required by every consumer.
var bimColumns = map[Field]int{
	FieldChrom: 0,
	FieldID:    1,
	FieldCM:    2,
	FieldPos:   3,
	FieldAlt:   4,
	FieldRef:   5,
}

// Load reads path into memory and builds the line index. Format is detected
// from the first non-"##" line: a "#CHROM" prefix means PVAR (tab-delimited,
// dynamic columns); anything else means BIM (whitespace-delimited, fixed six
// columns in BIM order).
func Load(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, pgenerr.E(pgenerr.IO, err, "variantmeta: open", path)
	}
	if len(data) == 0 {
		return nil, pgenerr.E(pgenerr.Invalid, "variantmeta: empty sidecar", path)
	}

	idx := &Index{}
	rawLines := splitLines(data)

	headerLineIdx := -1
	for i, ln := range rawLines {
		if len(ln) == 0 {
			continue
		}
		if bytes.HasPrefix(ln, []byte("##")) {
			continue
		}
		headerLineIdx = i
		break
	}
	if headerLineIdx < 0 {
		return nil, pgenerr.E(pgenerr.Invalid, "variantmeta: no header or data", path)
	}

	if bytes.HasPrefix(rawLines[headerLineIdx], []byte("#CHROM")) {
		idx.format = FormatPVAR
		header := rawLines[headerLineIdx]
		cols := bytes.Split(header, []byte{'\t'})
		idx.columns = make(map[Field]int, len(cols))
		for i, c := range cols {
			name := strings.TrimPrefix(string(bytes.TrimSpace(c)), "#")
			name = strings.ToUpper(name)
			if f, ok := pvarHeaderNames[name]; ok {
				idx.columns[f] = i
			}
		}
		idx.nCols = len(cols)
		idx.data = data
		idx.lines = rawLines[headerLineIdx+1:]
	} else {
		idx.format = FormatBIM
		idx.columns = bimColumns
		idx.nCols = 6
		idx.data = data
		idx.lines = rawLines[headerLineIdx:]
	}

	// Drop trailing blank lines (trailing newline produces one).
	for len(idx.lines) > 0 && len(bytes.TrimSpace(idx.lines[len(idx.lines)-1])) == 0 {
		idx.lines = idx.lines[:len(idx.lines)-1]
	}
	if len(idx.lines) == 0 {
		return nil, pgenerr.E(pgenerr.Invalid, "variantmeta: no data rows", path)
	}

	for _, required := range []Field{FieldChrom, FieldPos, FieldID, FieldRef, FieldAlt} {
		if _, ok := idx.columns[required]; !ok {
			return nil, pgenerr.E(pgenerr.Invalid, "variantmeta: missing required column", path)
		}
	}

	idx.buildChromBlocks()
	return idx, nil
}

func splitLines(data []byte) [][]byte {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	raw := bytes.Split(data, []byte("\n"))
	return raw
}

func (idx *Index) splitLine(vidx int) [][]byte {
	line := idx.lines[vidx]
	if idx.format == FormatPVAR {
		return bytes.Split(line, []byte{'\t'})
	}
	return bytes.Fields(line)
}

// NumVariants returns the number of indexed variant records.
func (idx *Index) NumVariants() int { return len(idx.lines) }

// Get extracts field from variant vidx. The second return value is false
// when the field's file encoding is "." (missing).
func (idx *Index) Get(vidx int, field Field) (string, bool) {
	col, ok := idx.columns[field]
	if !ok {
		return "", false
	}
	toks := idx.splitLine(vidx)
	if col >= len(toks) {
		return "", false
	}
	v := string(bytes.TrimSpace(toks[col]))
	if v == "." || v == "" {
		return "", false
	}
	return v, true
}

// Chrom, Pos, ID, Ref, Alt, CM are typed convenience accessors over Get.
func (idx *Index) Chrom(vidx int) string {
	v, _ := idx.Get(vidx, FieldChrom)
	return v
}

func (idx *Index) Pos(vidx int) int32 {
	v, ok := idx.Get(vidx, FieldPos)
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 32)
	return int32(n)
}

func (idx *Index) ID(vidx int) (string, bool) { return idx.Get(vidx, FieldID) }

// Ref returns the REF allele token, case-folded to upper case so a
// lowercase-masked sidecar (some PVAR/BIM writers soft-mask reference bases)
// compares equal, byte-for-byte, to an upper-case weights-file allele (K5's
// id-keyed flip detection compares Ref/Alt directly; spec.md §9 "multi-allelic
// ALT comma-string handling" still applies unchanged to the raw token).
func (idx *Index) Ref(vidx int) string { v, _ := idx.Get(vidx, FieldRef); return cleanAllele(v) }

// Alt returns the ALT allele token, case-folded the same way Ref is.
func (idx *Index) Alt(vidx int) (string, bool) {
	v, ok := idx.Get(vidx, FieldAlt)
	if !ok {
		return v, ok
	}
	return cleanAllele(v), true
}

// cleanAllele upper-cases the ASCII letters of a sidecar allele token.
// Unlike a FASTA-sequence cleaner, this must not replace unrecognized bytes
// with a sentinel: ALT fields legitimately carry digits, commas
// (multi-allelic lists), and angle brackets (symbolic structural-variant
// alleles), none of which this is allowed to corrupt.
func cleanAllele(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'z' {
			b[i] = c - ('a' - 'A')
		}
	}
	return string(b)
}

// buildChromBlocks scans once, recording each contiguous chromosome block's
// [start,end) line range and a farmhash fingerprint of its name, so
// ParseRegion can binary-search-free skip past non-matching blocks in a
// single additional linear pass (spec.md §4.2's "exits early once the chrom
// block is passed", generalized so repeated ParseRegion calls don't re-walk
// from byte 0 every time).
func (idx *Index) buildChromBlocks() {
	n := len(idx.lines)
	idx.blocks = nil
	if n == 0 {
		return
	}
	cur := idx.Chrom(0)
	start := 0
	for i := 1; i <= n; i++ {
		var c string
		if i < n {
			c = idx.Chrom(i)
		}
		if i == n || c != cur {
			idx.blocks = append(idx.blocks, chromBlock{
				fp: farm.Fingerprint64([]byte(cur)), name: cur, start: start, end: i,
			})
			if i < n {
				cur = c
				start = i
			}
		}
	}
}

// ParseRegion parses "chrom:start-end" (1-based, inclusive) and scans the
// index for the first and last vidx with a matching chrom and
// pos in [start, end], exiting early once the chrom block is passed.
// Returns an empty range if no match. Fails with Invalid on malformed
// syntax (missing colon or dash, non-numeric bounds, negative bounds).
func (idx *Index) ParseRegion(s string) (VariantRange, error) {
	chrom, start, end, err := ParseRegionSyntax(s)
	if err != nil {
		return VariantRange{}, err
	}
	fp := farm.Fingerprint64([]byte(chrom))
	for _, blk := range idx.blocks {
		if blk.fp != fp || blk.name != chrom {
			continue
		}
		first, last := -1, -1
		for i := blk.start; i < blk.end; i++ {
			p := idx.Pos(i)
			if int64(p) >= start && int64(p) <= end {
				if first < 0 {
					first = i
				}
				last = i
			} else if int64(p) > end {
				break // pos is non-decreasing within a block (spec.md §3)
			}
		}
		if first < 0 {
			return VariantRange{}, nil
		}
		return VariantRange{Start: first, End: last + 1}, nil
	}
	return VariantRange{}, nil
}

// ParseRegionSyntax parses just the "chrom:start-end" syntax, without
// consulting any loaded index. region.Parse (used by cmd/pgenquery to
// validate --region before any sidecar is opened) and Index.ParseRegion
// both call it.
func ParseRegionSyntax(s string) (chrom string, start, end int64, err error) {
	colon := strings.LastIndexByte(s, ':')
	if colon < 0 {
		return "", 0, 0, pgenerr.E(pgenerr.Invalid, "region: missing ':'", s)
	}
	chrom = s[:colon]
	rest := s[colon+1:]
	dash := strings.IndexByte(rest, '-')
	if dash < 0 {
		return "", 0, 0, pgenerr.E(pgenerr.Invalid, "region: missing '-'", s)
	}
	startStr, endStr := rest[:dash], rest[dash+1:]
	start, e1 := strconv.ParseInt(startStr, 10, 64)
	end, e2 := strconv.ParseInt(endStr, 10, 64)
	if e1 != nil || e2 != nil {
		return "", 0, 0, pgenerr.E(pgenerr.Invalid, "region: non-numeric bound", s)
	}
	if start < 0 || end < 0 {
		return "", 0, 0, pgenerr.E(pgenerr.Invalid, "region: negative bound", s)
	}
	if chrom == "" {
		return "", 0, 0, pgenerr.E(pgenerr.Invalid, "region: empty chrom", s)
	}
	return chrom, start, end, nil
}
