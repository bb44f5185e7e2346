// Package fixture builds the spec.md §8 Test Fixture A dataset (4 variants
// x 4 samples) on disk for kernel package tests, the way the teacher's
// markduplicates/testutils.go assembles small on-disk BAM fixtures shared
// across its package tests rather than duplicating setup per test file.
package fixture

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/require"
)

// Matrix is spec.md §8's genotype matrix (rows = variants, cols = S1..S4).
// pgen.Missing (3) marks a missing call.
var Matrix = [][]uint8{
	{0, 1, 2, 3},
	{1, 1, 0, 2},
	{2, 3, 1, 0},
	{0, 0, 1, 2},
}

type Variant struct {
	Chrom, ID, Ref, Alt string
	Pos                 int
}

var Variants = []Variant{
	{Chrom: "chr1", ID: "v1", Ref: "A", Alt: "G", Pos: 100},
	{Chrom: "chr1", ID: "v2", Ref: "C", Alt: "T", Pos: 200},
	{Chrom: "chr1", ID: "v3", Ref: "G", Alt: "A", Pos: 300},
	{Chrom: "chr1", ID: "v4", Ref: "T", Alt: "C", Pos: 400},
}

var SampleIIDs = []string{"S1", "S2", "S3", "S4"}

// Paths bundles the three file paths InitLocal/Load/Bind need.
type Paths struct {
	Pgen, Pvar, Psam string
}

// Build writes the PGEN/PVAR/PSAM trio for Test Fixture A into a fresh temp
// dir and returns their paths.
func Build(t *testing.T) Paths {
	t.Helper()
	dir, cleanup := testutil.TempDir(t, "", "pgencore-fixture")
	t.Cleanup(cleanup)

	pgenPath := filepath.Join(dir, "fixture.pgc1")
	writePgen(t, pgenPath, Matrix, len(SampleIIDs))

	pvarPath := filepath.Join(dir, "fixture.pvar")
	writePvar(t, pvarPath)

	psamPath := filepath.Join(dir, "fixture.psam")
	writePsam(t, psamPath)

	return Paths{Pgen: pgenPath, Pvar: pvarPath, Psam: psamPath}
}

func writePvar(t *testing.T, path string) {
	t.Helper()
	s := "#CHROM\tPOS\tID\tREF\tALT\n"
	for _, v := range Variants {
		s += v.Chrom + "\t" + itoa(v.Pos) + "\t" + v.ID + "\t" + v.Ref + "\t" + v.Alt + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(s), 0o644))
}

func writePsam(t *testing.T, path string) {
	t.Helper()
	s := "#IID\n"
	for _, iid := range SampleIIDs {
		s += iid + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(s), 0o644))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func packPlain(calls []uint8) []byte {
	n := len(calls)
	out := make([]byte, (n+3)/4)
	for i, c := range calls {
		out[i/4] |= (c & 3) << uint((i%4)*2)
	}
	return out
}

func writePgen(t *testing.T, path string, matrix [][]uint8, sampleCt int) {
	t.Helper()
	var body []byte
	offsets := []uint64{0}
	for _, calls := range matrix {
		rec := append([]byte{0x00}, packPlain(calls)...)
		body = append(body, rec...)
		offsets = append(offsets, uint64(len(body)))
	}

	var out []byte
	out = append(out, 'p', 'g', 'c', '1')
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(matrix)))
	out = append(out, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], uint32(sampleCt))
	out = append(out, tmp4[:]...)
	headerAndTable := len(out) + 8*len(offsets)
	for _, off := range offsets {
		var tmp8 [8]byte
		binary.LittleEndian.PutUint64(tmp8[:], off+uint64(headerAndTable))
		out = append(out, tmp8[:]...)
	}
	out = append(out, body...)
	require.NoError(t, os.WriteFile(path, out, 0o644))
}
