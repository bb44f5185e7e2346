package pgen_test

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/pgen"
	"github.com/plinkql/pgencore/subset"
)

// fileBuilder assembles a synthetic .pgc1 file for decode tests. There is
// no public Writer (spec.md's Non-goals exclude a write path); this is
// test-only plumbing to drive the reader against known-good genotype
// matrices, mirroring how the teacher's bgzf tests hand-build block headers
// rather than depend on an external encoder.
type fileBuilder struct {
	sampleCt int
	records  [][]byte // each a fully-formed tag+payload record
}

func newFileBuilder(sampleCt int) *fileBuilder {
	return &fileBuilder{sampleCt: sampleCt}
}

func packPlain(calls []uint8) []byte {
	n := len(calls)
	out := make([]byte, (n+3)/4)
	for i, c := range calls {
		out[i/4] |= (c & 3) << uint((i%4)*2)
	}
	return out
}

func (fb *fileBuilder) addPlain(calls []uint8) {
	payload := append([]byte{0x00}, packPlain(calls)...)
	fb.records = append(fb.records, payload)
}

func (fb *fileBuilder) addDosage(calls []uint8, dosage map[int]float32) {
	genovec := packPlain(calls)
	bitmaskLen := (fb.sampleCt + 7) / 8
	mask := make([]byte, bitmaskLen)
	var idxs []int
	for i := 0; i < fb.sampleCt; i++ {
		if _, ok := dosage[i]; ok {
			mask[i/8] |= 1 << uint(i%8)
			idxs = append(idxs, i)
		}
	}
	values := make([]byte, 4*len(idxs))
	for j, i := range idxs {
		binary.LittleEndian.PutUint32(values[4*j:4*j+4], math.Float32bits(dosage[i]))
	}
	payload := []byte{0x01}
	payload = append(payload, genovec...)
	payload = append(payload, mask...)
	payload = append(payload, values...)
	fb.records = append(fb.records, payload)
}

func (fb *fileBuilder) write(t *testing.T, path string) {
	t.Helper()
	var body []byte
	offsets := []uint64{0}
	for _, rec := range fb.records {
		body = append(body, rec...)
		offsets = append(offsets, uint64(len(body)))
	}

	var out []byte
	out = append(out, 'p', 'g', 'c', '1')
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(fb.records)))
	out = append(out, tmp4[:]...)
	binary.LittleEndian.PutUint32(tmp4[:], uint32(fb.sampleCt))
	out = append(out, tmp4[:]...)
	// Offsets are relative to the start of the record region, which begins
	// right after the offset table; translate to absolute file offsets.
	headerAndTable := len(out) + 8*len(offsets)
	for _, off := range offsets {
		var tmp8 [8]byte
		binary.LittleEndian.PutUint64(tmp8[:], off+uint64(headerAndTable))
		out = append(out, tmp8[:]...)
	}
	out = append(out, body...)

	require.NoError(t, os.WriteFile(path, out, 0o644))
}

func TestProbeAndGetGenotypes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pgc1")

	fb := newFileBuilder(4)
	fb.addPlain([]uint8{0, 1, 2, pgen.Missing})
	fb.addPlain([]uint8{2, 2, 0, 1})
	fb.write(t, path)

	h, err := pgen.Probe(path)
	require.NoError(t, err)
	defer h.Close()
	require.Equal(t, 2, h.RawVariantCt)
	require.Equal(t, 4, h.RawSampleCt)

	_, err = pgen.Populate(h)
	require.NoError(t, err)

	r, err := pgen.InitReader(path, nil)
	require.NoError(t, err)
	defer r.Close()

	geno, err := r.GetGenotypes(0)
	require.NoError(t, err)
	require.Equal(t, []uint8{0, 1, 2, pgen.Missing}, geno)

	geno, err = r.GetGenotypes(1)
	require.NoError(t, err)
	require.Equal(t, []uint8{2, 2, 0, 1}, geno)
}

func TestGetCountsFastPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pgc1")

	fb := newFileBuilder(6)
	fb.addPlain([]uint8{0, 0, 1, 1, 2, pgen.Missing})
	fb.write(t, path)

	r, err := pgen.InitReader(path, nil)
	require.NoError(t, err)
	defer r.Close()

	counts, err := r.GetCounts(0)
	require.NoError(t, err)
	require.Equal(t, [4]uint32{2, 2, 1, 1}, counts)
}

func TestGetCountsWithSubset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pgc1")

	fb := newFileBuilder(6)
	fb.addPlain([]uint8{0, 0, 1, 1, 2, pgen.Missing})
	fb.write(t, path)

	sub, err := subset.Build(6, []uint32{2, 3, 4, 5})
	require.NoError(t, err)
	defer sub.Release()

	r, err := pgen.InitReader(path, sub)
	require.NoError(t, err)
	defer r.Close()

	counts, err := r.GetCounts(0)
	require.NoError(t, err)
	require.Equal(t, [4]uint32{0, 2, 1, 1}, counts)

	geno, err := r.GetGenotypes(0)
	require.NoError(t, err)
	require.Equal(t, []uint8{1, 1, 2, pgen.Missing}, geno)
}

func TestGetMissingness(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pgc1")

	fb := newFileBuilder(5)
	fb.addPlain([]uint8{0, pgen.Missing, 1, pgen.Missing, 2})
	fb.write(t, path)

	r, err := pgen.InitReader(path, nil)
	require.NoError(t, err)
	defer r.Close()

	mask, err := r.GetMissingness(0)
	require.NoError(t, err)
	require.Equal(t, uint32(0b01010), mask[0])
}

func TestGetDosages(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pgc1")

	fb := newFileBuilder(4)
	fb.addDosage([]uint8{0, 1, 2, pgen.Missing}, map[int]float32{0: 0.1, 2: 1.8})
	fb.write(t, path)

	r, err := pgen.InitReader(path, nil)
	require.NoError(t, err)
	defer r.Close()

	geno, present, dense, presentCt, err := r.GetDosages(0)
	require.NoError(t, err)
	require.Equal(t, []uint8{0, 1, 2, pgen.Missing}, geno)
	require.Equal(t, 2, presentCt)
	require.Equal(t, uint32(0b0101), present[0])
	require.InDeltaSlice(t, []float64{0.1, 1.8}, dense, 1e-6)
}

func TestGetGenotypesOutOfRange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.pgc1")

	fb := newFileBuilder(2)
	fb.addPlain([]uint8{0, 1})
	fb.write(t, path)

	r, err := pgen.InitReader(path, nil)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.GetGenotypes(5)
	require.Error(t, err)
}
