package variantmeta_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/variantmeta"
)

func writeTempPVAR(t *testing.T, lines string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.pvar")
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))
	return path
}

func TestLoadBasicFields(t *testing.T) {
	path := writeTempPVAR(t, "#CHROM\tPOS\tID\tREF\tALT\n"+
		"chr1\t100\tv1\tA\tG\n"+
		"chr1\t200\tv2\tC\tT\n")
	idx, err := variantmeta.Load(path)
	require.NoError(t, err)
	require.Equal(t, 2, idx.NumVariants())
	require.Equal(t, "chr1", idx.Chrom(0))
	require.Equal(t, int32(100), idx.Pos(0))
	id, ok := idx.ID(0)
	require.True(t, ok)
	require.Equal(t, "v1", id)
	require.Equal(t, "A", idx.Ref(0))
	alt, ok := idx.Alt(0)
	require.True(t, ok)
	require.Equal(t, "G", alt)
}

// Ref/Alt upper-case their token so a soft-masked sidecar (some PVAR/BIM
// writers emit lowercase bases) still compares equal, byte-for-byte, to an
// upper-case weights-file allele in K5's id-keyed flip detection.
func TestRefAltUpperCasesSoftMaskedAlleles(t *testing.T) {
	path := writeTempPVAR(t, "#CHROM\tPOS\tID\tREF\tALT\n"+
		"chr1\t100\tv1\ta\tg\n")
	idx, err := variantmeta.Load(path)
	require.NoError(t, err)
	require.Equal(t, "A", idx.Ref(0))
	alt, ok := idx.Alt(0)
	require.True(t, ok)
	require.Equal(t, "G", alt)
}

// Multi-allelic and symbolic ALT tokens carry commas, digits, and angle
// brackets that must survive untouched; only ASCII letters are case-folded.
func TestRefAltPreservesNonLetterBytes(t *testing.T) {
	path := writeTempPVAR(t, "#CHROM\tPOS\tID\tREF\tALT\n"+
		"chr1\t100\tv1\tA\tG,t\n"+
		"chr1\t200\tv2\tA\t<del>\n")
	idx, err := variantmeta.Load(path)
	require.NoError(t, err)
	alt0, ok := idx.Alt(0)
	require.True(t, ok)
	require.Equal(t, "G,T", alt0)
	alt1, ok := idx.Alt(1)
	require.True(t, ok)
	require.Equal(t, "<DEL>", alt1)
}

func TestParseRegionSyntaxRejectsMalformed(t *testing.T) {
	_, _, _, err := variantmeta.ParseRegionSyntax("chr1-100-200")
	require.Error(t, err)
	_, _, _, err = variantmeta.ParseRegionSyntax("chr1:abc-200")
	require.Error(t, err)
}
