package region_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/region"
)

func TestParseValid(t *testing.T) {
	s, err := region.Parse("chr1:100-200")
	require.NoError(t, err)
	require.Equal(t, region.Spec{Chrom: "chr1", Start: 100, End: 200}, s)
}

func TestParseMissingColon(t *testing.T) {
	_, err := region.Parse("chr1-100-200")
	require.Error(t, err)
}

func TestParseMissingDash(t *testing.T) {
	_, err := region.Parse("chr1:100200")
	require.Error(t, err)
}

func TestParseNonNumeric(t *testing.T) {
	_, err := region.Parse("chr1:a-b")
	require.Error(t, err)
}

func TestParseNegative(t *testing.T) {
	_, err := region.Parse("chr1:-5-10")
	require.Error(t, err)
}
