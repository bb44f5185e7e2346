package hwe_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/internal/fixture"
	"github.com/plinkql/pgencore/kernel/hwe"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/variantmeta"
)

func TestExactTestFixtureA(t *testing.T) {
	p, oHet, eHet := hwe.ExactTest(1, 1, 1, false)
	require.InDelta(t, 1.0, p, 1e-9)
	require.NotNil(t, oHet)
	require.NotNil(t, eHet)

	p, _, _ = hwe.ExactTest(2, 1, 1, false)
	require.InDelta(t, 0.4286, p, 1e-3)
}

func TestExactTestAllMissing(t *testing.T) {
	p, oHet, eHet := hwe.ExactTest(0, 0, 0, false)
	require.Equal(t, 1.0, p)
	require.Nil(t, oHet)
	require.Nil(t, eHet)
}

func TestExactTestDeviatesFromHWEWithMoreHetOnlySamples(t *testing.T) {
	pSmall, _, _ := hwe.ExactTest(0, 4, 0, false)
	pLarge, _, _ := hwe.ExactTest(0, 40, 0, false)
	require.Less(t, pLarge, pSmall)
}

func TestExactTestClampedToUnitInterval(t *testing.T) {
	p, _, _ := hwe.ExactTest(5, 3, 2, true)
	require.GreaterOrEqual(t, p, 0.0)
	require.LessOrEqual(t, p, 1.0)
}

func TestScanFixtureA(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	k, err := hwe.Bind(paths.Pgen, varIndex, nil, scan.Range{Start: 0, End: 4}, hwe.Opts{})
	require.NoError(t, err)
	local, err := k.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[hwe.Row](10)
	done, err := k.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 4)
	require.InDelta(t, 1.0, batch.Rows[0].PHWE, 1e-9)
	require.InDelta(t, 0.4286, batch.Rows[3].PHWE, 1e-3)
}
