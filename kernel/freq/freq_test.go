package freq_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/internal/fixture"
	"github.com/plinkql/pgencore/kernel/freq"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/variantmeta"
)

func TestFrequencyFixtureA(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)
	require.Equal(t, 4, varIndex.NumVariants())

	k, err := freq.Bind(paths.Pgen, varIndex, nil, scan.Range{Start: 0, End: 4}, freq.Opts{NeedGenotypes: true})
	require.NoError(t, err)

	local, err := k.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[freq.Row](10)
	done, err := k.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 4)

	expected := []struct {
		freq  float64
		obsCt uint32
	}{
		{0.5, 6},
		{0.5, 8},
		{0.5, 6},
		{0.375, 8},
	}
	for i, row := range batch.Rows {
		require.NotNil(t, row.AltFreq, "variant %d", i)
		require.InDelta(t, expected[i].freq, *row.AltFreq, 1e-9, "variant %d", i)
		require.Equal(t, expected[i].obsCt, row.ObsCt, "variant %d", i)
	}
}

func TestFrequencyNoGenotypesProjected(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	k, err := freq.Bind(paths.Pgen, varIndex, nil, scan.Range{Start: 0, End: 4}, freq.Opts{})
	require.NoError(t, err)

	local, err := k.InitLocal()
	require.NoError(t, err)
	require.NotNil(t, local) // local is non-nil; reader inside it is nil
	defer local.Close()

	batch := scan.NewBatch[freq.Row](10)
	done, err := k.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 4)
	for _, row := range batch.Rows {
		require.Nil(t, row.AltFreq)
		require.Equal(t, uint32(0), row.ObsCt)
	}
}

func TestFrequencyEmptyRange(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	k, err := freq.Bind(paths.Pgen, varIndex, nil, scan.Range{Start: 2, End: 2}, freq.Opts{NeedGenotypes: true})
	require.NoError(t, err)

	local, err := k.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[freq.Row](10)
	done, err := k.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Empty(t, batch.Rows)
}
