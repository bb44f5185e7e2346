package ld_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/internal/fixture"
	"github.com/plinkql/pgencore/kernel/ld"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/variantmeta"
)

func TestStatsFixtureA(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	p, err := ld.BindPairwise(paths.Pgen, varIndex, nil, "v1", "v2")
	require.NoError(t, err)
	require.Equal(t, 1, p.MaxThreads())

	local, err := p.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[ld.Row](10)
	done, err := p.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 1)

	row := batch.Rows[0]
	require.NotNil(t, row.R2)
	require.InDelta(t, 0.75, *row.R2, 1e-9)
	require.NotNil(t, row.DPrime)
	require.InDelta(t, 0.5, *row.DPrime, 1e-9)
	require.Equal(t, 3, row.ObsCt)

	done, err = p.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 1, "second scan call must not re-emit")
}

func TestPairwiseUnknownVariant(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	_, err = ld.BindPairwise(paths.Pgen, varIndex, nil, "v1", "nonexistent")
	require.Error(t, err)
}

func TestSelfLDIsOne(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	p, err := ld.BindPairwise(paths.Pgen, varIndex, nil, "v2", "v2")
	require.NoError(t, err)
	local, err := p.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[ld.Row](10)
	_, err = p.Scan(local, batch)
	require.NoError(t, err)
	require.NotNil(t, batch.Rows[0].R2)
	require.InDelta(t, 1.0, *batch.Rows[0].R2, 1e-9)
}

func TestWindowedFixtureA(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	w := ld.BindWindowed(paths.Pgen, varIndex, nil, scan.Range{Start: 0, End: 4}, 1000, 0.0, false)
	local, err := w.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	var allRows []ld.Row
	for {
		batch := scan.NewBatch[ld.Row](2)
		done, err := w.Scan(local, batch)
		require.NoError(t, err)
		allRows = append(allRows, batch.Rows...)
		if done {
			break
		}
	}
	require.NotEmpty(t, allRows)
	for _, row := range allRows {
		require.NotNil(t, row.R2)
		require.GreaterOrEqual(t, *row.R2, 0.0)
	}
}

func TestWindowedZeroWindowEmitsNothingSameChrom(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	w := ld.BindWindowed(paths.Pgen, varIndex, nil, scan.Range{Start: 0, End: 4}, 0, 0.0, false)
	local, err := w.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[ld.Row](10)
	done, err := w.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Empty(t, batch.Rows)
}
