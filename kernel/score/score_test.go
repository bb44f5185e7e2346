package score_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/internal/fixture"
	"github.com/plinkql/pgencore/kernel/score"
	"github.com/plinkql/pgencore/samplemeta"
	"github.com/plinkql/pgencore/scan"
	"github.com/plinkql/pgencore/variantmeta"
)

func TestScoreFixtureAPositionalMeanImputation(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)
	meta, err := samplemeta.Load(paths.Psam)
	require.NoError(t, err)

	rng := scan.Range{Start: 0, End: 4}
	scored, err := score.ResolveScoredVariants(score.Positional{0.5, -0.3, 1.2, 0.8}, varIndex, rng)
	require.NoError(t, err)
	require.Len(t, scored, 4)

	mode, err := score.ResolveMode(false, false)
	require.NoError(t, err)

	k, err := score.Bind(paths.Pgen, meta, nil, scored, mode, 4)
	require.NoError(t, err)
	require.Equal(t, 1, k.MaxThreads())

	local, err := k.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[score.Row](10)
	done, err := k.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 4)

	byIID := make(map[string]score.Row, 4)
	for _, r := range batch.Rows {
		byIID[r.IID] = r
	}
	require.InDelta(t, 2.1, byIID["S1"].ScoreSum, 1e-9)
	require.InDelta(t, 1.4, byIID["S2"].ScoreSum, 1e-9)
	require.InDelta(t, 3.0, byIID["S3"].ScoreSum, 1e-9)
	require.InDelta(t, 1.5, byIID["S4"].ScoreSum, 1e-9)
	for _, r := range batch.Rows {
		require.Equal(t, uint32(8), r.AlleleCt)
		require.InDelta(t, r.ScoreSum/8, r.ScoreAvg, 1e-9)
	}
}

func TestScoreReorderingInvariantUnderNoMeanImputation(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)
	meta, err := samplemeta.Load(paths.Psam)
	require.NoError(t, err)

	rng := scan.Range{Start: 0, End: 4}
	scored, err := score.ResolveScoredVariants(score.Positional{0.5, -0.3, 1.2, 0.8}, varIndex, rng)
	require.NoError(t, err)

	mode, err := score.ResolveMode(false, true)
	require.NoError(t, err)

	k1, err := score.Bind(paths.Pgen, meta, nil, scored, mode, 4)
	require.NoError(t, err)
	l1, err := k1.InitLocal()
	require.NoError(t, err)
	defer l1.Close()
	b1 := scan.NewBatch[score.Row](10)
	_, err = k1.Scan(l1, b1)
	require.NoError(t, err)

	reversed := make([]score.ScoredVariant, len(scored))
	for i, sv := range scored {
		reversed[len(scored)-1-i] = sv
	}
	k2, err := score.Bind(paths.Pgen, meta, nil, reversed, mode, 4)
	require.NoError(t, err)
	l2, err := k2.InitLocal()
	require.NoError(t, err)
	defer l2.Close()
	b2 := scan.NewBatch[score.Row](10)
	_, err = k2.Scan(l2, b2)
	require.NoError(t, err)

	sum1 := make(map[string]float64)
	for _, r := range b1.Rows {
		sum1[r.IID] = r.ScoreSum
	}
	for _, r := range b2.Rows {
		require.InDelta(t, sum1[r.IID], r.ScoreSum, 1e-9)
	}
}

func TestResolveModeRejectsCenterAndNoMeanImputation(t *testing.T) {
	_, err := score.ResolveMode(true, true)
	require.Error(t, err)
}

func TestResolveScoredVariantsWrongLength(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	_, err = score.ResolveScoredVariants(score.Positional{1.0}, varIndex, scan.Range{Start: 0, End: 4})
	require.Error(t, err)
}

func TestResolveScoredVariantsIDKeyedFlipDetection(t *testing.T) {
	paths := fixture.Build(t)
	varIndex, err := variantmeta.Load(paths.Pvar)
	require.NoError(t, err)

	scored, err := score.ResolveScoredVariants(score.IDKeyed{
		{ID: "v1", Allele: "A", Weight: 1.0}, // matches REF -> flip
		{ID: "v2", Allele: "T", Weight: 1.0}, // matches ALT -> no flip
		{ID: "v3", Allele: "Z", Weight: 1.0}, // mismatch -> dropped
	}, varIndex, scan.Range{Start: 0, End: 4})
	require.NoError(t, err)
	require.Len(t, scored, 2)
	require.True(t, scored[0].Flip)
	require.False(t, scored[1].Flip)
}
