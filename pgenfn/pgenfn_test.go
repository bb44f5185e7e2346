package pgenfn_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/plinkql/pgencore/internal/fixture"
	"github.com/plinkql/pgencore/kernel/freq"
	"github.com/plinkql/pgencore/kernel/missing"
	"github.com/plinkql/pgencore/kernel/score"
	"github.com/plinkql/pgencore/pgenfn"
	"github.com/plinkql/pgencore/scan"
)

func TestFreqFunctionFixtureA(t *testing.T) {
	paths := fixture.Build(t)

	f := pgenfn.NewFreqFunction(pgenfn.FreqOpts{
		CommonOpts: pgenfn.CommonOpts{Path: paths.Pgen, PVAR: paths.Pvar, PSAM: paths.Psam},
		Counts:     true,
	})
	require.NoError(t, f.Bind())
	require.Equal(t, 1, f.MaxThreads())

	local, err := f.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[freq.Row](10)
	done, err := f.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 4)
	require.InDelta(t, 0.5, *batch.Rows[0].AltFreq, 1e-9)
}

func TestMissingSampleFunctionFixtureA(t *testing.T) {
	paths := fixture.Build(t)

	f := pgenfn.NewMissingSampleFunction(pgenfn.MissingOpts{
		CommonOpts: pgenfn.CommonOpts{Path: paths.Pgen, PVAR: paths.Pvar, PSAM: paths.Psam},
	})
	require.NoError(t, f.Bind())
	require.Equal(t, 1, f.MaxThreads())

	local, err := f.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[missing.SampleRow](10)
	done, err := f.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 4)
}

func TestScoreFunctionFixtureA(t *testing.T) {
	paths := fixture.Build(t)

	f := pgenfn.NewScoreFunction(pgenfn.ScoreOpts{
		CommonOpts: pgenfn.CommonOpts{Path: paths.Pgen, PVAR: paths.Pvar, PSAM: paths.Psam},
		Weights:    score.Positional{0.5, -0.3, 1.2, 0.8},
	})
	require.NoError(t, f.Bind())
	require.Equal(t, 1, f.MaxThreads())

	local, err := f.InitLocal()
	require.NoError(t, err)
	defer local.Close()

	batch := scan.NewBatch[score.Row](10)
	done, err := f.Scan(local, batch)
	require.NoError(t, err)
	require.True(t, done)
	require.Len(t, batch.Rows, 4)
}

func TestFreqFunctionBindErrorsOnMissingSidecar(t *testing.T) {
	paths := fixture.Build(t)
	f := pgenfn.NewFreqFunction(pgenfn.FreqOpts{
		CommonOpts: pgenfn.CommonOpts{Path: paths.Pgen, PVAR: paths.Pgen + ".nonexistent"},
	})
	require.Error(t, f.Bind())
}
