package pgenfn

import (
	"github.com/plinkql/pgencore/kernel/score"
	"github.com/plinkql/pgencore/scan"
)

// ScoreOpts is the Score function's parameter set (spec.md §6 K5).
type ScoreOpts struct {
	CommonOpts
	Weights          score.WeightsParam
	Center           bool
	NoMeanImputation bool
}

type ScoreFunction struct {
	opts   ScoreOpts
	bound  *bound
	kernel *score.Kernel
}

func NewScoreFunction(opts ScoreOpts) *ScoreFunction { return &ScoreFunction{opts: opts} }

func (f *ScoreFunction) Bind() error {
	b, err := bindCommon(f.opts.CommonOpts, true)
	if err != nil {
		return err
	}
	f.bound = b

	mode, err := score.ResolveMode(f.opts.Center, f.opts.NoMeanImputation)
	if err != nil {
		return err
	}
	scored, err := score.ResolveScoredVariants(f.opts.Weights, b.varIndex, b.rng)
	if err != nil {
		return err
	}
	k, err := score.Bind(f.opts.Path, b.sampMeta, b.sub, scored, mode, b.rawSampleCt)
	if err != nil {
		return err
	}
	f.kernel = k
	return nil
}

func (f *ScoreFunction) MaxThreads() int { return f.kernel.MaxThreads() }

type ScoreLocal struct{ inner *score.Local }

func (f *ScoreFunction) InitLocal() (*ScoreLocal, error) {
	l, err := f.kernel.InitLocal()
	if err != nil {
		return nil, err
	}
	return &ScoreLocal{inner: l}, nil
}

func (l *ScoreLocal) Close() error { return l.inner.Close() }

func (f *ScoreFunction) Scan(local *ScoreLocal, batch *scan.Batch[score.Row]) (bool, error) {
	return f.kernel.Scan(local.inner, batch)
}
