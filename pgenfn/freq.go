package pgenfn

import (
	"github.com/plinkql/pgencore/kernel/freq"
	"github.com/plinkql/pgencore/scan"
)

// FreqOpts is the Frequency function's full parameter set (spec.md §6 K1).
type FreqOpts struct {
	CommonOpts
	Counts bool
}

// FreqFunction wires FreqOpts through to kernel/freq (spec.md §2 control
// flow, §9 "polymorphic-over-kernel scan dispatch").
type FreqFunction struct {
	opts   FreqOpts
	bound  *bound
	kernel *freq.Kernel
}

func NewFreqFunction(opts FreqOpts) *FreqFunction { return &FreqFunction{opts: opts} }

func (f *FreqFunction) Bind() error {
	b, err := bindCommon(f.opts.CommonOpts, false)
	if err != nil {
		return err
	}
	f.bound = b
	k, err := freq.Bind(f.opts.Path, b.varIndex, b.sub, b.rng, freq.Opts{Counts: f.opts.Counts, NeedGenotypes: true})
	if err != nil {
		return err
	}
	f.kernel = k
	return nil
}

func (f *FreqFunction) MaxThreads() int { return f.kernel.MaxThreads() }

type FreqLocal struct{ inner *freq.Local }

func (f *FreqFunction) InitLocal() (*FreqLocal, error) {
	l, err := f.kernel.InitLocal()
	if err != nil {
		return nil, err
	}
	return &FreqLocal{inner: l}, nil
}

func (l *FreqLocal) Close() error { return l.inner.Close() }

func (f *FreqFunction) Scan(local *FreqLocal, batch *scan.Batch[freq.Row]) (bool, error) {
	return f.kernel.Scan(local.inner, batch)
}
