package pgenfn

import (
	"github.com/plinkql/pgencore/kernel/ld"
	"github.com/plinkql/pgencore/scan"
)

// LDOpts is the LD function's parameter set (spec.md §6 K4). Pairwise mode
// is selected by supplying IDA/IDB; windowed mode uses WindowBP.
type LDOpts struct {
	CommonOpts
	IDA, IDB     string
	WindowBP     int64
	R2Threshold  float64
	InterChr     bool
}

// LDPairwiseFunction computes a single r2/D' pair (spec.md §4.7 K4
// "Pairwise").
type LDPairwiseFunction struct {
	opts   LDOpts
	kernel *ld.Pairwise
}

func NewLDPairwiseFunction(opts LDOpts) *LDPairwiseFunction { return &LDPairwiseFunction{opts: opts} }

func (f *LDPairwiseFunction) Bind() error {
	b, err := bindCommon(f.opts.CommonOpts, false)
	if err != nil {
		return err
	}
	k, err := ld.BindPairwise(f.opts.Path, b.varIndex, b.sub, f.opts.IDA, f.opts.IDB)
	if err != nil {
		return err
	}
	f.kernel = k
	return nil
}

func (f *LDPairwiseFunction) MaxThreads() int { return f.kernel.MaxThreads() }

type LDPairwiseLocal struct{ inner *ld.PairwiseLocal }

func (f *LDPairwiseFunction) InitLocal() (*LDPairwiseLocal, error) {
	l, err := f.kernel.InitLocal()
	if err != nil {
		return nil, err
	}
	return &LDPairwiseLocal{inner: l}, nil
}

func (l *LDPairwiseLocal) Close() error { return l.inner.Close() }

func (f *LDPairwiseFunction) Scan(local *LDPairwiseLocal, batch *scan.Batch[ld.Row]) (bool, error) {
	return f.kernel.Scan(local.inner, batch)
}

// LDWindowedFunction sweeps all partner pairs within WindowBP of each
// anchor (spec.md §4.7 K4 "Windowed").
type LDWindowedFunction struct {
	opts   LDOpts
	kernel *ld.Windowed
}

func NewLDWindowedFunction(opts LDOpts) *LDWindowedFunction { return &LDWindowedFunction{opts: opts} }

func (f *LDWindowedFunction) Bind() error {
	b, err := bindCommon(f.opts.CommonOpts, false)
	if err != nil {
		return err
	}
	f.kernel = ld.BindWindowed(f.opts.Path, b.varIndex, b.sub, b.rng, f.opts.WindowBP, f.opts.R2Threshold, f.opts.InterChr)
	return nil
}

func (f *LDWindowedFunction) MaxThreads() int { return f.kernel.MaxThreads() }

type LDWindowedLocal struct{ inner *ld.WindowedLocal }

func (f *LDWindowedFunction) InitLocal() (*LDWindowedLocal, error) {
	l, err := f.kernel.InitLocal()
	if err != nil {
		return nil, err
	}
	return &LDWindowedLocal{inner: l}, nil
}

func (l *LDWindowedLocal) Close() error { return l.inner.Close() }

func (f *LDWindowedFunction) Scan(local *LDWindowedLocal, batch *scan.Batch[ld.Row]) (bool, error) {
	return f.kernel.Scan(local.inner, batch)
}
