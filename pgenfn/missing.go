package pgenfn

import (
	"github.com/plinkql/pgencore/kernel/missing"
	"github.com/plinkql/pgencore/scan"
)

// MissingOpts is the Missingness function's parameter set (spec.md §6 K3).
// Which axis is aggregated is selected by constructor
// (NewMissingVariantFunction vs. NewMissingSampleFunction), not by a field
// here.
type MissingOpts struct {
	CommonOpts
}

// MissingVariantFunction is K3's per-variant mode.
type MissingVariantFunction struct {
	opts   MissingOpts
	kernel *missing.VariantKernel
}

func NewMissingVariantFunction(opts MissingOpts) *MissingVariantFunction {
	return &MissingVariantFunction{opts: opts}
}

func (f *MissingVariantFunction) Bind() error {
	b, err := bindCommon(f.opts.CommonOpts, false)
	if err != nil {
		return err
	}
	f.kernel = missing.BindVariant(f.opts.Path, b.varIndex, b.sub, b.rng, b.rawSampleCt)
	return nil
}

func (f *MissingVariantFunction) MaxThreads() int { return f.kernel.MaxThreads() }

type MissingVariantLocal struct{ inner *missing.VariantLocal }

func (f *MissingVariantFunction) InitLocal() (*MissingVariantLocal, error) {
	l, err := f.kernel.InitLocal()
	if err != nil {
		return nil, err
	}
	return &MissingVariantLocal{inner: l}, nil
}

func (l *MissingVariantLocal) Close() error { return l.inner.Close() }

func (f *MissingVariantFunction) Scan(local *MissingVariantLocal, batch *scan.Batch[missing.VariantRow]) (bool, error) {
	return f.kernel.Scan(local.inner, batch)
}

// MissingSampleFunction is K3's per-sample mode (spec.md §4.7 K3 "sample
// mode": serialized, two-phase, runs with exactly one worker thread).
type MissingSampleFunction struct {
	opts   MissingOpts
	bound  *bound
	kernel *missing.SampleKernel
}

func NewMissingSampleFunction(opts MissingOpts) *MissingSampleFunction {
	return &MissingSampleFunction{opts: opts}
}

func (f *MissingSampleFunction) Bind() error {
	b, err := bindCommon(f.opts.CommonOpts, true)
	if err != nil {
		return err
	}
	f.bound = b
	f.kernel = missing.BindSample(f.opts.Path, b.sampMeta, b.sub, b.rng, b.rawSampleCt)
	return nil
}

func (f *MissingSampleFunction) MaxThreads() int { return f.kernel.MaxThreads() }

type MissingSampleLocal struct{ inner *missing.SampleLocal }

func (f *MissingSampleFunction) InitLocal() (*MissingSampleLocal, error) {
	l, err := f.kernel.InitLocal()
	if err != nil {
		return nil, err
	}
	return &MissingSampleLocal{inner: l}, nil
}

func (l *MissingSampleLocal) Close() error { return l.inner.Close() }

func (f *MissingSampleFunction) Scan(local *MissingSampleLocal, batch *scan.Batch[missing.SampleRow]) (bool, error) {
	return f.kernel.Scan(local.inner, batch)
}
