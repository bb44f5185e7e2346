package pgenfn

import (
	"github.com/plinkql/pgencore/kernel/hwe"
	"github.com/plinkql/pgencore/scan"
)

// HWEOpts is the Hardy-Weinberg function's parameter set (spec.md §6 K2).
type HWEOpts struct {
	CommonOpts
	Midp bool
}

type HWEFunction struct {
	opts   HWEOpts
	bound  *bound
	kernel *hwe.Kernel
}

func NewHWEFunction(opts HWEOpts) *HWEFunction { return &HWEFunction{opts: opts} }

func (f *HWEFunction) Bind() error {
	b, err := bindCommon(f.opts.CommonOpts, false)
	if err != nil {
		return err
	}
	f.bound = b
	k, err := hwe.Bind(f.opts.Path, b.varIndex, b.sub, b.rng, hwe.Opts{Midp: f.opts.Midp})
	if err != nil {
		return err
	}
	f.kernel = k
	return nil
}

func (f *HWEFunction) MaxThreads() int { return f.kernel.MaxThreads() }

type HWELocal struct{ inner *hwe.Local }

func (f *HWEFunction) InitLocal() (*HWELocal, error) {
	l, err := f.kernel.InitLocal()
	if err != nil {
		return nil, err
	}
	return &HWELocal{inner: l}, nil
}

func (l *HWELocal) Close() error { return l.inner.Close() }

func (f *HWEFunction) Scan(local *HWELocal, batch *scan.Batch[hwe.Row]) (bool, error) {
	return f.kernel.Scan(local.inner, batch)
}
