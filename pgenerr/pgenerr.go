// Package pgenerr defines the error kinds shared by every pgencore
// component. Errors are kinds, not types: every exported error-producing
// path returns a *errors.Error built with one of the kinds below, following
// the same errors.E(...) convention the teacher package uses throughout
// (see e.g. encoding/fasta/index.go, markduplicates/metrics.go upstream).
package pgenerr

import "github.com/grailbio/base/errors"

const (
	// Invalid marks configuration errors: malformed region strings, empty
	// sample lists, out-of-range sample indices, unknown sample/variant ids,
	// mutually exclusive options, wrong-length weight lists, missing
	// required parameters, unknown mode values. Always detected at bind,
	// before any I/O state is created.
	Invalid = errors.Invalid

	// IO marks file-open/read failures, decoder-reported corruption, a
	// record-read failure at a specific variant index, or aligned-allocation
	// failures. May arise at bind or mid-scan.
	IO = errors.IO

	// NotImplemented marks unsupported features (dosage/phased reader modes
	// not yet backed by an on-disk record type).
	NotImplemented = errors.NotSupported
)

// E builds an error of the given kind, mirroring errors.E(kind, args...).
// args are formatted the way errors.E formats them: alternating free-form
// context values, with an embedded error participating in Is/As matching.
func E(kind errors.Kind, args ...interface{}) error {
	all := make([]interface{}, 0, len(args)+1)
	all = append(all, kind)
	all = append(all, args...)
	return errors.E(all...)
}

// Is reports whether err carries the given kind.
func Is(kind errors.Kind, err error) bool {
	return errors.Is(kind, err)
}
