package scan

// Batch is the row emitter (C8): a fixed-capacity output buffer a kernel
// fills one row at a time. It models the host's fixed output-vector
// capacity (spec.md §1/§4.6/§5) without depending on the host's actual
// vector type, which spec.md §1 names as an external collaborator not
// reimplemented here (SPEC_FULL §4.8).
type Batch[T any] struct {
	Rows []T
	cap  int
}

// NewBatch allocates a Batch with room for up to capacity rows.
func NewBatch[T any](capacity int) *Batch[T] {
	return &Batch[T]{Rows: make([]T, 0, capacity), cap: capacity}
}

// Add appends row and reports whether the batch is now full. Scan loops
// check the return value and stop claiming further work once true,
// handing control back to the host (spec.md §4.6 "Scan returns each time
// the output vector is full").
func (b *Batch[T]) Add(row T) (full bool) {
	b.Rows = append(b.Rows, row)
	return len(b.Rows) >= b.cap
}

// Full reports whether the batch has no remaining capacity.
func (b *Batch[T]) Full() bool { return len(b.Rows) >= b.cap }

// Reset empties the batch for reuse across scan calls.
func (b *Batch[T]) Reset() { b.Rows = b.Rows[:0] }
