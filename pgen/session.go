package pgen

import (
	"encoding/binary"
	"os"

	"golang.org/x/sys/unix"

	"github.com/plinkql/pgencore/pgenerr"
)

// Header is the result of the probe phase: file identity plus the counts
// needed before any record layout work happens (spec.md §4.5 "probe
// phase").
type Header struct {
	Path         string
	RawVariantCt int
	RawSampleCt  int

	fd     *os.File
	mapped []byte // mmap of the whole file; released by Close.
}

// Probe opens path and reads just enough of the header to learn
// {raw_variant_ct, raw_sample_ct}. The populate phase completes the
// record-layout tables.
func Probe(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, pgenerr.E(pgenerr.IO, err, "pgen: open", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, pgenerr.E(pgenerr.IO, err, "pgen: stat", path)
	}
	size := st.Size()
	if size < headerFixedSize {
		f.Close()
		return nil, pgenerr.E(pgenerr.Invalid, "pgen: truncated header", path)
	}
	mapped, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, pgenerr.E(pgenerr.IO, err, "pgen: mmap", path)
	}
	if mapped[0] != magic[0] || mapped[1] != magic[1] || mapped[2] != magic[2] || mapped[3] != magic[3] {
		unix.Munmap(mapped)
		f.Close()
		return nil, pgenerr.E(pgenerr.Invalid, "pgen: bad magic", path)
	}
	variantCt := binary.LittleEndian.Uint32(mapped[4:8])
	sampleCt := binary.LittleEndian.Uint32(mapped[8:12])

	return &Header{
		Path:         path,
		RawVariantCt: int(variantCt),
		RawSampleCt:  int(sampleCt),
		fd:           f,
		mapped:       mapped,
	}, nil
}

// Close releases the header's memory mapping and file handle. The probe
// handle is released after bind completes (spec.md §4.5); per-thread
// readers that need their own view call InitReader, which opens an
// independent mapping.
func (h *Header) Close() error {
	if h == nil {
		return nil
	}
	var err error
	if h.mapped != nil {
		err = unix.Munmap(h.mapped)
		h.mapped = nil
	}
	if h.fd != nil {
		if e := h.fd.Close(); err == nil {
			err = e
		}
		h.fd = nil
	}
	return err
}

// Layout is the result of the populate phase: the per-variant record
// offset table and the derived allocation sizes every reader needs
// (spec.md §4.5 "populate phase").
type Layout struct {
	// Offsets has RawVariantCt+1 entries; record vidx occupies
	// mapped[Offsets[vidx]:Offsets[vidx+1]].
	Offsets         []uint64
	MaxRecordWidth  int
	RequiredAllocCt int
}

// Populate completes h's header record-layout tables and yields the
// per-reader allocation size.
func Populate(h *Header) (*Layout, error) {
	const offsetsStart = headerFixedSize
	n := h.RawVariantCt
	need := offsetsStart + 8*(n+1)
	if len(h.mapped) < need {
		return nil, pgenerr.E(pgenerr.Invalid, "pgen: truncated offset table", h.Path)
	}
	offsets := make([]uint64, n+1)
	maxWidth := 0
	for i := 0; i <= n; i++ {
		offsets[i] = binary.LittleEndian.Uint64(h.mapped[offsetsStart+8*i : offsetsStart+8*i+8])
	}
	for i := 0; i < n; i++ {
		if w := int(offsets[i+1] - offsets[i]); w > maxWidth {
			maxWidth = w
		}
	}
	return &Layout{
		Offsets:         offsets,
		MaxRecordWidth:  maxWidth,
		RequiredAllocCt: maxWidth,
	}, nil
}
