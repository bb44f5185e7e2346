package align

import "unsafe"

func uintptrOf(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

// Words32Unsafe reinterprets the aligned base as a []uint32 without copying,
// the same zero-copy reinterpretation idiom the teacher's
// encoding/pam/fieldio/unsafeint32.go and unsafearena.go apply to their own
// field buffers. The slice has len(b.Bytes())/4 words; trailing bytes that
// do not fill a whole word are not included.
func (b *Block) Words32Unsafe() []uint32 {
	n := len(b.bytes) / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint32)(unsafe.Pointer(&b.bytes[0])), n)
}

// Words64Unsafe is the 8-byte-word analogue of Words32Unsafe.
func (b *Block) Words64Unsafe() []uint64 {
	n := len(b.bytes) / 8
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*uint64)(unsafe.Pointer(&b.bytes[0])), n)
}
