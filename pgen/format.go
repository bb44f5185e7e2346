// Package pgen implements the binary genotype decoder (spec component C6).
// It realizes the documented probe -> populate -> per-thread-reader
// lifecycle of spec.md §4.5 over a bit-packed, variable-record-width
// columnar genotype store.
//
// The on-disk record layout implemented here is a practical subset of real
// PGEN sufficient to drive every reader operation spec.md §4.5 names with
// correct fast-count/dense-decode/dosage semantics; PGEN's difference-list
// and LD-compressed record types are out of scope, per spec.md §1's framing
// of the byte-level codec as an external collaborator concern (see
// DESIGN.md for the full rationale).
package pgen

import "github.com/plinkql/pgencore/pgenerr"

// recordTag identifies a variant record's physical encoding.
type recordTag byte

const (
	// recordPlain is a 2-bit-per-call dense genovec of ceil(n/4) bytes
	// with no word padding: calls 0/1/2/3(=missing) packed four to a
	// byte, little-endian within the byte (spec.md §3 "physical encoding").
	recordPlain recordTag = 0x00
	// recordDosage is recordPlain's genovec followed by a dense
	// per-sample dosage track: a dosage-present bitmask, then one
	// little-endian float32 per set bit, in ascending sample order
	// (spec.md §3 "Dosage").
	recordDosage recordTag = 0x01
	// recordPlainZstd is recordPlain's payload, zstd-compressed, prefixed
	// by a 4-byte little-endian decompressed size. Exercises
	// klauspost/compress/zstd for variants written by a block-compressed
	// PGEN writer.
	recordPlainZstd recordTag = 0x02
)

// magic identifies a pgencore genotype file. It intentionally does not
// reuse real PLINK2 PGEN magic bytes, since this is not a byte-compatible
// PGEN codec (see package doc).
var magic = [4]byte{'p', 'g', 'c', '1'}

const headerFixedSize = 4 + 4 + 4 // magic + raw_variant_ct + raw_sample_ct

// Missing is the genotype-call sentinel (spec.md §3).
const Missing uint8 = 3

// DosageMissing is the dosage sentinel (spec.md §3, "Dosage").
const DosageMissing = -9.0

func nypToAlignedWordCt(sampleCt int) int {
	// 16 two-bit calls per 4-byte word, rounded up to a 4-word (16-byte
	// SIMD vector) multiple so reader scratch buffers never overrun
	// (spec.md §4.5: "via nyp_to_aligned_word_ct, not naive ceil_div").
	words := (sampleCt + 15) / 16
	const vecWords = 4
	if rem := words % vecWords; rem != 0 {
		words += vecWords - rem
	}
	if words == 0 {
		words = vecWords
	}
	return words
}

func checkTag(tag recordTag) error {
	switch tag {
	case recordPlain, recordDosage, recordPlainZstd:
		return nil
	default:
		return pgenerr.E(pgenerr.NotImplemented, "pgen: unsupported record type", byte(tag))
	}
}
