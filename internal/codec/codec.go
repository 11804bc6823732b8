// Package codec provides the fixed-width little-endian integer encoding and
// the keyed key-hash used throughout the on-disk format. It has no
// dependency on the rest of the engine so that the file-format primitives
// can be tested in isolation.
package codec

import (
	"encoding/binary"
	"errors"

	"golang.org/x/crypto/blake2b"
)

// HashSize is the digest length used to distribute keys across buckets.
// Changing it is a file-format break.
const HashSize = 13

// hashKey is a fixed, non-secret key for the blake2b digest. It exists only
// to pin the hash function; it is not a security boundary.
var hashKey = []byte("booklet-key-hash")

// Hash computes the 13-byte keyed digest of a byte key used to place it in
// the bucket array. Equal inputs yield equal digests across hosts and file
// lifetimes.
func Hash(key []byte) [HashSize]byte {
	h, err := blake2b.New(HashSize, hashKey)
	if err != nil {
		// Only fails for an out-of-range size or oversized key, neither of
		// which can happen with the constants above.
		panic(err)
	}

	h.Write(key)

	var out [HashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

// EncodeUint little-endian encodes v into a width-byte slice. width must be
// one of 1, 2, 4, 5, 6, 7, 8.
func EncodeUint(v uint64, width int) []byte {
	buf := make([]byte, width)
	putUint(buf, v)
	return buf
}

// PutUint writes v little-endian into buf, which must be exactly the
// intended width.
func PutUint(buf []byte, v uint64) {
	putUint(buf, v)
}

func putUint(buf []byte, v uint64) {
	for i := range buf {
		buf[i] = byte(v >> (8 * uint(i)))
	}
}

// DecodeUint decodes a little-endian unsigned integer of arbitrary width
// (1-8 bytes).
func DecodeUint(buf []byte) uint64 {
	var v uint64
	for i, b := range buf {
		v |= uint64(b) << (8 * uint(i))
	}
	return v
}

// ErrBadWidth is returned by width-checked helpers when the slice length
// does not match the expected encoding width.
var ErrBadWidth = errors.New("codec: unexpected byte width")

// DecodeUint32 is a convenience wrapper for the common 4-byte field width
// (live key count, bucket count).
func DecodeUint32(buf []byte) (uint32, error) {
	if len(buf) != 4 {
		return 0, ErrBadWidth
	}
	return binary.LittleEndian.Uint32(buf), nil
}

// EncodeUint32 encodes a 4-byte little-endian unsigned integer.
func EncodeUint32(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}

// DecodeUint16 is a convenience wrapper for 2-byte fields (serializer codes).
func DecodeUint16(buf []byte) (uint16, error) {
	if len(buf) != 2 {
		return 0, ErrBadWidth
	}
	return binary.LittleEndian.Uint16(buf), nil
}

// EncodeUint16 encodes a 2-byte little-endian unsigned integer.
func EncodeUint16(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}
