// Package index implements the external-chaining hash index: the bucket
// array that maps a key-hash to the file offset of the head of its chain,
// and the fixed prime sequence auto-reindex grows through.
package index

import (
	"fmt"
	"math"
	"os"

	"github.com/mullenkamp/booklet-go/internal/codec"
	"github.com/mullenkamp/booklet-go/internal/diskio"
)

// Empty is the bucket-entry sentinel meaning "no chain".
const Empty uint64 = 0

// Bucket computes the bucket index for a key-hash given the current
// bucket count.
func Bucket(hash [codec.HashSize]byte, bucketCount uint32) uint32 {
	h := codec.DecodeUint(hash[:8]) // first 8 bytes are enough entropy for the modulus
	return uint32(h % uint64(bucketCount))
}

// Read returns the chain-head offset stored in bucket b, reading through
// the given byte source (shared by both the buffered-file and mmap reader
// paths).
func Read(src diskio.Source, bucketArrayOffset uint64, b uint32, nFile int) (uint64, error) {
	buf := make([]byte, nFile)
	if err := src.ReadAt(buf, bucketArrayOffset+uint64(b)*uint64(nFile)); err != nil {
		return 0, fmt.Errorf("index: read bucket %d: %w", b, err)
	}
	return codec.DecodeUint(buf), nil
}

// Write stores offset into bucket b. Only the writer calls this, directly
// against the file (never through the write buffer - bucket writes are
// applied during sync, not deferred further).
func Write(f *os.File, bucketArrayOffset uint64, b uint32, nFile int, offset uint64) error {
	buf := codec.EncodeUint(offset, nFile)
	if _, err := f.WriteAt(buf, int64(bucketArrayOffset+uint64(b)*uint64(nFile))); err != nil {
		return fmt.Errorf("index: write bucket %d: %w", b, err)
	}
	return nil
}

// ZeroFill writes a fresh, zero-initialized bucket array of the given
// count starting at offset. Used by create and by auto-reindex (which
// places it at the file tail and leaves the old array as dead space) and
// by prune (which always places it at header.Size).
func ZeroFill(f *os.File, offset uint64, count uint32, nFile int) error {
	const chunkBuckets = 1 << 16
	zeros := make([]byte, chunkBuckets*nFile)

	remaining := int(count)
	pos := int64(offset)
	for remaining > 0 {
		n := remaining
		if n > chunkBuckets {
			n = chunkBuckets
		}
		if _, err := f.WriteAt(zeros[:n*nFile], pos); err != nil {
			return fmt.Errorf("index: zero-fill: %w", err)
		}
		pos += int64(n * nFile)
		remaining -= n
	}
	return nil
}

// sequence is the fixed sequence of bucket counts auto-reindex grows
// through: primes roughly doubling at each step. It is generated once at
// package init time starting from the three counts spec.md names explicitly,
// and stops before a doubling would overflow uint32.
var sequence = buildSequence()

func buildSequence() []uint32 {
	seq := []uint32{12007, 25013, 50021}
	for len(seq) < 40 {
		last := seq[len(seq)-1]
		if uint64(last)*2 > math.MaxUint32 {
			break
		}
		next := nextPrimeAbove(last * 2)
		seq = append(seq, next)
	}
	return seq
}

func nextPrimeAbove(n uint32) uint32 {
	candidate := n
	if candidate%2 == 0 {
		candidate++
	}
	for !isPrime(candidate) {
		candidate += 2
	}
	return candidate
}

func isPrime(n uint32) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := uint32(3); d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// NextBucketCount selects the next bucket count from the fixed sequence,
// given the current count. If current is already a sequence member, it
// returns the next one; otherwise it returns the smallest sequence value
// strictly greater than current. Returns 0 if the sequence is exhausted
// (practically unreachable: the final entry is far beyond any realistic
// key count).
func NextBucketCount(current uint32) uint32 {
	for _, v := range sequence {
		if v > current {
			return v
		}
	}
	return 0
}
