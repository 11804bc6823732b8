// Package buffer implements the write buffer described in spec.md §4.5: a
// contiguous byte buffer of pending data-block appends, a parallel list of
// pending index patches, and a set of pending key-hashes used to decide
// when a read must force a flush first.
package buffer

import (
	"github.com/mullenkamp/booklet-go/internal/codec"
)

// Kind distinguishes the three ways a sync can touch the hash index for
// one pending key-hash.
type Kind int

const (
	// New records a brand new key: on sync, either becomes the bucket's
	// only entry or is prepended at the chain head.
	New Kind = iota
	// Update records a key that already has a live block elsewhere on its
	// chain: on sync, the new block is prepended at the chain head exactly
	// like New, and the old block is left untouched (its next-pointer is
	// NOT rewritten, per spec.md's DATA MODEL invariant) to become garbage
	// reclaimed only by Prune.
	Update
	// Delete records a key whose latest live block must have its
	// next-pointer zeroed on sync.
	Delete
)

// Patch is one pending index mutation, queued at write time and applied
// during sync against the live on-disk chain.
type Patch struct {
	Hash Key

	// Key is the full key bytes. Needed for Delete so sync can re-walk the
	// bucket's chain and confirm which block, among any hash-colliding
	// blocks, is the one being removed. New and Update don't need it: both
	// just prepend at the chain head.
	Key []byte

	// NewOffset is the file offset of the newly appended block. Unused for
	// Delete.
	NewOffset uint64

	Kind Kind
}

// Key is the fixed-size key-hash type patches and the pending set are
// keyed by.
type Key = [codec.HashSize]byte

// Buffer accumulates pending data bytes and index patches between flushes.
// It does not know the file's current size; callers compute absolute
// offsets themselves (NextOffset-style arithmetic lives in internal/store,
// which already tracks the file's tail).
type Buffer struct {
	threshold int

	data []byte

	patches []Patch
	pending map[Key]struct{}
}

// New creates an empty write buffer with the given data high-water mark in
// bytes (spec.md default: 4 MiB).
func New(thresholdBytes int) *Buffer {
	return &Buffer{
		threshold: thresholdBytes,
		pending:   make(map[Key]struct{}),
	}
}

// Pending reports whether h has an unflushed patch queued against it.
func (b *Buffer) Pending(h Key) bool {
	_, ok := b.pending[h]
	return ok
}

// DataLen returns the number of unflushed data bytes.
func (b *Buffer) DataLen() int {
	return len(b.data)
}

// Threshold returns the configured data high-water mark in bytes.
func (b *Buffer) Threshold() int {
	return b.threshold
}

// WouldExceed reports whether appending n more bytes to the data buffer
// would cross the configured threshold, the trigger for flushing the data
// buffer (but not necessarily the index patches) per spec.md §4.5.
func (b *Buffer) WouldExceed(n int) bool {
	return len(b.data)+n > b.threshold
}

// AppendData appends raw, already-encoded block bytes to the pending data
// buffer.
func (b *Buffer) AppendData(block []byte) {
	b.data = append(b.data, block...)
}

// Data returns the pending data bytes, for the writer to append to the
// file tail on flush.
func (b *Buffer) Data() []byte {
	return b.data
}

// AddPatch queues an index patch and marks its hash pending. The caller is
// responsible for flushing first if the hash is already pending (spec.md
// §4.4 write step 2): within one buffer generation each hash appears at
// most once, so sync never needs to re-derive a patch's prior state from
// anything but the live on-disk chain.
func (b *Buffer) AddPatch(p Patch) {
	b.patches = append(b.patches, p)
	b.pending[p.Hash] = struct{}{}
}

// Patches returns the queued index patches in the order they were added.
func (b *Buffer) Patches() []Patch {
	return b.patches
}

// Reset clears the data buffer, the patch list, and the pending set,
// called once both have been fully applied by sync.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.patches = b.patches[:0]
	for k := range b.pending {
		delete(b.pending, k)
	}
}

// ResetData clears only the data buffer, used when a flush of data bytes
// happens without an accompanying index-patch sync (the data-only flush
// path in spec.md §4.5: appends beyond the mark trigger a flush of the
// data buffer "but not necessarily the index patches").
func (b *Buffer) ResetData() {
	b.data = b.data[:0]
}
