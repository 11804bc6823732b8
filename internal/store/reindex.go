package store

import (
	"github.com/mullenkamp/booklet-go/internal/block"
	"github.com/mullenkamp/booklet-go/internal/header"
	"github.com/mullenkamp/booklet-go/internal/index"
)

// maybeReindexLocked grows the bucket array once the live key count has
// outgrown it, following the fixed prime sequence (spec.md §4.3). It never
// moves FirstDataBlockOffset or any data block - only a fresh bucket array
// is appended and every live key's chain is rebuilt into it. Skipped
// entirely when DeferReindex is set, so a bulk load can defer the cost to
// a single explicit Prune with a caller-chosen bucket count at the end.
//
// Called at most once per flush. A file that crosses the growth threshold
// again before its next Prune gets a second relocation; the bucket array
// left behind by this one becomes dead space inside the scanned region
// that scanSequential does not know to skip (see its doc comment and
// DESIGN.md).
func (s *Store) maybeReindexLocked() error {
	if s.liveKeyCount <= s.params.BucketCount {
		return nil
	}

	next := index.NextBucketCount(s.params.BucketCount)
	if next == 0 || next <= s.params.BucketCount {
		return nil
	}

	newArrayOffset := s.tailOffset
	if err := index.ZeroFill(s.file, newArrayOffset, next, s.params.NFile); err != nil {
		return err
	}
	s.tailOffset += uint64(next) * uint64(s.params.NFile)

	s.params.BucketCount = next
	s.params.BucketArrayOffset = newArrayOffset

	if err := s.rebuildChainsLocked(); err != nil {
		return err
	}

	if err := header.RewriteBucketCount(s.file, next); err != nil {
		return err
	}
	if err := header.RewriteOffsets(s.file, s.params, newArrayOffset, s.params.FirstDataBlockOffset); err != nil {
		return err
	}
	return s.file.Sync()
}

// rebuildChainsLocked recomputes every live key's bucket under the
// current bucket count and prepends it into that bucket's chain in the
// current bucket array. It rewires existing blocks' next-pointers in
// place; nothing is appended or moved.
func (s *Store) rebuildChainsLocked() error {
	headers, err := s.collectLiveLocked(nil)
	if err != nil {
		return err
	}

	heads := make(map[uint32]uint64, len(headers))
	for _, h := range headers {
		b := index.Bucket(h.KeyHash, s.params.BucketCount)

		next := uint64(block.ChainEnd)
		if prevHead, ok := heads[b]; ok {
			next = prevHead
		}
		if err := s.patchNextLocked(h.Offset, next); err != nil {
			return err
		}
		heads[b] = h.Offset
	}

	for b, headOffset := range heads {
		if err := index.Write(s.file, s.params.BucketArrayOffset, b, s.params.NFile, headOffset); err != nil {
			return err
		}
	}
	return nil
}
