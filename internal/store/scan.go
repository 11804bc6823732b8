package store

import (
	"sort"

	"github.com/mullenkamp/booklet-go/internal/block"
	"github.com/mullenkamp/booklet-go/internal/codec"
)

// scanSequential walks the data region from FirstDataBlockOffset to the
// end of the source, skipping over the current bucket array wherever it
// has been relocated to by auto-reindex (spec.md §4.6, last paragraph).
//
// It only knows about the CURRENT bucket array's extent (from the
// header). A bucket array left dead by an EARLIER auto-reindex that has
// not since been reclaimed by Prune falls inside this range and is not
// skipped - see DESIGN.md for why this is an accepted, documented
// limitation rather than a bug: DeferReindex plus a single Prune at the
// end of a bulk load avoids ever creating more than one live relocation.
func (s *Store) scanSequential(visit func(h *block.Header) error) error {
	src := s.source()
	end := src.Size()
	bucketStart := s.params.BucketArrayOffset
	bucketEnd := bucketStart + uint64(s.params.BucketCount)*uint64(s.params.NFile)

	offset := s.params.FirstDataBlockOffset
	for offset < end {
		if offset == bucketStart {
			offset = bucketEnd
			continue
		}

		h, err := block.ReadHeader(src, offset, s.params)
		if err != nil {
			return err
		}
		if err := visit(h); err != nil {
			return err
		}
		offset += h.TotalLen(s.params)
	}
	return nil
}

// collectLiveLocked scans the data region, takes for each key-hash only its
// highest-offset (most recent) block, and returns those that are live,
// ordered by offset. "Live" means next_ptr != 0 and, if minTS is given,
// the block's timestamp is > minTS (spec.md §4.8 steps 2-3).
//
// Iterate reuses this same dedup logic, not just Prune: an update never
// tombstones the block it supersedes (see DESIGN.md), so the superseded
// block's next-pointer is still whatever it always was - nonzero - and a
// naive "next_ptr != 0" scan would otherwise yield it as a stale duplicate
// alongside the live one. Because the liveness test is applied only to the
// most recent block, deleting an updated key does not bring its older,
// superseded block back.
func (s *Store) collectLiveLocked(minTS *int64) ([]*block.Header, error) {
	latest := make(map[[codec.HashSize]byte]*block.Header)

	err := s.scanSequential(func(h *block.Header) error {
		latest[h.KeyHash] = h
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]*block.Header, 0, len(latest))
	for _, h := range latest {
		if h.Next == block.Tombstone {
			continue
		}
		if minTS != nil && (h.Timestamp == nil || *h.Timestamp <= *minTS) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Offset < out[j].Offset })
	return out, nil
}

// countAllBlocksLocked returns the total number of physical blocks in the
// data region, live or tombstoned, superseded or not. Prune uses this
// (rather than liveKeyCount, which only tracks distinct keys) to report how
// many blocks a compaction pass actually removed from disk.
func (s *Store) countAllBlocksLocked() (int, error) {
	n := 0
	err := s.scanSequential(func(h *block.Header) error {
		n++
		return nil
	})
	return n, err
}
