package store

import (
	"bytes"

	"github.com/mullenkamp/booklet-go/internal/block"
)

// Entry is one (key, value) pair yielded by Iterate.
type Entry struct {
	Key       []byte
	Value     []byte
	Timestamp *int64
}

// IterateOptions selects which fields Iterate populates, and an optional
// timestamp floor (spec.md §4.6 iterate(keys?, values?, min_timestamp?)).
type IterateOptions struct {
	IncludeKeys   bool
	IncludeValues bool
	MinTimestamp  *int64
}

// Iterate walks the live data sequentially and returns every entry except
// the reserved metadata key. Order is the blocks' on-disk order and is not
// key order (spec.md Non-goals: no ordered iteration).
//
// An entry whose key was later updated leaves its superseded block behind
// on disk with its original, still-nonzero next-pointer (an update prepends
// the new block at the chain head rather than touching the old one - see
// DESIGN.md); Iterate reuses Prune's per-key-hash, highest-offset dedup so
// it never yields that stale copy alongside the live one.
func (s *Store) Iterate(opts IterateOptions) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if !s.readOnly {
		if err := s.flushLocked(); err != nil {
			return nil, err
		}
	}

	headers, err := s.collectLiveLocked(opts.MinTimestamp)
	if err != nil {
		return nil, err
	}

	src := s.source()
	entries := make([]Entry, 0, len(headers))
	for _, h := range headers {
		kb, err := block.ReadKey(src, h, s.params)
		if err != nil {
			return nil, err
		}
		if bytes.Equal(kb, metadataKey) {
			continue
		}

		e := Entry{Timestamp: h.Timestamp}
		if opts.IncludeKeys {
			e.Key = kb
		}
		if opts.IncludeValues {
			v, err := block.ReadValue(src, h, s.params)
			if err != nil {
				return nil, err
			}
			e.Value = v
		}
		entries = append(entries, e)
	}
	return entries, nil
}
