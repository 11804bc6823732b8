package store

import (
	"bytes"

	"github.com/mullenkamp/booklet-go/internal/block"
	"github.com/mullenkamp/booklet-go/internal/codec"
	"github.com/mullenkamp/booklet-go/internal/index"
)

// findLocked resolves h's bucket and walks its chain for key. Returns a
// nil header and nil error if the key is absent. Callers must hold mu.
func (s *Store) findLocked(h [codec.HashSize]byte, key []byte) (*block.Header, error) {
	b := index.Bucket(h, s.params.BucketCount)
	head, err := index.Read(s.source(), s.params.BucketArrayOffset, b, s.params.NFile)
	if err != nil {
		return nil, err
	}
	if head == index.Empty {
		return nil, nil
	}
	return block.FindInChain(s.source(), head, h, key, s.params)
}

// flushIfPendingLocked forces a flush before a read when the key's hash has
// an unflushed patch against it (spec.md §4.4 read protocol step 1).
// Read-only handles never have a buffer and never need this.
func (s *Store) flushIfPendingLocked(h [codec.HashSize]byte) error {
	if s.readOnly || !s.buf.Pending(h) {
		return nil
	}
	return s.flushLocked()
}

// Get returns the value stored for key, or ErrNotFound.
func (s *Store) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}

	h := codec.Hash(key)
	if err := s.flushIfPendingLocked(h); err != nil {
		return nil, err
	}

	hdr, err := s.findLocked(h, key)
	if err != nil {
		return nil, err
	}
	if hdr == nil {
		return nil, ErrNotFound
	}

	return block.ReadValue(s.source(), hdr, s.params)
}

// Contains reports whether key has a live value. The reserved metadata key
// is always reported absent (spec.md §4.9 / SPEC_FULL "invisible to ...
// contains").
func (s *Store) Contains(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if bytes.Equal(key, metadataKey) {
		return false, nil
	}

	h := codec.Hash(key)
	if err := s.flushIfPendingLocked(h); err != nil {
		return false, err
	}

	hdr, err := s.findLocked(h, key)
	if err != nil {
		return false, err
	}
	return hdr != nil, nil
}

// Length returns the live key count, excluding the reserved metadata key
// if present.
func (s *Store) Length() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	// Any queued patch can change the live key count, not just one for the
	// metadata key, so flush whenever anything is pending.
	if !s.readOnly && len(s.buf.Patches()) > 0 {
		if err := s.flushLocked(); err != nil {
			return 0, err
		}
	}

	hdr, err := s.findLocked(s.metadataHash, metadataKey)
	if err != nil {
		return 0, err
	}
	if hdr != nil && s.liveKeyCount > 0 {
		return s.liveKeyCount - 1, nil
	}
	return s.liveKeyCount, nil
}

// GetTimestamp returns the stored microsecond timestamp for key.
func (s *Store) GetTimestamp(key []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if !s.params.TimestampEnabled {
		return 0, ErrNoTimestamps
	}

	h := codec.Hash(key)
	if err := s.flushIfPendingLocked(h); err != nil {
		return 0, err
	}

	hdr, err := s.findLocked(h, key)
	if err != nil {
		return 0, err
	}
	if hdr == nil {
		return 0, ErrNotFound
	}
	if hdr.Timestamp == nil {
		return 0, ErrNoTimestamps
	}
	return *hdr.Timestamp, nil
}
