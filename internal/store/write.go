package store

import (
	"fmt"
	"time"

	"github.com/mullenkamp/booklet-go/internal/block"
	"github.com/mullenkamp/booklet-go/internal/buffer"
	"github.com/mullenkamp/booklet-go/internal/codec"
	"github.com/mullenkamp/booklet-go/internal/header"
	"github.com/mullenkamp/booklet-go/internal/index"
)

// Pair is one key/value entry for a bulk Update call.
type Pair struct {
	Key   []byte
	Value []byte
}

func nowMicros() int64 {
	return time.Now().UnixMicro()
}

// Set inserts or overwrites key with value, queuing an index patch that is
// applied on the next Sync (explicit or triggered by a later read/write on
// the same key).
func (s *Store) Set(key, value []byte, ts *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return s.setLocked(key, value, ts)
}

func (s *Store) setLocked(key, value []byte, ts *int64) error {
	if block.IsFixedVariant(s.params) && len(value) != s.params.FixedValueLen {
		return ErrType
	}

	h := codec.Hash(key)
	if err := s.flushIfPendingLocked(h); err != nil {
		return err
	}

	existing, err := s.findLocked(h, key)
	if err != nil {
		return err
	}

	var timestamp *int64
	if s.params.TimestampEnabled {
		if ts != nil {
			timestamp = ts
		} else {
			t := nowMicros()
			timestamp = &t
		}
	}

	blk := &block.Block{
		KeyHash:   h,
		Next:      block.ChainEnd,
		Key:       key,
		Value:     value,
		Timestamp: timestamp,
	}
	enc, err := block.Encode(s.params, blk)
	if err != nil {
		return err
	}

	offset, err := s.appendBlockLocked(enc)
	if err != nil {
		return err
	}

	kind := buffer.New
	if existing != nil {
		kind = buffer.Update
	}

	s.buf.AddPatch(buffer.Patch{
		Hash:      h,
		Key:       append([]byte(nil), key...),
		NewOffset: offset,
		Kind:      kind,
	})
	return nil
}

// Update applies a batch of sets as a single mutation.
func (s *Store) Update(pairs []Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	for _, p := range pairs {
		if err := s.setLocked(p.Key, p.Value, nil); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes key. It does not append a new block: it queues a patch
// that zeroes the existing block's next-pointer on sync (spec.md §4.7).
func (s *Store) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}

	h := codec.Hash(key)
	if err := s.flushIfPendingLocked(h); err != nil {
		return err
	}

	existing, err := s.findLocked(h, key)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrNotFound
	}

	s.buf.AddPatch(buffer.Patch{Hash: h, Key: append([]byte(nil), key...), Kind: buffer.Delete})
	return nil
}

// SetTimestamp overwrites the stored timestamp for an existing live key in
// place, without appending a new block.
func (s *Store) SetTimestamp(key []byte, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	if !s.params.TimestampEnabled {
		return ErrNoTimestamps
	}

	h := codec.Hash(key)
	if err := s.flushIfPendingLocked(h); err != nil {
		return err
	}

	hdr, err := s.findLocked(h, key)
	if err != nil {
		return err
	}
	if hdr == nil {
		return ErrNotFound
	}

	off, ok := block.TimestampOffset(hdr, s.params)
	if !ok {
		return ErrNoTimestamps
	}

	buf := codec.EncodeUint(uint64(ts), header.TimestampWidth)
	if _, err := s.file.WriteAt(buf, int64(off)); err != nil {
		return fmt.Errorf("store: set timestamp: %w", err)
	}
	return nil
}

// appendBlockLocked places enc either in the data buffer or, if that would
// cross the flush threshold, directly at the file tail (spec.md §4.4
// write step 5). It returns the absolute file offset the block will live
// at once flushed.
func (s *Store) appendBlockLocked(enc []byte) (uint64, error) {
	if s.buf.WouldExceed(len(enc)) {
		if err := s.flushDataLocked(); err != nil {
			return 0, err
		}
		offset := s.tailOffset
		if _, err := s.file.WriteAt(enc, int64(offset)); err != nil {
			return 0, fmt.Errorf("store: append block: %w", err)
		}
		s.tailOffset += uint64(len(enc))
		return offset, nil
	}

	offset := s.tailOffset + uint64(s.buf.DataLen())
	s.buf.AppendData(enc)
	return offset, nil
}

// flushDataLocked appends the pending data buffer to the file tail without
// touching the index patches (the data-only flush path spec.md §4.5
// allows when the threshold is crossed mid-write).
func (s *Store) flushDataLocked() error {
	data := s.buf.Data()
	if len(data) == 0 {
		return nil
	}
	if _, err := s.file.WriteAt(data, int64(s.tailOffset)); err != nil {
		return fmt.Errorf("store: flush data buffer: %w", err)
	}
	s.tailOffset += uint64(len(data))
	s.buf.ResetData()
	return nil
}

// patchNextLocked overwrites the next-pointer field of the block at
// blockOffset in place.
func (s *Store) patchNextLocked(blockOffset, next uint64) error {
	buf := codec.EncodeUint(next, s.params.NFile)
	if _, err := s.file.WriteAt(buf, int64(blockOffset+codec.HashSize)); err != nil {
		return fmt.Errorf("store: patch next-pointer at %d: %w", blockOffset, err)
	}
	return nil
}

// Sync flushes the data buffer, applies every pending index patch, fsyncs,
// and checks auto-reindex. Applications rarely need to call this directly:
// every read and write calls it internally whenever a pending patch would
// otherwise be observed stale.
func (s *Store) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}
	return s.flushLocked()
}

// flushLocked implements spec.md §4.4's "Sync / flush" protocol in full.
func (s *Store) flushLocked() error {
	if err := s.flushDataLocked(); err != nil {
		return err
	}

	for _, p := range s.buf.Patches() {
		if err := s.applyPatchLocked(p); err != nil {
			return err
		}
	}

	if err := header.RewriteLiveKeyCount(s.file, s.liveKeyCount); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("store: fsync: %w", err)
	}

	s.buf.Reset()

	if !s.deferReindex {
		if err := s.maybeReindexLocked(); err != nil {
			return err
		}
	}

	return nil
}

// applyPatchLocked applies one queued patch against the live on-disk
// chain. Because a hash can have at most one pending patch at a time (a
// second write to the same key forces an earlier flush first), the
// chain state it re-derives here is guaranteed unchanged since the patch
// was queued.
func (s *Store) applyPatchLocked(p buffer.Patch) error {
	src := s.source()
	b := index.Bucket(p.Hash, s.params.BucketCount)

	head, err := index.Read(src, s.params.BucketArrayOffset, b, s.params.NFile)
	if err != nil {
		return err
	}

	switch p.Kind {
	case buffer.New, buffer.Update:
		// Both a brand new key and an update to an existing one prepend the
		// new block at the chain head (spec.md §9: "an implementer may
		// choose uniform prepend for simplicity"). For Update, the prior
		// live block for this key-hash is left entirely untouched — its
		// next-pointer is NOT rewritten, per spec.md's DATA MODEL
		// invariant — and becomes garbage reclaimed only by Prune.
		next := uint64(block.ChainEnd)
		if head != index.Empty {
			next = head
		}
		if err := s.patchNextLocked(p.NewOffset, next); err != nil {
			return err
		}
		if err := index.Write(s.file, s.params.BucketArrayOffset, b, s.params.NFile, p.NewOffset); err != nil {
			return err
		}
		if p.Kind == buffer.New {
			s.liveKeyCount++
		}

	case buffer.Delete:
		if head == index.Empty {
			return ErrNotFound
		}
		target, err := block.FindInChain(src, head, p.Hash, p.Key, s.params)
		if err != nil {
			return err
		}
		if target == nil {
			return ErrNotFound
		}
		if err := s.patchNextLocked(target.Offset, block.Tombstone); err != nil {
			return err
		}
		s.liveKeyCount--
	}

	return nil
}
