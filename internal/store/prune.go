package store

import (
	"fmt"
	"os"

	"github.com/mullenkamp/booklet-go/internal/block"
	"github.com/mullenkamp/booklet-go/internal/diskio"
	"github.com/mullenkamp/booklet-go/internal/header"
	"github.com/mullenkamp/booklet-go/internal/index"
)

// PruneOptions configures a compaction pass (spec.md §4.8).
type PruneOptions struct {
	// MinTimestamp, if set, drops any entry whose timestamp is at or below
	// it, not just superseded/deleted ones. Requires timestamps enabled.
	MinTimestamp *int64

	// BucketCount, if nonzero, replaces the current bucket count in the
	// rebuilt file instead of keeping it - the escape hatch a bulk load
	// run under DeferReindex uses to size the index once at the end.
	BucketCount uint32
}

// Prune rewrites the file to contain only live entries, repacked
// contiguously in their original relative order, with a freshly rebuilt
// bucket array. It is grounded on the teacher's compaction: write the new
// content to a temp file, then close, rename-swap, and reopen, rather than
// resize-in-place (spec.md §4.8 step 5 allows either; the reference
// implementation this library's teacher follows uses the rename-swap
// form). Returns the number of physical blocks removed (superseded updates
// and tombstoned deletes), which can exceed the drop in live key count.
func (s *Store) Prune(opts PruneOptions) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	if s.readOnly {
		return 0, ErrReadOnly
	}
	if opts.MinTimestamp != nil && !s.params.TimestampEnabled {
		return 0, ErrNoTimestamps
	}

	if err := s.flushLocked(); err != nil {
		return 0, err
	}

	before, err := s.countAllBlocksLocked()
	if err != nil {
		return 0, err
	}
	headers, err := s.collectLiveLocked(opts.MinTimestamp)
	if err != nil {
		return 0, err
	}

	bucketCount := opts.BucketCount
	if bucketCount == 0 {
		bucketCount = s.params.BucketCount
	}

	tempPath := s.path + ".prune-tmp"
	tempFile, err := os.OpenFile(tempPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, fmt.Errorf("store: prune: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	newParams := *s.params
	newParams.BucketCount = bucketCount
	newParams.BucketArrayOffset = uint64(header.Size)
	newParams.FirstDataBlockOffset = newParams.BucketArrayOffset + uint64(bucketCount)*uint64(newParams.NFile)
	newParams.LiveKeyCount = uint32(len(headers))

	if err := header.WriteNew(tempFile, newParams); err != nil {
		tempFile.Close()
		return 0, err
	}
	if err := index.ZeroFill(tempFile, newParams.BucketArrayOffset, bucketCount, newParams.NFile); err != nil {
		tempFile.Close()
		return 0, err
	}

	src := s.source()
	heads := make(map[uint32]uint64, len(headers))
	writeOffset := newParams.FirstDataBlockOffset

	for _, h := range headers {
		key, err := block.ReadKey(src, h, s.params)
		if err != nil {
			tempFile.Close()
			return 0, err
		}
		value, err := block.ReadValue(src, h, s.params)
		if err != nil {
			tempFile.Close()
			return 0, err
		}

		b := index.Bucket(h.KeyHash, bucketCount)
		next := uint64(block.ChainEnd)
		if prevHead, ok := heads[b]; ok {
			next = prevHead
		}

		enc, err := block.Encode(&newParams, &block.Block{
			KeyHash:   h.KeyHash,
			Next:      next,
			Key:       key,
			Value:     value,
			Timestamp: h.Timestamp,
		})
		if err != nil {
			tempFile.Close()
			return 0, err
		}

		if _, err := tempFile.WriteAt(enc, int64(writeOffset)); err != nil {
			tempFile.Close()
			return 0, fmt.Errorf("store: prune: write block: %w", err)
		}
		heads[b] = writeOffset
		writeOffset += uint64(len(enc))
	}

	for b, off := range heads {
		if err := index.Write(tempFile, newParams.BucketArrayOffset, b, newParams.NFile, off); err != nil {
			tempFile.Close()
			return 0, err
		}
	}

	if err := tempFile.Sync(); err != nil {
		tempFile.Close()
		return 0, fmt.Errorf("store: prune: fsync temp file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return 0, fmt.Errorf("store: prune: close temp file: %w", err)
	}

	if err := s.swapPrunedFileLocked(tempPath, &newParams, writeOffset); err != nil {
		return 0, err
	}

	return before - len(headers), nil
}

// swapPrunedFileLocked closes the current handle, renames the temp file
// into place (a single rename over the original, so a crash mid-swap
// leaves either the old or the new file at the real path, never neither),
// and reopens it as the writer handle.
func (s *Store) swapPrunedFileLocked(tempPath string, newParams *header.Params, newTail uint64) error {
	if err := s.file.Close(); err != nil {
		return fmt.Errorf("store: prune: close original: %w", err)
	}
	if err := s.lock.Release(); err != nil {
		return fmt.Errorf("store: prune: release lock: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("store: prune: rename temp into place: %w", err)
	}

	lock, err := diskio.AcquireExclusive(s.path)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_RDWR, 0o600)
	if err != nil {
		lock.Release()
		return fmt.Errorf("store: prune: reopen: %w", err)
	}

	s.file = f
	s.lock = lock
	s.fileSrc = diskio.NewFileSource(f)
	s.params = newParams
	s.tailOffset = newTail
	s.liveKeyCount = newParams.LiveKeyCount
	s.buf.Reset()
	return nil
}
