package store

import (
	"encoding/json"
	"fmt"

	"github.com/mullenkamp/booklet-go/internal/block"
	"github.com/mullenkamp/booklet-go/internal/header"
)

// metadataKey is the reserved byte key under which per-database metadata
// is stored (spec.md §4.9). It is written and read through the ordinary
// set/get paths, and excluded from iteration, Length, and Contains.
//
// encoding/json is used for the metadata payload itself: no library in
// the example pack plausibly grounds a file-format metadata blob (see
// DESIGN.md), so this is a deliberate, documented stdlib usage.
var metadataKey = []byte("\x00\x00booklet-reserved-metadata-key\x00\x00")

// SetMetadata JSON-encodes v and stores it under the reserved metadata
// key, with an optional timestamp.
func (s *Store) SetMetadata(v interface{}, ts *int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.readOnly {
		return ErrReadOnly
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode metadata: %w", err)
	}
	return s.setLocked(metadataKey, raw, ts)
}

// GetMetadata decodes the stored metadata into out (if non-nil) and
// reports whether metadata has ever been set, plus its timestamp when
// timestamps are enabled.
func (s *Store) GetMetadata(out interface{}) (ts *int64, found bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}

	if err := s.flushIfPendingLocked(s.metadataHash); err != nil {
		return nil, false, err
	}

	hdr, err := s.findLocked(s.metadataHash, metadataKey)
	if err != nil {
		return nil, false, err
	}
	if hdr == nil {
		return nil, false, nil
	}

	raw, err := block.ReadValue(s.source(), hdr, s.params)
	if err != nil {
		return nil, false, err
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, false, fmt.Errorf("store: decode metadata: %w", err)
		}
	}
	return hdr.Timestamp, true, nil
}

// SetFileTimestamp overwrites the header's optional whole-file timestamp
// field (the original's `_set_file_timestamp`; see SPEC_FULL.md).
func (s *Store) SetFileTimestamp(ts int64) error {
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
	return header.RewriteFileTimestamp(s.file, s.params, ts)
}

// FileTimestamp returns the header's whole-file timestamp, nil if unset.
func (s *Store) FileTimestamp() (*int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.params.FileTimestamp, nil
}
