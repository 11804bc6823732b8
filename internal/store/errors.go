package store

import "errors"

// Sentinel errors matching the taxonomy in spec.md §7. The booklet package
// re-exports these same values as its public sentinels.
var (
	ErrNotFound     = errors.New("store: key not found")
	ErrReadOnly     = errors.New("store: write attempted on a read-only handle")
	ErrLocked       = errors.New("store: file is locked by another process")
	ErrCorrupt      = errors.New("store: corrupt file")
	ErrBadFlag      = errors.New("store: unrecognized open flag")
	ErrType         = errors.New("store: wrong value length for the fixed-value variant")
	ErrNoTimestamps = errors.New("store: file was not created with timestamps enabled")
	ErrClosed       = errors.New("store: handle is closed")
)
