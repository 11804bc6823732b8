package booklet

import (
	"errors"

	"github.com/mullenkamp/booklet-go/internal/store"
)

// Sentinel errors matching the taxonomy in spec.md §7. These are the same
// values internal/store returns — re-exported here, not wrapped, so
// errors.Is(err, booklet.ErrNotFound) works regardless of which layer
// produced the error.
var (
	ErrNotFound     = store.ErrNotFound
	ErrReadOnly     = store.ErrReadOnly
	ErrLocked       = store.ErrLocked
	ErrCorrupt      = store.ErrCorrupt
	ErrBadFlag      = store.ErrBadFlag
	ErrType         = store.ErrType
	ErrNoTimestamps = store.ErrNoTimestamps
	ErrClosed       = store.ErrClosed

	// ErrNeedsCodec is returned by Open when the file's header records a
	// key or value serializer code of CodeUser (spec.md §9: "User is only
	// valid at runtime and is never written to disk") and the caller did
	// not supply an equivalent codec via Options.
	ErrNeedsCodec = errors.New("booklet: file was created with a user-supplied serializer; Options must supply an equivalent one")
)
