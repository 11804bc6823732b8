// Package booklet is the public mapping-style API over the on-disk
// key/value engine in internal/store (spec.md §6). It adds pluggable
// key/value serializers (package serial) on top of the core's byte-only
// contract, and otherwise is a thin pass-through: every method here
// encodes/decodes, then dispatches to the one corresponding core call.
package booklet

import (
	"fmt"

	"github.com/mullenkamp/booklet-go/internal/store"
	"github.com/mullenkamp/booklet-go/serial"
)

// Flag selects the open mode (spec.md §6: flag ∈ {r, w, c, n}).
type Flag string

const (
	FlagRead   Flag = "r" // open existing, read-only
	FlagWrite  Flag = "w" // open existing, read-write
	FlagCreate Flag = "c" // open read-write, creating if absent
	FlagNew    Flag = "n" // always create fresh, discarding any prior content
)

func (f Flag) toStore() (store.Flag, error) {
	switch f {
	case FlagRead:
		return store.FlagRead, nil
	case FlagWrite:
		return store.FlagWrite, nil
	case FlagCreate:
		return store.FlagCreate, nil
	case FlagNew:
		return store.FlagNew, nil
	default:
		return 0, ErrBadFlag
	}
}

// Options configures Open. This mirrors the teacher's single `MariOpts`
// struct (SPEC_FULL.md's AMBIENT STACK "Configuration" note): no env vars,
// no config file, no flag parsing in the core.
type Options struct {
	Flag Flag

	// KeyCodec and ValCodec convert Go values to and from the bytes the
	// core stores. Default to serial.Raw{} (identity on []byte) when nil,
	// matching the core's byte-only contract for a plain []byte-keyed,
	// []byte-valued store.
	KeyCodec serial.Codec
	ValCodec serial.Codec

	// NFile, NKey, NVal, FixedValueLen, TimestampEnabled, and BucketCount
	// only matter when creating a new file; BufferThreshold and
	// DeferReindex apply to every writable open. See internal/store.Options
	// for their meaning and defaults.
	NFile            int
	NKey             int
	NVal             int
	FixedValueLen    int
	TimestampEnabled bool
	BucketCount      uint32
	BufferThreshold  int
	DeferReindex     bool
}

// Booklet is one open handle on a store file.
type Booklet struct {
	core *store.Store

	keyCodec serial.Codec
	valCodec serial.Codec
}

// Open opens path per opts.Flag. On a fresh file (c/n with no prior
// content) opts.KeyCodec/ValCodec's codes are persisted in the header; on
// an existing file, a header code other than serial.CodeUser resolves a
// built-in codec automatically via serial.ByCode and opts.KeyCodec/ValCodec
// may be omitted, while CodeUser requires the caller supply an equivalent
// codec (ErrNeedsCodec otherwise).
func Open(path string, opts Options) (*Booklet, error) {
	sf, err := opts.Flag.toStore()
	if err != nil {
		return nil, err
	}

	keyCodec := opts.KeyCodec
	if keyCodec == nil {
		keyCodec = serial.Raw{}
	}
	valCodec := opts.ValCodec
	if valCodec == nil {
		valCodec = serial.Raw{}
	}

	core, err := store.Open(path, store.Options{
		Flag:             sf,
		NFile:            opts.NFile,
		NKey:             opts.NKey,
		NVal:             opts.NVal,
		FixedValueLen:    opts.FixedValueLen,
		TimestampEnabled: opts.TimestampEnabled,
		KeySerialCode:    uint16(keyCodec.Code()),
		ValSerialCode:    uint16(valCodec.Code()),
		BucketCount:      opts.BucketCount,
		BufferThreshold:  opts.BufferThreshold,
		DeferReindex:     opts.DeferReindex,
	})
	if err != nil {
		return nil, err
	}

	params := core.Params()
	resolvedKey, err := resolveCodec(serial.Code(params.KeySerialCode), opts.KeyCodec)
	if err != nil {
		core.Close()
		return nil, err
	}
	resolvedVal, err := resolveCodec(serial.Code(params.ValSerialCode), opts.ValCodec)
	if err != nil {
		core.Close()
		return nil, err
	}

	return &Booklet{core: core, keyCodec: resolvedKey, valCodec: resolvedVal}, nil
}

// resolveCodec picks the codec to actually use for a field: the caller's
// explicit codec whenever one is supplied (its code is not compared with
// the header's), otherwise a built-in reconstructed from the header code,
// or an error if the header says CodeUser and the caller supplied nothing.
func resolveCodec(headerCode serial.Code, supplied serial.Codec) (serial.Codec, error) {
	if supplied != nil {
		return supplied, nil
	}
	if headerCode == serial.CodeUser {
		return nil, ErrNeedsCodec
	}
	c, ok := serial.ByCode(headerCode)
	if !ok {
		return nil, fmt.Errorf("booklet: unrecognized serializer code %d in header", headerCode)
	}
	return c, nil
}

// Close flushes (writer only), releases the file lock, and closes the
// handle. Calling Close more than once is a no-op.
func (b *Booklet) Close() error {
	return b.core.Close()
}

// Reopen closes the current handle and reopens the same path under a new
// flag, keeping the same codecs.
func (b *Booklet) Reopen(flag Flag) error {
	sf, err := flag.toStore()
	if err != nil {
		return err
	}
	return b.core.Reopen(sf)
}

// Sync flushes the write buffer, patches the index, rewrites the live key
// count, and fsyncs.
func (b *Booklet) Sync() error {
	return b.core.Sync()
}

// Clear drops every entry, including metadata, resetting the file to an
// empty store with the same layout and codecs.
func (b *Booklet) Clear() error {
	return b.core.Clear()
}

// ReadOnly reports whether this handle was opened read-only.
func (b *Booklet) ReadOnly() bool {
	return b.core.ReadOnly()
}

// FileSize reports the current on-disk file size.
func (b *Booklet) FileSize() (int64, error) {
	return b.core.FileSize()
}
