// Package store implements the core engine: the open/close state machine,
// the write buffer's sync/flush protocol, reader-path dispatch, and
// prune/auto-reindex. Everything in spec.md §4.4-§4.10 and §5 lives here.
package store

import (
	"fmt"
	"os"
	"sync"

	"github.com/mullenkamp/booklet-go/internal/buffer"
	"github.com/mullenkamp/booklet-go/internal/codec"
	"github.com/mullenkamp/booklet-go/internal/diskio"
	"github.com/mullenkamp/booklet-go/internal/header"
	"github.com/mullenkamp/booklet-go/internal/index"
)

// Flag selects the open mode, matching spec.md §6's flag ∈ {r, w, c, n}.
type Flag int

const (
	// FlagRead opens an existing file read-only (shared lock, mmap).
	FlagRead Flag = iota
	// FlagWrite opens an existing file read-write; fails if absent.
	FlagWrite
	// FlagCreate opens read-write, creating the file if absent.
	FlagCreate
	// FlagNew always creates a fresh file, discarding any existing content.
	FlagNew
)

const (
	defaultNFile          = 5
	defaultNKey           = 4
	defaultNVal           = 4
	defaultBucketCount    = 12007
	defaultBufferHighWater = 4 << 20 // 4 MiB, spec.md §4.5 default
)

// Options configures Open. Zero values take the defaults noted per field.
type Options struct {
	Flag Flag

	// NFile, NKey, NVal and FixedValueLen only matter when creating a new
	// file; an existing file's layout comes from its own header. NVal and
	// FixedValueLen are mutually exclusive: set FixedValueLen > 0 for the
	// fixed-value variant, leave both zero for the variable variant with
	// default NVal.
	NFile         int // default 5
	NKey          int // default 4
	NVal          int // default 4; ignored if FixedValueLen > 0
	FixedValueLen int // 0 selects the variable-length value variant

	TimestampEnabled bool

	KeySerialCode uint16
	ValSerialCode uint16

	// BucketCount is the initial bucket array size for a newly created
	// file. Default 12007 (the first entry of the auto-reindex sequence).
	BucketCount uint32

	// BufferThreshold is the write buffer's high-water mark in bytes.
	// Default 4 MiB.
	BufferThreshold int

	// DeferReindex disables the automatic bucket-count growth check on
	// every sync (the original's `defer_reindex` escape hatch for bulk
	// loads that will Prune with an explicit bucket count at the end).
	DeferReindex bool
}

func (o *Options) applyDefaults() {
	if o.NFile == 0 {
		o.NFile = defaultNFile
	}
	if o.NKey == 0 {
		o.NKey = defaultNKey
	}
	if o.FixedValueLen > 0 {
		o.NVal = 0
	} else if o.NVal == 0 {
		o.NVal = defaultNVal
	}
	if o.BucketCount == 0 {
		o.BucketCount = defaultBucketCount
	}
	if o.BufferThreshold == 0 {
		o.BufferThreshold = defaultBufferHighWater
	}
}

// Store is the core engine for one open file. All exported methods are
// safe for concurrent use by multiple goroutines within the process; the
// mutex serializes every mutation and the read critical section, per
// spec.md §5.
type Store struct {
	mu sync.Mutex

	path     string
	readOnly bool
	closed   bool

	file *os.File
	lock *diskio.Lock

	fileSrc *diskio.FileSource
	mmap    *diskio.MMap

	params *header.Params

	// tailOffset is the file's on-disk size as of the last flush: where
	// the next directly-appended or buffer-flushed block will land.
	tailOffset uint64

	liveKeyCount uint32

	buf          *buffer.Buffer
	deferReindex bool

	metadataHash [codec.HashSize]byte
}

// Open opens path per opts.Flag, returning a ready-to-use Store.
func Open(path string, opts Options) (*Store, error) {
	o := opts
	o.applyDefaults()

	switch o.Flag {
	case FlagRead:
		return openReader(path)
	case FlagWrite, FlagCreate, FlagNew:
		return openWriter(path, o)
	default:
		return nil, ErrBadFlag
	}
}

func openReader(path string) (*Store, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: stat: %w", err)
	}

	lock, err := diskio.AcquireShared(path)
	if err != nil {
		if err == diskio.ErrLocked {
			return nil, ErrLocked
		}
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDONLY, 0o600)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("store: open: %w", err)
	}

	params, err := header.Read(f)
	if err != nil {
		f.Close()
		lock.Release()
		return nil, translateHeaderErr(err)
	}

	mm, err := diskio.MapReadOnly(f)
	if err != nil {
		f.Close()
		lock.Release()
		return nil, err
	}

	return &Store{
		path:         path,
		readOnly:     true,
		file:         f,
		lock:         lock,
		mmap:         mm,
		params:       params,
		liveKeyCount: params.LiveKeyCount,
		metadataHash: codec.Hash(metadataKey),
	}, nil
}

func openWriter(path string, o Options) (*Store, error) {
	exists := true
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("store: stat: %w", err)
		}
		exists = false
	}

	if o.Flag == FlagWrite && !exists {
		return nil, ErrNotFound
	}

	lock, err := diskio.AcquireExclusive(path)
	if err != nil {
		if err == diskio.ErrLocked {
			return nil, ErrLocked
		}
		return nil, err
	}

	openFlags := os.O_RDWR | os.O_CREATE
	if o.Flag == FlagNew {
		openFlags |= os.O_TRUNC
	}

	f, err := os.OpenFile(path, openFlags, 0o600)
	if err != nil {
		lock.Release()
		return nil, fmt.Errorf("store: open: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		lock.Release()
		return nil, fmt.Errorf("store: stat: %w", err)
	}

	var params *header.Params
	if st.Size() == 0 {
		params, err = createFresh(f, o)
	} else {
		params, err = header.Read(f)
	}
	if err != nil {
		f.Close()
		lock.Release()
		return nil, translateHeaderErr(err)
	}

	st, err = f.Stat()
	if err != nil {
		f.Close()
		lock.Release()
		return nil, fmt.Errorf("store: stat: %w", err)
	}

	s := &Store{
		path:         path,
		readOnly:     false,
		file:         f,
		lock:         lock,
		fileSrc:      diskio.NewFileSource(f),
		params:       params,
		tailOffset:   uint64(st.Size()),
		liveKeyCount: params.LiveKeyCount,
		buf:          buffer.New(o.BufferThreshold),
		deferReindex: o.DeferReindex,
		metadataHash: codec.Hash(metadataKey),
	}
	return s, nil
}

// createFresh lays out a brand new file: header, zero-filled bucket array,
// and records the first-data-block offset immediately following it.
func createFresh(f *os.File, o Options) (*header.Params, error) {
	bucketArrayOffset := uint64(header.Size)
	firstDataBlockOffset := bucketArrayOffset + uint64(o.BucketCount)*uint64(o.NFile)

	p := header.Params{
		NFile:                o.NFile,
		NKey:                 o.NKey,
		NVal:                 o.NVal,
		FixedValueLen:        o.FixedValueLen,
		TimestampEnabled:     o.TimestampEnabled,
		KeySerialCode:        o.KeySerialCode,
		ValSerialCode:        o.ValSerialCode,
		BucketCount:          o.BucketCount,
		BucketArrayOffset:    bucketArrayOffset,
		FirstDataBlockOffset: firstDataBlockOffset,
	}

	if err := header.WriteNew(f, p); err != nil {
		return nil, err
	}
	if err := index.ZeroFill(f, bucketArrayOffset, o.BucketCount, o.NFile); err != nil {
		return nil, err
	}

	return &p, nil
}

func translateHeaderErr(err error) error {
	if err == header.ErrCorrupt {
		return ErrCorrupt
	}
	return err
}

// source returns whichever byte source backs reads for this handle: the
// mmap for a reader, the buffered file for the writer (see spec.md §4.6).
func (s *Store) source() diskio.Source {
	if s.readOnly {
		return s.mmap
	}
	return s.fileSrc
}

// Close flushes (writer only), releases the lock, and closes the handle.
// Calling Close more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeLocked()
}

func (s *Store) closeLocked() error {
	if s.closed {
		return nil
	}
	s.closed = true

	if s.readOnly {
		if s.mmap != nil {
			if err := s.mmap.Close(); err != nil {
				return err
			}
		}
	} else {
		if err := s.flushLocked(); err != nil {
			return err
		}
	}

	if err := s.lock.Release(); err != nil {
		return err
	}
	return s.file.Close()
}

// Reopen closes the current handle and reopens the same path under a new
// flag, preserving the buffer threshold and defer-reindex setting.
func (s *Store) Reopen(flag Flag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path
	bufThreshold := defaultBufferHighWater
	if s.buf != nil {
		bufThreshold = s.buf.Threshold()
	}
	deferReindex := s.deferReindex

	if err := s.closeLocked(); err != nil {
		return err
	}

	reopened, err := Open(path, Options{Flag: flag, BufferThreshold: bufThreshold, DeferReindex: deferReindex})
	if err != nil {
		return err
	}

	reopened.mu.Lock()
	defer reopened.mu.Unlock()
	s.path = reopened.path
	s.readOnly = reopened.readOnly
	s.closed = false
	s.file = reopened.file
	s.lock = reopened.lock
	s.fileSrc = reopened.fileSrc
	s.mmap = reopened.mmap
	s.params = reopened.params
	s.tailOffset = reopened.tailOffset
	s.liveKeyCount = reopened.liveKeyCount
	s.buf = reopened.buf
	s.deferReindex = reopened.deferReindex
	s.metadataHash = reopened.metadataHash
	return nil
}

// FileSize reports the current on-disk file size.
func (s *Store) FileSize() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	st, err := s.file.Stat()
	if err != nil {
		return 0, fmt.Errorf("store: stat: %w", err)
	}
	return st.Size(), nil
}

// ReadOnly reports whether this handle was opened read-only.
func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// Params returns a copy of the file's layout parameters.
func (s *Store) Params() header.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.params
}
