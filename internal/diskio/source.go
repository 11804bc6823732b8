// Package diskio holds the low-level, platform-facing pieces shared by both
// reader paths: the advisory file lock, the read-only memory map, and the
// "abstract byte source" that lets a single chain-walk implementation serve
// both the buffered-file writer path and the memory-mapped reader path.
package diskio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// ErrOutOfRange is returned by a Source when a read would run past the end
// of the backing data. Chain walks treat this as corruption.
var ErrOutOfRange = errors.New("diskio: read past end of file")

// Source is the abstract byte source both reader paths implement. Buffered
// file reads and memory-map reads produce identical results for every
// ReadAt call at the same offset/length.
type Source interface {
	// ReadAt fills buf with len(buf) bytes starting at offset. It returns
	// ErrOutOfRange if the read would exceed the source's extent.
	ReadAt(buf []byte, offset uint64) error
	// Size reports the current extent of the source in bytes.
	Size() uint64
}

// FileSource is the buffered-file implementation of Source, used by the
// writer for its own reads. It issues pread-style seek+read sequences via
// os.File.ReadAt, which does not disturb the file's shared offset.
type FileSource struct {
	f *os.File
}

// NewFileSource wraps f as a Source.
func NewFileSource(f *os.File) *FileSource {
	return &FileSource{f: f}
}

func (s *FileSource) ReadAt(buf []byte, offset uint64) error {
	n, err := s.f.ReadAt(buf, int64(offset))
	if n == len(buf) {
		return nil
	}
	if err == nil || errors.Is(err, io.EOF) {
		return ErrOutOfRange
	}
	return fmt.Errorf("diskio: file read: %w", err)
}

func (s *FileSource) Size() uint64 {
	st, err := s.f.Stat()
	if err != nil {
		return 0
	}
	return uint64(st.Size())
}

// MMap is a read-only memory-mapped view of a file, used by read-only
// openers. Bytes returned from it alias the mapped region and must not
// outlive Close.
type MMap struct {
	data []byte
}

// MapReadOnly opens and maps f read-only, advising the kernel that access
// will be random (MADV_RANDOM), since chain walks jump around the file
// rather than scanning sequentially.
func MapReadOnly(f *os.File) (*MMap, error) {
	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("diskio: stat for mmap: %w", err)
	}

	size := st.Size()
	if size == 0 {
		return &MMap{data: nil}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("diskio: mmap: %w", err)
	}

	_ = unix.Madvise(data, unix.MADV_RANDOM)

	return &MMap{data: data}, nil
}

func (m *MMap) ReadAt(buf []byte, offset uint64) error {
	if offset+uint64(len(buf)) > uint64(len(m.data)) {
		return ErrOutOfRange
	}
	copy(buf, m.data[offset:offset+uint64(len(buf))])
	return nil
}

func (m *MMap) Size() uint64 {
	return uint64(len(m.data))
}

// Slice returns a slice aliasing the mapped region, for callers (value
// reads) that want to avoid a copy. The slice must not be retained past
// Close.
func (m *MMap) Slice(offset, length uint64) ([]byte, error) {
	if offset+length > uint64(len(m.data)) {
		return nil, ErrOutOfRange
	}
	return m.data[offset : offset+length], nil
}

// Close unmaps the region.
func (m *MMap) Close() error {
	if m.data == nil {
		return nil
	}
	data := m.data
	m.data = nil
	if err := unix.Munmap(data); err != nil {
		return fmt.Errorf("diskio: munmap: %w", err)
	}
	return nil
}

// Lock acquires an advisory lock on path, shared for readers and exclusive
// for the single writer. It fails fast (does not block) on contention.
type Lock struct {
	fl *flock.Flock
}

// ErrLocked is returned when the requested lock is already held elsewhere.
var ErrLocked = errors.New("diskio: file is locked by another process")

// AcquireExclusive takes the writer's exclusive advisory lock.
func AcquireExclusive(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("diskio: lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// AcquireShared takes a reader's shared advisory lock.
func AcquireShared(path string) (*Lock, error) {
	fl := flock.New(path)
	ok, err := fl.TryRLock()
	if err != nil {
		return nil, fmt.Errorf("diskio: lock: %w", err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return &Lock{fl: fl}, nil
}

// Release drops the lock.
func (l *Lock) Release() error {
	if l == nil || l.fl == nil {
		return nil
	}
	return l.fl.Unlock()
}
