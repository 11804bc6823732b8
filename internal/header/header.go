// Package header implements the self-describing 200-byte file header that
// opens the data file: magic, version, layout constants, the live key
// count, serializer codes, and the offsets of the bucket array and first
// data block. Every later opener reads this prefix before touching
// anything else in the file.
package header

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/mullenkamp/booklet-go/internal/codec"
)

// Size is the fixed length of the reserved header prefix. The bucket array
// starts here unless it has been relocated by auto-reindex.
const Size = 200

// Version is the current on-disk format version.
const Version uint16 = 1

// Magic identifies the file format. Sixteen bytes, written once at create.
var Magic = [16]byte{'B', 'O', 'O', 'K', 'L', 'E', 'T', 'v', '1', '-', 'K', 'V', 'F', 'I', 'L', 'E'}

// Field byte offsets within the 200-byte prefix.
const (
	offMagic          = 0
	offVersion        = 16
	offNFile          = 18
	offNKey           = 19
	offNVal           = 20
	offFixedValueLen  = 21 // 2 bytes
	offTimestampFlag  = 23
	offLiveKeyCount   = 24 // 4 bytes
	offKeySerialCode  = 28 // 2 bytes
	offValSerialCode  = 30 // 2 bytes
	offBucketCount    = 32 // 4 bytes
	offBucketArrayOff = 36 // NFile bytes
	// offFirstDataBlockOff and offFileTimestamp follow, at variable
	// positions depending on NFile; computed by firstDataBlockOffsetPos
	// and fileTimestampPos below.
)

// TimestampWidth is the byte width of a stored per-entry or file-level
// timestamp: microseconds since the POSIX epoch, little-endian.
const TimestampWidth = 7

// ErrCorrupt is returned when the magic or version does not match, or a
// field is out of its legal range.
var ErrCorrupt = errors.New("header: corrupt or unrecognized file")

// Params describes the layout and metadata recorded in the header.
type Params struct {
	NFile             int // bytes per file offset (1-8)
	NKey              int // bytes per key length (1-8)
	NVal              int // bytes per value length, 0 for the fixed-value variant
	FixedValueLen     int // fixed value length, 0 for the variable variant
	TimestampEnabled  bool

	LiveKeyCount uint32

	KeySerialCode   uint16
	ValSerialCode   uint16

	BucketCount          uint32
	BucketArrayOffset    uint64
	FirstDataBlockOffset uint64

	// FileTimestamp is nil unless TimestampEnabled and a file-level
	// timestamp has been set via SetFileTimestamp.
	FileTimestamp *int64
}

func (p *Params) firstDataBlockOffsetPos() int {
	return offBucketArrayOff + p.NFile
}

func (p *Params) fileTimestampPos() int {
	return p.firstDataBlockOffsetPos() + p.NFile
}

// WriteNew writes the initial 200-byte header for a freshly created file:
// exactly Size bytes at offset 0, regardless of the file's current
// position, since a header is only ever written there.
func WriteNew(f *os.File, p Params) error {
	buf := make([]byte, Size)

	copy(buf[offMagic:], Magic[:])
	copy(buf[offVersion:], codec.EncodeUint16(Version))

	buf[offNFile] = byte(p.NFile)
	buf[offNKey] = byte(p.NKey)
	buf[offNVal] = byte(p.NVal)
	copy(buf[offFixedValueLen:], codec.EncodeUint16(uint16(p.FixedValueLen)))

	if p.TimestampEnabled {
		buf[offTimestampFlag] = 1
	}

	copy(buf[offLiveKeyCount:], codec.EncodeUint32(p.LiveKeyCount))
	copy(buf[offKeySerialCode:], codec.EncodeUint16(p.KeySerialCode))
	copy(buf[offValSerialCode:], codec.EncodeUint16(p.ValSerialCode))
	copy(buf[offBucketCount:], codec.EncodeUint32(p.BucketCount))
	copy(buf[offBucketArrayOff:], codec.EncodeUint(p.BucketArrayOffset, p.NFile))
	copy(buf[p.firstDataBlockOffsetPos():], codec.EncodeUint(p.FirstDataBlockOffset, p.NFile))

	if p.TimestampEnabled && p.FileTimestamp != nil {
		copy(buf[p.fileTimestampPos():], codec.EncodeUint(uint64(*p.FileTimestamp), TimestampWidth))
	}

	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("header: write: %w", err)
	}

	return nil
}

// Read parses and validates the 200-byte header prefix.
func Read(f *os.File) (*Params, error) {
	buf := make([]byte, Size)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return nil, fmt.Errorf("header: read: %w", err)
	}

	if !bytes.Equal(buf[offMagic:offMagic+16], Magic[:]) {
		return nil, ErrCorrupt
	}

	version, err := codec.DecodeUint16(buf[offVersion : offVersion+2])
	if err != nil || version != Version {
		return nil, ErrCorrupt
	}

	p := &Params{
		NFile:            int(buf[offNFile]),
		NKey:             int(buf[offNKey]),
		NVal:             int(buf[offNVal]),
		TimestampEnabled: buf[offTimestampFlag] != 0,
	}

	if p.NFile < 1 || p.NFile > 8 || p.NKey < 1 || p.NKey > 8 || p.NVal > 8 {
		return nil, ErrCorrupt
	}

	fixedLen, err := codec.DecodeUint16(buf[offFixedValueLen : offFixedValueLen+2])
	if err != nil {
		return nil, ErrCorrupt
	}
	p.FixedValueLen = int(fixedLen)

	liveCount, err := codec.DecodeUint32(buf[offLiveKeyCount : offLiveKeyCount+4])
	if err != nil {
		return nil, ErrCorrupt
	}
	p.LiveKeyCount = liveCount

	keyCode, err := codec.DecodeUint16(buf[offKeySerialCode : offKeySerialCode+2])
	if err != nil {
		return nil, ErrCorrupt
	}
	p.KeySerialCode = keyCode

	valCode, err := codec.DecodeUint16(buf[offValSerialCode : offValSerialCode+2])
	if err != nil {
		return nil, ErrCorrupt
	}
	p.ValSerialCode = valCode

	bucketCount, err := codec.DecodeUint32(buf[offBucketCount : offBucketCount+4])
	if err != nil {
		return nil, ErrCorrupt
	}
	p.BucketCount = bucketCount

	p.BucketArrayOffset = codec.DecodeUint(buf[offBucketArrayOff : offBucketArrayOff+p.NFile])

	firstDataPos := p.firstDataBlockOffsetPos()
	p.FirstDataBlockOffset = codec.DecodeUint(buf[firstDataPos : firstDataPos+p.NFile])

	if p.TimestampEnabled {
		tsPos := p.fileTimestampPos()
		tsBytes := buf[tsPos : tsPos+TimestampWidth]
		allZero := true
		for _, b := range tsBytes {
			if b != 0 {
				allZero = false
				break
			}
		}
		if !allZero {
			ts := int64(codec.DecodeUint(tsBytes))
			p.FileTimestamp = &ts
		}
	}

	return p, nil
}

// RewriteLiveKeyCount overwrites just the live-key-count field. Called on
// every sync.
func RewriteLiveKeyCount(f *os.File, count uint32) error {
	if _, err := f.WriteAt(codec.EncodeUint32(count), offLiveKeyCount); err != nil {
		return fmt.Errorf("header: rewrite live key count: %w", err)
	}
	return nil
}

// RewriteOffsets overwrites the bucket-array and first-data-block offset
// fields together, used by auto-reindex and prune.
func RewriteOffsets(f *os.File, p *Params, bucketArrayOffset, firstDataBlockOffset uint64) error {
	p.BucketArrayOffset = bucketArrayOffset
	p.FirstDataBlockOffset = firstDataBlockOffset

	if _, err := f.WriteAt(codec.EncodeUint(bucketArrayOffset, p.NFile), offBucketArrayOff); err != nil {
		return fmt.Errorf("header: rewrite offsets: %w", err)
	}
	if _, err := f.WriteAt(codec.EncodeUint(firstDataBlockOffset, p.NFile), int64(p.firstDataBlockOffsetPos())); err != nil {
		return fmt.Errorf("header: rewrite offsets: %w", err)
	}
	return nil
}

// RewriteBucketCount overwrites the bucket-count field, used by
// auto-reindex and prune when the bucket count changes.
func RewriteBucketCount(f *os.File, count uint32) error {
	if _, err := f.WriteAt(codec.EncodeUint32(count), offBucketCount); err != nil {
		return fmt.Errorf("header: rewrite bucket count: %w", err)
	}
	return nil
}

// RewriteFileTimestamp overwrites the optional file-level timestamp field.
// It is a no-op error if timestamps are not enabled for this file.
func RewriteFileTimestamp(f *os.File, p *Params, ts int64) error {
	if !p.TimestampEnabled {
		return errors.New("header: file was not created with timestamps enabled")
	}

	p.FileTimestamp = &ts
	if _, err := f.WriteAt(codec.EncodeUint(uint64(ts), TimestampWidth), int64(p.fileTimestampPos())); err != nil {
		return fmt.Errorf("header: rewrite file timestamp: %w", err)
	}
	return nil
}
