// Package block implements the on-disk data block: the append-only record
// that carries one version of a (key, value) pair, plus the shared
// chain-walk that both reader paths (buffered file and mmap) use via the
// diskio.Source abstraction.
package block

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mullenkamp/booklet-go/internal/codec"
	"github.com/mullenkamp/booklet-go/internal/diskio"
	"github.com/mullenkamp/booklet-go/internal/header"
)

// Next-pointer sentinels. Any other value is an absolute file offset of
// the next block in the chain.
const (
	Tombstone = 0 // block was deleted
	ChainEnd  = 1 // end of chain
)

// ErrWrongFixedLen is returned when a value of the wrong length is written
// to a fixed-value-length file.
var ErrWrongFixedLen = errors.New("block: value length does not match the file's fixed value length")

// ErrCorrupt is returned when a chain walk or block read finds a field
// inconsistent with the remaining file bytes, or a cycle.
var ErrCorrupt = errors.New("block: corrupt data block")

// Block is an in-memory representation of one data block, for writing.
type Block struct {
	KeyHash   [codec.HashSize]byte
	Next      uint64
	Key       []byte
	Value     []byte
	Timestamp *int64 // nil means "use current time" at write time, or "absent" for reads
}

// IsFixedVariant reports whether p describes the fixed-value-length block
// layout (no value-length field, no timestamp field).
func IsFixedVariant(p *header.Params) bool {
	return p.NVal == 0
}

// HeaderLen returns the length, in bytes, of a block's fixed-size prefix
// (everything before the key bytes) for the given file layout.
func HeaderLen(p *header.Params) int {
	n := codec.HashSize + p.NFile + p.NKey
	if IsFixedVariant(p) {
		return n
	}
	n += p.NVal
	if p.TimestampEnabled {
		n += header.TimestampWidth
	}
	return n
}

// Encode serializes b according to p's layout. For the fixed-value
// variant, len(b.Value) must equal p.FixedValueLen.
func Encode(p *header.Params, b *Block) ([]byte, error) {
	if IsFixedVariant(p) && len(b.Value) != p.FixedValueLen {
		return nil, ErrWrongFixedLen
	}

	out := make([]byte, 0, HeaderLen(p)+len(b.Key)+len(b.Value))
	out = append(out, b.KeyHash[:]...)
	out = append(out, codec.EncodeUint(b.Next, p.NFile)...)
	out = append(out, codec.EncodeUint(uint64(len(b.Key)), p.NKey)...)

	if !IsFixedVariant(p) {
		out = append(out, codec.EncodeUint(uint64(len(b.Value)), p.NVal)...)
		if p.TimestampEnabled {
			var ts int64
			if b.Timestamp != nil {
				ts = *b.Timestamp
			}
			out = append(out, codec.EncodeUint(uint64(ts), header.TimestampWidth)...)
		}
	}

	out = append(out, b.Key...)
	out = append(out, b.Value...)
	return out, nil
}

// Header is the fixed-size prefix of a block, read without the key or
// value bytes.
type Header struct {
	Offset    uint64
	KeyHash   [codec.HashSize]byte
	Next      uint64
	KeyLen    uint64
	ValueLen  uint64 // for the fixed variant, always p.FixedValueLen
	Timestamp *int64
}

// TotalLen returns the total on-disk length of the block this header
// describes (header + key + value), used to advance a sequential scan.
func (h *Header) TotalLen(p *header.Params) uint64 {
	return uint64(HeaderLen(p)) + h.KeyLen + h.ValueLen
}

// ReadHeader reads the fixed-size prefix of the block starting at offset.
func ReadHeader(src diskio.Source, offset uint64, p *header.Params) (*Header, error) {
	hlen := HeaderLen(p)
	buf := make([]byte, hlen)
	if err := src.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("block: read header at %d: %w", offset, err)
	}

	h := &Header{Offset: offset}
	copy(h.KeyHash[:], buf[:codec.HashSize])
	pos := codec.HashSize

	h.Next = codec.DecodeUint(buf[pos : pos+p.NFile])
	pos += p.NFile

	h.KeyLen = codec.DecodeUint(buf[pos : pos+p.NKey])
	pos += p.NKey

	if IsFixedVariant(p) {
		h.ValueLen = uint64(p.FixedValueLen)
		return h, nil
	}

	h.ValueLen = codec.DecodeUint(buf[pos : pos+p.NVal])
	pos += p.NVal

	if p.TimestampEnabled {
		ts := int64(codec.DecodeUint(buf[pos : pos+header.TimestampWidth]))
		h.Timestamp = &ts
	}

	return h, nil
}

// ReadKey reads the key bytes following h's fixed header.
func ReadKey(src diskio.Source, h *Header, p *header.Params) ([]byte, error) {
	buf := make([]byte, h.KeyLen)
	if err := src.ReadAt(buf, h.Offset+uint64(HeaderLen(p))); err != nil {
		return nil, fmt.Errorf("block: read key at %d: %w", h.Offset, err)
	}
	return buf, nil
}

// ReadValue reads the value bytes following h's key.
func ReadValue(src diskio.Source, h *Header, p *header.Params) ([]byte, error) {
	buf := make([]byte, h.ValueLen)
	off := h.Offset + uint64(HeaderLen(p)) + h.KeyLen
	if err := src.ReadAt(buf, off); err != nil {
		return nil, fmt.Errorf("block: read value at %d: %w", h.Offset, err)
	}
	return buf, nil
}

// TimestampOffset returns the absolute file offset of h's timestamp field
// and whether the layout has one at all. The fixed-value variant and
// files opened with timestamps disabled have no such field.
func TimestampOffset(h *Header, p *header.Params) (uint64, bool) {
	if IsFixedVariant(p) || !p.TimestampEnabled {
		return 0, false
	}
	return h.Offset + uint64(HeaderLen(p)-header.TimestampWidth), true
}

// MaxChainSteps bounds a chain walk so a cyclic (malformed) file is
// reported as corruption rather than looping forever. It is set generously
// above any plausible real chain length; FindInChain always uses this
// fixed bound.
const MaxChainSteps = 1 << 24

// FindInChain walks the singly linked chain starting at headOffset looking
// for a live block whose key-hash matches hash and whose full key bytes
// equal key, and returns the first one it finds. Both a new key and an
// update to an existing one are prepended at the chain head (see
// internal/store), never spliced into the middle of the chain, so the
// first match walking forward from the head is always the most recently
// written block for that key - exactly the one a caller wants. An older,
// superseded copy of the same key may still sit further down the same
// chain; it is simply never reached, and becomes garbage reclaimed only by
// Prune.
// Delete does not prepend: it zeroes the target block's Next in place,
// which also truncates the walk for any block that used to follow it in
// the same bucket. That is intentional (see DESIGN.md) and self-heals on
// the next prune, so a Tombstone encountered anywhere in the walk - not
// just on the searched-for key - ends the search.
func FindInChain(src diskio.Source, headOffset uint64, hash [codec.HashSize]byte, key []byte, p *header.Params) (*Header, error) {
	offset := headOffset
	steps := 0

	for offset != ChainEnd {
		if steps > MaxChainSteps {
			return nil, ErrCorrupt
		}
		steps++

		h, err := ReadHeader(src, offset, p)
		if err != nil {
			return nil, err
		}

		if h.KeyHash == hash && h.Next != Tombstone {
			kb, err := ReadKey(src, h, p)
			if err != nil {
				return nil, err
			}
			if bytes.Equal(kb, key) {
				return h, nil
			}
		}

		if h.Next == Tombstone {
			return nil, nil
		}

		offset = h.Next
	}

	return nil, nil
}
