package block

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mullenkamp/booklet-go/internal/codec"
	"github.com/mullenkamp/booklet-go/internal/diskio"
	"github.com/mullenkamp/booklet-go/internal/header"
)

func openTemp(t *testing.T) *os.File {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(t.TempDir(), "data.bkl"), os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		t.Fatalf("open temp file: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return f
}

func variableParams() *header.Params {
	return &header.Params{NFile: 5, NKey: 1, NVal: 2, TimestampEnabled: true}
}

func fixedParams(fixedLen int) *header.Params {
	return &header.Params{NFile: 5, NKey: 1, NVal: 0, FixedValueLen: fixedLen}
}

func appendBlock(t *testing.T, f *os.File, p *header.Params, b *Block) uint64 {
	t.Helper()
	enc, err := Encode(p, b)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	st, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	off := uint64(st.Size())
	if _, err := f.WriteAt(enc, int64(off)); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	return off
}

func TestEncodeDecodeVariableVariantRoundTrip(t *testing.T) {
	f := openTemp(t)
	p := variableParams()

	ts := int64(99)
	b := &Block{
		KeyHash:   codec.Hash([]byte("alpha")),
		Next:      ChainEnd,
		Key:       []byte("alpha"),
		Value:     []byte("ab"),
		Timestamp: &ts,
	}

	off := appendBlock(t, f, p, b)

	src := diskio.NewFileSource(f)
	h, err := ReadHeader(src, off, p)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if h.KeyHash != b.KeyHash || h.Next != ChainEnd || h.KeyLen != 5 || h.ValueLen != 2 {
		t.Fatalf("header mismatch: %+v", h)
	}
	if h.Timestamp == nil || *h.Timestamp != ts {
		t.Fatalf("timestamp mismatch: %+v", h.Timestamp)
	}

	kb, err := ReadKey(src, h, p)
	if err != nil || string(kb) != "alpha" {
		t.Fatalf("ReadKey = %q, %v", kb, err)
	}

	vb, err := ReadValue(src, h, p)
	if err != nil || string(vb) != "ab" {
		t.Fatalf("ReadValue = %q, %v", vb, err)
	}
}

func TestFixedVariantRejectsWrongLength(t *testing.T) {
	p := fixedParams(4)
	b := &Block{KeyHash: codec.Hash([]byte("k")), Next: ChainEnd, Key: []byte("k"), Value: []byte("abc")}

	if _, err := Encode(p, b); err != ErrWrongFixedLen {
		t.Fatalf("got %v, want ErrWrongFixedLen", err)
	}
}

func TestFixedVariantHasNoValueLenOrTimestampField(t *testing.T) {
	p := fixedParams(4)
	b := &Block{KeyHash: codec.Hash([]byte("k")), Next: ChainEnd, Key: []byte("k"), Value: []byte("abcd")}

	enc, err := Encode(p, b)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := codec.HashSize + p.NFile + p.NKey + len(b.Key) + len(b.Value)
	if len(enc) != want {
		t.Fatalf("encoded length = %d, want %d (no value-len/timestamp field)", len(enc), want)
	}
}

func TestFindInChainWalksToMatchingKey(t *testing.T) {
	f := openTemp(t)
	p := variableParams()

	tailOff := appendBlock(t, f, p, &Block{
		KeyHash: codec.Hash([]byte("tail")),
		Next:    ChainEnd,
		Key:     []byte("tail"),
		Value:   []byte("tv"),
	})
	headOff := appendBlock(t, f, p, &Block{
		KeyHash: codec.Hash([]byte("head")),
		Next:    tailOff,
		Key:     []byte("head"),
		Value:   []byte("hv"),
	})

	src := diskio.NewFileSource(f)

	got, err := FindInChain(src, headOff, codec.Hash([]byte("tail")), []byte("tail"), p)
	if err != nil {
		t.Fatalf("FindInChain: %v", err)
	}
	if got == nil || got.Offset != tailOff {
		t.Fatalf("got %+v, want block at %d", got, tailOff)
	}
}

func TestFindInChainMissKeyReturnsNilNil(t *testing.T) {
	f := openTemp(t)
	p := variableParams()

	headOff := appendBlock(t, f, p, &Block{
		KeyHash: codec.Hash([]byte("head")),
		Next:    ChainEnd,
		Key:     []byte("head"),
		Value:   []byte("hv"),
	})

	src := diskio.NewFileSource(f)
	got, err := FindInChain(src, headOff, codec.Hash([]byte("nope")), []byte("nope"), p)
	if err != nil {
		t.Fatalf("FindInChain: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil for absent key", got)
	}
}

func TestFindInChainStopsAtTombstone(t *testing.T) {
	f := openTemp(t)
	p := variableParams()

	// tailOff would hold "tail", but is never linked to because the
	// middle block is tombstoned (Next == 0) before we ever get there.
	tailOff := appendBlock(t, f, p, &Block{
		KeyHash: codec.Hash([]byte("tail")),
		Next:    ChainEnd,
		Key:     []byte("tail"),
		Value:   []byte("tv"),
	})
	_ = tailOff

	deletedOff := appendBlock(t, f, p, &Block{
		KeyHash: codec.Hash([]byte("deleted")),
		Next:    Tombstone,
		Key:     []byte("deleted"),
		Value:   []byte("dv"),
	})
	headOff := appendBlock(t, f, p, &Block{
		KeyHash: codec.Hash([]byte("head")),
		Next:    deletedOff,
		Key:     []byte("head"),
		Value:   []byte("hv"),
	})

	src := diskio.NewFileSource(f)

	got, err := FindInChain(src, headOff, codec.Hash([]byte("tail")), []byte("tail"), p)
	if err != nil {
		t.Fatalf("FindInChain: %v", err)
	}
	if got != nil {
		t.Fatalf("expected tail to be unreachable past a tombstoned predecessor, got %+v", got)
	}

	got, err = FindInChain(src, headOff, codec.Hash([]byte("deleted")), []byte("deleted"), p)
	if err != nil {
		t.Fatalf("FindInChain: %v", err)
	}
	if got != nil {
		t.Fatalf("deleted key should not be found, got %+v", got)
	}
}

// Scenario 2 (spec.md §8): an engineered key-hash collision. Two distinct
// keys forced onto the same 13-byte digest still both resolve correctly by
// walking the chain down to full-key comparison; the chain for that bucket
// has length 2.
func TestFindInChainResolvesEngineeredHashCollision(t *testing.T) {
	f := openTemp(t)
	p := variableParams()

	// Both blocks share this same hash on purpose, simulating a real
	// (extremely unlikely in practice) 13-byte digest collision between
	// two unrelated keys - the chain walk must not short-circuit on the
	// hash match alone.
	var collidingHash [codec.HashSize]byte
	copy(collidingHash[:], []byte("collision!!!!"))

	firstOff := appendBlock(t, f, p, &Block{
		KeyHash: collidingHash,
		Next:    ChainEnd,
		Key:     []byte("first-key"),
		Value:   []byte("fv"),
	})
	secondOff := appendBlock(t, f, p, &Block{
		KeyHash: collidingHash,
		Next:    firstOff,
		Key:     []byte("second-key"),
		Value:   []byte("sv"),
	})

	src := diskio.NewFileSource(f)

	got, err := FindInChain(src, secondOff, collidingHash, []byte("second-key"), p)
	if err != nil {
		t.Fatalf("FindInChain(second-key): %v", err)
	}
	if got == nil || got.Offset != secondOff {
		t.Fatalf("got %+v, want block at %d", got, secondOff)
	}

	got, err = FindInChain(src, secondOff, collidingHash, []byte("first-key"), p)
	if err != nil {
		t.Fatalf("FindInChain(first-key): %v", err)
	}
	if got == nil || got.Offset != firstOff {
		t.Fatalf("got %+v, want block at %d", got, firstOff)
	}

	// A query key with the same hash but matching neither stored key must
	// not be confused with either - full key-byte comparison is what
	// disambiguates a shared digest.
	got, err = FindInChain(src, secondOff, collidingHash, []byte("third-key"), p)
	if err != nil {
		t.Fatalf("FindInChain(third-key): %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil for a third key sharing the hash but never stored", got)
	}

	// Chain length for this bucket is 2: walking from the head visits
	// exactly second-key, then first-key, whose next-pointer is ChainEnd.
	steps := 0
	offset := secondOff
	for offset != ChainEnd {
		h, err := ReadHeader(src, offset, p)
		if err != nil {
			t.Fatalf("ReadHeader: %v", err)
		}
		steps++
		offset = h.Next
	}
	if steps != 2 {
		t.Fatalf("chain length = %d, want 2", steps)
	}
}

func TestTotalLenAdvancesScan(t *testing.T) {
	p := variableParams()
	h := &Header{KeyLen: 5, ValueLen: 2}
	if got, want := h.TotalLen(p), uint64(HeaderLen(p)+5+2); got != want {
		t.Errorf("TotalLen = %d, want %d", got, want)
	}
}
