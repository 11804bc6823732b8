package codec

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeUintRoundTrip(t *testing.T) {
	cases := []struct {
		width int
		value uint64
	}{
		{1, 200},
		{2, 60000},
		{4, 4000000000},
		{5, 1 << 35},
		{6, 1 << 43},
		{7, 1 << 51},
		{8, 1 << 62},
	}

	for _, c := range cases {
		enc := EncodeUint(c.value, c.width)
		if len(enc) != c.width {
			t.Fatalf("width %d: got encoded length %d", c.width, len(enc))
		}

		got := DecodeUint(enc)
		if got != c.value {
			t.Errorf("width %d: round trip got %d, want %d", c.width, got, c.value)
		}
	}
}

func TestHashDeterministic(t *testing.T) {
	a := Hash([]byte("hello"))
	b := Hash([]byte("hello"))

	if diff := cmp.Diff(a, b); diff != "" {
		t.Errorf("hash not deterministic (-a +b):\n%s", diff)
	}

	c := Hash([]byte("world"))
	if a == c {
		t.Errorf("distinct keys hashed to the same digest")
	}
}

func TestHashLength(t *testing.T) {
	h := Hash([]byte("x"))
	if len(h) != HashSize {
		t.Errorf("got digest length %d, want %d", len(h), HashSize)
	}
}
