package serial

import (
	"encoding/gob"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRawRoundTrip(t *testing.T) {
	c := Raw{}
	enc, err := c.Encode([]byte("hello"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff([]byte("hello"), dec); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestRawRejectsNonBytes(t *testing.T) {
	if _, err := (Raw{}).Encode("not bytes"); err == nil {
		t.Error("expected an error encoding a non-[]byte value")
	}
}

func TestUTF8StringRoundTrip(t *testing.T) {
	c := UTF8String{}
	enc, err := c.Encode("héllo")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec != "héllo" {
		t.Errorf("got %q, want %q", dec, "héllo")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	c := JSON{}
	in := map[string]interface{}{"a": float64(1), "b": "two"}
	enc, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(in, dec); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestGobRoundTrip(t *testing.T) {
	type Payload struct {
		Name  string
		Count int
	}
	gob.Register(Payload{})

	c := Gob{}
	in := Payload{Name: "x", Count: 3}
	enc, err := c.Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	dec, err := c.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got, ok := dec.(Payload)
	if !ok {
		t.Fatalf("decoded value is %T, want Payload", dec)
	}
	if got != in {
		t.Errorf("got %+v, want %+v", got, in)
	}
}

func TestIntegerCodecsRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		c    Integer
		in   interface{}
	}{
		{"uint8", Integer{Width: 1, Signed: false}, uint8(200)},
		{"uint16", Integer{Width: 2, Signed: false}, uint16(50000)},
		{"uint32", Integer{Width: 4, Signed: false}, uint32(4000000000)},
		{"uint64", Integer{Width: 8, Signed: false}, uint64(1) << 40},
		{"int8", Integer{Width: 1, Signed: true}, int8(-100)},
		{"int16", Integer{Width: 2, Signed: true}, int16(-30000)},
		{"int32", Integer{Width: 4, Signed: true}, int32(-2000000000)},
		{"int64", Integer{Width: 8, Signed: true}, int64(-1) << 40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enc, err := tc.c.Encode(tc.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			if len(enc) != tc.c.Width {
				t.Fatalf("got %d encoded bytes, want %d", len(enc), tc.c.Width)
			}
			dec, err := tc.c.Decode(enc)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if dec != tc.in {
				t.Errorf("got %v (%T), want %v (%T)", dec, dec, tc.in, tc.in)
			}
		})
	}
}

func TestByCode(t *testing.T) {
	for _, code := range []Code{CodeRaw, CodeUTF8, CodeJSON, CodeGob, CodeU8, CodeU16, CodeU32, CodeU64, CodeI8, CodeI16, CodeI32, CodeI64} {
		c, ok := ByCode(code)
		if !ok {
			t.Errorf("ByCode(%d): not found", code)
			continue
		}
		if c.Code() != code {
			t.Errorf("ByCode(%d).Code() = %d, want %d", code, c.Code(), code)
		}
	}

	if _, ok := ByCode(CodeUser); ok {
		t.Error("ByCode(CodeUser) should not resolve to a built-in")
	}
}
