// Package serial implements the pluggable serializer collaborator spec.md
// §1 places outside the core's scope ("the core sees only byte strings")
// and §6 and §9 describe as a tagged sum type: a small integer code
// persisted in the file header plus, at runtime, a pair of pure functions
// converting a value to and from bytes.
//
// Code 0 always means "user supplied"; it is never round-tripped through
// a built-in, matching spec.md §9's design note that `User` is only valid
// at runtime and never written to disk — an opener of such a file must
// supply an equivalent serializer itself.
package serial

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/mullenkamp/booklet-go/internal/xutil"
)

// Code identifies a serializer. Built-in codes are stable across file
// format revisions; a new built-in gets the next unused number, it never
// reuses one.
type Code uint16

const (
	// CodeUser marks a user-supplied codec. Never persisted as a
	// reconstructable built-in; an opener must supply its own.
	CodeUser Code = 0
	CodeRaw  Code = 1 // raw []byte, no conversion
	CodeUTF8 Code = 2 // UTF-8 string
	CodeJSON Code = 3 // encoding/json of an arbitrary Go value
	CodeGob  Code = 4 // encoding/gob, the Go analogue of the original's pickle codec
	CodeU8   Code = 5
	CodeU16  Code = 6
	CodeU32  Code = 7
	CodeU64  Code = 8
	CodeI8   Code = 9
	CodeI16  Code = 10
	CodeI32  Code = 11
	CodeI64  Code = 12
)

// Codec converts values to and from the bytes the core engine stores.
// Built-ins round-trip through Code(); a caller-supplied codec may return
// CodeUser, in which case it is never reconstructed from header state
// alone — the same codec value must be supplied again on every reopen.
type Codec interface {
	Code() Code
	Encode(v interface{}) ([]byte, error)
	Decode(b []byte) (interface{}, error)
}

// Raw is the identity codec: values must already be []byte.
type Raw struct{}

func (Raw) Code() Code { return CodeRaw }

func (Raw) Encode(v interface{}) ([]byte, error) {
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("serial: Raw.Encode: value is %T, not []byte", v)
	}
	return b, nil
}

func (Raw) Decode(b []byte) (interface{}, error) { return b, nil }

// UTF8String converts Go strings.
type UTF8String struct{}

func (UTF8String) Code() Code { return CodeUTF8 }

func (UTF8String) Encode(v interface{}) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("serial: UTF8String.Encode: value is %T, not string", v)
	}
	return []byte(s), nil
}

func (UTF8String) Decode(b []byte) (interface{}, error) { return string(b), nil }

// JSON encodes/decodes any JSON-marshalable value via encoding/json.
// Decode returns a generic map[string]interface{}/[]interface{}/... shape
// the way json.Unmarshal does into an `interface{}` target, the same
// lossy round-trip the original Python engine's JSON codec accepts.
type JSON struct{}

func (JSON) Code() Code { return CodeJSON }

func (JSON) Encode(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Decode(b []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return xutil.Zero[interface{}](), fmt.Errorf("serial: JSON.Decode: %w", err)
	}
	return v, nil
}

// Gob encodes/decodes via encoding/gob, this port's analogue of the
// original Python engine's pickle-based object codec (spec.md §6 "pickled
// objects"). Because gob needs to know the concrete type up front, the
// caller registers it once with gob.Register before use; Gob itself
// stores values wrapped in a gobEnvelope so Decode can recover them
// without the caller naming a type at decode time.
type Gob struct{}

func (Gob) Code() Code { return CodeGob }

type gobEnvelope struct{ V interface{} }

func (Gob) Encode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(gobEnvelope{V: v}); err != nil {
		return nil, fmt.Errorf("serial: Gob.Encode: %w", err)
	}
	return buf.Bytes(), nil
}

func (Gob) Decode(b []byte) (interface{}, error) {
	var env gobEnvelope
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&env); err != nil {
		return xutil.Zero[interface{}](), fmt.Errorf("serial: Gob.Decode: %w", err)
	}
	return env.V, nil
}

// Integer is the little-endian fixed-width integer codec family spec.md
// §6 names ("little-endian integers of various widths"). Width selects
// which Go integer type Encode/Decode box into; signed selects whether
// it's the signed or unsigned member of that width.
type Integer struct {
	Width  int // 1, 2, 4, or 8
	Signed bool
}

func (c Integer) Code() Code {
	switch {
	case c.Width == 1 && !c.Signed:
		return CodeU8
	case c.Width == 2 && !c.Signed:
		return CodeU16
	case c.Width == 4 && !c.Signed:
		return CodeU32
	case c.Width == 8 && !c.Signed:
		return CodeU64
	case c.Width == 1 && c.Signed:
		return CodeI8
	case c.Width == 2 && c.Signed:
		return CodeI16
	case c.Width == 4 && c.Signed:
		return CodeI32
	case c.Width == 8 && c.Signed:
		return CodeI64
	default:
		return CodeUser
	}
}

func (c Integer) Encode(v interface{}) ([]byte, error) {
	u, err := toUint64(v, c.Signed)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, c.Width)
	for i := 0; i < c.Width; i++ {
		buf[i] = byte(u >> (8 * uint(i)))
	}
	return buf, nil
}

func (c Integer) Decode(b []byte) (interface{}, error) {
	if len(b) != c.Width {
		return xutil.Zero[interface{}](), fmt.Errorf("serial: Integer.Decode: want %d bytes, got %d", c.Width, len(b))
	}
	var u uint64
	for i, x := range b {
		u |= uint64(x) << (8 * uint(i))
	}
	return fromUint64(u, c.Width, c.Signed), nil
}

func toUint64(v interface{}, signed bool) (uint64, error) {
	switch n := v.(type) {
	case uint8:
		return uint64(n), nil
	case uint16:
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case uint64:
		return n, nil
	case int8:
		return uint64(uint8(n)), nil
	case int16:
		return uint64(uint16(n)), nil
	case int32:
		return uint64(uint32(n)), nil
	case int64:
		return uint64(n), nil
	case int:
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("serial: Integer.Encode: unsupported value type %T", v)
	}
}

func fromUint64(u uint64, width int, signed bool) interface{} {
	if !signed {
		switch width {
		case 1:
			return uint8(u)
		case 2:
			return uint16(u)
		case 4:
			return uint32(u)
		default:
			return u
		}
	}
	switch width {
	case 1:
		return int8(u)
	case 2:
		return int16(u)
	case 4:
		return int32(u)
	default:
		return int64(u)
	}
}

// ByCode returns the built-in codec for a header-persisted code, or ok=false
// for CodeUser (which must be supplied by the caller, never reconstructed)
// or an unrecognized code.
func ByCode(c Code) (Codec, bool) {
	switch c {
	case CodeRaw:
		return Raw{}, true
	case CodeUTF8:
		return UTF8String{}, true
	case CodeJSON:
		return JSON{}, true
	case CodeGob:
		return Gob{}, true
	case CodeU8:
		return Integer{Width: 1, Signed: false}, true
	case CodeU16:
		return Integer{Width: 2, Signed: false}, true
	case CodeU32:
		return Integer{Width: 4, Signed: false}, true
	case CodeU64:
		return Integer{Width: 8, Signed: false}, true
	case CodeI8:
		return Integer{Width: 1, Signed: true}, true
	case CodeI16:
		return Integer{Width: 2, Signed: true}, true
	case CodeI32:
		return Integer{Width: 4, Signed: true}, true
	case CodeI64:
		return Integer{Width: 8, Signed: true}, true
	default:
		return nil, false
	}
}
