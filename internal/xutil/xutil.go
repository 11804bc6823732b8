// Package xutil carries forward the teacher's small generics helper
// dependency (github.com/sirgallo/utils) into this engine's shape: a
// couple of thin, generic convenience wrappers used where a zero value or
// a default needs naming rather than being spelled out inline.
package xutil

import "github.com/sirgallo/utils"

// Zero returns the zero value of T, the same helper the teacher imports
// sirgallo/utils for (Mari.go's commented `utils.GetZero[string]()`).
// booklet/serial uses it so a failed Decode can hand back a typed zero
// value instead of a caller having to know T's literal zero form.
func Zero[T any]() T {
	return utils.GetZero[T]()
}
