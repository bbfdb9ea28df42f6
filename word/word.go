// Package word implements the tagged-word convention shared by every
// algorithm built on this module's reclamation scheme: every memory location
// manipulated by a wait-free operation holds a plain uint64, except that bit
// 0 is reserved to mark the word as a pointer to a descriptor rather than a
// logical value. A descriptor pointer is recovered by masking the bit off
// and reinterpreting the rest as a uintptr, the same trick the upstream
// gofaster library uses to pack a thread id into the low bits of a
// pin.Location.
package word

import (
	"unsafe"

	"github.com/zeebo/mcas/internal/debug"
)

const descriptorBit = 1

// IsValid reports whether w carries no reserved bits and may therefore be
// used as an expected or new value in an MCAS triple.
func IsValid(w uint64) bool {
	return w&descriptorBit == 0
}

// IsDescriptor reports whether w is a tagged pointer to a descriptor rather
// than a plain logical value.
func IsDescriptor(w uint64) bool {
	return w&descriptorBit != 0
}

// Mark returns the tagged word for a descriptor pointer.
func Mark(p unsafe.Pointer) uint64 {
	debug.Assert("word: pointer has reserved low bit set", func() bool {
		return uintptr(p)&descriptorBit == 0
	})
	return uint64(uintptr(p)) | descriptorBit
}

// Unmark recovers the descriptor pointer carried by a tagged word. w must
// satisfy IsDescriptor.
func Unmark(w uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(w &^ descriptorBit))
}

// ToWord reinterprets an 8-byte value as the machine word it logically
// represents. T is typically a pointer type or a uintptr/uint64 alias; any
// other size trips the debug assertion below.
func ToWord[T any](v T) uint64 {
	debug.Assert("word: value is not machine-word sized", func() bool {
		return unsafe.Sizeof(v) == 8
	})
	return *(*uint64)(unsafe.Pointer(&v))
}

// FromWord is the inverse of ToWord.
func FromWord[T any](w uint64) T {
	var v T
	debug.Assert("word: value is not machine-word sized", func() bool {
		return unsafe.Sizeof(v) == 8
	})
	*(*uint64)(unsafe.Pointer(&v)) = w
	return v
}
