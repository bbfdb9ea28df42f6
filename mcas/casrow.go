package mcas

import (
	"sync/atomic"
	"unsafe"
)

// failSentinel is the distinguished, non-nil, non-Helper value a row's
// helper slot holds once the row has definitively lost its install race.
// Real *helper pointers are always at least word-aligned, so 1 can never
// collide with one.
const failSentinel = uintptr(1)

// casRow is the unit of work for one word of an MCAS: the address to
// update, the value it must hold for the operation to proceed, the value to
// install if it passes, and the row's own helper slot.
type casRow struct {
	address    *uint64
	expected   uint64
	new        uint64
	helperSlot atomic.Uintptr
}

// helperPtr returns the row's bound helper, or nil if the slot is empty or
// holds failSentinel.
func (r *casRow) helperPtr() *helper {
	p := r.helperSlot.Load()
	if p == 0 || p == failSentinel {
		return nil
	}
	return (*helper)(unsafe.Pointer(p))
}

func (r *casRow) isNull() bool { return r.helperSlot.Load() == 0 }
func (r *casRow) isFail() bool { return r.helperSlot.Load() == failSentinel }

// bindHelper attempts to CAS the row's helper slot from empty to h. It
// reports whether the slot is now bound to h, whether this call won the
// race or lost it to a concurrent install of the very same helper.
func (r *casRow) bindHelper(h *helper) bool {
	p := uintptr(unsafe.Pointer(h))
	if r.helperSlot.CompareAndSwap(0, p) {
		return true
	}
	return r.helperSlot.Load() == p
}

// failRow attempts to CAS the row's helper slot from empty to failSentinel.
// It reports whether the slot is now failed, whether this call won the race
// or a concurrent failure already landed.
func (r *casRow) failRow() bool {
	if r.helperSlot.CompareAndSwap(0, failSentinel) {
		return true
	}
	return r.helperSlot.Load() == failSentinel
}

func addressLess(a, b *uint64) bool {
	return uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b))
}
