// Package hp implements the hazard-pointer watch table that makes it safe
// for one goroutine to dereference a descriptor another goroutine may
// concurrently recycle. Every goroutine gets a small fixed set of slots in a
// [threads][slots]atomic table, a package-level array allocated at program
// load and never relocated (there is no separate Init or Shutdown step),
// the same discipline the upstream gofaster library applies to its epoch
// table (epochData.entries [machine.MaxThreads]entry) and its pin buffers.
package hp

import (
	"sync/atomic"
	"unsafe"

	"github.com/zeebo/mcas/internal/machine"
	"github.com/zeebo/mcas/thread"
)

// Slot identifies one of a thread's hazard-pointer slots. Callers that need
// more than one simultaneous watch per thread use distinct slots.
type Slot int

const (
	// ShortUse is the fast-path slot used by plain reads and by a helper
	// pinning a foreign descriptor just long enough to help it along.
	ShortUse Slot = iota
	// ProgAssur is used when installing a helper on behalf of an operation
	// that has been published to the progress-assurance table, so that it
	// does not contend with a concurrent ShortUse watch on the same thread.
	ProgAssur
	numSlots
)

// Element is implemented by anything that may be hazard-pointer watched.
// The callbacks let a descriptor refuse a watch, react to one being
// dropped, or extend what "is this still referenced" means beyond a literal
// slot-table scan.
type Element interface {
	// OnWatch is invoked after a watcher has pinned this element and
	// confirmed the target address still holds it. It returns false to
	// tell the watcher to abandon the watch.
	OnWatch() bool
	// OnUnwatch is invoked when a watch on this element is released.
	OnUnwatch()
	// OnIsWatched extends IsWatched's plain table scan, e.g. an operation
	// with several installed helpers is "watched" if any one of them is.
	OnIsWatched() bool
}

var table [machine.MaxThreads * int(numSlots)]atomic.Pointer[byte]

func slotIndex(h thread.Handle, slot Slot) int {
	return int(h.ID())*int(numSlots) + int(slot)
}

// Watch stores value into the caller's slot, then reloads *addr. If the
// reload still equals expected, the watch is established and true is
// returned; otherwise the slot is cleared and false is returned.
func Watch(h thread.Handle, slot Slot, value unsafe.Pointer, addr *uint64, expected uint64) bool {
	table[slotIndex(h, slot)].Store((*byte)(value))
	if atomic.LoadUint64(addr) == expected {
		return true
	}
	table[slotIndex(h, slot)].Store(nil)
	return false
}

// WatchElement is like Watch, but additionally invokes elem.OnWatch once the
// watch is confirmed, clearing the slot if OnWatch declines it. ptr is the
// same object as elem, passed separately because Go cannot recover a bare
// pointer from an interface value without reflection.
func WatchElement(h thread.Handle, slot Slot, elem Element, ptr unsafe.Pointer, addr *uint64, expected uint64) bool {
	if !Watch(h, slot, ptr, addr, expected) {
		return false
	}
	if elem.OnWatch() {
		return true
	}
	table[slotIndex(h, slot)].Store(nil)
	return false
}

// Unwatch clears the caller's slot.
func Unwatch(h thread.Handle, slot Slot) {
	table[slotIndex(h, slot)].Store(nil)
}

// UnwatchElement clears the caller's slot and invokes elem.OnUnwatch.
func UnwatchElement(h thread.Handle, slot Slot, elem Element) {
	Unwatch(h, slot)
	elem.OnUnwatch()
}

// Contains reports whether value is currently stored in any slot of any
// thread. It consults only the table, never an element's callbacks.
func Contains(value unsafe.Pointer) bool {
	target := (*byte)(value)
	for i := range table {
		if table[i].Load() == target {
			return true
		}
	}
	return false
}

// IsWatched reports whether elem is currently watched, either directly (ptr
// appears in some thread's slot) or because elem.OnIsWatched reports
// extended liveness.
func IsWatched(elem Element, ptr unsafe.Pointer) bool {
	if Contains(ptr) {
		return true
	}
	return elem.OnIsWatched()
}
