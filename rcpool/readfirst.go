package rcpool

import (
	"sync/atomic"
	"unsafe"

	"github.com/zeebo/mcas/hp"
	"github.com/zeebo/mcas/thread"
	"github.com/zeebo/mcas/word"
)

// Readable is the interface a descriptor must satisfy to be resolved by
// DescriptorReadFirst: it must be hazard-pointer watchable and able to
// report the logical value it stands in for.
type Readable interface {
	hp.Element
	GetLogicalValue() uint64
}

// Resolve recovers the concrete Readable a tagged pointer refers to. Only
// the algorithm that installed the descriptor knows its concrete type, so
// callers of DescriptorReadFirst supply this rather than rcpool trying to
// guess it.
type Resolve func(p unsafe.Pointer) Readable

// readFirstOp is a single-shot coordinator for resolving one layer of
// indirection behind a tagged word, ported from the Tervel reference-counted
// pool's ReadFirstOp. Unlike that original, which uses a nil value as its
// "not yet resolved" sentinel, this uses an explicit done flag: a
// legitimately resolved value may itself be zero, since this module's words
// are not restricted to non-zero pointers.
type readFirstOp struct {
	address *uint64
	value   uint64
	done    bool
}

func (r *readFirstOp) OnWatch() bool     { return true }
func (r *readFirstOp) OnUnwatch()        {}
func (r *readFirstOp) OnIsWatched() bool { return false }

var readFirstPool = New(
	func() *readFirstOp { return new(readFirstOp) },
	func(r *readFirstOp) unsafe.Pointer { return unsafe.Pointer(r) },
)

// DescriptorReadFirst performs the tag-aware read used by a plain Read: cur
// is known to be a descriptor pointer at addr, and resolve turns it into
// something whose logical value can be read while hazard-pointer watched.
// It retries if the watch fails because addr changed underneath it.
func DescriptorReadFirst(h thread.Handle, addr *uint64, cur uint64, resolve Resolve) uint64 {
	op := readFirstPool.Get(h)
	op.address = addr
	op.value = 0
	op.done = false
	defer readFirstPool.Free(h, op, true)

	for !op.done {
		if !word.IsDescriptor(cur) {
			op.value = cur
			op.done = true
			break
		}

		target := resolve(word.Unmark(cur))
		if hp.WatchElement(h, hp.ShortUse, target, word.Unmark(cur), addr, cur) {
			op.value = target.GetLogicalValue()
			hp.UnwatchElement(h, hp.ShortUse, target)
			op.done = true
			break
		}

		cur = atomic.LoadUint64(addr)
	}

	return op.value
}
