package mcas

import (
	"sync/atomic"
	"unsafe"

	"github.com/zeebo/mcas/rcpool"
	"github.com/zeebo/mcas/thread"
	"github.com/zeebo/mcas/word"
)

// AttachThread acquires a thread handle for the calling goroutine. Every
// goroutine that will call Execute or Read must hold one, and must call
// DetachThread before it exits.
func AttachThread() thread.Handle {
	return thread.Acquire()
}

// DetachThread releases a handle acquired by AttachThread. This also flushes
// h's per-thread descriptor pools, donating anything left on its lists to
// the pools' shared managers, via the detach hooks those pools registered
// with thread.OnDetach.
func DetachThread(h thread.Handle) {
	thread.Release(h)
}

// Read returns the logical value currently stored at addr. It never blocks
// on contention: if a descriptor is installed there, Read watches it and
// reads its logical value directly rather than attempting to complete the
// operation that installed it.
func Read(h thread.Handle, addr *uint64) uint64 {
	cur := atomic.LoadUint64(addr)
	if !word.IsDescriptor(cur) {
		return cur
	}
	return rcpool.DescriptorReadFirst(h, addr, cur, func(p unsafe.Pointer) rcpool.Readable {
		return (*helper)(p)
	})
}
