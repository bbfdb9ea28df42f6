// Package rcpool implements the reference-counted descriptor pool: a
// thread-local allocator, layered on the process-wide hp table, that lets
// descriptors be reused once they are provably no longer hazard-pointer
// watched instead of allocating fresh on every MCAS row. The safe/unsafe
// list split and its promotion scan are ported from the Tervel wait-free
// library's reference-counted pool manager; the per-thread free lists
// fronting it follow the same shape as the upstream gofaster library's own
// thread-local free lists.
package rcpool

import (
	"unsafe"

	"github.com/zeebo/mcas/hp"
	"github.com/zeebo/mcas/internal/machine"
	"github.com/zeebo/mcas/thread"
)

// unsafeScanThreshold bounds how many deferred frees accumulate before a
// thread pauses to promote unwatched entries back into its safe list.
const unsafeScanThreshold = 64

type node[K hp.Element] struct {
	next  *node[K]
	descr K
	ptr   unsafe.Pointer
}

type perThread[K hp.Element] struct {
	safe        *node[K]
	unsafeHead  *node[K]
	unsafeCount int
}

// Pool is a reference-counted, per-thread free list for descriptors of kind
// K. One Pool is created per descriptor kind (e.g. the MCAS package keeps a
// single *Pool[*helper]) and shared by every thread via its Handle.
type Pool[K hp.Element] struct {
	threads [machine.MaxThreads]perThread[K]
	alloc   func() K
	ptrOf   func(K) unsafe.Pointer
	donated *hp.ListManager
}

// New constructs a pool for descriptor kind K. alloc builds a fresh K when
// the pool has nothing to reuse; ptrOf recovers the bare pointer behind K,
// used for hazard-pointer lookups (Go cannot do this through the interface
// alone).
//
// New registers a thread.OnDetach hook so that a goroutine's leftover safe
// and unsafe list entries are donated to a process-wide manager when it
// detaches, rather than sitting unreachable in a slot some unrelated
// goroutine may claim next.
func New[K hp.Element](alloc func() K, ptrOf func(K) unsafe.Pointer) *Pool[K] {
	p := &Pool[K]{alloc: alloc, ptrOf: ptrOf, donated: hp.NewListManager(machine.MaxThreads)}
	thread.OnDetach(p.donateOnDetach)
	return p
}

// donateOnDetach hands the detaching thread's entire safe and unsafe lists
// to the pool's ListManager and empties both, so that whichever goroutine
// next claims this slot starts with empty lists instead of silently
// inheriting a departed goroutine's descriptors.
func (p *Pool[K]) donateOnDetach(h thread.Handle) {
	pt := &p.threads[h.ID()]

	for n := pt.safe; n != nil; n = n.next {
		p.donated.Donate(n.descr)
	}
	for n := pt.unsafeHead; n != nil; n = n.next {
		p.donated.Donate(n.descr)
	}

	pt.safe = nil
	pt.unsafeHead = nil
	pt.unsafeCount = 0
}

// Get returns a descriptor from the calling thread's safe list, falling
// back first to any donated descriptor the shared manager can confirm is no
// longer hazard-pointer watched, and only then to a freshly allocated one.
func (p *Pool[K]) Get(h thread.Handle) K {
	pt := &p.threads[h.ID()]
	if pt.safe != nil {
		n := pt.safe
		pt.safe = n.next
		return n.descr
	}

	reclaimed := p.donated.Reclaim(func(elem hp.Element) bool {
		return hp.IsWatched(elem, p.ptrOf(elem.(K)))
	})
	if len(reclaimed) == 0 {
		return p.alloc()
	}
	for _, elem := range reclaimed[1:] {
		pt.safe = &node[K]{next: pt.safe, descr: elem.(K), ptr: p.ptrOf(elem.(K))}
	}
	return reclaimed[0].(K)
}

// Free returns d to the pool. If noCheck is true, the caller certifies that
// d was never published anywhere another thread could have hazard-pointer
// watched it (e.g. it lost the CAS that would have installed it), so d may
// go straight back to the safe list. Otherwise d is deferred to the unsafe
// list until a scan confirms no thread still watches it.
func (p *Pool[K]) Free(h thread.Handle, d K, noCheck bool) {
	pt := &p.threads[h.ID()]
	n := &node[K]{descr: d, ptr: p.ptrOf(d)}

	if noCheck {
		n.next = pt.safe
		pt.safe = n
		return
	}

	n.next = pt.unsafeHead
	pt.unsafeHead = n
	pt.unsafeCount++
	if pt.unsafeCount >= unsafeScanThreshold {
		p.scan(pt)
	}
}

// scan walks the calling thread's unsafe list, promoting every entry that is
// no longer hazard-pointer watched into the safe list.
func (p *Pool[K]) scan(pt *perThread[K]) {
	var stillUnsafe *node[K]
	count := 0

	cur := pt.unsafeHead
	for cur != nil {
		next := cur.next
		if hp.IsWatched(cur.descr, cur.ptr) {
			cur.next = stillUnsafe
			stillUnsafe = cur
			count++
		} else {
			cur.next = pt.safe
			pt.safe = cur
		}
		cur = next
	}

	pt.unsafeHead = stillUnsafe
	pt.unsafeCount = count
}
