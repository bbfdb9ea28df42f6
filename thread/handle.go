// Package thread hands out small thread handles that index into the fixed
// per-thread tables used by hp, rcpool, progress and mcas. A Handle must not
// cross goroutines: acquire one per worker goroutine and release it when the
// goroutine is done, the same discipline the epoch package in the upstream
// gofaster library uses for its own handles.
package thread

import (
	"sync"
	"sync/atomic"

	"github.com/zeebo/mcas/internal/machine"
)

var handleData struct {
	next uint32
	used [machine.MaxThreads]uint32
}

var detachHooks struct {
	mu    sync.Mutex
	funcs []func(Handle)
}

// OnDetach registers fn to run whenever a handle is released, before its
// slot is freed for reuse. Packages that keep their own per-thread state
// (hp's watch table has nothing to clean up, but rcpool's per-thread free
// lists do) use this to flush that state at detach time, without thread
// importing them back.
func OnDetach(fn func(Handle)) {
	detachHooks.mu.Lock()
	detachHooks.funcs = append(detachHooks.funcs, fn)
	detachHooks.mu.Unlock()
}

// Handle represents a goroutine's slot in every fixed-size per-thread table
// in this module. It should not be shared between concurrently running
// goroutines.
type Handle struct {
	id uint32
}

// ID returns the handle's slot index, in [0, machine.MaxThreads).
func (h Handle) ID() uint32 { return h.id % machine.MaxThreads }

// Acquire claims a free handle for the calling goroutine. It panics if every
// slot is currently in use.
func Acquire() Handle {
	start := atomic.AddUint32(&handleData.next, 1)
	end := start + machine.MaxThreads*2

	for start != end {
		id := start % machine.MaxThreads
		if atomic.CompareAndSwapUint32(&handleData.used[id], 0, 1) {
			return Handle{id: id}
		}
		start++
	}
	panic("mcas: no free thread handles, raise machine.MaxThreads or release unused handles")
}

// Release runs every registered detach hook for h, then returns its slot so
// another goroutine may claim it. Hooks run before the slot is freed so they
// can still use h to address per-thread state that a new occupant of the
// same slot must not inherit.
func Release(h Handle) {
	detachHooks.mu.Lock()
	hooks := detachHooks.funcs
	detachHooks.mu.Unlock()

	for _, fn := range hooks {
		fn(h)
	}

	atomic.StoreUint32(&handleData.used[h.ID()], 0)
}
