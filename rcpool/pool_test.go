package rcpool

import (
	"testing"
	"unsafe"

	"github.com/zeebo/mcas/internal/assert"
	"github.com/zeebo/mcas/thread"
)

type fakeDescr struct {
	id int
}

func (f *fakeDescr) OnWatch() bool    { return true }
func (f *fakeDescr) OnUnwatch()       {}
func (f *fakeDescr) OnIsWatched() bool { return false }

func TestPoolReuseNoCheck(t *testing.T) {
	h := thread.Acquire()
	defer thread.Release(h)

	allocs := 0
	pool := New(
		func() *fakeDescr { allocs++; return &fakeDescr{id: allocs} },
		func(d *fakeDescr) unsafe.Pointer { return unsafe.Pointer(d) },
	)

	d1 := pool.Get(h)
	assert.Equal(t, allocs, 1)

	pool.Free(h, d1, true)
	d2 := pool.Get(h)
	assert.That(t, d1 == d2, "expected reuse of freed descriptor")
	assert.Equal(t, allocs, 1)
}

func TestPoolDonatesOnDetachAndReclaims(t *testing.T) {
	pool := New(
		func() *fakeDescr { return &fakeDescr{} },
		func(d *fakeDescr) unsafe.Pointer { return unsafe.Pointer(d) },
	)

	h := thread.Acquire()
	d := pool.Get(h)
	pool.Free(h, d, true)
	thread.Release(h)

	pt := &pool.threads[h.ID()]
	assert.That(t, pt.safe == nil, "detach should empty the safe list")

	h2 := thread.Acquire()
	defer thread.Release(h2)
	reclaimed := pool.Get(h2)
	assert.That(t, reclaimed == d, "expected Get to reclaim the donated descriptor")
}

func TestPoolUnsafeFreePromotesWhenUnwatched(t *testing.T) {
	h := thread.Acquire()
	defer thread.Release(h)

	pool := New(
		func() *fakeDescr { return &fakeDescr{} },
		func(d *fakeDescr) unsafe.Pointer { return unsafe.Pointer(d) },
	)

	d := pool.Get(h)
	pool.Free(h, d, false)

	pt := &pool.threads[h.ID()]
	assert.That(t, pt.safe == nil)
	assert.That(t, pt.unsafeHead != nil)

	pool.scan(pt)
	assert.That(t, pt.safe != nil)
	assert.That(t, pt.unsafeHead == nil)
}
