package thread

import (
	"testing"

	"github.com/zeebo/mcas/internal/assert"
)

func TestAcquireRelease(t *testing.T) {
	h1 := Acquire()
	h2 := Acquire()
	assert.That(t, h1.ID() != h2.ID())

	Release(h1)
	Release(h2)

	h3 := Acquire()
	Release(h3)
}

func TestOnDetachRunsBeforeSlotIsFreed(t *testing.T) {
	var gotID uint32
	var slotFreeAtCall bool

	OnDetach(func(h Handle) {
		gotID = h.ID()
		slotFreeAtCall = handleData.used[h.ID()] == 0
	})

	h := Acquire()
	id := h.ID()
	Release(h)

	assert.Equal(t, gotID, id)
	assert.That(t, !slotFreeAtCall, "detach hook should run before the slot is freed")
}

func BenchmarkHandle(b *testing.B) {
	b.ReportAllocs()

	b.Run("Acquire+Release", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			h := Acquire()
			Release(h)
		}
	})

	b.Run("Acquire+Release Parallel", func(b *testing.B) {
		b.RunParallel(func(pb *testing.PB) {
			for pb.Next() {
				h := Acquire()
				Release(h)
			}
		})
	})
}
