package rcpool

import (
	"testing"
	"unsafe"

	"github.com/zeebo/mcas/internal/assert"
	"github.com/zeebo/mcas/thread"
	"github.com/zeebo/mcas/word"
)

type fakeReadable struct {
	logical uint64
}

func (f *fakeReadable) OnWatch() bool      { return true }
func (f *fakeReadable) OnUnwatch()         {}
func (f *fakeReadable) OnIsWatched() bool  { return false }
func (f *fakeReadable) GetLogicalValue() uint64 { return f.logical }

func TestDescriptorReadFirstPlainValue(t *testing.T) {
	h := thread.Acquire()
	defer thread.Release(h)

	var addr uint64 = 42
	got := DescriptorReadFirst(h, &addr, addr, nil)
	assert.Equal(t, got, uint64(42))
}

func TestDescriptorReadFirstResolvesDescriptor(t *testing.T) {
	h := thread.Acquire()
	defer thread.Release(h)

	target := &fakeReadable{logical: 99}
	var addr uint64
	addr = word.Mark(unsafe.Pointer(target))

	got := DescriptorReadFirst(h, &addr, addr, func(p unsafe.Pointer) Readable {
		return (*fakeReadable)(p)
	})
	assert.Equal(t, got, uint64(99))
}
