package progress

import (
	"testing"

	"github.com/zeebo/mcas/internal/assert"
	"github.com/zeebo/mcas/thread"
)

type countingOp struct {
	helped int
}

func (c *countingOp) HelpComplete(h thread.Handle) { c.helped++ }

func TestPublishAndCheckForAnnouncements(t *testing.T) {
	owner := thread.Acquire()
	helper := thread.Acquire()
	defer thread.Release(owner)
	defer thread.Release(helper)

	op := &countingOp{}
	Publish(owner, op)
	defer Clear(owner)

	CheckForAnnouncements(helper)
	assert.Equal(t, op.helped, 1)

	// the owner never helps its own announcement
	CheckForAnnouncements(owner)
	assert.Equal(t, op.helped, 1)
}

func TestClearRemovesAnnouncement(t *testing.T) {
	owner := thread.Acquire()
	helper := thread.Acquire()
	defer thread.Release(owner)
	defer thread.Release(helper)

	op := &countingOp{}
	Publish(owner, op)
	Clear(owner)

	CheckForAnnouncements(helper)
	assert.Equal(t, op.helped, 0)
}

func TestLimitIsDelayed(t *testing.T) {
	var l Limit
	for i := 0; i < delayThreshold; i++ {
		assert.That(t, !l.IsDelayed())
	}
	assert.That(t, l.IsDelayed())
}
