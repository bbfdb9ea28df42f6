// Package progress implements the progress-assurance announcement table
// that upgrades the MCAS engine's best-effort helping into a wait-free
// guarantee: a thread stuck behind contention publishes its operation here,
// and every other thread checks the table before starting new work of its
// own, helping any published operation to completion first.
package progress

import (
	"sync/atomic"

	"github.com/zeebo/mcas/internal/machine"
	"github.com/zeebo/mcas/thread"
)

// OpRecord is any operation that can be published to the announcement
// table and driven to completion by another thread.
type OpRecord interface {
	// HelpComplete must drive the operation to a terminal state without
	// republishing itself and without the recursive-return dance used by
	// best-effort helping; it is invoked already "in" wait-free mode.
	HelpComplete(h thread.Handle)
}

type record struct {
	op OpRecord
}

var table [machine.MaxThreads]atomic.Value

// Publish announces op in the caller's slot so other threads will help it
// along.
func Publish(h thread.Handle, op OpRecord) {
	table[h.ID()].Store(&record{op: op})
}

// Clear removes the caller's announcement.
func Clear(h thread.Handle) {
	table[h.ID()].Store((*record)(nil))
}

// CheckForAnnouncements helps every currently published operation other
// than the caller's own, as execute() does at the start of every MCAS
// attempt.
func CheckForAnnouncements(h thread.Handle) {
	for i := range table {
		if uint32(i) == h.ID() {
			continue
		}
		rec, _ := table[i].Load().(*record)
		if rec == nil || rec.op == nil {
			continue
		}
		rec.op.HelpComplete(h)
	}
}

// delayThreshold bounds how many failed installation attempts a thread
// tolerates on a single row before concluding it is being starved and must
// either publish itself (if it owns the operation) or unwind back to the
// thread that does. It is tuned so a published operation completes within
// O(machine.MaxThreads) steps of being picked up, per the wait-freedom
// requirement.
const delayThreshold = 256

// Limit is a per-attempt budget: it reports isDelayed once a row has eaten
// enough failed CAS attempts to suspect starvation.
type Limit struct {
	attempts int
}

// IsDelayed increments the attempt counter and reports whether the budget
// has been exceeded.
func (l *Limit) IsDelayed() bool {
	l.attempts++
	return l.attempts > delayThreshold
}
