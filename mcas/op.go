// Package mcas implements the wait-free multi-word compare-and-swap engine:
// a descriptor that atomically updates N independent words from N expected
// values to N new values, succeeding only if every word holds its expected
// value. The algorithm is ported from the Tervel wait-free MCAS engine,
// reworked from virtual dispatch and manual memory management into explicit
// thread handles, tuple-returned control flow instead of thread-local
// recursive-return flags, and reclamation that leans on the Go garbage
// collector wherever the original's manual descriptor lifetime management
// has no counterpart here (see DESIGN.md).
package mcas

import (
	"sync/atomic"
	"unsafe"

	"github.com/zeebo/mcas/hp"
	"github.com/zeebo/mcas/internal/debug"
	"github.com/zeebo/mcas/progress"
	"github.com/zeebo/mcas/rcpool"
	"github.com/zeebo/mcas/thread"
	"github.com/zeebo/mcas/word"
)

type opState int32

const (
	stateInProgress opState = iota
	statePass
	stateFail
)

// helperPool is the single process-wide free list for row helpers, shared
// by every Op regardless of which caller constructed it, matching the
// upstream reference-counted pool being a process-wide resource that
// per-thread pools merely front.
var helperPool = rcpool.New(
	func() *helper { return new(helper) },
	func(d *helper) unsafe.Pointer { return unsafe.Pointer(d) },
)

// Op is one in-flight (or completed) MCAS operation: a caller appends up to
// maxRows (address, expected, new) triples via AddTriple, then calls
// Execute. An Op must not be reused once Execute returns.
type Op struct {
	rows     []casRow
	rowCount int
	state    atomic.Int32
}

// New constructs an Op able to hold up to maxRows triples.
func New(maxRows int) *Op {
	return &Op{rows: make([]casRow, maxRows)}
}

// AddTriple registers that address must hold expected for the operation to
// succeed, and will be set to new if it does. It returns false, leaving the
// operation unchanged, if expected or new carry a reserved tag bit, the
// operation is already at capacity, or address was already registered.
func (o *Op) AddTriple(address *uint64, expected, new uint64) bool {
	if !word.IsValid(expected) || !word.IsValid(new) {
		return false
	}
	if o.rowCount == len(o.rows) {
		return false
	}

	o.rows[o.rowCount] = casRow{address: address, expected: expected, new: new}
	o.rowCount++

	for i := o.rowCount - 1; i > 0; i-- {
		switch {
		case addressLess(o.rows[i].address, o.rows[i-1].address):
			o.rows[i], o.rows[i-1] = o.rows[i-1], o.rows[i]
		case o.rows[i].address == o.rows[i-1].address:
			copy(o.rows[i:o.rowCount-1], o.rows[i+1:o.rowCount])
			o.rowCount--
			return false
		default:
			return true
		}
	}
	return true
}

// Execute applies the operation: it helps along any published operation
// first, drives its own rows to completion, replaces every installed helper
// with its final logical value, and returns whether every row's expected
// value held.
func (o *Op) Execute(h thread.Handle) bool {
	progress.CheckForAnnouncements(h)
	passed, _ := o.complete(h, 0, false, 0)
	o.cleanup(passed)
	o.release(h)
	return passed
}

// HelpComplete implements progress.OpRecord: it drives the operation to a
// terminal state in wait-free mode, never republishing and never unwinding
// recursively.
func (o *Op) HelpComplete(h thread.Handle) {
	o.complete(h, 0, true, 0)
}

// complete iterates rows from start upward, installing a helper at each or
// discovering the operation must fail, helping along any foreign operation
// it runs into on the way. depth counts synchronous recursive calls made
// while helping another operation; it stands in for the original's
// thread-local recursion-depth counter, made explicit since the whole chain
// runs on one goroutine's stack.
func (o *Op) complete(h thread.Handle, start int, wfMode bool, depth int) (passed, recursiveReturn bool) {
	slot := hp.ShortUse
	if wfMode {
		slot = hp.ProgAssur
	}

	for pos := start; pos < o.rowCount; pos++ {
		row := &o.rows[pos]
		var limit progress.Limit
		current := atomic.LoadUint64(row.address)

		for row.isNull() {
			if s := opState(o.state.Load()); s != stateInProgress {
				return s == statePass, false
			}

			if !wfMode && limit.IsDelayed() {
				if depth == 0 {
					o.awaitAssistance(h)
					return opState(o.state.Load()) == statePass, false
				}
				return false, true
			}

			switch {
			case word.IsDescriptor(current):
				next, recRet := o.mcasRemove(h, pos, current, depth, slot)
				if recRet {
					if depth != 0 {
						return false, true
					}
					current = atomic.LoadUint64(row.address)
					continue
				}
				current = next

			case current != row.expected:
				if row.failRow() {
					o.state.CompareAndSwap(int32(stateInProgress), int32(stateFail))
					return false, false
				}
				current = atomic.LoadUint64(row.address)

			default:
				hlp := helperPool.Get(h)
				hlp.reset(o, pos)
				marked := word.Mark(unsafe.Pointer(hlp))

				if atomic.CompareAndSwapUint64(row.address, current, marked) {
					if row.bindHelper(hlp) {
						goto installed
					}
					// the only other writer of this row's helper slot is a
					// racing thread's OnWatch rebinding this very hlp, which
					// can only ever agree with us; reaching here means the
					// row was independently failed between our CAS and our
					// bind attempt, so undo the install.
					atomic.CompareAndSwapUint64(row.address, marked, row.expected)
					helperPool.Free(h, hlp, false)
					if row.isFail() {
						o.state.CompareAndSwap(int32(stateInProgress), int32(stateFail))
					}
					return opState(o.state.Load()) == statePass, false
				}

				helperPool.Free(h, hlp, true)
				current = atomic.LoadUint64(row.address)
			}
		}
	installed:

		if row.isFail() {
			o.state.CompareAndSwap(int32(stateInProgress), int32(stateFail))
			return false, false
		}
	}

	o.state.CompareAndSwap(int32(stateInProgress), int32(statePass))
	return opState(o.state.Load()) == statePass, false
}

// mcasRemove ensures the word at the blocked row no longer holds the
// descriptor pointer cur: if it can confirm the value changed underneath
// it, it simply reports the new value; otherwise it recursively drives the
// foreign operation that installed cur to a terminal state (keeping cur
// hazard-pointer watched for the duration so the helper it points to can't
// be recycled out from under the recursive call), then itself clears the
// descriptor out of addr so it doesn't have to wait for that operation's
// own thread to get around to its cleanup pass.
func (o *Op) mcasRemove(h thread.Handle, pos int, cur uint64, depth int, slot hp.Slot) (newValue uint64, recursiveReturn bool) {
	row := &o.rows[pos]
	addr := row.address
	d := (*helper)(word.Unmark(cur))

	if !hp.WatchElement(h, slot, d, unsafe.Pointer(d), addr, cur) {
		return atomic.LoadUint64(addr), false
	}

	// d.OnWatch may have just bound this exact row: a second thread helping
	// this same Op through progress-assurance can install d as our own row's
	// helper concurrently with us discovering it at a foreign address. When
	// that happens the row is already resolved, so skip the recursive help
	// and let the caller's loop re-check it directly instead of recursing
	// into an operation that is, in this case, ourselves.
	if row.helperPtr() != nil {
		hp.UnwatchElement(h, slot, d)
		return atomic.LoadUint64(addr), false
	}

	_, recRet := d.op.complete(h, d.row, false, depth+1)
	if recRet {
		hp.UnwatchElement(h, slot, d)
		return 0, true
	}

	resolved := d.GetLogicalValue()
	atomic.CompareAndSwapUint64(addr, cur, resolved)
	hp.UnwatchElement(h, slot, d)

	return atomic.LoadUint64(addr), false
}

// cleanup replaces every installed helper with the operation's final
// outcome: the row's new value on success, its expected value on failure.
// It stops at the first row that never got a helper installed, since no
// row beyond it was ever attempted.
func (o *Op) cleanup(success bool) {
	for pos := 0; pos < o.rowCount; pos++ {
		row := &o.rows[pos]
		hlp := row.helperPtr()
		if hlp == nil {
			return
		}

		marked := word.Mark(unsafe.Pointer(hlp))
		cur := atomic.LoadUint64(row.address)
		if cur != marked {
			continue
		}
		if success {
			atomic.CompareAndSwapUint64(row.address, cur, row.new)
		} else {
			atomic.CompareAndSwapUint64(row.address, cur, row.expected)
		}
	}
}

// release returns every installed helper to the pool, deferred through the
// unsafe list since each one was published into caller-visible memory and
// may still be hazard-pointer watched by a racing thread that hasn't
// unwatched yet (cleanup rewriting the address away from the tagged
// pointer only stops *new* watches from starting, not ones already in
// flight). The original destructor stores a DELETED state as a debugging
// tripwire before doing this; since in Go other goroutines may still
// legitimately be reading state via a helper's GetLogicalValue at this
// exact moment (the operation object itself is kept alive by the garbage
// collector for as long as any such goroutine holds a reference, so there
// is no use-after-free to guard against), that tripwire becomes a
// debug-only assertion that release is never reached before the operation
// is terminal, rather than a runtime state transition that could race a
// concurrent reader.
func (o *Op) release(h thread.Handle) {
	debug.Assert("mcas: release called before operation reached a terminal state", func() bool {
		return opState(o.state.Load()) != stateInProgress
	})
	for pos := 0; pos < o.rowCount; pos++ {
		row := &o.rows[pos]
		if row.isFail() {
			break
		}
		if hlp := row.helperPtr(); hlp != nil {
			helperPool.Free(h, hlp, false)
		}
	}
}

// awaitAssistance publishes the operation to the progress-assurance table
// and spins until some other thread has latched its state, as required to
// upgrade best-effort helping into a wait-free guarantee.
func (o *Op) awaitAssistance(h thread.Handle) {
	progress.Publish(h, o)
	for opState(o.state.Load()) == stateInProgress {
		progress.CheckForAnnouncements(h)
	}
	progress.Clear(h)
}
