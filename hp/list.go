package hp

import "sync"

// ListManager encapsulates a shared central list that a goroutine donates
// its remaining retired elements to when it detaches, ported from the
// Tervel wait-free library's hazard-pointer list manager. A detaching
// goroutine's per-thread slot may be handed to an unrelated goroutine by a
// later Acquire, so the descriptors left on its lists can't just stay
// parked in that slot; ListManager is the shared home for it
// instead. In this Go translation there is nothing to manually free: once a
// retired descriptor is no longer reachable from any table or pool, the
// garbage collector reclaims it. ListManager's own job is keeping donated
// elements reachable until Reclaim confirms they're unwatched, plus
// bookkeeping used by tests and diagnostics.
type ListManager struct {
	mu      sync.Mutex
	donated []Element
}

// NewListManager constructs a manager for the given number of thread slots.
// The slot count is accepted for parity with the upstream constructor shape
// but is otherwise unused: donations are appended to one shared slice
// rather than bucketed per origin thread, since nothing here is freed by
// hand.
func NewListManager(numThreads int) *ListManager {
	return &ListManager{}
}

// Donate records that a goroutine handed off elem at detach time. Donated
// elements may or may not still be watched; Reclaim sorts that out.
func (m *ListManager) Donate(elem Element) {
	m.mu.Lock()
	m.donated = append(m.donated, elem)
	m.mu.Unlock()
}

// Reclaim removes and returns every donated element isWatched reports as no
// longer watched, leaving the rest for a future call. Callers use this to
// pull donated elements back into a live pool once they're safe to reuse.
func (m *ListManager) Reclaim(isWatched func(Element) bool) []Element {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reclaimed, remaining []Element
	for _, elem := range m.donated {
		if isWatched(elem) {
			remaining = append(remaining, elem)
		} else {
			reclaimed = append(reclaimed, elem)
		}
	}
	m.donated = remaining
	return reclaimed
}

// AssertAllUnwatched reports whether every donated element is no longer
// hazard-pointer watched, returning false if any one still is. It does not
// panic. It exists for shutdown-time sanity checks and tests; production
// code need not call it.
func (m *ListManager) AssertAllUnwatched(isWatched func(Element) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, elem := range m.donated {
		if isWatched(elem) {
			return false
		}
	}
	return true
}
