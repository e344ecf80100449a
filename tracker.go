package shared

import (
	"sync"

	"github.com/google/uuid"
)

// ChangeTracker batches deferred expected-vs-actual comparisons for every box
// touched during one test step, so individual tests do not have to diff each
// box by hand. It holds at most one comparison per owner identity; re-tracking
// the same box replaces the earlier registration.
type ChangeTracker struct {
	mu       sync.Mutex
	deferred map[uuid.UUID]deferredComparison
}

type deferredComparison struct {
	location Location
	compare  func(Location)
}

// NewChangeTracker constructs an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{deferred: make(map[uuid.UUID]deferredComparison)}
}

// Register stores one comparison closure for owner. The location is carried
// through to teardown so a failure can be attributed to the call site that
// performed the tracked write. Last write wins for a given owner.
func (t *ChangeTracker) Register(owner uuid.UUID, location Location, compare func(Location)) {
	if t == nil || compare == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.deferred == nil {
		t.deferred = make(map[uuid.UUID]deferredComparison)
	}
	t.deferred[owner] = deferredComparison{location: location, compare: compare}
}

// IsEmpty reports whether no comparisons are registered. Callers use it to
// short-circuit work when nothing is asserting.
func (t *ChangeTracker) IsEmpty() bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.deferred) == 0
}

// drain fires every registered comparison exactly once, in no particular
// order, and leaves the tracker empty.
func (t *ChangeTracker) drain() {
	t.mu.Lock()
	deferred := t.deferred
	t.deferred = make(map[uuid.UUID]deferredComparison)
	t.mu.Unlock()

	for _, entry := range deferred {
		entry.compare(entry.location)
	}
}
