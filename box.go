package shared

import (
	"context"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/goliatone/go-shared-state/internal/clone"
	"github.com/goliatone/go-shared-state/pkg/activity"
)

// Box holds one logical value behind a per-instance re-entrant lock. The
// previous-value slot only diverges from the current value while an assertion
// scope is active on the attached harness; live boxes converge both slots on
// every write.
//
// Values are diffed and duplicated through reflection over exported fields,
// so V should carry its state in exported fields.
type Box[V any] struct {
	id          uuid.UUID
	key         string
	lock        reentrantMutex
	current     V
	previous    V
	tracked     bool
	harness     *Harness
	hooks       activity.Hooks
	sink        func(V) error
	diagnostics DiagnosticSink
}

// BoxOption configures a Box at construction.
type BoxOption[V any] func(*boxConfig[V])

type boxConfig[V any] struct {
	key         string
	harness     *Harness
	hooks       activity.Hooks
	sink        func(V) error
	diagnostics DiagnosticSink
}

// WithHarness attaches the explicit test execution context. A nil harness
// leaves the box in live mode.
func WithHarness[V any](h *Harness) BoxOption[V] {
	return func(cfg *boxConfig[V]) {
		cfg.harness = h
	}
}

// WithBoxKey records the persistence key the box was created under.
func WithBoxKey[V any](key string) BoxOption[V] {
	return func(cfg *boxConfig[V]) {
		cfg.key = key
	}
}

// WithBoxHooks attaches mutation-notification hooks. Hooks run while the box
// lock is held; they may read the same box thanks to lock re-entrancy, but
// must not block indefinitely.
func WithBoxHooks[V any](hooks activity.Hooks) BoxOption[V] {
	normalized := make(activity.Hooks, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			normalized = append(normalized, hook)
		}
	}
	return func(cfg *boxConfig[V]) {
		if len(normalized) > 0 {
			cfg.hooks = normalized
		}
	}
}

// WithWriteSink registers a callback invoked with every committed live value,
// typically to persist it. Sink errors surface as diagnostics, not write
// failures.
func WithWriteSink[V any](sink func(V) error) BoxOption[V] {
	return func(cfg *boxConfig[V]) {
		cfg.sink = sink
	}
}

// WithBoxDiagnostics overrides where hook and sink failures are reported.
// Defaults to the harness sink when a harness is attached.
func WithBoxDiagnostics[V any](sink DiagnosticSink) BoxOption[V] {
	return func(cfg *boxConfig[V]) {
		cfg.diagnostics = sink
	}
}

// NewBox constructs a box seeded with value.
func NewBox[V any](value V, opts ...BoxOption[V]) *Box[V] {
	cfg := boxConfig[V]{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &Box[V]{
		id:          uuid.New(),
		key:         cfg.key,
		current:     value,
		previous:    value,
		harness:     cfg.harness,
		hooks:       cfg.hooks,
		sink:        cfg.sink,
		diagnostics: cfg.diagnostics,
	}
}

// ID returns the box identity used for tracker registration.
func (b *Box[V]) ID() uuid.UUID {
	return b.id
}

// Key returns the persistence key the box was created under, if any.
func (b *Box[V]) Key() string {
	return b.key
}

// Read returns the current value, or the accumulated expected value while an
// assertion scope is active, hiding in-flight test mutations from readers
// until the step completes.
func (b *Box[V]) Read() V {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.harness.Asserting() {
		return b.previous
	}
	return b.current
}

// Write replaces the box value subject to the execution-context rules: live
// boxes apply directly, asserting writes accumulate the expectation, and bare
// test writes snapshot-and-track for deferred comparison.
func (b *Box[V]) Write(value V) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.applyLocked(func(v *V) { *v = value })
}

// Update applies fn to the value in place under the lock, following the same
// execution-context rules as Write. This is the write-back path scoped stores
// mutate through.
func (b *Box[V]) Update(fn func(*V)) {
	if fn == nil {
		return
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	b.applyLocked(fn)
}

func (b *Box[V]) applyLocked(mutate func(*V)) {
	h := b.harness
	if h == nil {
		mutate(&b.current)
		b.previous = b.current
		b.committedLocked()
		return
	}

	if h.Asserting() {
		mutate(&b.previous)
		return
	}

	if tracker := h.activeTracker(); tracker != nil && !b.tracked {
		// Snapshot must not alias: the current value is about to change.
		b.previous = clone.Value(b.current)
		b.tracked = true
		tracker.Register(b.id, callerLocation(2), b.compare)
	}
	mutate(&b.current)
	b.committedLocked()
}

// committedLocked fans a committed value out to the write sink and hooks.
// Runs with the lock held; hooks reading the box re-enter the same lock.
func (b *Box[V]) committedLocked() {
	if b.sink != nil {
		if err := b.sink(b.current); err != nil {
			b.report(Diagnostic{
				Kind:     DiagnosticSinkFailure,
				Message:  "write sink rejected value for box " + b.describe() + ": " + err.Error(),
				Location: callerLocation(3),
			})
		}
	}
	if b.hooks.Enabled() {
		event := activity.Event{
			Verb:       activity.VerbWrite,
			ObjectType: activity.ObjectBox,
			ObjectID:   b.describe(),
		}
		if err := b.hooks.Notify(context.Background(), event); err != nil {
			b.report(Diagnostic{
				Kind:     DiagnosticSinkFailure,
				Message:  "mutation hook failed for box " + b.describe() + ": " + err.Error(),
				Location: callerLocation(3),
			})
		}
	}
}

// compare is the deferred comparison registered with the change tracker. It
// fires at step teardown: a box released without having had its expected
// value reconciled reports exactly one mismatch.
func (b *Box[V]) compare(location Location) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.tracked = false
	if diff := cmp.Diff(b.previous, b.current); diff != "" {
		b.report(Diagnostic{
			Kind:     DiagnosticMismatch,
			Message:  "box " + b.describe() + " diverged from expected value (-expected +actual)",
			Diff:     diff,
			Location: location,
		})
	}
	b.previous = b.current
}

// Duplicate produces a new, independently owned box seeded with a deep copy
// of the current value. The duplicate shares the harness but nothing else:
// no key, sink, or hooks, and mutations never alias the original.
func (b *Box[V]) Duplicate() *Box[V] {
	b.lock.Lock()
	value := clone.Value(b.current)
	harness := b.harness
	diagnostics := b.diagnostics
	b.lock.Unlock()

	duplicated := NewBox(value, WithHarness[V](harness))
	duplicated.diagnostics = diagnostics
	return duplicated
}

// Equal compares box values. In live mode both current values are compared;
// while the receiver's harness is asserting, the receiver's expected
// (previous) value is compared against the other box's actual value.
func (b *Box[V]) Equal(other *Box[V]) bool {
	if other == nil {
		return false
	}
	if b == other {
		return true
	}

	b.lock.Lock()
	left := b.current
	if b.harness.Asserting() {
		left = b.previous
	}
	b.lock.Unlock()

	other.lock.Lock()
	right := other.current
	other.lock.Unlock()

	return cmp.Equal(left, right)
}

func (b *Box[V]) describe() string {
	if b.key != "" {
		return b.key
	}
	return b.id.String()
}

func (b *Box[V]) report(d Diagnostic) {
	if b.diagnostics != nil {
		b.diagnostics.Report(d)
		return
	}
	b.harness.report(d)
}
