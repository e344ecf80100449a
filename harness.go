package shared

import (
	"sync"
	"sync/atomic"
)

// Harness is the explicit execution-context signal for test runs. A box
// constructed with an attached harness routes its writes through the
// snapshot/track protocol; a box without one always behaves live.
//
// The asserting flag and the active tracker are harness-wide: every box
// attached to the same harness observes the same assertion scope, including
// from other goroutines. Tests that need isolation use separate harnesses.
type Harness struct {
	mu        sync.Mutex
	asserting atomic.Bool
	tracker   *ChangeTracker
	sink      DiagnosticSink
}

// HarnessOption configures a Harness.
type HarnessOption func(*harnessConfig)

type harnessConfig struct {
	sink DiagnosticSink
}

// WithDiagnosticSink routes mismatch reports to sink instead of dropping them.
func WithDiagnosticSink(sink DiagnosticSink) HarnessOption {
	return func(cfg *harnessConfig) {
		cfg.sink = sink
	}
}

// NewHarness constructs a harness. Without a diagnostic sink, mismatches are
// silently discarded, which is only useful in examples.
func NewHarness(opts ...HarnessOption) *Harness {
	cfg := harnessConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.sink == nil {
		cfg.sink = noopDiagnosticSink{}
	}
	return &Harness{sink: cfg.sink}
}

// Asserting reports whether an assertion scope is currently active.
func (h *Harness) Asserting() bool {
	return h != nil && h.asserting.Load()
}

// Step bounds one test step: it installs a fresh change tracker, runs fn, and
// fires every deferred comparison on the way out. Teardown is guaranteed even
// if fn panics, so partial steps still report their accumulated diffs.
func (h *Harness) Step(fn func()) {
	tracker := NewChangeTracker()

	h.mu.Lock()
	previous := h.tracker
	h.tracker = tracker
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		h.tracker = previous
		h.mu.Unlock()
		tracker.drain()
	}()

	fn()
}

// Assert bounds an assertion region: writes performed inside fn accumulate
// expected values instead of mutating live state, and reads observe the
// expectation built so far. When no step is active, Assert opens one for the
// duration of fn so the comparisons still fire.
func (h *Harness) Assert(fn func()) {
	run := func() {
		h.asserting.Store(true)
		defer h.asserting.Store(false)
		fn()
	}

	h.mu.Lock()
	active := h.tracker != nil
	h.mu.Unlock()

	if active {
		run()
		return
	}
	h.Step(run)
}

// activeTracker returns the tracker installed by the current step, if any.
func (h *Harness) activeTracker() *ChangeTracker {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracker
}

// report forwards a diagnostic to the harness sink.
func (h *Harness) report(d Diagnostic) {
	if h == nil || h.sink == nil {
		return
	}
	h.sink.Report(d)
}
