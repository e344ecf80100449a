// Package shared provides the shared mutable value substrate used by scoped
// state trees: a reference-holding Box guarded by a per-instance re-entrant
// lock, an explicit test Harness that bounds assertion scopes, and a
// ChangeTracker that batches deferred expected-vs-actual comparisons.
//
// Responsibilities:
//   - Box[V] serializes reads and writes to one logical value. In live mode
//     writes apply directly; under a test harness writes either accumulate an
//     expected value (inside an assertion scope) or snapshot-and-track so the
//     final value can be diffed against the expectation at step end.
//   - Harness is the explicit execution-context signal. Boxes constructed
//     without one always behave live; attaching one opts the box into the
//     snapshot/track protocol. There is no ambient, task-local mode flag.
//   - ChangeTracker owns one deferred comparison per box identity and fires
//     them exactly once when the bounding step unwinds, attributing each
//     mismatch to the call site that registered it.
//   - Registry hands out keyed boxes seeded from a persist.Store and sinks
//     subsequent writes back, keeping the core agnostic to where values live.
//
// Mismatches and misuse conditions are reported through DiagnosticSink and
// never raised as control-flow errors, so one test step can accumulate
// multiple independent diffs before reporting.
package shared
