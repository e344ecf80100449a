package shared

import (
	"strings"
	"testing"
)

func TestHarnessAssertAccumulatesExpectedValue(t *testing.T) {
	harness := NewHarness()
	box := NewBox("before", WithHarness[string](harness))

	harness.Assert(func() {
		box.Write("after")
		if got := box.Read(); got != "after" {
			t.Fatalf("expected read inside scope to observe expectation, got %q", got)
		}
	})

	// The expected write never touched live state.
	if got := box.Read(); got != "before" {
		t.Fatalf("expected live value untouched by assertion writes, got %q", got)
	}
}

func TestHarnessReconciledStepReportsNothing(t *testing.T) {
	sink := &CaptureSink{}
	harness := NewHarness(WithDiagnosticSink(sink))
	box := NewBox(1, WithHarness[int](harness))

	harness.Step(func() {
		box.Write(2)
		harness.Assert(func() {
			// Two writes with the same final value as what actually happened.
			box.Write(3)
			box.Write(2)
		})
	})

	if diagnostics := sink.Diagnostics(); len(diagnostics) != 0 {
		t.Fatalf("expected zero mismatches, got %d: %v", len(diagnostics), diagnostics)
	}
}

func TestHarnessUnreconciledStepReportsOneMismatch(t *testing.T) {
	sink := &CaptureSink{}
	harness := NewHarness(WithDiagnosticSink(sink))
	box := NewBox(1, WithHarness[int](harness))

	harness.Step(func() {
		box.Write(2)
		harness.Assert(func() {
			box.Write(99)
		})
	})

	diagnostics := sink.Diagnostics()
	if len(diagnostics) != 1 {
		t.Fatalf("expected exactly one mismatch, got %d", len(diagnostics))
	}
	d := diagnostics[0]
	if d.Kind != DiagnosticMismatch {
		t.Fatalf("unexpected diagnostic kind %q", d.Kind)
	}
	if d.Diff == "" {
		t.Fatalf("expected rendered diff on mismatch")
	}
	if !strings.HasSuffix(d.Location.File, "harness_test.go") || d.Location.Line == 0 {
		t.Fatalf("expected mismatch attributed to the tracked write site, got %s", d.Location)
	}
}

func TestHarnessMultipleBoxesAccumulateIndependentDiffs(t *testing.T) {
	sink := &CaptureSink{}
	harness := NewHarness(WithDiagnosticSink(sink))
	first := NewBox("a", WithHarness[string](harness))
	second := NewBox("x", WithHarness[string](harness))

	harness.Step(func() {
		first.Write("b")
		second.Write("y")
		// Neither expectation reconciled; one diff per box, none aborting.
	})

	if diagnostics := sink.Diagnostics(); len(diagnostics) != 2 {
		t.Fatalf("expected two independent mismatches, got %d", len(diagnostics))
	}
}

func TestHarnessStepTeardownFiresOnPanic(t *testing.T) {
	sink := &CaptureSink{}
	harness := NewHarness(WithDiagnosticSink(sink))
	box := NewBox(1, WithHarness[int](harness))

	func() {
		defer func() { _ = recover() }()
		harness.Step(func() {
			box.Write(2)
			panic("step failed partway")
		})
	}()

	if diagnostics := sink.Diagnostics(); len(diagnostics) != 1 {
		t.Fatalf("expected deferred comparison despite panic, got %d diagnostics", len(diagnostics))
	}
}

func TestHarnessBareWritesWithoutStepApplyDirectly(t *testing.T) {
	sink := &CaptureSink{}
	harness := NewHarness(WithDiagnosticSink(sink))
	box := NewBox(1, WithHarness[int](harness))

	// No step active: nothing to track, the write just lands.
	box.Write(5)
	if got := box.Read(); got != 5 {
		t.Fatalf("expected direct write outside a step, got %d", got)
	}
	if diagnostics := sink.Diagnostics(); len(diagnostics) != 0 {
		t.Fatalf("expected no diagnostics outside a step, got %d", len(diagnostics))
	}
}
