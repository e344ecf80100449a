package shared

import (
	"encoding/json"
	"fmt"
	"runtime"
	"sync"
)

// DiagnosticKind classifies the non-fatal conditions this package reports.
type DiagnosticKind string

const (
	// DiagnosticMismatch indicates a box's expected value diverged from its
	// actual value at tracker teardown.
	DiagnosticMismatch DiagnosticKind = "mismatch"
	// DiagnosticUncachedScope indicates scoping was performed on a store that
	// bypassed the identity cache (legacy transform path).
	DiagnosticUncachedScope DiagnosticKind = "uncached_scope"
	// DiagnosticDismissalNotCleared indicates a dismissal action was sent but
	// the parent reducer did not clear the presented state.
	DiagnosticDismissalNotCleared DiagnosticKind = "dismissal_not_cleared"
	// DiagnosticSinkFailure indicates a persistence or hook sink rejected a
	// written value.
	DiagnosticSinkFailure DiagnosticKind = "sink_failure"
)

// Location identifies the call site a diagnostic is attributed to.
type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

func (l Location) String() string {
	if l.File == "" {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", l.File, l.Line)
}

// callerLocation captures the file and line skip+1 frames above the caller.
func callerLocation(skip int) Location {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Location{}
	}
	return Location{File: file, Line: line}
}

// Diagnostic carries one reportable condition plus the call site to blame.
// Diff is populated for mismatches and holds a go-cmp rendering of expected
// versus actual.
type Diagnostic struct {
	Kind     DiagnosticKind `json:"kind"`
	Message  string         `json:"message"`
	Diff     string         `json:"diff,omitempty"`
	Location Location       `json:"location"`
}

func (d Diagnostic) String() string {
	out := fmt.Sprintf("%s: %s (%s)", d.Kind, d.Message, d.Location)
	if d.Diff != "" {
		out += "\n" + d.Diff
	}
	return out
}

// ToJSON serialises the diagnostic for logging or transport helpers.
func (d Diagnostic) ToJSON() ([]byte, error) {
	type alias Diagnostic
	return json.Marshal(alias(d))
}

// DiagnosticFromJSON deserialises a payload previously generated via ToJSON.
func DiagnosticFromJSON(payload []byte) (Diagnostic, error) {
	type alias Diagnostic
	var d alias
	if err := json.Unmarshal(payload, &d); err != nil {
		return Diagnostic{}, err
	}
	return Diagnostic(d), nil
}

// DiagnosticSink receives mismatch and misuse reports. Implementations map
// them onto a test-reporting or logging facility.
type DiagnosticSink interface {
	Report(Diagnostic)
}

// DiagnosticSinkFunc adapts a function to DiagnosticSink.
type DiagnosticSinkFunc func(Diagnostic)

// Report implements DiagnosticSink.
func (f DiagnosticSinkFunc) Report(d Diagnostic) {
	if f != nil {
		f(d)
	}
}

type noopDiagnosticSink struct{}

func (noopDiagnosticSink) Report(Diagnostic) {}

// CaptureSink records diagnostics for assertions in tests.
type CaptureSink struct {
	mu          sync.Mutex
	diagnostics []Diagnostic
}

// Report implements DiagnosticSink.
func (s *CaptureSink) Report(d Diagnostic) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.diagnostics = append(s.diagnostics, d)
}

// Diagnostics returns a copy of everything reported so far.
func (s *CaptureSink) Diagnostics() []Diagnostic {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Diagnostic, len(s.diagnostics))
	copy(out, s.diagnostics)
	return out
}
