package shared

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/goliatone/go-shared-state/pkg/activity"
)

var errBoom = errors.New("boom")

type profile struct {
	Name  string
	Score int
	Tags  map[string]string
}

func TestBoxReadAfterConstruction(t *testing.T) {
	box := NewBox(profile{Name: "ada", Score: 1})
	got := box.Read()
	if got.Name != "ada" || got.Score != 1 {
		t.Fatalf("expected constructed value back, got %+v", got)
	}
}

func TestBoxLiveWriteConverges(t *testing.T) {
	box := NewBox(10)
	box.Write(42)
	if got := box.Read(); got != 42 {
		t.Fatalf("expected live write to apply directly, got %d", got)
	}
	// Outside an assertion scope the two slots converge, so equality against
	// a box holding the same value must hold.
	other := NewBox(42)
	if !box.Equal(other) {
		t.Fatalf("expected value equality after live write")
	}
}

func TestBoxUpdateMutatesInPlace(t *testing.T) {
	box := NewBox(profile{Name: "ada"})
	box.Update(func(p *profile) {
		p.Score = 7
	})
	if got := box.Read(); got.Score != 7 {
		t.Fatalf("expected update to mutate value, got %+v", got)
	}
}

func TestBoxDuplicateIsIndependent(t *testing.T) {
	box := NewBox(profile{Name: "ada", Tags: map[string]string{"role": "pilot"}})
	dup := box.Duplicate()

	if box.ID() == dup.ID() {
		t.Fatalf("expected duplicate to carry its own identity")
	}

	dup.Update(func(p *profile) {
		p.Name = "grace"
		p.Tags["role"] = "captain"
	})

	original := box.Read()
	if original.Name != "ada" {
		t.Fatalf("expected original name untouched, got %q", original.Name)
	}
	if original.Tags["role"] != "pilot" {
		t.Fatalf("expected original map detached from duplicate, got %q", original.Tags["role"])
	}
}

func TestBoxEqualityComparesValuesNotIdentity(t *testing.T) {
	left := NewBox(profile{Name: "ada", Score: 3})
	right := NewBox(profile{Name: "ada", Score: 3})
	if !left.Equal(right) {
		t.Fatalf("expected boxes holding equal values to compare equal")
	}
	right.Write(profile{Name: "ada", Score: 4})
	if left.Equal(right) {
		t.Fatalf("expected diverged values to compare unequal")
	}
	if left.Equal(nil) {
		t.Fatalf("expected nil comparison to be false")
	}
}

func TestBoxEqualityDuringAssertionScope(t *testing.T) {
	harness := NewHarness()
	expected := NewBox(profile{Name: "ada"}, WithHarness[profile](harness))
	actual := NewBox(profile{Name: "grace"}, WithHarness[profile](harness))

	harness.Assert(func() {
		// The receiver's expected (previous) value is compared against the
		// other box's actual value.
		expected.Write(profile{Name: "grace"})
		if !expected.Equal(actual) {
			t.Fatalf("expected asserting equality to match expected vs actual")
		}
	})
}

func TestBoxValueCodecRoundTrip(t *testing.T) {
	box := NewBox(profile{Name: "ada", Score: 9, Tags: map[string]string{"a": "b"}})

	payload, err := json.Marshal(box.Read())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var decoded profile
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}

	if !box.Equal(NewBox(decoded)) {
		t.Fatalf("expected codec round-trip to preserve value equality")
	}
}

func TestBoxHooksFireOnWrite(t *testing.T) {
	capture := &activity.CaptureHook{}
	box := NewBox(1,
		WithBoxKey[int]("counter"),
		WithBoxHooks[int](activity.Hooks{capture}),
	)
	box.Write(2)

	events := capture.Snapshot()
	if len(events) != 1 {
		t.Fatalf("expected one mutation event, got %d", len(events))
	}
	if events[0].Verb != activity.VerbWrite || events[0].ObjectID != "counter" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
}

func TestBoxHookMayReadSameBox(t *testing.T) {
	var observed int
	var box *Box[int]
	hook := activity.HookFunc(func(_ context.Context, _ activity.Event) error {
		// Re-enters the box lock on the same goroutine.
		observed = box.Read()
		return nil
	})
	box = NewBox(0, WithBoxHooks[int](activity.Hooks{hook}))
	box.Write(5)
	if observed != 5 {
		t.Fatalf("expected hook to observe committed value, got %d", observed)
	}
}

func TestBoxHookFailureReportsDiagnostic(t *testing.T) {
	sink := &CaptureSink{}
	capture := &activity.CaptureHook{Err: errBoom}
	box := NewBox(1,
		WithBoxHooks[int](activity.Hooks{capture}),
		WithBoxDiagnostics[int](sink),
	)
	box.Write(2)

	diagnostics := sink.Diagnostics()
	if len(diagnostics) != 1 {
		t.Fatalf("expected one diagnostic, got %d", len(diagnostics))
	}
	if diagnostics[0].Kind != DiagnosticSinkFailure {
		t.Fatalf("unexpected diagnostic kind %q", diagnostics[0].Kind)
	}
	if !strings.Contains(diagnostics[0].Message, "boom") {
		t.Fatalf("expected hook error in message, got %q", diagnostics[0].Message)
	}
}

func TestBoxConcurrentWritesAreSerialized(t *testing.T) {
	const writesPerWriter = 1000
	box := NewBox(0)

	var wg sync.WaitGroup
	for w := 0; w < 2; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < writesPerWriter; i++ {
				value := i*2 + w
				box.Update(func(v *int) {
					if value > *v {
						*v = value
					}
				})
			}
		}()
	}
	wg.Wait()

	max := (writesPerWriter-1)*2 + 1
	if got := box.Read(); got != max {
		t.Fatalf("expected maximum written value %d, got %d (write lost)", max, got)
	}
}
