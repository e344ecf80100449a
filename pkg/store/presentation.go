package store

import (
	"context"

	shared "github.com/goliatone/go-shared-state"
	"github.com/goliatone/go-shared-state/pkg/activity"
)

// Presented is a child store handle for optional, presentation-style
// sub-state. It behaves like the underlying store and additionally models
// dismissal: an explicit action sent to the parent before the state is
// assumed cleared.
type Presented[State, Action any] struct {
	*Store[State, Action]

	at           site
	sendDismiss  func()
	stillPresent func() bool
	evict        func()
}

// ScopePresentation scopes into optional presentation state. The projected
// sub-state absent means nothing is presented and the call reports false.
// While presented, the child is cached by identity exactly like Scope, so
// re-presenting the same identity returns the same handle, and a nil gap in
// between yields a fresh one.
func ScopePresentation[PState, PAction, CState, CAction any](
	parent *Store[PState, PAction],
	proj Projection[PState, CState],
	embed func(CAction) PAction,
	dismissal PAction,
) (*Presented[CState, CAction], bool) {
	at := callSite(1)
	child, ok := scopeAt(parent, proj, embed, at)
	if !ok {
		return nil, false
	}

	return &Presented[CState, CAction]{
		Store: child,
		at:    at,
		sendDismiss: func() {
			parent.send(dismissal)
		},
		stillPresent: func() bool {
			ps, ok := parent.read()
			if !ok {
				return false
			}
			_, ok = proj.Get(ps)
			return ok
		},
		evict: func() {
			parent.cache.evictSite(at)
		},
	}, true
}

// Dismiss sends the dismissal action to the parent, then verifies the parent
// actually cleared the presented state. A parent reducer that leaves the
// state in place indicates missing teardown wiring; that is reported as a
// diagnostic rather than corrupting state, and the cached child is retained
// so observation continues best-effort.
func (p *Presented[State, Action]) Dismiss() {
	if p == nil {
		return
	}
	p.sendDismiss()
	if p.stillPresent() {
		p.diagnostics.Report(shared.Diagnostic{
			Kind:     shared.DiagnosticDismissalNotCleared,
			Message:  "dismissal action sent but parent state was not cleared",
			Location: p.at.location(),
		})
		return
	}
	p.evict()
	p.emitDismiss()
}

func (p *Presented[State, Action]) emitDismiss() {
	if !p.emitter.Enabled() {
		return
	}
	_ = p.emitter.Emit(context.Background(), activity.Event{
		Verb:       activity.VerbDismiss,
		ObjectType: activity.ObjectStore,
		ObjectID:   p.at.String(),
		Metadata:   map[string]any{"label": p.label},
	})
}
