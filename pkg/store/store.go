// Package store derives typed, identity-stable child views of a state tree
// without copying it. A Store node wraps a reference to the shared root value
// plus a projection from root to local state; children are cached by derived
// identity so repeated scoping calls return the same handle, and are evicted
// eagerly when the projected sub-state disappears.
package store

import (
	"context"
	"fmt"

	shared "github.com/goliatone/go-shared-state"
	"github.com/goliatone/go-shared-state/pkg/activity"
	"github.com/goliatone/go-shared-state/pkg/query"
)

// Store is one node in a tree of store handles. The root owns the shared
// state box; every descendant reads and writes through composed projections,
// so no state is duplicated between parent and child. Only the root box is
// mutated directly.
type Store[State, Action any] struct {
	read  func() (State, bool)
	write func(func(*State))
	send  func(Action)

	cache  *childCache
	cached bool
	label  string

	diagnostics shared.DiagnosticSink
	emitter     *activity.Emitter
	engine      query.Engine
	logger      query.Logger
}

// StoreOption configures a root store; descendants inherit the configuration.
type StoreOption func(*storeConfig)

type storeConfig struct {
	label       string
	diagnostics shared.DiagnosticSink
	emitter     *activity.Emitter
	engine      query.Engine
	logger      query.Logger
}

// WithStoreLabel names the store tree for diagnostics and query attribution.
func WithStoreLabel(label string) StoreOption {
	return func(cfg *storeConfig) {
		cfg.label = label
	}
}

// WithStoreDiagnostics routes cache-coherency diagnostics to sink.
func WithStoreDiagnostics(sink shared.DiagnosticSink) StoreOption {
	return func(cfg *storeConfig) {
		cfg.diagnostics = sink
	}
}

// WithStoreEmitter attaches a mutation-event emitter notified on scope and
// dismissal transitions.
func WithStoreEmitter(emitter *activity.Emitter) StoreOption {
	return func(cfg *storeConfig) {
		cfg.emitter = emitter
	}
}

// WithQueryEngine sets the engine used by Query. Defaults to the expr engine.
func WithQueryEngine(engine query.Engine) StoreOption {
	return func(cfg *storeConfig) {
		cfg.engine = engine
	}
}

// WithQueryLogger records query evaluations performed through the store.
func WithQueryLogger(logger query.Logger) StoreOption {
	return func(cfg *storeConfig) {
		cfg.logger = logger
	}
}

// New constructs the root store over a shared box. Actions sent anywhere in
// the tree funnel into reducer, which mutates the root value through the
// box's write-back path.
func New[State, Action any](box *shared.Box[State], reducer func(*State, Action), opts ...StoreOption) *Store[State, Action] {
	cfg := storeConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.diagnostics == nil {
		cfg.diagnostics = shared.DiagnosticSinkFunc(nil)
	}

	s := &Store[State, Action]{
		cache:       newChildCache(),
		cached:      true,
		label:       cfg.label,
		diagnostics: cfg.diagnostics,
		emitter:     cfg.emitter,
		engine:      cfg.engine,
		logger:      cfg.logger,
	}
	s.read = func() (State, bool) {
		return box.Read(), true
	}
	s.write = func(fn func(*State)) {
		box.Update(fn)
	}
	s.send = func(action Action) {
		if reducer == nil {
			return
		}
		box.Update(func(state *State) {
			reducer(state, action)
		})
	}
	return s
}

// State resolves the store's local state against the root's current value.
// The second result is false when the projected sub-state is absent.
func (s *Store[State, Action]) State() (State, bool) {
	return s.read()
}

// Send dispatches an action toward the root reducer, mapped through every
// projection between this node and the root.
func (s *Store[State, Action]) Send(action Action) {
	s.send(action)
}

// Mutate applies fn to the local state and writes it back through the
// projection chain. Absent sub-state makes this a no-op.
func (s *Store[State, Action]) Mutate(fn func(*State)) {
	if fn == nil {
		return
	}
	s.write(fn)
}

// Label returns the tree label configured at the root.
func (s *Store[State, Action]) Label() string {
	return s.label
}

// CachedChildren returns the number of live entries in this node's child
// cache.
func (s *Store[State, Action]) CachedChildren() int {
	return s.cache.len()
}

// Teardown drops every cached child of this node. Subsequent scope calls
// construct fresh children.
func (s *Store[State, Action]) Teardown() {
	s.cache.clear()
}

// Query evaluates a read-only expression against the store's current local
// state using the configured engine (expr by default).
func (s *Store[State, Action]) Query(expression string) (any, error) {
	state, ok := s.read()
	if !ok {
		return nil, fmt.Errorf("query: store %q has no state to query", s.label)
	}
	snapshot, err := query.Snapshot(state)
	if err != nil {
		return nil, err
	}
	ctx := query.Context{Snapshot: snapshot, Store: s.label}
	return query.Run(s.engine, ctx, expression, s.logger)
}

// Scope derives a child store through proj, caching it by the sub-state's
// natural identity (falling back to the call site). Scoping the same
// projection with the same identity returns the identical child, so
// observers attached to it stay valid. An absent projection evicts any child
// cached from this call site and reports false.
func Scope[PState, PAction, CState, CAction any](
	parent *Store[PState, PAction],
	proj Projection[PState, CState],
	embed func(CAction) PAction,
) (*Store[CState, CAction], bool) {
	return scopeAt(parent, proj, embed, callSite(1))
}

func scopeAt[PState, PAction, CState, CAction any](
	parent *Store[PState, PAction],
	proj Projection[PState, CState],
	embed func(CAction) PAction,
	at site,
) (*Store[CState, CAction], bool) {
	if parent == nil {
		return nil, false
	}
	if !parent.cached {
		parent.diagnostics.Report(shared.Diagnostic{
			Kind:     shared.DiagnosticUncachedScope,
			Message:  "scoping from an uncached store; child observation will not be identity-stable",
			Location: at.location(),
		})
	}

	parentState, ok := parent.read()
	if !ok {
		parent.cache.evictSite(at)
		return nil, false
	}
	childState, ok := proj.Get(parentState)
	if !ok {
		parent.cache.evictSite(at)
		return nil, false
	}

	key := deriveKey(childState, at)
	parent.cache.evictSiteExcept(at, key)
	if cached, ok := parent.cache.get(key); ok {
		if child, ok := cached.(*Store[CState, CAction]); ok {
			return child, true
		}
	}

	child := &Store[CState, CAction]{
		cache:       newChildCache(),
		cached:      true,
		label:       parent.label,
		diagnostics: parent.diagnostics,
		emitter:     parent.emitter,
		engine:      parent.engine,
		logger:      parent.logger,
	}
	child.read = func() (CState, bool) {
		ps, ok := parent.read()
		if !ok {
			var zero CState
			return zero, false
		}
		return proj.Get(ps)
	}
	child.write = func(fn func(*CState)) {
		parent.write(func(ps *PState) {
			cs, ok := proj.Get(*ps)
			if !ok {
				return
			}
			fn(&cs)
			proj.Set(ps, cs)
		})
	}
	child.send = func(action CAction) {
		if embed == nil {
			return
		}
		parent.send(embed(action))
	}

	parent.cache.set(key, child)
	parent.emitScope(key)
	return child, true
}

// Transform derives a child view without identity caching. This is the
// legacy scoping style: every call constructs a fresh handle, and scoping
// further from the result raises an uncached-store diagnostic. Prefer Scope.
func Transform[PState, PAction, CState, CAction any](
	parent *Store[PState, PAction],
	toState func(PState) CState,
	fromAction func(CAction) PAction,
) *Store[CState, CAction] {
	if parent == nil {
		return nil
	}
	child := &Store[CState, CAction]{
		cache:       newChildCache(),
		cached:      false,
		label:       parent.label,
		diagnostics: parent.diagnostics,
		emitter:     parent.emitter,
		engine:      parent.engine,
		logger:      parent.logger,
	}
	child.read = func() (CState, bool) {
		ps, ok := parent.read()
		if !ok {
			var zero CState
			return zero, false
		}
		return toState(ps), true
	}
	child.write = func(func(*CState)) {}
	child.send = func(action CAction) {
		if fromAction == nil {
			return
		}
		parent.send(fromAction(action))
	}
	return child
}

func (s *Store[State, Action]) emitScope(key scopeKey) {
	if !s.emitter.Enabled() {
		return
	}
	objectID := key.natural
	if objectID == "" {
		objectID = key.site.String()
	}
	_ = s.emitter.Emit(context.Background(), activity.Event{
		Verb:       activity.VerbScope,
		ObjectType: activity.ObjectStore,
		ObjectID:   objectID,
		Metadata:   map[string]any{"label": s.label, "site": key.site.String()},
	})
}
