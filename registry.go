package shared

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-shared-state/pkg/activity"
	"github.com/goliatone/go-shared-state/pkg/persist"
)

// Registry hands out keyed boxes: the first access for a key seeds a box from
// the persistence store and wires its write sink back to it; later accesses
// return the same instance. Releasing a key drops the registry's reference so
// the next access re-seeds from storage.
type Registry struct {
	mu          sync.Mutex
	boxes       map[string]any
	harness     *Harness
	hooks       activity.Hooks
	diagnostics DiagnosticSink
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithRegistryHarness attaches the harness propagated to every box the
// registry creates.
func WithRegistryHarness(h *Harness) RegistryOption {
	return func(r *Registry) {
		r.harness = h
	}
}

// WithRegistryHooks attaches mutation hooks propagated to every box the
// registry creates.
func WithRegistryHooks(hooks activity.Hooks) RegistryOption {
	return func(r *Registry) {
		r.hooks = hooks
	}
}

// WithRegistryDiagnostics routes sink and hook failures for registry-created
// boxes.
func WithRegistryDiagnostics(sink DiagnosticSink) RegistryOption {
	return func(r *Registry) {
		r.diagnostics = sink
	}
}

// NewRegistry constructs an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{boxes: map[string]any{}}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// BoxFor returns the box registered under key, creating it on first access.
// A new box is seeded with the stored value when the store has one, the zero
// value otherwise, and every committed write is saved back with fresh
// snapshot metadata. Requesting an existing key with a different value type
// is an error.
func BoxFor[V any](ctx context.Context, r *Registry, key string, store persist.Store[V], opts ...BoxOption[V]) (*Box[V], error) {
	if r == nil {
		return nil, fmt.Errorf("shared: registry is required")
	}
	if key == "" {
		return nil, persist.ErrKeyRequired
	}
	if store == nil {
		return nil, fmt.Errorf("shared: store is required for key %q", key)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.boxes[key]; ok {
		box, ok := existing.(*Box[V])
		if !ok {
			return nil, fmt.Errorf("shared: box %q already registered with a different value type (%T)", key, existing)
		}
		return box, nil
	}

	ref := persist.Ref{Key: key}
	value, _, ok, err := store.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("shared: load %q: %w", key, err)
	}
	if !ok {
		var zero V
		value = zero
	}

	options := []BoxOption[V]{
		WithBoxKey[V](key),
		WithHarness[V](r.harness),
		WithBoxHooks[V](r.hooks),
		WithBoxDiagnostics[V](r.diagnostics),
		WithWriteSink[V](func(v V) error {
			_, err := store.Save(context.Background(), ref, v, persist.NewMeta())
			return err
		}),
	}
	options = append(options, opts...)

	box := NewBox(value, options...)
	r.boxes[key] = box
	return box, nil
}

// Release drops the registry's reference to key. It reports whether a box was
// registered. Existing holders keep their handle; the registry simply stops
// deduplicating the key.
func (r *Registry) Release(key string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.boxes[key]; !ok {
		return false
	}
	delete(r.boxes, key)
	return true
}

// Len returns the number of registered boxes.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.boxes)
}
