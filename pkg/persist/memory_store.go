package persist

import (
	"context"
	"sync"
)

// MemoryStore is a minimal in-memory Store implementation intended for tests
// and examples. It uses Ref.Identifier() as its deterministic key and makes no
// persistence assumptions beyond that.
type MemoryStore[V any] struct {
	mu      sync.RWMutex
	records map[string]memoryRecord[V]
}

type memoryRecord[V any] struct {
	value V
	meta  Meta
}

func NewMemoryStore[V any]() *MemoryStore[V] {
	return &MemoryStore[V]{records: map[string]memoryRecord[V]{}}
}

func (s *MemoryStore[V]) Load(_ context.Context, ref Ref) (V, Meta, bool, error) {
	var zero V
	key, err := ref.Identifier()
	if err != nil {
		return zero, Meta{}, false, err
	}

	s.mu.RLock()
	record, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return zero, Meta{}, false, nil
	}
	return record.value, cloneMeta(record.meta), true, nil
}

func (s *MemoryStore[V]) Save(_ context.Context, ref Ref, value V, meta Meta) (Meta, error) {
	key, err := ref.Identifier()
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	s.records[key] = memoryRecord[V]{value: value, meta: cloneMeta(meta)}
	s.mu.Unlock()
	return cloneMeta(meta), nil
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
