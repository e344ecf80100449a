// Package persist defines the persistence-strategy boundary for shared
// boxes: a Store supplies the initial value for an opaque key and receives
// every subsequent value. The core stays agnostic to where values actually
// live (file, memory, remote).
package persist

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrKeyRequired indicates a Ref with an empty key.
var ErrKeyRequired = errors.New("persist: key is required")

// Ref identifies one persisted value by an opaque key.
type Ref struct {
	Key string
}

// Identifier returns the deterministic storage key for the reference.
func (r Ref) Identifier() (string, error) {
	if r.Key == "" {
		return "", ErrKeyRequired
	}
	return r.Key, nil
}

// Meta is storage-owned metadata used for audit and concurrency control.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// NewMeta returns metadata stamped with a fresh snapshot identifier.
func NewMeta() Meta {
	return Meta{SnapshotID: uuid.NewString(), UpdatedAt: time.Now()}
}

// Store loads and saves one value for a single key reference.
type Store[V any] interface {
	Load(ctx context.Context, ref Ref) (value V, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, value V, meta Meta) (Meta, error)
}
