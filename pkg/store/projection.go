package store

// Projection is a composed read/write accessor from a parent state to a
// child state. Get reports false when the child is absent, which is a normal
// control-flow outcome, not an error. Set writes the child back into the
// parent so the root remains the single source of truth.
//
// Projections replace reflective member forwarding: callers compose explicit
// getter/setter pairs instead of relying on dynamic field lookup.
type Projection[Parent, Child any] struct {
	Get func(Parent) (Child, bool)
	Set func(*Parent, Child)
}

// Field builds a total projection from a plain accessor pair.
func Field[P, C any](get func(P) C, set func(*P, C)) Projection[P, C] {
	return Projection[P, C]{
		Get: func(parent P) (C, bool) {
			return get(parent), true
		},
		Set: set,
	}
}

// Optional builds a projection over a nilable pointer field. The child is
// absent while the pointer is nil; writes through the projection only apply
// while the child is present.
func Optional[P, C any](get func(P) *C, set func(*P, *C)) Projection[P, C] {
	return Projection[P, C]{
		Get: func(parent P) (C, bool) {
			ptr := get(parent)
			if ptr == nil {
				var zero C
				return zero, false
			}
			return *ptr, true
		},
		Set: func(parent *P, child C) {
			if get(*parent) == nil {
				return
			}
			set(parent, &child)
		},
	}
}

// ByID projects a slice element by its natural identity. The child is absent
// once the element leaves the collection; writes replace the element in
// place.
func ByID[P any, C Identifier](get func(P) []C, set func(*P, []C), id string) Projection[P, C] {
	return Projection[P, C]{
		Get: func(parent P) (C, bool) {
			for _, child := range get(parent) {
				if child.StateID() == id {
					return child, true
				}
			}
			var zero C
			return zero, false
		},
		Set: func(parent *P, child C) {
			items := get(*parent)
			for i := range items {
				if items[i].StateID() == id {
					items[i] = child
					set(parent, items)
					return
				}
			}
		},
	}
}

// Compose chains two projections so the inner child is reached through the
// outer one. Absence at either level makes the composition absent.
func Compose[A, B, C any](outer Projection[A, B], inner Projection[B, C]) Projection[A, C] {
	return Projection[A, C]{
		Get: func(a A) (C, bool) {
			b, ok := outer.Get(a)
			if !ok {
				var zero C
				return zero, false
			}
			return inner.Get(b)
		},
		Set: func(a *A, c C) {
			b, ok := outer.Get(*a)
			if !ok {
				return
			}
			inner.Set(&b, c)
			outer.Set(a, b)
		},
	}
}
