package store

import (
	"fmt"
	"runtime"
	"sync"

	shared "github.com/goliatone/go-shared-state"
)

// Identifier exposes a stable natural identity for scoped sub-state. State
// types used with Scope should implement it; without one the cache key falls
// back to the call site alone, a deliberately weaker compatibility mode that
// cannot distinguish two values scoped from the same line.
type Identifier interface {
	StateID() string
}

// site pins a scoping call to its source location. It doubles as the
// eviction unit: when a projection stops yielding a value, every child cached
// from the same call site is dropped.
type site struct {
	file string
	line int
}

func (s site) location() shared.Location {
	return shared.Location{File: s.file, Line: s.line}
}

func (s site) String() string {
	return fmt.Sprintf("%s:%d", s.file, s.line)
}

// callSite captures the source location skip+1 frames above the caller.
func callSite(skip int) site {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return site{}
	}
	return site{file: file, line: line}
}

// scopeKey is the derived child identity: the natural identity of the
// projected sub-state when available, discriminated by the scoping call site.
type scopeKey struct {
	site    site
	natural string
}

func deriveKey(state any, at site) scopeKey {
	key := scopeKey{site: at}
	if identified, ok := state.(Identifier); ok {
		key.natural = identified.StateID()
	}
	return key
}

// childCache maps derived identities to previously constructed child stores,
// guaranteeing reference stability across repeated scoping calls. Each parent
// owns its cache exclusively.
type childCache struct {
	mu       sync.Mutex
	children map[scopeKey]any
}

func newChildCache() *childCache {
	return &childCache{children: map[scopeKey]any{}}
}

func (c *childCache) get(key scopeKey) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	child, ok := c.children[key]
	return child, ok
}

func (c *childCache) set(key scopeKey, child any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children[key] = child
}

// evictSite drops every child cached from the given call site.
func (c *childCache) evictSite(at site) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.children {
		if key.site == at {
			delete(c.children, key)
		}
	}
}

// evictSiteExcept drops stale children cached from the given call site whose
// identity no longer matches. Eviction is eager so stale child state is not
// retained past the scope call that detects it.
func (c *childCache) evictSiteExcept(at site, keep scopeKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.children {
		if key.site == at && key != keep {
			delete(c.children, key)
		}
	}
}

func (c *childCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = map[scopeKey]any{}
}

func (c *childCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.children)
}
