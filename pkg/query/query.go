// Package query evaluates read-only expressions against a state snapshot.
// Engines share one interface so consumers can swap expression languages
// (expr by default, CEL, or JavaScript behind the js_eval build tag) without
// touching call sites. Engines never mutate the snapshot; write access stays
// with the owning store.
package query

import "time"

// Context carries inputs needed when evaluating an expression.
type Context struct {
	Snapshot map[string]any
	Now      *time.Time
	Args     map[string]any
	Metadata map[string]any
	Store    string
}

func (ctx Context) withDefaultNow() Context {
	if ctx.Now != nil {
		return ctx
	}
	now := time.Now()
	ctx.Now = &now
	return ctx
}

func (ctx Context) timestamp() time.Time {
	ctx = ctx.withDefaultNow()
	return *ctx.Now
}

func (ctx Context) withDefaultMaps() Context {
	if ctx.Snapshot == nil {
		ctx.Snapshot = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	if ctx.Metadata == nil {
		ctx.Metadata = map[string]any{}
	}
	return ctx
}

func (ctx Context) storeLabel() string {
	if ctx.Store != "" {
		return ctx.Store
	}
	return "unknown"
}

// Engine executes expressions against a query context.
type Engine interface {
	Evaluate(ctx Context, expression string) (any, error)
	Compile(expression string, opts ...CompileOption) (Compiled, error)
}

// Compiled represents a reusable expression program.
type Compiled interface {
	Evaluate(ctx Context) (any, error)
}

// CompileOption configures engine compile behaviour.
type CompileOption interface {
	applyCompileOption(*compileConfig)
}

type compileConfig struct{}

type compileOptionFunc func(*compileConfig)

func (f compileOptionFunc) applyCompileOption(cfg *compileConfig) {
	if f != nil {
		f(cfg)
	}
}

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}
