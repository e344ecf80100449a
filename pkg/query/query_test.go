package query

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type mapCache struct {
	mu       sync.Mutex
	programs map[string]any
	hits     int
}

func newMapCache() *mapCache {
	return &mapCache{programs: map[string]any{}}
}

func (c *mapCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.programs[key]
	if ok {
		c.hits++
	}
	return value, ok
}

func (c *mapCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.programs[key] = value
}

func snapshotContext() Context {
	return Context{
		Snapshot: map[string]any{
			"count": 3,
			"tags":  []any{"a", "b"},
		},
		Store: "prefs",
	}
}

func TestExprEngineEvaluatesSnapshotVariables(t *testing.T) {
	engine := NewExprEngine()

	out, err := engine.Evaluate(snapshotContext(), "count + len(tags)")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out != 5 {
		t.Fatalf("expected 5, got %v (%T)", out, out)
	}
}

func TestExprEngineBindsContextEnvironment(t *testing.T) {
	engine := NewExprEngine()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := Context{
		Now:   &now,
		Args:  map[string]any{"limit": 2},
		Store: "prefs",
	}

	out, err := engine.Evaluate(ctx, `store == "prefs" && args.limit == 2 && now.Year() == 2026`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out != true {
		t.Fatalf("expected environment bindings, got %v", out)
	}
}

func TestExprEngineCompileReusesCachedProgram(t *testing.T) {
	cache := newMapCache()
	engine := NewExprEngine(ExprWithProgramCache(cache))

	compiled, err := engine.Compile("count * 2")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for i := 0; i < 3; i++ {
		out, err := compiled.Evaluate(snapshotContext())
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if out != 6 {
			t.Fatalf("expected 6, got %v", out)
		}
	}

	if _, err := engine.Evaluate(snapshotContext(), "count * 2"); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if cache.hits == 0 {
		t.Fatalf("expected compiled program served from cache")
	}
}

func TestExprEngineCallsRegisteredFunctions(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("double", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("double expects one argument")
		}
		n, ok := args[0].(int)
		if !ok {
			return nil, errors.New("double expects an int")
		}
		return n * 2, nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	engine := NewExprEngine(ExprWithFunctionRegistry(registry))

	out, err := engine.Evaluate(snapshotContext(), "double(count)")
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out != 6 {
		t.Fatalf("expected 6, got %v", out)
	}

	out, err = engine.Evaluate(snapshotContext(), `call("double", count)`)
	if err != nil {
		t.Fatalf("Evaluate via call: %v", err)
	}
	if out != 6 {
		t.Fatalf("expected 6 via call, got %v", out)
	}
}

func TestExprEngineWrapsEvaluationErrors(t *testing.T) {
	engine := NewExprEngine()

	_, err := engine.Evaluate(snapshotContext(), "count +")
	if err == nil {
		t.Fatalf("expected compile error")
	}
	var queryErr *Error
	if !errors.As(err, &queryErr) {
		t.Fatalf("expected *query.Error, got %T: %v", err, err)
	}
	if queryErr.Engine != "expr" {
		t.Fatalf("expected expr engine attribution, got %q", queryErr.Engine)
	}
	if !strings.HasPrefix(err.Error(), "query:") {
		t.Fatalf("expected query: prefix, got %q", err.Error())
	}
}

func TestCELEngineEvaluatesSnapshotVariables(t *testing.T) {
	engine := NewCELEngine()

	out, err := engine.Evaluate(snapshotContext(), `store == "prefs" && count == 3`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out != true {
		t.Fatalf("expected true, got %v", out)
	}
}

func TestCELEngineCompileAndCache(t *testing.T) {
	cache := newMapCache()
	engine := NewCELEngine(CELWithProgramCache(cache))

	compiled, err := engine.Compile("count >= 1")
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for i := 0; i < 2; i++ {
		out, err := compiled.Evaluate(snapshotContext())
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if out != true {
			t.Fatalf("expected true, got %v", out)
		}
	}
	if cache.hits == 0 {
		t.Fatalf("expected program cache hits on repeat evaluation")
	}
}

func TestCELEngineCallFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()
	if err := registry.Register("greet", func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, errors.New("greet expects one argument")
		}
		return "hello " + args[0].(string), nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	engine := NewCELEngine(CELWithFunctionRegistry(registry))
	out, err := engine.Evaluate(Context{Store: "prefs"}, `call("greet", "world")`)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if out != "hello world" {
		t.Fatalf("expected registry call result, got %v", out)
	}
}

func TestJSEngineAvailability(t *testing.T) {
	engine := NewJSEngine()
	if jsEngineAvailable() {
		if engine == nil {
			t.Fatalf("expected js engine when built with js_eval")
		}
		out, err := engine.Evaluate(snapshotContext(), "count * 2")
		if err != nil {
			t.Fatalf("Evaluate: %v", err)
		}
		if out != int64(6) && out != float64(6) {
			t.Fatalf("expected 6, got %v (%T)", out, out)
		}
		return
	}
	if engine != nil {
		t.Fatalf("expected nil js engine without js_eval tag")
	}
}

func TestRunDefaultsAndLogsEvaluation(t *testing.T) {
	var logged []Event
	logger := LoggerFunc(func(event Event) {
		logged = append(logged, event)
	})

	out, err := Run(nil, snapshotContext(), "count", logger)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out != 3 {
		t.Fatalf("expected snapshot value, got %v", out)
	}

	if len(logged) != 1 {
		t.Fatalf("expected one logged event, got %d", len(logged))
	}
	event := logged[0]
	if event.Engine != "expr" {
		t.Fatalf("expected default expr engine, got %q", event.Engine)
	}
	if event.Store != "prefs" || event.Expression != "count" {
		t.Fatalf("unexpected event attribution: %+v", event)
	}
	if event.Err != nil {
		t.Fatalf("expected nil event error, got %v", event.Err)
	}
}

func TestRunReportsErrorsToLogger(t *testing.T) {
	var logged []Event
	logger := LoggerFunc(func(event Event) {
		logged = append(logged, event)
	})

	if _, err := Run(nil, snapshotContext(), "count +", logger); err == nil {
		t.Fatalf("expected evaluation error")
	}
	if len(logged) != 1 || logged[0].Err == nil {
		t.Fatalf("expected logged failure, got %+v", logged)
	}

	if _, err := Run(nil, Context{}, "", logger); err == nil {
		t.Fatalf("expected error for empty expression")
	}
}

func TestFunctionRegistry(t *testing.T) {
	registry := NewFunctionRegistry()

	if err := registry.Register("Add", func(args ...any) (any, error) { return 1, nil }); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := registry.Register("add", func(args ...any) (any, error) { return 2, nil }); err == nil {
		t.Fatalf("expected case-insensitive duplicate rejection")
	}
	if err := registry.Register("", func(args ...any) (any, error) { return nil, nil }); err == nil {
		t.Fatalf("expected empty name rejection")
	}
	if err := registry.Register("nilfn", nil); err == nil {
		t.Fatalf("expected nil function rejection")
	}

	if _, err := registry.Call("missing"); err == nil {
		t.Fatalf("expected unknown function error")
	}
	out, err := registry.Call("ADD")
	if err != nil || out != 1 {
		t.Fatalf("expected case-insensitive lookup, got %v err=%v", out, err)
	}

	clone := registry.Clone()
	if err := clone.Register("extra", func(args ...any) (any, error) { return nil, nil }); err != nil {
		t.Fatalf("Register on clone: %v", err)
	}
	if len(registry.Names()) != 1 {
		t.Fatalf("expected clone registration isolated from origin")
	}
}

func TestSnapshotFollowsJSONTags(t *testing.T) {
	type prefs struct {
		Theme    string `json:"theme"`
		FontSize int    `json:"font_size"`
		Internal string `json:"-"`
	}

	snapshot, err := Snapshot(prefs{Theme: "dark", FontSize: 14, Internal: "hidden"})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snapshot["theme"] != "dark" {
		t.Fatalf("expected json-tagged key, got %v", snapshot)
	}
	if snapshot["font_size"] != float64(14) {
		t.Fatalf("expected numeric field decoded as float64, got %T", snapshot["font_size"])
	}
	if _, ok := snapshot["Internal"]; ok {
		t.Fatalf("expected omitted field excluded from snapshot")
	}

	passthrough := map[string]any{"k": "v"}
	got, err := Snapshot(passthrough)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if got["k"] != "v" {
		t.Fatalf("expected map passthrough, got %v", got)
	}

	empty, err := Snapshot(nil)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty snapshot for nil value, got %v err=%v", empty, err)
	}
}
