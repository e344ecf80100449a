package query

import (
	"fmt"
	"time"
)

// Event describes an evaluation attempt for logging.
type Event struct {
	Engine     string
	Expression string
	Store      string
	Duration   time.Duration
	Err        error
}

// Logger records query events.
type Logger interface {
	LogQuery(Event)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(Event)

// LogQuery implements Logger.
func (f LoggerFunc) LogQuery(event Event) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogQuery(Event) {}

// Run evaluates expression with engine, timing the attempt and reporting it
// to logger. A nil engine falls back to the default expr engine; a nil logger
// drops the event.
func Run(engine Engine, ctx Context, expression string, logger Logger) (any, error) {
	if expression == "" {
		return nil, fmt.Errorf("query: expression must not be empty")
	}
	if engine == nil {
		engine = NewExprEngine()
	}
	if logger == nil {
		logger = noopLogger{}
	}
	ctx = ctx.withDefaultNow().withDefaultMaps()

	start := time.Now()
	value, err := engine.Evaluate(ctx, expression)
	duration := time.Since(start)
	err = wrapEvaluationError("", expression, ctx.storeLabel(), err)
	logger.LogQuery(Event{
		Engine:     engineName(engine),
		Expression: expression,
		Store:      ctx.storeLabel(),
		Duration:   duration,
		Err:        err,
	})
	if err != nil {
		return nil, err
	}
	return value, nil
}

func engineName(e Engine) string {
	if e == nil {
		return "unknown"
	}
	switch fmt.Sprintf("%T", e) {
	case "*query.exprEngine":
		return "expr"
	case "*query.celEngine":
		return "cel"
	case "*query.jsEngine":
		return "js"
	default:
		return "custom"
	}
}
