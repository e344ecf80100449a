package query

import (
	"errors"
	"fmt"
	"strings"
)

// Error captures engine metadata alongside the originating error.
type Error struct {
	Engine     string
	Expression string
	Store      string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("query: %s engine %s store=%s: %v", e.Engine, describeExpression(e.Expression), e.Store, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func describeExpression(expression string) string {
	if expression == "" {
		return "expr=<empty>"
	}
	return fmt.Sprintf("expr=%q", expression)
}

func wrapEngineError(engine string, err error) error {
	if err == nil {
		return nil
	}

	var queryErr *Error
	if errors.As(err, &queryErr) {
		return err
	}

	if strings.HasPrefix(err.Error(), "query:") {
		return err
	}
	return fmt.Errorf("query: %s engine: %w", engine, err)
}

func wrapEvaluationError(engine, expression, store string, err error) error {
	if err == nil {
		return nil
	}

	var queryErr *Error
	if errors.As(err, &queryErr) {
		if queryErr.Engine == "" {
			queryErr.Engine = engine
		}
		if queryErr.Expression == "" {
			queryErr.Expression = expression
		}
		if queryErr.Store == "" {
			queryErr.Store = store
		}
		return queryErr
	}

	return &Error{
		Engine:     engine,
		Expression: expression,
		Store:      store,
		Err:        err,
	}
}
