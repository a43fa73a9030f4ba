// Package conditions evaluates conditional nodes against the current page.
package conditions

import (
	"context"
	"errors"

	"github.com/rendis/flowpilot/internal/browser"
	"github.com/rendis/flowpilot/internal/expressions"
	"github.com/rendis/flowpilot/internal/variables"
	"github.com/rendis/flowpilot/pkg/schema"
)

// Evaluator decides which branch a conditional node takes.
type Evaluator struct {
	compare *expressions.Comparator
}

// New returns an Evaluator. A nil comparator gets a fresh one.
func New(compare *expressions.Comparator) *Evaluator {
	if compare == nil {
		compare = expressions.NewComparator()
	}
	return &Evaluator{compare: compare}
}

// Evaluate returns the boolean result of cond. Selector and expected value
// are interpolated from vars first.
//
// elementExists and loopUntilFalse are true when the selector matches.
// valueMatches reads the element text and compares it to the expected value;
// a missing element is false, and an empty operator means equals.
func (e *Evaluator) Evaluate(ctx context.Context, cond *schema.ConditionData, driver browser.Driver, vars *variables.Store) (bool, error) {
	if cond == nil {
		return false, schema.NewError(schema.ErrCodeEvaluation, "condition is nil")
	}
	if vars == nil {
		vars = variables.New(nil)
	}
	if driver == nil {
		return false, schema.NewErrorf(schema.ErrCodeDriverFailure, "%s condition needs a browser session", cond.ConditionType)
	}

	selector := vars.Interpolate(cond.Selector)
	if selector == "" {
		return false, schema.NewErrorf(schema.ErrCodeEvaluation, "%s condition has no selector", cond.ConditionType)
	}

	switch cond.ConditionType {
	case schema.CondElementExists, schema.CondLoopUntilFalse:
		return exists(ctx, driver, selector)

	case schema.CondValueMatches:
		op := cond.ComparisonOp
		if op == "" {
			op = schema.OpEquals
		}
		found, err := exists(ctx, driver, selector)
		if err != nil || !found {
			return false, err
		}
		text, err := driver.Text(ctx, selector)
		if err != nil {
			return false, wrapDriver("read "+selector, err)
		}
		return e.compare.Compare(ctx, op, text, vars.Interpolate(cond.ExpectedValue))

	default:
		return false, schema.NewErrorf(schema.ErrCodeEvaluation, "unknown condition type %q", cond.ConditionType)
	}
}

func exists(ctx context.Context, driver browser.Driver, selector string) (bool, error) {
	found, err := driver.Exists(ctx, selector)
	if err != nil {
		return false, wrapDriver("query "+selector, err)
	}
	return found, nil
}

func wrapDriver(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return schema.NewErrorf(schema.ErrCodeCancelled, "%s: %s", op, err.Error()).WithCause(err)
	}
	return schema.NewErrorf(schema.ErrCodeDriverFailure, "%s: %s", op, err.Error()).WithCause(err)
}
