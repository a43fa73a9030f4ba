package expressions

import (
	"context"

	"github.com/rendis/flowpilot/pkg/schema"
)

// comparisons maps each operator to its expr program. Numeric operators
// convert both sides with float(); a conversion failure means "no match".
var comparisons = map[schema.ComparisonOp]string{
	schema.OpEquals:      `actual == expected`,
	schema.OpContains:    `actual contains expected`,
	schema.OpGreaterThan: `float(trim(actual)) > float(trim(expected))`,
	schema.OpLessThan:    `float(trim(actual)) < float(trim(expected))`,
}

// Comparator evaluates valueMatches conditions and extractWithLogic steps.
type Comparator struct {
	engine *ExprEngine
}

// NewComparator returns a Comparator with its own program cache.
func NewComparator() *Comparator {
	return &Comparator{engine: NewExprEngine()}
}

// Compare applies op to actual and expected. Equality and containment are
// plain string operations; greaterThan and lessThan compare numerically and
// return false when either side is not a number. An unknown op is an
// EVALUATION_ERROR.
func (c *Comparator) Compare(ctx context.Context, op schema.ComparisonOp, actual, expected string) (bool, error) {
	program, ok := comparisons[op]
	if !ok {
		return false, schema.NewErrorf(schema.ErrCodeEvaluation, "unknown comparison operator %q", op).
			WithDetails(map[string]any{"operator": string(op)})
	}

	out, err := c.engine.Evaluate(ctx, program, map[string]any{"actual": actual, "expected": expected})
	if err != nil {
		if op == schema.OpGreaterThan || op == schema.OpLessThan {
			return false, nil
		}
		return false, err
	}
	matched, _ := out.(bool)
	return matched, nil
}
