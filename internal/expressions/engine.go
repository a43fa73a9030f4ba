// Package expressions evaluates comparisons and JSON queries used by steps and conditions.
package expressions

import "context"

// Engine evaluates an expression against a data environment.
// Two implementations: Expr (comparisons) and GoJQ (response narrowing).
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
