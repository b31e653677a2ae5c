// Package expressions provides the template-token engine that expands
// date expressions embedded in free-form strings, plus the CEL, Expr and
// GoJQ evaluators used by transformer conditions, inline transformers and
// normalization projections.
package expressions

import "context"

// Engine evaluates expressions against record data.
// Two implementations: CEL (transformer guards) and GoJQ (normalization
// projections). Inline transformer values go through the dedicated
// ExprEngine, whose environment shape is fixed.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, data map[string]any) (any, error)
}
