package expressions

import (
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/propgrade/propgrade/pkg/schema"
)

// ValueEnv is the evaluation environment an inline transformer's expr
// sees: the record being transformed, its positional counterpart on the
// actual side, and the current value at the target path. Nil maps are
// fine; missing keys resolve to nil inside the expression.
type ValueEnv struct {
	Self   map[string]any
	Actual map[string]any
	Value  any
}

func (e ValueEnv) vars() map[string]any {
	self := e.Self
	if self == nil {
		self = map[string]any{}
	}
	actual := e.Actual
	if actual == nil {
		actual = map[string]any{}
	}
	return map[string]any{"self": self, "actual": actual, "value": e.Value}
}

// ExprEngine computes inline transformer values with expr-lang/expr:
// string operations, nil coalescing (??), optional chaining (?.),
// conditionals. The environment shape is fixed (self, actual, value),
// so programs compile once per expression and are reused. Safe for
// concurrent use.
type ExprEngine struct {
	mu       sync.Mutex
	programs map[string]*vm.Program
}

// NewExprEngine creates a new inline-value engine.
func NewExprEngine() *ExprEngine {
	return &ExprEngine{
		programs: make(map[string]*vm.Program),
	}
}

// EvaluateValue evaluates expression against env and returns the value
// the transformer should write.
func (e *ExprEngine) EvaluateValue(expression string, env ValueEnv) (any, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "empty expr expression")
	}

	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	out, err := vm.Run(prg, env.vars())
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeEvaluation,
			"expr evaluation failed for %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	return out, nil
}

// program returns the compiled form of expression, compiling and caching
// it on first use. Compilation declares the fixed self/actual/value
// environment; deeper keys stay undeclared since record shapes are only
// known at evaluation time.
func (e *ExprEngine) program(expression string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prg, ok := e.programs[expression]; ok {
		return prg, nil
	}

	prg, err := expr.Compile(expression,
		expr.Env(ValueEnv{}.vars()),
		expr.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeValidation,
			"expr compile error in %q: %s", expression, err.Error()).
			WithCause(err).
			WithDetails(map[string]any{"expression": expression})
	}

	e.programs[expression] = prg
	return prg, nil
}
