// Package variables provides the registry of named, time-dependent value
// producers usable inside template expressions.
package variables

import (
	"regexp"
	"strconv"
	"sync"

	"github.com/propgrade/propgrade/pkg/schema"
)

// Variable is a named, time-context-dependent value source. Implementations
// are immutable once registered.
type Variable interface {
	Key() string
	Evaluate(ctx *schema.EvalContext) *schema.EvalResult
	SupportsArithmetic() bool
	// ApplyArithmetic shifts the variable by operand units. op is "+" or "-".
	ApplyArithmetic(op string, operand int, ctx *schema.EvalContext) *schema.EvalResult
}

// arithmeticPattern matches <name><op><operand> expressions like "currentMonth+3".
var arithmeticPattern = regexp.MustCompile(`^(\w+)([+-])(\d+)$`)

// Registry is a thread-safe, append-only table of variables.
type Registry struct {
	mu   sync.RWMutex
	vars map[string]Variable
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{vars: make(map[string]Variable)}
}

// Register adds a variable to the registry. Returns error on duplicate key.
func (r *Registry) Register(v Variable) error {
	if v == nil {
		return schema.NewError(schema.ErrCodeValidation, "variable is nil")
	}
	key := v.Key()
	if key == "" {
		return schema.NewError(schema.ErrCodeValidation, "variable key is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.vars[key]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "variable %q already registered", key)
	}
	r.vars[key] = v
	return nil
}

// Get retrieves a variable by key.
func (r *Registry) Get(key string) (Variable, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vars[key]
	return v, ok
}

// Has checks if a variable is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// Keys returns the registered variable keys in unspecified order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.vars))
	for k := range r.vars {
		keys = append(keys, k)
	}
	return keys
}

// EvaluateExpression resolves an expression of the form "<name>" or
// "<name><op><digits>". Returns nil when the base variable is unknown or
// arithmetic is requested on a variable that does not support it — lookup
// failure is a first-class nil, never an error.
func (r *Registry) EvaluateExpression(expression string, ctx *schema.EvalContext) *schema.EvalResult {
	if m := arithmeticPattern.FindStringSubmatch(expression); m != nil {
		v, ok := r.Get(m[1])
		if !ok || !v.SupportsArithmetic() {
			return nil
		}
		operand, err := strconv.Atoi(m[3])
		if err != nil {
			return nil
		}
		return v.ApplyArithmetic(m[2], operand, ctx)
	}

	v, ok := r.Get(expression)
	if !ok {
		return nil
	}
	return v.Evaluate(ctx)
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry pre-populated with the
// built-in date variables. Populated once; safe for concurrent readers.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, v := range Builtins() {
			// Builtins carry unique keys; Register cannot fail here.
			_ = defaultRegistry.Register(v)
		}
	})
	return defaultRegistry
}
