// Package transformers provides the registry of named, conditionally
// applied field transformers and the applier that walks a configuration's
// transformer map over normalized proposals.
package transformers

import (
	"strings"
	"sync"
	"time"

	"github.com/propgrade/propgrade/internal/variables"
	"github.com/propgrade/propgrade/pkg/schema"
)

// TemplatePrefix marks keys of the dynamic transformer family: the suffix
// is a variable expression whose data value becomes the written value.
const TemplatePrefix = "transformer-template-"

// Built-in transformer keys.
const (
	KeyEffectiveDateToday    = "effective-date-today"
	KeyEffectiveDateOnChange = "effective-date-on-change"
	KeyNormalizeString       = "normalize-string"
	KeyEmptyVariables        = "empty-variables"
)

// TransformFunc produces the value a transformer writes. It receives the
// current value at the target path (nil when absent) and the evaluation
// context.
type TransformFunc func(value any, ectx *schema.EvalContext) any

// Definition is a registered transformer: when it may write (Strategy),
// what must hold first (When, evaluated against ConditionTarget), and the
// value producer.
type Definition struct {
	Key             string
	Strategy        schema.Strategy
	When            *schema.Condition
	ConditionTarget schema.ConditionTarget
	Transform       TransformFunc
}

// Registry is a thread-safe table of transformer definitions. Static
// entries are populated at construction; template-transformer keys are
// synthesized lazily on first lookup and cached for the process lifetime
// (idempotent upsert: duplicate synthesis of the same key is equivalent).
type Registry struct {
	vars *variables.Registry

	mu   sync.RWMutex
	defs map[string]*Definition
}

// NewRegistry creates a Registry with the static built-ins, backed by the
// given variable registry for template-transformer synthesis.
func NewRegistry(vars *variables.Registry) *Registry {
	r := &Registry{
		vars: vars,
		defs: make(map[string]*Definition),
	}
	for _, def := range builtins() {
		r.defs[def.Key] = def
	}
	return r
}

// Register adds a transformer definition. Returns error on duplicate key.
func (r *Registry) Register(def *Definition) error {
	if def == nil {
		return schema.NewError(schema.ErrCodeValidation, "transformer definition is nil")
	}
	if def.Key == "" {
		return schema.NewError(schema.ErrCodeValidation, "transformer key is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.defs[def.Key]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "transformer %q already registered", def.Key)
	}
	r.defs[def.Key] = def
	return nil
}

// Get retrieves a transformer by key. Keys carrying TemplatePrefix are
// synthesized on first lookup; an invalid suffix yields a plain miss,
// never an error.
func (r *Registry) Get(key string) (*Definition, bool) {
	r.mu.RLock()
	def, ok := r.defs[key]
	r.mu.RUnlock()
	if ok {
		return def, true
	}

	if !strings.HasPrefix(key, TemplatePrefix) {
		return nil, false
	}
	return r.synthesize(key)
}

// Has checks whether a key resolves (synthesizing template keys if needed).
func (r *Registry) Has(key string) bool {
	_, ok := r.Get(key)
	return ok
}

// GetAll returns all currently materialized definitions.
func (r *Registry) GetAll() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	return out
}

// synthesize validates a template-transformer suffix against a throwaway
// "now" context and, if it resolves, caches a definition whose transform
// re-evaluates the expression against the caller-supplied context.
func (r *Registry) synthesize(key string) (*Definition, bool) {
	expression := strings.TrimPrefix(key, TemplatePrefix)

	// Reachability probe: an expression the registry cannot resolve now
	// will not resolve at apply time either.
	probe := schema.NewEvalContext(time.Now().UTC())
	if r.vars.EvaluateExpression(expression, probe) == nil {
		return nil, false
	}

	def := &Definition{
		Key:             key,
		Strategy:        schema.StrategyAddMissing,
		ConditionTarget: schema.TargetSelf,
		Transform: func(_ any, ectx *schema.EvalContext) any {
			res := r.vars.EvaluateExpression(expression, ectx)
			if res == nil {
				return nil
			}
			return res.DataValue
		},
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Another goroutine may have synthesized the same key; last writer is
	// equivalent to first, so overwriting is harmless.
	r.defs[key] = def
	return def, true
}

// builtins returns the static transformer definitions.
func builtins() []*Definition {
	todayMidnight := func(_ any, ectx *schema.EvalContext) any {
		return schema.FormatTimestamp(schema.UTCMidnight(ectx.Now))
	}

	return []*Definition{
		{
			Key:             KeyEffectiveDateToday,
			Strategy:        schema.StrategyAddMissing,
			ConditionTarget: schema.TargetSelf,
			Transform:       todayMidnight,
		},
		{
			Key:      KeyEffectiveDateOnChange,
			Strategy: schema.StrategyAddMissing,
			When: &schema.Condition{
				Path:   "changeType",
				Equals: "change",
			},
			ConditionTarget: schema.TargetActual,
			Transform:       todayMidnight,
		},
		{
			Key:             KeyNormalizeString,
			Strategy:        schema.StrategyAlways,
			ConditionTarget: schema.TargetSelf,
			Transform: func(value any, _ *schema.EvalContext) any {
				s, ok := value.(string)
				if !ok {
					return value
				}
				return strings.ToLower(strings.TrimSpace(s))
			},
		},
		{
			Key:             KeyEmptyVariables,
			Strategy:        schema.StrategyAddMissing,
			ConditionTarget: schema.TargetSelf,
			Transform: func(_ any, _ *schema.EvalContext) any {
				return map[string]any{}
			},
		},
	}
}
