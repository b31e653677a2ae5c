package transformers

import (
	"context"
	"reflect"
	"sort"

	"github.com/propgrade/propgrade/internal/expressions"
	"github.com/propgrade/propgrade/internal/paths"
	"github.com/propgrade/propgrade/pkg/schema"
)

// Applier walks a configuration's transformer map and conditionally
// fills or rewrites fields on normalized proposals. Pure: inputs are
// never mutated, every call returns fresh copies.
type Applier struct {
	registry  *Registry
	cel       *expressions.CELEngine
	expr      *expressions.ExprEngine
	templates *expressions.TemplateEngine
}

// NewApplier creates an Applier. cel and expr back the optional guard
// expressions and inline expr transformers; templates backs inline
// template transformers.
func NewApplier(registry *Registry, cel *expressions.CELEngine, expr *expressions.ExprEngine, templates *expressions.TemplateEngine) *Applier {
	return &Applier{registry: registry, cel: cel, expr: expr, templates: templates}
}

// Apply runs cfg.Transformers over the expected-side records. counterparts
// are the positionally paired actual-side records (condition target
// "actual" resolves to counterparts[i]; "self" and "expected" resolve to
// the record being transformed). Transformer entries are applied in
// sorted dot-path order for determinism. Unresolvable transformer keys
// and failing guard evaluations are no-ops, never errors.
func (a *Applier) Apply(targets, counterparts []schema.NormalizedProposal, cfg *schema.ValidationConfig, ectx *schema.EvalContext) []schema.NormalizedProposal {
	out := make([]schema.NormalizedProposal, len(targets))

	dotPaths := make([]string, 0, len(cfg.Transformers))
	for p := range cfg.Transformers {
		dotPaths = append(dotPaths, p)
	}
	sort.Strings(dotPaths)

	for i, target := range targets {
		record := target.Clone()

		var counterpart schema.NormalizedProposal
		if i < len(counterparts) {
			counterpart = counterparts[i]
		}

		for _, dotPath := range dotPaths {
			a.applyOne(record, counterpart, dotPath, cfg.Transformers[dotPath], ectx)
		}
		out[i] = record
	}

	return out
}

// applyOne applies a single (dotPath, ref) entry to record in place.
func (a *Applier) applyOne(record, counterpart schema.NormalizedProposal, dotPath string, ref schema.TransformerRef, ectx *schema.EvalContext) {
	def := a.resolve(ref)
	if def == nil {
		return
	}

	current, ok := paths.Get(map[string]any(record), dotPath)
	// A nil value is "undefined": normalization assigns nil to declared
	// fields whose source path is missing, and default-fill must treat
	// those the same as absent keys.
	present := ok && current != nil

	if !a.conditionMet(def, record, counterpart, current) {
		return
	}

	switch def.Strategy {
	case schema.StrategyAddMissing:
		if present {
			return
		}
	case schema.StrategyExisting:
		if !present {
			return
		}
	case schema.StrategyAlways:
		// Unconditional write.
	default:
		return
	}

	paths.Set(record, dotPath, def.applyTransform(a, record, counterpart, current, ectx))
}

// resolved carries a materialized transformer for one application.
type resolved struct {
	Strategy        schema.Strategy
	When            *schema.Condition
	ConditionTarget schema.ConditionTarget

	// Exactly one source is set.
	fn       TransformFunc
	value    any
	exprSrc  string
	template string
}

// resolve materializes a TransformerRef: registry lookup for keys, direct
// construction for inline definitions. A missing key returns nil (no-op).
func (a *Applier) resolve(ref schema.TransformerRef) *resolved {
	if ref.Key != "" {
		def, ok := a.registry.Get(ref.Key)
		if !ok {
			return nil
		}
		return &resolved{
			Strategy:        def.Strategy,
			When:            def.When,
			ConditionTarget: def.ConditionTarget,
			fn:              def.Transform,
		}
	}

	inline := ref.Inline
	if inline == nil {
		return nil
	}

	strategy := inline.Strategy
	if strategy == "" {
		// Inline definitions state explicit intent to set the field.
		strategy = schema.StrategyAlways
	}
	target := inline.ConditionTarget
	if target == "" {
		target = schema.TargetSelf
	}

	return &resolved{
		Strategy:        strategy,
		When:            inline.When,
		ConditionTarget: target,
		value:           inline.Value,
		exprSrc:         inline.Expr,
		template:        inline.Template,
	}
}

// applyTransform computes the value to write.
func (r *resolved) applyTransform(a *Applier, record, counterpart schema.NormalizedProposal, current any, ectx *schema.EvalContext) any {
	switch {
	case r.fn != nil:
		return r.fn(current, ectx)

	case r.exprSrc != "":
		out, err := a.expr.EvaluateValue(r.exprSrc, expressions.ValueEnv{
			Self:   recordMap(record),
			Actual: recordMap(counterpart),
			Value:  current,
		})
		if err != nil {
			return current
		}
		return out

	case r.template != "":
		res := a.templates.Process(r.template, ectx)
		// A template that is exactly one token yields the typed data value;
		// mixed text yields the substituted string.
		if len(res.Replacements) == 1 &&
			res.Replacements[0].StartIndex == 0 &&
			res.Replacements[0].EndIndex == len(r.template) {
			return res.Replacements[0].Result.DataValue
		}
		return res.Processed

	default:
		return schema.CloneValue(r.value)
	}
}

// recordMap unwraps a proposal for expression environments; nil records
// become empty maps so evaluators never see a nil root.
func recordMap(p schema.NormalizedProposal) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return map[string]any(p)
}

// conditionMet evaluates the guard against the condition-target record.
// All specified sub-conditions are AND-ed; absence of a guard means
// unconditional. Guard evaluation failures disable the transformer.
func (a *Applier) conditionMet(def *resolved, record, counterpart schema.NormalizedProposal, current any) bool {
	cond := def.When
	if cond == nil {
		return true
	}

	var subject any
	switch def.ConditionTarget {
	case schema.TargetActual:
		subject = map[string]any(counterpart)
	case schema.TargetExpected, schema.TargetSelf, "":
		subject = map[string]any(record)
	default:
		return false
	}

	if cond.Path != "" || cond.Equals != nil || cond.NotEquals != nil || cond.Exists != nil {
		val, present := paths.Get(subject, cond.Path)

		if cond.Exists != nil && *cond.Exists != present {
			return false
		}
		if cond.Equals != nil && (!present || !matchAny(cond.Equals, val)) {
			return false
		}
		if cond.NotEquals != nil && present && matchAny(cond.NotEquals, val) {
			return false
		}
	}

	if cond.Expr != "" {
		ok, err := a.cel.EvaluateBool(context.Background(), cond.Expr, map[string]any{
			"self":     recordMap(record),
			"actual":   recordMap(counterpart),
			"expected": recordMap(record),
			"value":    current,
		})
		if err != nil || !ok {
			return false
		}
	}

	return true
}

// matchAny reports whether val equals the scalar want, or any element
// when want is an array (OR-match-any).
func matchAny(want, val any) bool {
	if list, ok := want.([]any); ok {
		for _, w := range list {
			if looseEquals(w, val) {
				return true
			}
		}
		return false
	}
	return looseEquals(want, val)
}

// looseEquals compares condition values with numeric coercion, since
// JSON-decoded records carry float64 where configs may carry int.
func looseEquals(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
