package schema

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Strategy controls when a transformer is allowed to write.
type Strategy string

const (
	// StrategyAddMissing writes only when the target path holds no value.
	StrategyAddMissing Strategy = "add_missing_only"
	// StrategyAlways unconditionally (re)writes the target path.
	StrategyAlways Strategy = "always"
	// StrategyExisting writes only when the target path already holds a value.
	StrategyExisting Strategy = "existing_only"
)

// ConditionTarget selects which record a transformer condition is
// evaluated against.
type ConditionTarget string

const (
	TargetSelf     ConditionTarget = "self"
	TargetActual   ConditionTarget = "actual"
	TargetExpected ConditionTarget = "expected"
)

// Condition guards a transformer application. All specified sub-conditions
// are AND-ed. Equals/NotEquals accept a scalar or an array (OR-match-any).
// Expr is an optional CEL expression over {self, actual, expected, value}.
type Condition struct {
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
	Equals    any    `json:"equals,omitempty" yaml:"equals,omitempty"`
	NotEquals any    `json:"notEquals,omitempty" yaml:"notEquals,omitempty"`
	Exists    *bool  `json:"exists,omitempty" yaml:"exists,omitempty"`
	Expr      string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// InlineTransformer is a transformer defined directly inside a config's
// transformer map rather than by registry key. Exactly one of Value,
// Expr, or Template supplies the written value:
//   - Value: a literal.
//   - Expr: an expr-lang expression over {self, actual, value}.
//   - Template: a template string processed through the expression engine.
type InlineTransformer struct {
	Strategy        Strategy        `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	When            *Condition      `json:"when,omitempty" yaml:"when,omitempty"`
	ConditionTarget ConditionTarget `json:"conditionTarget,omitempty" yaml:"conditionTarget,omitempty"`
	Value           any             `json:"value,omitempty" yaml:"value,omitempty"`
	Expr            string          `json:"expr,omitempty" yaml:"expr,omitempty"`
	Template        string          `json:"template,omitempty" yaml:"template,omitempty"`
}

// TransformerRef is either a registry key (JSON/YAML string) or an inline
// transformer definition (JSON/YAML object).
type TransformerRef struct {
	Key    string
	Inline *InlineTransformer
}

func (r TransformerRef) MarshalJSON() ([]byte, error) {
	if r.Inline != nil {
		return json.Marshal(r.Inline)
	}
	return json.Marshal(r.Key)
}

func (r *TransformerRef) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		r.Key = key
		r.Inline = nil
		return nil
	}
	var inline InlineTransformer
	if err := json.Unmarshal(data, &inline); err != nil {
		return err
	}
	r.Key = ""
	r.Inline = &inline
	return nil
}

func (r *TransformerRef) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		r.Inline = nil
		return node.Decode(&r.Key)
	}
	var inline InlineTransformer
	if err := node.Decode(&inline); err != nil {
		return err
	}
	r.Key = ""
	r.Inline = &inline
	return nil
}

// DiscriminatorSource is the sentinel source path that assigns the
// record's discriminator value to the output field.
const DiscriminatorSource = "__changeType__"

// JQSourcePrefix marks a normalization source path as a jq expression
// instead of a dot-path.
const JQSourcePrefix = "jq:"

// NormalizationRule projects a raw record into a canonical field set.
// When matches the record's discriminator; Fields maps output field name
// to a dot-path (or jq expression, or DiscriminatorSource) on the raw record.
type NormalizationRule struct {
	When   string            `json:"when" yaml:"when"`
	Fields map[string]string `json:"fields" yaml:"fields"`
}

// ValidationConfig is one configuration layer. A nil slice/map means the
// layer does not define that field; a non-nil empty value is an explicit
// empty definition, which suppresses less specific layers wholesale.
type ValidationConfig struct {
	Normalization []NormalizationRule       `json:"normalization,omitempty" yaml:"normalization,omitempty"`
	IgnorePaths   []string                  `json:"ignorePaths,omitempty" yaml:"ignorePaths,omitempty"`
	Transformers  map[string]TransformerRef `json:"transformers,omitempty" yaml:"transformers,omitempty"`
}
