// Package normalize projects loosely-typed, shape-varying proposal
// records into the canonical comparison field set.
package normalize

import (
	"context"
	"strings"

	"github.com/propgrade/propgrade/internal/expressions"
	"github.com/propgrade/propgrade/internal/paths"
	"github.com/propgrade/propgrade/pkg/schema"
)

// Normalizer applies the effective configuration's field-mapping rules.
// Stateless; safe for concurrent use.
type Normalizer struct {
	jq *expressions.GoJQEngine
}

// NewNormalizer creates a Normalizer. jq backs "jq:"-prefixed source paths.
func NewNormalizer(jq *expressions.GoJQEngine) *Normalizer {
	return &Normalizer{jq: jq}
}

// Discriminator determines a raw record's change type: an explicit
// "changeType" field wins; otherwise presence of "changedField" infers
// "change", and anything else is a "creation".
func Discriminator(raw map[string]any) string {
	if ct, ok := raw["changeType"].(string); ok && ct != "" {
		return ct
	}
	if _, ok := raw["changedField"]; ok {
		return "change"
	}
	return "creation"
}

// Normalize projects raw into the canonical field set selected by the
// first normalization rule matching the record's discriminator. Without a
// matching rule the record's own fields are shallow-copied. The output has
// exactly the fields the rule declares: a missing source path yields a nil
// field, and raw-only keys never leak through.
func (n *Normalizer) Normalize(raw map[string]any, cfg *schema.ValidationConfig) schema.NormalizedProposal {
	discriminator := Discriminator(raw)

	rule := selectRule(cfg.Normalization, discriminator)
	if rule == nil {
		out := make(schema.NormalizedProposal, len(raw))
		for k, v := range raw {
			out[k] = schema.CloneValue(v)
		}
		return out
	}

	out := make(schema.NormalizedProposal, len(rule.Fields))
	for outputField, sourcePath := range rule.Fields {
		out[outputField] = n.resolveSource(raw, sourcePath, discriminator)
	}
	return out
}

// NormalizeAll normalizes a slice of raw records in order.
func (n *Normalizer) NormalizeAll(raws []map[string]any, cfg *schema.ValidationConfig) []schema.NormalizedProposal {
	out := make([]schema.NormalizedProposal, len(raws))
	for i, raw := range raws {
		out[i] = n.Normalize(raw, cfg)
	}
	return out
}

func selectRule(rules []schema.NormalizationRule, discriminator string) *schema.NormalizationRule {
	for i := range rules {
		if rules[i].When == discriminator {
			return &rules[i]
		}
	}
	return nil
}

// resolveSource evaluates one source path against the raw record.
// Resolution failures of any kind are a nil value, never an error.
func (n *Normalizer) resolveSource(raw map[string]any, sourcePath, discriminator string) any {
	switch {
	case sourcePath == schema.DiscriminatorSource:
		return discriminator

	case strings.HasPrefix(sourcePath, schema.JQSourcePrefix):
		expr := strings.TrimPrefix(sourcePath, schema.JQSourcePrefix)
		val, err := n.jq.Evaluate(context.Background(), expr, raw)
		if err != nil {
			return nil
		}
		return val

	default:
		val, ok := paths.Get(raw, sourcePath)
		if !ok {
			return nil
		}
		return schema.CloneValue(val)
	}
}
