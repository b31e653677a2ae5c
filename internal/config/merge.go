package config

import "github.com/propgrade/propgrade/pkg/schema"

// Merge combines the three configuration layers into one effective
// configuration. The override policy is per-field and wholesale: for each
// of normalization, ignore paths and transformers, the most specific layer
// that explicitly defines the field (nil means undefined, non-nil empty
// means explicitly empty) wins outright — there is no per-key deep merge
// across layers. An explicit empty transformer map at a more specific
// layer therefore suppresses all inherited transformers.
//
// The returned config is freshly constructed and safe to treat as
// immutable; nil layers are skipped.
func Merge(global, dataset, record *schema.ValidationConfig) *schema.ValidationConfig {
	effective := &schema.ValidationConfig{}

	for _, layer := range []*schema.ValidationConfig{global, dataset, record} {
		if layer == nil {
			continue
		}
		if layer.Normalization != nil {
			effective.Normalization = cloneRules(layer.Normalization)
		}
		if layer.IgnorePaths != nil {
			effective.IgnorePaths = append([]string{}, layer.IgnorePaths...)
		}
		if layer.Transformers != nil {
			effective.Transformers = cloneTransformers(layer.Transformers)
		}
	}

	return effective
}

func cloneRules(rules []schema.NormalizationRule) []schema.NormalizationRule {
	out := make([]schema.NormalizationRule, len(rules))
	for i, r := range rules {
		fields := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		out[i] = schema.NormalizationRule{When: r.When, Fields: fields}
	}
	return out
}

func cloneTransformers(m map[string]schema.TransformerRef) map[string]schema.TransformerRef {
	out := make(map[string]schema.TransformerRef, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
