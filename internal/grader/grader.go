// Package grader is the outer entry point: it merges configuration
// layers, renders template expressions in expectations, normalizes both
// sides, applies transformers, compares, and always returns a verdict —
// never an exception.
package grader

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/propgrade/propgrade/internal/compare"
	"github.com/propgrade/propgrade/internal/config"
	"github.com/propgrade/propgrade/internal/expressions"
	"github.com/propgrade/propgrade/internal/logging"
	"github.com/propgrade/propgrade/internal/normalize"
	"github.com/propgrade/propgrade/internal/transformers"
	"github.com/propgrade/propgrade/internal/variables"
	"github.com/propgrade/propgrade/pkg/schema"
)

// VerdictKey identifies the verdict this grader produces.
const VerdictKey = "proposal_validation"

// Per-record override keys carried on expected records; stripped before
// normalization.
const (
	overrideTransformers = "transformers"
	overrideIgnorePaths  = "ignorePaths"
)

// Grader wires the engine components behind a single Grade call.
type Grader struct {
	normalizer *normalize.Normalizer
	applier    *transformers.Applier
	comparator *compare.Comparator
	templates  *expressions.TemplateEngine
	global     *schema.ValidationConfig
	logger     *slog.Logger
}

// New constructs a Grader on the default variable and transformer
// registries and the system-default configuration.
func New(logger *slog.Logger) (*Grader, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cel, err := expressions.NewCELEngine()
	if err != nil {
		return nil, fmt.Errorf("create CEL engine: %w", err)
	}

	vars := variables.Default()
	templates := expressions.NewTemplateEngine(vars)
	registry := transformers.NewRegistry(vars)

	return &Grader{
		normalizer: normalize.NewNormalizer(expressions.NewGoJQEngine()),
		applier:    transformers.NewApplier(registry, cel, expressions.NewExprEngine(), templates),
		comparator: compare.NewComparator(),
		templates:  templates,
		global:     config.Default(),
		logger:     logger,
	}, nil
}

// Grade compares the author-supplied expectation against the
// system-under-test's actual output and returns a verdict. It never
// panics out: internal failures degrade to a score-0 verdict with the
// failure embedded in the comment.
func (g *Grader) Grade(ctx context.Context, expected, actual any, datasetCfg *schema.ValidationConfig, ectx *schema.EvalContext) (verdict *schema.Verdict) {
	defer func() {
		if r := recover(); r != nil {
			logging.LogWith(ctx, g.logger).Error("comparison panicked", slog.Any("panic", r))
			verdict = failVerdict(fmt.Sprintf("comparison failed: %v", r))
		}
	}()

	expectedRaws := coerceRecords(expected)
	if len(expectedRaws) == 0 {
		return failVerdict("no expected proposals supplied; cannot grade")
	}
	actualRaws := coerceRecords(actual)

	recordCfg := extractRecordOverrides(expectedRaws)
	effective := config.Merge(g.global, datasetCfg, recordCfg)

	for i := range expectedRaws {
		expectedRaws[i] = g.renderTemplates(expectedRaws[i], ectx).(map[string]any)
	}

	expectedNorm := g.normalizer.NormalizeAll(expectedRaws, effective)
	actualNorm := g.normalizer.NormalizeAll(actualRaws, effective)

	expectedFinal := g.applier.Apply(expectedNorm, actualNorm, effective, ectx)

	result := g.comparator.Compare(expectedFinal, actualNorm, effective)

	logging.LogWith(ctx, g.logger).Debug("comparison complete",
		slog.Int("expected", len(expectedFinal)),
		slog.Int("actual", len(actualNorm)),
		slog.Int("matched", result.MatchedCount),
		slog.Bool("matches", result.Matches),
	)

	score := 0
	comment := fmt.Sprintf("%d of %d expected proposals matched; %d missing, %d unexpected",
		result.MatchedCount, len(expectedFinal),
		len(result.MissingInActual), len(result.UnexpectedInActual))
	if result.Matches {
		score = 1
		comment = fmt.Sprintf("all %d expected proposals matched", result.MatchedCount)
	}

	return &schema.Verdict{
		Key:     VerdictKey,
		Score:   score,
		Comment: comment,
		Value: schema.VerdictValue{
			ExpectedProposalCount: len(expectedFinal),
			ActualProposalCount:   len(actualNorm),
			MatchedProposals:      result.MatchedCount,
			MissingProposals:      result.MissingInActual,
			UnexpectedProposals:   result.UnexpectedInActual,
			ComparisonMethod:      schema.ComparisonMethodNormalized,
		},
	}
}

func failVerdict(comment string) *schema.Verdict {
	return &schema.Verdict{
		Key:     VerdictKey,
		Score:   0,
		Comment: comment,
		Value: schema.VerdictValue{
			MissingProposals:    []schema.NormalizedProposal{},
			UnexpectedProposals: []schema.NormalizedProposal{},
			ComparisonMethod:    schema.ComparisonMethodNormalized,
		},
	}
}

// coerceRecords accepts a single record or a collection and returns a
// fresh slice of raw record maps. Non-record inputs are dropped.
func coerceRecords(v any) []map[string]any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return []map[string]any{cloneRecord(val)}
	case schema.NormalizedProposal:
		return []map[string]any{cloneRecord(val)}
	case []map[string]any:
		out := make([]map[string]any, 0, len(val))
		for _, rec := range val {
			out = append(out, cloneRecord(rec))
		}
		return out
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			if rec, ok := item.(map[string]any); ok {
				out = append(out, cloneRecord(rec))
			}
		}
		return out
	default:
		return nil
	}
}

func cloneRecord(rec map[string]any) map[string]any {
	return schema.CloneValue(rec).(map[string]any)
}

// extractRecordOverrides pulls per-record transformers/ignorePaths
// overrides off the expected records (stripping them in place) and
// builds the record configuration layer. The first record defining a
// field supplies it. Returns nil when no record carries overrides.
func extractRecordOverrides(records []map[string]any) *schema.ValidationConfig {
	var cfg *schema.ValidationConfig

	ensure := func() *schema.ValidationConfig {
		if cfg == nil {
			cfg = &schema.ValidationConfig{}
		}
		return cfg
	}

	for _, rec := range records {
		if raw, ok := rec[overrideTransformers]; ok {
			if refs := decodeTransformerRefs(raw); refs != nil && ensure().Transformers == nil {
				cfg.Transformers = refs
			}
			delete(rec, overrideTransformers)
		}
		if raw, ok := rec[overrideIgnorePaths]; ok {
			if ip := decodeStringSlice(raw); ip != nil && ensure().IgnorePaths == nil {
				cfg.IgnorePaths = ip
			}
			delete(rec, overrideIgnorePaths)
		}
	}

	return cfg
}

// decodeTransformerRefs converts a loosely-typed transformer map into
// typed refs via a JSON round-trip. Undecodable input is ignored.
func decodeTransformerRefs(raw any) map[string]schema.TransformerRef {
	if typed, ok := raw.(map[string]schema.TransformerRef); ok {
		return typed
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var refs map[string]schema.TransformerRef
	if err := json.Unmarshal(b, &refs); err != nil {
		return nil
	}
	return refs
}

func decodeStringSlice(raw any) []string {
	switch val := raw.(type) {
	case []string:
		return append([]string{}, val...)
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// renderTemplates walks a value tree and expands template tokens inside
// string values. A string that is exactly one token becomes the token's
// typed data value; mixed text becomes the substituted string.
func (g *Grader) renderTemplates(v any, ectx *schema.EvalContext) any {
	switch val := v.(type) {
	case string:
		if !g.templates.HasTemplates(val) {
			return val
		}
		res := g.templates.Process(val, ectx)
		if len(res.Replacements) == 1 &&
			res.Replacements[0].StartIndex == 0 &&
			res.Replacements[0].EndIndex == len(val) {
			return res.Replacements[0].Result.DataValue
		}
		return res.Processed
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = g.renderTemplates(item, ectx)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = g.renderTemplates(item, ectx)
		}
		return out
	default:
		return v
	}
}
