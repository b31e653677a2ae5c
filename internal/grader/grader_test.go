package grader

import (
	"context"
	"testing"
	"time"

	"github.com/propgrade/propgrade/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGrader(t *testing.T) *Grader {
	t.Helper()
	g, err := New(nil)
	require.NoError(t, err)
	return g
}

func sept18() *schema.EvalContext {
	return schema.NewEvalContext(time.Date(2024, time.September, 18, 14, 0, 0, 0, time.UTC))
}

func changeExpectation() map[string]any {
	return map[string]any{
		"changeType":    "change",
		"changedField":  "salary",
		"newValue":      "5000",
		"relatedUserId": "u1",
	}
}

func changeActual(effectiveDate string) map[string]any {
	return map[string]any{
		"changedField":  "salary",
		"newValue":      "5000",
		"relatedUserId": "u1",
		"mutationQuery": map[string]any{
			"variables": map[string]any{
				"data": map[string]any{"effectiveDate": effectiveDate},
			},
		},
	}
}

func TestGrade_NoExpectationSupplied(t *testing.T) {
	g := newGrader(t)

	for _, input := range []any{nil, []any{}, 42, "nonsense"} {
		v := g.Grade(context.Background(), input, []any{changeActual("x")}, nil, sept18())
		assert.Zero(t, v.Score)
		assert.Contains(t, v.Comment, "no expected proposals")
		assert.Equal(t, VerdictKey, v.Key)
	}
}

// The default conditional transformer fills the expected side's effective
// date from "today" when the actual record is a change, so expectations
// never hard-code values only knowable after execution.
func TestGrade_DefaultEffectiveDateFill(t *testing.T) {
	g := newGrader(t)

	v := g.Grade(context.Background(),
		[]any{changeExpectation()},
		[]any{changeActual("2024-09-18T00:00:00.000Z")},
		nil, sept18())

	assert.Equal(t, 1, v.Score, v.Comment)
	assert.Equal(t, 1, v.Value.MatchedProposals)
	assert.Equal(t, schema.ComparisonMethodNormalized, v.Value.ComparisonMethod)
}

func TestGrade_EffectiveDateMismatchWithoutIgnore(t *testing.T) {
	g := newGrader(t)

	v := g.Grade(context.Background(),
		[]any{changeExpectation()},
		[]any{changeActual("2024-10-01T00:00:00.000Z")},
		nil, sept18())

	assert.Zero(t, v.Score)
	assert.Len(t, v.Value.MissingProposals, 1)
	assert.Len(t, v.Value.UnexpectedProposals, 1)
}

func TestGrade_EffectiveDateMismatchWithIgnorePath(t *testing.T) {
	g := newGrader(t)
	datasetCfg := &schema.ValidationConfig{
		IgnorePaths: []string{"mutationVariables.data.effectiveDate"},
	}

	v := g.Grade(context.Background(),
		[]any{changeExpectation()},
		[]any{changeActual("2024-10-01T00:00:00.000Z")},
		datasetCfg, sept18())

	assert.Equal(t, 1, v.Score, v.Comment)
}

func TestGrade_PerRecordEmptyTransformersSuppressesDefaults(t *testing.T) {
	g := newGrader(t)

	expected := changeExpectation()
	expected["transformers"] = map[string]any{}

	v := g.Grade(context.Background(),
		[]any{expected},
		[]any{changeActual("2024-09-18T00:00:00.000Z")},
		nil, sept18())

	// Without the default fill the effective dates diverge.
	assert.Zero(t, v.Score)
}

func TestGrade_PerRecordIgnorePathsOverride(t *testing.T) {
	g := newGrader(t)

	expected := changeExpectation()
	expected["ignorePaths"] = []any{"mutationVariables.data.effectiveDate", "newValue"}
	actual := changeActual("2030-01-01T00:00:00.000Z")
	actual["newValue"] = "9999"

	v := g.Grade(context.Background(), []any{expected}, []any{actual}, nil, sept18())

	assert.Equal(t, 1, v.Score, v.Comment)
}

func TestGrade_OverrideKeysStrippedBeforeNormalization(t *testing.T) {
	g := newGrader(t)

	expected := changeExpectation()
	expected["ignorePaths"] = []any{"mutationVariables.data.effectiveDate"}

	v := g.Grade(context.Background(),
		[]any{expected},
		[]any{changeActual("2024-09-18T00:00:00.000Z")},
		nil, sept18())

	// The override key must not leak into the normalized comparison.
	assert.Equal(t, 1, v.Score, v.Comment)
	for _, p := range v.Value.MissingProposals {
		assert.NotContains(t, p, "ignorePaths")
	}
}

func TestGrade_TemplateExpressionInExpectedValue(t *testing.T) {
	g := newGrader(t)

	expected := changeExpectation()
	expected["newValue"] = "Update salary starting {currentMonth}"
	actual := changeActual("2024-09-18T00:00:00.000Z")
	actual["newValue"] = "Update salary starting September"

	v := g.Grade(context.Background(), []any{expected}, []any{actual}, nil, sept18())

	assert.Equal(t, 1, v.Score, v.Comment)
}

func TestGrade_WholeTokenTemplateYieldsDataValue(t *testing.T) {
	g := newGrader(t)

	expected := changeExpectation()
	expected["newValue"] = "{today}"
	actual := changeActual("2024-09-18T00:00:00.000Z")
	actual["newValue"] = "2024-09-18T00:00:00.000Z"

	v := g.Grade(context.Background(), []any{expected}, []any{actual}, nil, sept18())

	assert.Equal(t, 1, v.Score, v.Comment)
}

func TestGrade_CountMismatch(t *testing.T) {
	g := newGrader(t)

	v := g.Grade(context.Background(),
		[]any{changeExpectation()},
		[]any{changeActual("2024-09-18T00:00:00.000Z"), changeActual("2024-09-18T00:00:00.000Z")},
		nil, sept18())

	assert.Zero(t, v.Score)
	assert.Equal(t, 1, v.Value.ExpectedProposalCount)
	assert.Equal(t, 2, v.Value.ActualProposalCount)
	assert.Equal(t, 1, v.Value.MatchedProposals)
	assert.Len(t, v.Value.UnexpectedProposals, 1)
}

func TestGrade_SingleRecordInputsAccepted(t *testing.T) {
	g := newGrader(t)

	v := g.Grade(context.Background(),
		changeExpectation(),
		changeActual("2024-09-18T00:00:00.000Z"),
		nil, sept18())

	assert.Equal(t, 1, v.Score, v.Comment)
}

func TestGrade_DoesNotMutateCallerRecords(t *testing.T) {
	g := newGrader(t)

	expected := changeExpectation()
	expected["transformers"] = map[string]any{}

	g.Grade(context.Background(), []any{expected}, nil, nil, sept18())

	// The caller's record keeps its override key; only internal copies
	// are stripped.
	assert.Contains(t, expected, "transformers")
}

func TestGrade_DatasetInlineTransformer(t *testing.T) {
	g := newGrader(t)

	datasetCfg := &schema.ValidationConfig{
		Transformers: map[string]schema.TransformerRef{
			"newValue": {Inline: &schema.InlineTransformer{
				Strategy: schema.StrategyExisting,
				Expr:     "lower(trim(value))",
			}},
		},
	}

	expected := changeExpectation()
	expected["newValue"] = "  RAISE "
	actual := changeActual("x")
	actual["newValue"] = "raise"
	// Dataset layer replaces the default transformer map wholesale, so the
	// effective-date fill is gone; align the actual side accordingly.
	delete(actual, "mutationQuery")

	v := g.Grade(context.Background(), []any{expected}, []any{actual}, datasetCfg, sept18())

	assert.Equal(t, 1, v.Score, v.Comment)
}
