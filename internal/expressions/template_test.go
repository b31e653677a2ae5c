package expressions

import (
	"testing"
	"time"

	"github.com/propgrade/propgrade/internal/variables"
	"github.com/propgrade/propgrade/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func templateEngine() *TemplateEngine {
	return NewTemplateEngine(variables.Default())
}

func sept18() *schema.EvalContext {
	return schema.NewEvalContext(time.Date(2024, time.September, 18, 12, 0, 0, 0, time.UTC))
}

func TestProcess_SingleToken(t *testing.T) {
	res := templateEngine().Process("Update salary starting {currentMonth}", sept18())

	assert.Equal(t, "Update salary starting September", res.Processed)
	require.Len(t, res.Replacements, 1)
	assert.Equal(t, "currentMonth", res.Replacements[0].Expression)
	assert.Contains(t, res.Metadata, "currentMonth")
}

func TestProcess_MultipleTokens(t *testing.T) {
	res := templateEngine().Process("From {currentMonth} to {currentMonth+3} in year {currentYear}", sept18())

	assert.Equal(t, "From September to December in year 2024", res.Processed)
	assert.Len(t, res.Replacements, 3)
}

func TestProcess_YearRollover(t *testing.T) {
	ctx := schema.NewEvalContext(time.Date(2024, time.December, 15, 0, 0, 0, 0, time.UTC))

	res := templateEngine().Process("{currentMonth+2}", ctx)

	assert.Equal(t, "February 2025", res.Processed)
}

func TestProcess_NoTokensIsIdentity(t *testing.T) {
	for _, input := range []string{
		"",
		"plain text",
		`{"key": "value"}`,
		"{ currentMonth }", // internal whitespace is not a token
		"{items[0]}",
		"{unclosed",
	} {
		res := templateEngine().Process(input, sept18())
		assert.Equal(t, input, res.Processed, input)
		assert.Empty(t, res.Replacements, input)
	}
}

func TestProcess_UnresolvedTokenLeftVerbatim(t *testing.T) {
	res := templateEngine().Process("start {noSuchVar} and {currentMonth} end", sept18())

	assert.Equal(t, "start {noSuchVar} and September end", res.Processed)
	require.Len(t, res.Replacements, 1)
	assert.Equal(t, "currentMonth", res.Replacements[0].Expression)
	assert.NotContains(t, res.Metadata, "noSuchVar")
}

func TestProcess_TokenNestedInJSONText(t *testing.T) {
	// The outer brace pair is not a token, but the inner well-formed one is.
	res := templateEngine().Process(`{"key": "{currentMonth}"}`, sept18())

	assert.Equal(t, `{"key": "September"}`, res.Processed)
	assert.Len(t, res.Replacements, 1)
}

func TestProcess_SpanIndexBookkeeping(t *testing.T) {
	// "AB{currentMonth}CD{currentYear}EF" with September/2024.
	// First token: original span [2,16), no earlier delta.
	// "September" is 9 chars vs 14-char token: delta -5.
	// Second token: original span [18,31) shifted by -5 -> [13,26).
	res := templateEngine().Process("AB{currentMonth}CD{currentYear}EF", sept18())

	assert.Equal(t, "ABSeptemberCD2024EF", res.Processed)
	require.Len(t, res.Replacements, 2)

	first := res.Replacements[0]
	assert.Equal(t, 2, first.StartIndex)
	assert.Equal(t, 16, first.EndIndex)

	second := res.Replacements[1]
	assert.Equal(t, 13, second.StartIndex)
	assert.Equal(t, 26, second.EndIndex)
}

func TestProcess_DeltaSkipsUnresolvedTokens(t *testing.T) {
	// Unresolved tokens contribute no delta: the second resolved match's
	// span shifts only by the first resolved match's delta.
	res := templateEngine().Process("{currentMonth}{nope}{currentYear}", sept18())

	assert.Equal(t, "September{nope}2024", res.Processed)
	require.Len(t, res.Replacements, 2)
	// {currentYear} original span [20,33); delta from first match is
	// len("September")-len("{currentMonth}") = 9-14 = -5.
	assert.Equal(t, 15, res.Replacements[1].StartIndex)
	assert.Equal(t, 28, res.Replacements[1].EndIndex)
}

func TestHasTemplates_MatchesExtraction(t *testing.T) {
	e := templateEngine()
	for _, input := range []string{
		"",
		"no tokens here",
		"{currentMonth}",
		"{unknownButWellFormed+2}",
		`{"key": "value"}`,
		"{ spaced }",
		"text {a} and {a} again",
	} {
		assert.Equal(t, len(e.ExtractExpressions(input)) > 0, e.HasTemplates(input), input)
	}
}

func TestExtractExpressions_OrderAndDuplicates(t *testing.T) {
	exprs := templateEngine().ExtractExpressions("{a} {b+1} {a} {c-2}")

	assert.Equal(t, []string{"a", "b+1", "a", "c-2"}, exprs)
}

func TestExtractExpressions_NoResolutionAttempted(t *testing.T) {
	// Extraction is syntactic: unknown variables are still returned.
	exprs := templateEngine().ExtractExpressions("{definitelyNotRegistered+99}")

	assert.Equal(t, []string{"definitelyNotRegistered+99"}, exprs)
}
