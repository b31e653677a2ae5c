package compare

import (
	"testing"

	"github.com/propgrade/propgrade/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cfgIgnoring(ignorePaths ...string) *schema.ValidationConfig {
	return &schema.ValidationConfig{IgnorePaths: ignorePaths}
}

func proposal(changeType, field, value string) schema.NormalizedProposal {
	return schema.NormalizedProposal{
		"changeType":   changeType,
		"changedField": field,
		"newValue":     value,
	}
}

func TestCompare_Reflexivity(t *testing.T) {
	c := NewComparator()
	set := []schema.NormalizedProposal{
		proposal("change", "salary", "5000"),
		proposal("creation", "", ""),
		{"nested": map[string]any{"a": []any{1.0, "x", nil}}},
	}

	res := c.Compare(set, set, cfgIgnoring())

	assert.True(t, res.Matches)
	assert.Equal(t, len(set), res.MatchedCount)
	assert.Empty(t, res.MissingInActual)
	assert.Empty(t, res.UnexpectedInActual)
}

func TestCompare_DifferentDatesWithoutIgnore(t *testing.T) {
	c := NewComparator()
	expected := []schema.NormalizedProposal{{
		"changeType": "change",
		"mutationVariables": map[string]any{
			"data": map[string]any{"effectiveDate": "2024-09-18T00:00:00.000Z"},
		},
	}}
	actual := []schema.NormalizedProposal{{
		"changeType": "change",
		"mutationVariables": map[string]any{
			"data": map[string]any{"effectiveDate": "2024-10-01T00:00:00.000Z"},
		},
	}}

	res := c.Compare(expected, actual, cfgIgnoring())

	assert.False(t, res.Matches)
	assert.Len(t, res.MissingInActual, 1)
	assert.Len(t, res.UnexpectedInActual, 1)
}

func TestCompare_DifferentDatesWithIgnorePath(t *testing.T) {
	c := NewComparator()
	expected := []schema.NormalizedProposal{{
		"changeType": "change",
		"mutationVariables": map[string]any{
			"data": map[string]any{"effectiveDate": "2024-09-18T00:00:00.000Z"},
		},
	}}
	actual := []schema.NormalizedProposal{{
		"changeType": "change",
		"mutationVariables": map[string]any{
			"data": map[string]any{"effectiveDate": "2024-10-01T00:00:00.000Z"},
		},
	}}

	res := c.Compare(expected, actual, cfgIgnoring("mutationVariables.data.effectiveDate"))

	assert.True(t, res.Matches)
	assert.Equal(t, 1, res.MatchedCount)
}

func TestCompare_IgnorePathCoversPresenceVsAbsence(t *testing.T) {
	c := NewComparator()
	expected := []schema.NormalizedProposal{{"changeType": "change"}}
	actual := []schema.NormalizedProposal{{
		"changeType":    "change",
		"effectiveDate": "2024-09-18T00:00:00.000Z",
	}}

	assert.False(t, c.Compare(expected, actual, cfgIgnoring()).Matches)
	assert.True(t, c.Compare(expected, actual, cfgIgnoring("effectiveDate")).Matches)
}

func TestCompare_IgnorePathMonotonicity(t *testing.T) {
	c := NewComparator()
	expected := []schema.NormalizedProposal{{"a": "1", "b": "x"}}
	actual := []schema.NormalizedProposal{{"a": "1", "b": "y"}}

	require.True(t, c.Compare(expected, actual, cfgIgnoring("b")).Matches)
	// A superset of ignore paths preserves the match.
	assert.True(t, c.Compare(expected, actual, cfgIgnoring("b", "a", "c.d")).Matches)
}

func TestCompare_NilValueEqualsAbsentKey(t *testing.T) {
	c := NewComparator()
	expected := []schema.NormalizedProposal{{"changeType": "change", "mutationVariables": nil}}
	actual := []schema.NormalizedProposal{{"changeType": "change"}}

	assert.True(t, c.Compare(expected, actual, cfgIgnoring()).Matches)
}

func TestCompare_NumericCoercion(t *testing.T) {
	c := NewComparator()
	expected := []schema.NormalizedProposal{{"count": 3}}
	actual := []schema.NormalizedProposal{{"count": float64(3)}}

	assert.True(t, c.Compare(expected, actual, cfgIgnoring()).Matches)
}

func TestCompare_ArrayOrderMatters(t *testing.T) {
	c := NewComparator()
	expected := []schema.NormalizedProposal{{"items": []any{"a", "b"}}}
	actual := []schema.NormalizedProposal{{"items": []any{"b", "a"}}}

	assert.False(t, c.Compare(expected, actual, cfgIgnoring()).Matches)
	// Individual element paths can be ignored.
	assert.True(t, c.Compare(expected, actual, cfgIgnoring("items.0", "items.1")).Matches)
}

func TestCompare_ArrayLengthMismatch(t *testing.T) {
	c := NewComparator()
	expected := []schema.NormalizedProposal{{"items": []any{"a"}}}
	actual := []schema.NormalizedProposal{{"items": []any{"a", "b"}}}

	assert.False(t, c.Compare(expected, actual, cfgIgnoring()).Matches)
	assert.True(t, c.Compare(expected, actual, cfgIgnoring("items")).Matches)
}

func TestCompare_OneToOnePairing(t *testing.T) {
	c := NewComparator()
	// Two identical expected records, one matching actual: exactly one
	// pairing is made, the second expected record is missing.
	p := proposal("change", "salary", "5000")
	expected := []schema.NormalizedProposal{p.Clone(), p.Clone()}
	actual := []schema.NormalizedProposal{p.Clone()}

	res := c.Compare(expected, actual, cfgIgnoring())

	assert.False(t, res.Matches)
	assert.Equal(t, 1, res.MatchedCount)
	assert.Len(t, res.MissingInActual, 1)
	assert.Empty(t, res.UnexpectedInActual)
}

func TestCompare_UnorderedSets(t *testing.T) {
	c := NewComparator()
	p1 := proposal("change", "salary", "5000")
	p2 := proposal("creation", "", "")

	res := c.Compare(
		[]schema.NormalizedProposal{p1, p2},
		[]schema.NormalizedProposal{p2.Clone(), p1.Clone()},
		cfgIgnoring(),
	)

	assert.True(t, res.Matches)
	assert.Equal(t, 2, res.MatchedCount)
}

func TestCompare_EmptyBothSidesMatch(t *testing.T) {
	res := NewComparator().Compare(nil, nil, cfgIgnoring())

	assert.True(t, res.Matches)
	assert.Zero(t, res.MatchedCount)
}

func TestEqual_TypeMismatch(t *testing.T) {
	c := NewComparator()

	assert.False(t, c.Equal(
		schema.NormalizedProposal{"v": "5000"},
		schema.NormalizedProposal{"v": 5000},
		cfgIgnoring(),
	))
	assert.False(t, c.Equal(
		schema.NormalizedProposal{"v": map[string]any{}},
		schema.NormalizedProposal{"v": []any{}},
		cfgIgnoring(),
	))
}
