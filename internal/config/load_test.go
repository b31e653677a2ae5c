package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/propgrade/propgrade/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParse_ValidDocument(t *testing.T) {
	cfg, err := Parse([]byte(`{
		"ignorePaths": ["mutationVariables.data.effectiveDate"],
		"transformers": {
			"newValue": "normalize-string",
			"flagged": {
				"strategy": "always",
				"when": {"path": "changeType", "equals": "change"},
				"value": true
			}
		}
	}`))
	require.NoError(t, err)

	assert.Equal(t, []string{"mutationVariables.data.effectiveDate"}, cfg.IgnorePaths)
	assert.Equal(t, "normalize-string", cfg.Transformers["newValue"].Key)
	inline := cfg.Transformers["flagged"].Inline
	require.NotNil(t, inline)
	assert.Equal(t, schema.StrategyAlways, inline.Strategy)
	assert.Equal(t, "change", inline.When.Equals)
}

func TestParse_ExplicitEmptyTransformersSurvivesDecode(t *testing.T) {
	cfg, err := Parse([]byte(`{"transformers": {}}`))
	require.NoError(t, err)

	require.NotNil(t, cfg.Transformers)
	assert.Empty(t, cfg.Transformers)
	// Undefined fields stay nil.
	assert.Nil(t, cfg.IgnorePaths)
	assert.Nil(t, cfg.Normalization)
}

func TestParse_SchemaViolation(t *testing.T) {
	_, err := Parse([]byte(`{"transformers": {"x": 42}}`))
	require.Error(t, err)
	var gerr *schema.GradeError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, schema.ErrCodeConfig, gerr.Code)
}

func TestParse_UnknownTopLevelField(t *testing.T) {
	_, err := Parse([]byte(`{"ignorePathz": []}`))
	assert.Error(t, err)
}

func TestParse_InvalidStrategyEnum(t *testing.T) {
	_, err := Parse([]byte(`{"transformers": {"x": {"strategy": "sometimes"}}}`))
	assert.Error(t, err)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeTemp(t, "dataset.json", `{"ignorePaths": ["a.b"]}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.b"}, cfg.IgnorePaths)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeTemp(t, "dataset.yaml", `
ignorePaths:
  - mutationVariables.data.effectiveDate
transformers:
  newValue: normalize-string
  flagged:
    strategy: always
    value: true
normalization:
  - when: change
    fields:
      changeType: __changeType__
      changedField: changedField
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"mutationVariables.data.effectiveDate"}, cfg.IgnorePaths)
	assert.Equal(t, "normalize-string", cfg.Transformers["newValue"].Key)
	require.NotNil(t, cfg.Transformers["flagged"].Inline)
	require.Len(t, cfg.Normalization, 1)
	assert.Equal(t, "change", cfg.Normalization[0].When)
}

func TestLoad_UnsupportedExtension(t *testing.T) {
	path := writeTemp(t, "dataset.toml", `x = 1`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	assert.Error(t, err)
}
