package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/propgrade/propgrade/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// configSchemaJSON is the JSON Schema for ValidationConfig documents.
// Embedded as a constant to avoid filesystem dependencies.
const configSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://propgrade.dev/schemas/validation-config.json",
  "type": "object",
  "properties": {
    "normalization": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["when", "fields"],
        "properties": {
          "when": { "type": "string", "minLength": 1 },
          "fields": {
            "type": "object",
            "additionalProperties": { "type": "string" }
          }
        },
        "additionalProperties": false
      }
    },
    "ignorePaths": {
      "type": "array",
      "items": { "type": "string", "minLength": 1 }
    },
    "transformers": {
      "type": "object",
      "additionalProperties": {
        "oneOf": [
          { "type": "string", "minLength": 1 },
          { "$ref": "#/$defs/inline_transformer" }
        ]
      }
    }
  },
  "additionalProperties": false,
  "$defs": {
    "inline_transformer": {
      "type": "object",
      "properties": {
        "strategy": {
          "type": "string",
          "enum": ["add_missing_only", "always", "existing_only"]
        },
        "when": { "$ref": "#/$defs/condition" },
        "conditionTarget": {
          "type": "string",
          "enum": ["self", "actual", "expected"]
        },
        "value": {},
        "expr": { "type": "string" },
        "template": { "type": "string" }
      },
      "additionalProperties": false
    },
    "condition": {
      "type": "object",
      "properties": {
        "path": { "type": "string" },
        "equals": {},
        "notEquals": {},
        "exists": { "type": "boolean" },
        "expr": { "type": "string" }
      },
      "additionalProperties": false
    }
  }
}`

var (
	configSchemaOnce sync.Once
	configSchema     *jsonschema.Schema
	configSchemaErr  error
)

// compiledSchema compiles the embedded config schema once per process.
func compiledSchema() (*jsonschema.Schema, error) {
	configSchemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.AssertFormat()

		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchemaJSON))
		if err != nil {
			configSchemaErr = fmt.Errorf("unmarshal config schema: %w", err)
			return
		}
		if err := c.AddResource("https://propgrade.dev/schemas/validation-config.json", doc); err != nil {
			configSchemaErr = fmt.Errorf("add config schema resource: %w", err)
			return
		}
		configSchema, configSchemaErr = c.Compile("https://propgrade.dev/schemas/validation-config.json")
	})
	return configSchema, configSchemaErr
}

// ValidateDocument validates a raw JSON ValidationConfig document against
// the embedded schema, returning structured violations.
func ValidateDocument(raw []byte) error {
	compiled, err := compiledSchema()
	if err != nil {
		return schema.NewError(schema.ErrCodeConfig, "config schema unavailable").WithCause(err)
	}

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return schema.NewError(schema.ErrCodeConfig, "config document is not valid JSON").WithCause(err)
	}

	if err := compiled.Validate(doc); err != nil {
		return toGradeError(err)
	}
	return nil
}

// toGradeError converts a jsonschema.ValidationError into a GradeError
// with one message per leaf violation.
func toGradeError(err error) *schema.GradeError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeConfig, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeConfig, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeConfig, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	return schema.NewErrorf(schema.ErrCodeConfig, "config validation failed with %d errors", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error
// messages with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

// decodeJSON strictly decodes a JSON config document.
func decodeJSON(raw []byte) (*schema.ValidationConfig, error) {
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()

	var cfg schema.ValidationConfig
	if err := dec.Decode(&cfg); err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "decode config document").WithCause(err)
	}
	return &cfg, nil
}
