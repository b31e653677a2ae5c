// Package config provides the system-default validation configuration,
// the three-layer merge, and loading/validation of dataset-level
// configuration documents.
package config

import (
	"github.com/propgrade/propgrade/internal/transformers"
	"github.com/propgrade/propgrade/pkg/schema"
)

// Discriminator values for change proposals.
const (
	ChangeTypeChange   = "change"
	ChangeTypeCreation = "creation"
)

// Canonical normalized field names.
const (
	FieldChangeType           = "changeType"
	FieldChangedField         = "changedField"
	FieldNewValue             = "newValue"
	FieldRelatedUserID        = "relatedUserId"
	FieldMutationPropertyPath = "mutationPropertyPath"
	FieldMutationVariables    = "mutationVariables"
)

// Default returns the system-default (global) configuration layer. Every
// call returns a fresh instance so merged results never alias it.
func Default() *schema.ValidationConfig {
	return &schema.ValidationConfig{
		Normalization: []schema.NormalizationRule{
			{
				When: ChangeTypeChange,
				Fields: map[string]string{
					FieldChangeType:           schema.DiscriminatorSource,
					FieldChangedField:         "changedField",
					FieldNewValue:             "newValue",
					FieldRelatedUserID:        "relatedUserId",
					FieldMutationPropertyPath: "mutationQuery.propertyPath",
					FieldMutationVariables:    "mutationQuery.variables",
				},
			},
			{
				When: ChangeTypeCreation,
				Fields: map[string]string{
					FieldChangeType:           schema.DiscriminatorSource,
					FieldNewValue:             "newValue",
					FieldRelatedUserID:        "relatedUserId",
					FieldMutationPropertyPath: "mutationQuery.propertyPath",
					FieldMutationVariables:    "mutationQuery.variables",
				},
			},
		},
		IgnorePaths: []string{},
		Transformers: map[string]schema.TransformerRef{
			"mutationVariables.data.effectiveDate": {Key: transformers.KeyEffectiveDateOnChange},
		},
	}
}
