package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/propgrade/propgrade/pkg/schema"
	"gopkg.in/yaml.v3"
)

// Load reads a dataset-level ValidationConfig document from disk.
// JSON documents are validated against the embedded JSON Schema before
// decoding; YAML documents are decoded strictly (unknown fields rejected).
func Load(path string) (*schema.ValidationConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeConfig, "read config %s", path).WithCause(err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return Parse(raw)
	case ".yaml", ".yml":
		return parseYAML(raw)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeConfig,
			"unsupported config extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
	}
}

// Parse validates and decodes a JSON ValidationConfig document.
func Parse(raw []byte) (*schema.ValidationConfig, error) {
	if err := ValidateDocument(raw); err != nil {
		return nil, err
	}
	return decodeJSON(raw)
}

func parseYAML(raw []byte) (*schema.ValidationConfig, error) {
	var cfg schema.ValidationConfig
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, schema.NewError(schema.ErrCodeConfig, "decode YAML config document").WithCause(err)
	}
	return &cfg, nil
}
