package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/propgrade/propgrade/internal/config"
	"github.com/propgrade/propgrade/internal/expressions"
	"github.com/propgrade/propgrade/internal/logging"
	"github.com/propgrade/propgrade/internal/store"
	"github.com/propgrade/propgrade/pkg/schema"
)

// handleGrade compares expected and actual proposal records and returns
// a verdict. When a store is configured the run is persisted unless
// persist=false is passed.
func (s *PropgradeServer) handleGrade(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()

	expected, ok := args["expected"]
	if !ok {
		return mcp.NewToolResultError("expected is required"), nil
	}
	actual := args["actual"]

	ectx, err := parseNow(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	datasetName := req.GetString("dataset", "")
	datasetCfg, cfgErr := s.resolveConfig(ctx, args["config"], datasetName)
	if cfgErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("config resolution failed: %v", cfgErr)), nil
	}

	runID := uuid.New().String()
	ctx = logging.WithRunID(ctx, runID)
	if datasetName != "" {
		ctx = logging.WithDataset(ctx, datasetName)
	}

	verdict := s.grader.Grade(ctx, expected, actual, datasetCfg, ectx)

	if s.store != nil && persistRequested(args["persist"]) {
		if saveErr := s.persistRun(ctx, runID, datasetName, expected, actual, datasetCfg, verdict, ectx); saveErr != nil {
			logging.LogWith(ctx, s.logger).Warn("persist run failed", "error", saveErr)
		}
	}

	return marshalResult(map[string]any{
		"run_id":  runID,
		"verdict": verdict,
	})
}

// handleRender expands template date expressions inside a string.
func (s *PropgradeServer) handleRender(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	template, err := req.RequireString("template")
	if err != nil {
		return mcp.NewToolResultError("template is required"), nil
	}
	ectx, err := parseNow(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	engine := expressions.NewTemplateEngine(s.variables)
	res := engine.Process(template, ectx)

	return marshalResult(map[string]any{
		"rendered":     res.Processed,
		"replacements": res.Replacements,
	})
}

// handleVariables lists registered variables with their values at the
// reference time.
func (s *PropgradeServer) handleVariables(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ectx, err := parseNow(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	keys := s.variables.Keys()
	sort.Strings(keys)

	type variableInfo struct {
		Key                string `json:"key"`
		DisplayValue       string `json:"display_value"`
		DataValue          any    `json:"data_value"`
		SupportsArithmetic bool   `json:"supports_arithmetic"`
	}

	infos := make([]variableInfo, 0, len(keys))
	for _, key := range keys {
		v, ok := s.variables.Get(key)
		if !ok {
			continue
		}
		res := v.Evaluate(ectx)
		infos = append(infos, variableInfo{
			Key:                key,
			DisplayValue:       res.DisplayValue,
			DataValue:          res.DataValue,
			SupportsArithmetic: v.SupportsArithmetic(),
		})
	}

	return marshalResult(map[string]any{"variables": infos})
}

// handleDataset registers or updates a named validation config.
func (s *PropgradeServer) handleDataset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no store configured; dataset registration is unavailable"), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError("name is required"), nil
	}
	cfgRaw := mcp.ParseStringMap(req, "config", nil)
	if cfgRaw == nil {
		return mcp.NewToolResultError("config is required"), nil
	}

	data, marshalErr := json.Marshal(cfgRaw)
	if marshalErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid config: %v", marshalErr)), nil
	}
	// Validate against the config schema before storing.
	if _, parseErr := config.Parse(data); parseErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid config: %v", parseErr)), nil
	}

	ds := &store.Dataset{
		Name:        name,
		Description: req.GetString("description", ""),
		Config:      data,
	}
	if saveErr := s.store.SaveDataset(ctx, ds); saveErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to save dataset: %v", saveErr)), nil
	}

	return marshalResult(map[string]any{"name": name, "ok": true})
}

// handleQuery lists stored runs or datasets based on filters.
func (s *PropgradeServer) handleQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store == nil {
		return mcp.NewToolResultError("no store configured; queries are unavailable"), nil
	}
	resource, err := req.RequireString("resource")
	if err != nil {
		return mcp.NewToolResultError("resource is required"), nil
	}

	filter := mcp.ParseStringMap(req, "filter", nil)

	switch resource {
	case "runs":
		return s.queryRuns(ctx, filter)
	case "datasets":
		datasets, listErr := s.store.ListDatasets(ctx)
		if listErr != nil {
			return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", listErr)), nil
		}
		return marshalResult(map[string]any{"datasets": datasets})
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unknown resource type: %s", resource)), nil
	}
}

// --- Query helpers ---

func (s *PropgradeServer) queryRuns(ctx context.Context, filter map[string]any) (*mcp.CallToolResult, error) {
	rf := store.RunFilter{
		Limit: extractInt(filter, "limit", 50),
	}
	if dataset, ok := filter["dataset"].(string); ok {
		rf.Dataset = dataset
	}
	if _, ok := filter["score"]; ok {
		n := extractInt(filter, "score", 0)
		rf.Score = &n
	}
	if since, ok := filter["since"].(string); ok && since != "" {
		if t, err := time.Parse(time.RFC3339, since); err == nil {
			rf.Since = &t
		}
	}

	runs, err := s.store.ListRuns(ctx, rf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("query failed: %v", err)), nil
	}
	return marshalResult(map[string]any{"runs": runs})
}

// --- Internal helpers ---

// resolveConfig builds the dataset config layer: an inline config object
// wins; otherwise a named dataset's stored config is loaded. Both absent
// means no dataset layer.
func (s *PropgradeServer) resolveConfig(ctx context.Context, inline any, datasetName string) (*schema.ValidationConfig, error) {
	if inline != nil {
		data, err := json.Marshal(inline)
		if err != nil {
			return nil, err
		}
		return config.Parse(data)
	}
	if datasetName != "" && s.store != nil {
		ds, err := s.store.GetDataset(ctx, datasetName)
		if err != nil {
			return nil, err
		}
		return config.Parse(ds.Config)
	}
	return nil, nil
}

func (s *PropgradeServer) persistRun(ctx context.Context, runID, dataset string, expected, actual any, cfg *schema.ValidationConfig, verdict *schema.Verdict, ectx *schema.EvalContext) error {
	expectedRaw, err := json.Marshal(expected)
	if err != nil {
		return err
	}
	actualRaw, err := json.Marshal(actual)
	if err != nil {
		return err
	}
	verdictRaw, err := json.Marshal(verdict)
	if err != nil {
		return err
	}
	var cfgRaw json.RawMessage
	if cfg != nil {
		if cfgRaw, err = json.Marshal(cfg); err != nil {
			return err
		}
	}

	return s.store.SaveRun(ctx, &store.Run{
		ID:            runID,
		Dataset:       dataset,
		Expected:      expectedRaw,
		Actual:        actualRaw,
		Config:        cfgRaw,
		Verdict:       verdictRaw,
		Score:         verdict.Score,
		Comment:       verdict.Comment,
		ReferenceTime: ectx.Now,
	})
}

// persistRequested interprets the optional persist argument. The tool
// declares it as a boolean, but string "true"/"false" is accepted too;
// anything else (including absence) defaults to persisting.
func persistRequested(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return !strings.EqualFold(val, "false")
	default:
		return true
	}
}

// parseNow builds the evaluation context from the optional "now" argument.
func parseNow(req mcp.CallToolRequest) (*schema.EvalContext, error) {
	now := req.GetString("now", "")
	if now == "" {
		return schema.NewEvalContext(time.Now().UTC()), nil
	}
	t, err := time.Parse(time.RFC3339, now)
	if err != nil {
		return nil, fmt.Errorf("invalid 'now' value %q: want RFC3339", now)
	}
	return schema.NewEvalContext(t), nil
}

// extractInt safely extracts an integer from a filter map.
func extractInt(filter map[string]any, key string, defaultVal int) int {
	if filter == nil {
		return defaultVal
	}
	v, ok := filter[key]
	if !ok {
		return defaultVal
	}
	switch val := v.(type) {
	case float64:
		return int(val)
	case int:
		return val
	case string:
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
