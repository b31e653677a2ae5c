// Package mcp exposes the grading engine over the Model Context
// Protocol stdio transport so agents can grade proposals, render
// template expressions, and manage dataset configurations.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/propgrade/propgrade/internal/grader"
	"github.com/propgrade/propgrade/internal/store"
	"github.com/propgrade/propgrade/internal/variables"
)

// PropgradeServerDeps holds the dependencies for creating a PropgradeServer.
// Store is optional; without it grade results are not persisted and the
// dataset/query tools report an error.
type PropgradeServerDeps struct {
	Grader    *grader.Grader
	Variables *variables.Registry
	Store     store.Store
	Logger    *slog.Logger
}

// PropgradeServer wraps an MCP server with propgrade-specific tool handlers.
type PropgradeServer struct {
	grader    *grader.Grader
	variables *variables.Registry
	store     store.Store
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewPropgradeServer creates a new PropgradeServer with all tools registered.
func NewPropgradeServer(deps PropgradeServerDeps) *PropgradeServer {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	vars := deps.Variables
	if vars == nil {
		vars = variables.Default()
	}

	s := &PropgradeServer{
		grader:    deps.Grader,
		variables: vars,
		store:     deps.Store,
		logger:    logger,
	}

	mcpSrv := server.NewMCPServer(
		"propgrade",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("Propgrade grades change proposals against expectations. Use propgrade.grade to compare expected and actual proposals, propgrade.render to expand template date expressions, propgrade.variables to list available template variables, propgrade.dataset to register a named validation config, and propgrade.query to list stored runs or datasets."),
	)

	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *PropgradeServer) Serve(ctx context.Context) error {
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *PropgradeServer) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// tools returns the registered MCP tools as ServerTool entries.
func (s *PropgradeServer) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: gradeTool(), Handler: s.handleGrade},
		{Tool: renderTool(), Handler: s.handleRender},
		{Tool: variablesTool(), Handler: s.handleVariables},
		{Tool: datasetTool(), Handler: s.handleDataset},
		{Tool: queryTool(), Handler: s.handleQuery},
	}
}

// --- Tool definitions ---

func gradeTool() mcp.Tool {
	return mcp.NewTool("propgrade.grade",
		mcp.WithDescription("Grade actual change proposals against expected proposals. Returns a verdict with score, per-proposal diff, and comment"),
		mcp.WithArray("expected", mcp.Required(), mcp.Description("Expected proposal records (may carry per-record transformers/ignorePaths overrides)")),
		mcp.WithArray("actual", mcp.Description("Actual proposal records produced by the system under test")),
		mcp.WithObject("config", mcp.Description("Dataset-level validation config (normalization, ignorePaths, transformers)")),
		mcp.WithString("dataset", mcp.Description("Named dataset whose stored config supplies the dataset layer when 'config' is absent")),
		mcp.WithString("now", mcp.Description("Reference time as RFC3339 (default: current UTC time)")),
		mcp.WithBoolean("persist", mcp.Description("Persist the run to the store (default: true when a store is configured)")),
	)
}

func renderTool() mcp.Tool {
	return mcp.NewTool("propgrade.render",
		mcp.WithDescription("Expand {variable} template date expressions inside a string"),
		mcp.WithString("template", mcp.Required(), mcp.Description("String possibly containing {variable} or {variable+N} tokens")),
		mcp.WithString("now", mcp.Description("Reference time as RFC3339 (default: current UTC time)")),
	)
}

func variablesTool() mcp.Tool {
	return mcp.NewTool("propgrade.variables",
		mcp.WithDescription("List registered template variables with their current display and data values"),
		mcp.WithString("now", mcp.Description("Reference time as RFC3339 (default: current UTC time)")),
	)
}

func datasetTool() mcp.Tool {
	return mcp.NewTool("propgrade.dataset",
		mcp.WithDescription("Register or update a named validation configuration for reuse across grading runs"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Dataset name")),
		mcp.WithObject("config", mcp.Required(), mcp.Description("Validation config document (normalization, ignorePaths, transformers)")),
		mcp.WithString("description", mcp.Description("Dataset description")),
	)
}

func queryTool() mcp.Tool {
	return mcp.NewTool("propgrade.query",
		mcp.WithDescription("Query stored grading runs or registered datasets"),
		mcp.WithString("resource", mcp.Required(),
			mcp.Enum("runs", "datasets"),
			mcp.Description("Type of resource to query"),
		),
		mcp.WithObject("filter", mcp.Description("Filter criteria (dataset, score, since, limit)")),
	)
}
