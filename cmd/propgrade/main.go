// Command propgrade grades change proposals against expectations, either
// as an MCP stdio server (serve) or directly from files (eval).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/propgrade/propgrade/internal/config"
	"github.com/propgrade/propgrade/internal/grader"
	"github.com/propgrade/propgrade/internal/logging"
	"github.com/propgrade/propgrade/internal/store"
	"github.com/propgrade/propgrade/pkg/mcp"
	"github.com/propgrade/propgrade/pkg/schema"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(cfg, logger, os.Args[2:])
	case "eval":
		err = runEval(logger, os.Args[2:])
	case "version":
		fmt.Println("propgrade " + version)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: propgrade <command>

commands:
  serve     start the MCP stdio server
  eval      grade proposal files and print the verdict JSON
  version   print the version`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	// MCP owns stdout; all logging goes to stderr.
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func runServe(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	noStore := fs.Bool("no-store", false, "run without run persistence")
	if err := fs.Parse(args); err != nil {
		return err
	}

	g, err := grader.New(logger)
	if err != nil {
		return err
	}

	var st store.Store
	if !*noStore {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("create data dir: %w", err)
		}
		ls, err := store.NewLibSQLStore("file:" + cfg.DBPath)
		if err != nil {
			return err
		}
		defer ls.Close()
		if err := ls.Migrate(context.Background()); err != nil {
			return err
		}
		st = ls
	}

	srv := mcp.NewPropgradeServer(mcp.PropgradeServerDeps{
		Grader: g,
		Store:  st,
		Logger: logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("propgrade MCP server listening on stdio", slog.String("version", version))
	return srv.Serve(ctx)
}

func runEval(logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	expectedPath := fs.String("expected", "", "path to the expected proposals JSON file (required)")
	actualPath := fs.String("actual", "", "path to the actual proposals JSON file")
	configPath := fs.String("config", "", "path to a dataset validation config (.json, .yaml or .yml)")
	nowFlag := fs.String("now", "", "reference time as RFC3339 (default: current UTC time)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *expectedPath == "" {
		return fmt.Errorf("-expected is required")
	}

	expected, err := readRecords(*expectedPath)
	if err != nil {
		return err
	}
	var actual any
	if *actualPath != "" {
		if actual, err = readRecords(*actualPath); err != nil {
			return err
		}
	}

	var datasetCfg *schema.ValidationConfig
	if *configPath != "" {
		if datasetCfg, err = config.Load(*configPath); err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	if *nowFlag != "" {
		if now, err = time.Parse(time.RFC3339, *nowFlag); err != nil {
			return fmt.Errorf("invalid -now value %q: want RFC3339", *nowFlag)
		}
	}

	g, err := grader.New(logger)
	if err != nil {
		return err
	}

	ctx := logging.WithRunID(context.Background(), uuid.New().String())
	verdict := g.Grade(ctx, expected, actual, datasetCfg, schema.NewEvalContext(now))

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(verdict); err != nil {
		return err
	}
	if verdict.Score == 0 {
		os.Exit(1)
	}
	return nil
}

func readRecords(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
