/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chainguard.dev/evaltrace/tracing"
	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/backend/mlflow"
	"chainguard.dev/evaltrace/tracing/metrics"
	"chainguard.dev/evaltrace/tracing/mode"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
)

// config is the environment the commands read. Flags override it.
type config struct {
	Experiment string `env:"MLFLOW_EXPERIMENT_NAME"`
	// ExtractStart bounds find and summarize from below.
	ExtractStart string `env:"DOMINO_EVAL_EXTRACT_START_TS"`
	LogLevel     string `env:"EVALTRACE_LOG_LEVEL,default=info"`
}

// backendFactory connects to the tracking server and returns the UI base URL
// used for trace links.
type backendFactory func(ctx context.Context) (backend.Backend, string, error)

func mlflowBackend(ctx context.Context) (backend.Backend, string, error) {
	c, err := mlflow.NewFromEnv(ctx)
	if err != nil {
		return nil, "", err
	}
	return c, c.TrackingURI(), nil
}

type app struct {
	newBackend backendFactory
	lookuper   envconfig.Lookuper
	cfg        config
	verbose    bool
}

func newRootCommand(newBackend backendFactory) *cobra.Command {
	return newApp(newBackend, envconfig.OsLookuper()).command()
}

func newApp(newBackend backendFactory, l envconfig.Lookuper) *app {
	return &app{newBackend: newBackend, lookuper: l}
}

func (a *app) command() *cobra.Command {
	root := &cobra.Command{
		Use:   "evaltrace",
		Short: "Inspect evaluated traces and log summary metrics",
		Long: `evaltrace works with traces recorded by instrumented AI systems.

Commands:
  find       - list traces or spans with their evaluation results
  summarize  - aggregate evaluation results into summary metrics
  schema     - print or check the AI system config schema`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := envconfig.ProcessWith(cmd.Context(), &envconfig.Config{Target: &a.cfg, Lookuper: a.lookuper}); err != nil {
				return fmt.Errorf("processing config: %w", err)
			}
			level := slog.LevelInfo
			if err := level.UnmarshalText([]byte(a.cfg.LogLevel)); err != nil {
				return fmt.Errorf("EVALTRACE_LOG_LEVEL: %w", err)
			}
			if a.verbose {
				level = slog.LevelDebug
			}
			logger := clog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(a.findCommand(), a.summarizeCommand(), a.schemaCommand())
	return root
}

// connect builds an engine context over a fresh backend connection.
func (a *app) connect(ctx context.Context) (*tracing.Context, string, error) {
	be, uri, err := a.newBackend(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("connecting to tracking server: %w", err)
	}
	tc := tracing.New(be, tracing.WithLookuper(a.lookuper), tracing.WithInstruments(metrics.NewInstruments()))
	return tc, uri, nil
}

// experimentIDs resolves the named experiment, or none to search the
// backend's current one.
func (a *app) experimentIDs(ctx context.Context, be backend.ExperimentBinder, name string) ([]string, error) {
	if name == "" {
		name = a.cfg.Experiment
	}
	if name == "" {
		return nil, nil
	}
	id, err := be.SetExperiment(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("resolving experiment %q: %w", name, err)
	}
	return []string{id}, nil
}

// startTime is the --since flag, else DOMINO_EVAL_EXTRACT_START_TS.
func (a *app) startTime(flag string) (time.Time, error) {
	if flag != "" {
		return parseTime(flag)
	}
	if a.cfg.ExtractStart != "" {
		t, err := parseTime(a.cfg.ExtractStart)
		if err != nil {
			return time.Time{}, fmt.Errorf("DOMINO_EVAL_EXTRACT_START_TS: %w", err)
		}
		return t, nil
	}
	return time.Time{}, nil
}

var timeLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly}

// parseTime accepts RFC 3339 or "2006-01-02 15:04:05" (UTC) timestamps.
func parseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q, expected RFC 3339 or %q", s, time.DateTime)
}

// isProduction reads the published mode flag.
func isProduction(ctx context.Context, l envconfig.Lookuper) (bool, error) {
	var env mode.EnvConfig
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &env, Lookuper: l}); err != nil {
		return false, err
	}
	return env.IsProduction, nil
}

func writeErr(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.ErrOrStderr(), format+"\n", args...)
}
