/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mlflow

import (
	"context"
	"fmt"
	"net/url"

	"chainguard.dev/evaltrace/tracing/backend"
	"github.com/chainguard-dev/clog"
)

type runInfo struct {
	RunID        string `json:"run_id"`
	ExperimentID string `json:"experiment_id"`
	Status       string `json:"status"`
}

type runEnvelope struct {
	Run struct {
		Info runInfo `json:"info"`
	} `json:"run"`
}

// StartRun creates a run in the current experiment and makes it active.
func (c *Client) StartRun(ctx context.Context, name string) (backend.Run, error) {
	var got runEnvelope
	req := map[string]any{
		"experiment_id": c.currentExperiment(),
		"start_time":    c.clock.Now().UnixMilli(),
	}
	if name != "" {
		req["run_name"] = name
	}
	if err := c.do(ctx, "POST", "api/2.0/mlflow/runs/create", nil, req, &got); err != nil {
		return backend.Run{}, fmt.Errorf("creating run: %w", err)
	}

	c.mu.Lock()
	c.activeRun = got.Run.Info.RunID
	c.mu.Unlock()
	return backend.Run{ID: got.Run.Info.RunID, ExperimentID: got.Run.Info.ExperimentID}, nil
}

// EndRun marks the active run finished and clears it.
func (c *Client) EndRun(ctx context.Context) error {
	c.mu.Lock()
	id := c.activeRun
	c.activeRun = ""
	c.mu.Unlock()
	if id == "" {
		return nil
	}
	return c.finishRun(ctx, id)
}

func (c *Client) finishRun(ctx context.Context, id string) error {
	return c.do(ctx, "POST", "api/2.0/mlflow/runs/update", nil, map[string]any{
		"run_id":   id,
		"status":   "FINISHED",
		"end_time": c.clock.Now().UnixMilli(),
	}, nil)
}

// ActiveRun returns the run set by MLFLOW_RUN_ID or StartRun.
func (c *Client) ActiveRun(ctx context.Context) (backend.Run, bool, error) {
	c.mu.Lock()
	id := c.activeRun
	c.mu.Unlock()
	if id == "" {
		return backend.Run{}, false, nil
	}

	var got runEnvelope
	if err := c.do(ctx, "GET", "api/2.0/mlflow/runs/get", url.Values{"run_id": {id}}, nil, &got); err != nil {
		return backend.Run{}, false, fmt.Errorf("fetching run %s: %w", id, err)
	}
	return backend.Run{ID: got.Run.Info.RunID, ExperimentID: got.Run.Info.ExperimentID}, true, nil
}

// LogMetric records a metric. The tracking server files metrics under runs,
// so a model-only target gets a short-lived run in the current experiment.
func (c *Client) LogMetric(ctx context.Context, target backend.MetricTarget, key string, value float64) error {
	runID := target.RunID
	if runID == "" {
		if target.ModelID == "" {
			return fmt.Errorf("metric %s has neither run nor model", key)
		}
		var got runEnvelope
		if err := c.do(ctx, "POST", "api/2.0/mlflow/runs/create", nil, map[string]any{
			"experiment_id": c.currentExperiment(),
			"start_time":    c.clock.Now().UnixMilli(),
			"run_name":      "summary-" + key,
		}, &got); err != nil {
			return fmt.Errorf("creating metric run: %w", err)
		}
		runID = got.Run.Info.RunID
		defer func() {
			if err := c.finishRun(ctx, runID); err != nil {
				clog.FromContext(ctx).With("run_id", runID).With("error", err.Error()).Warn("Failed to finish metric run")
			}
		}()
	}

	req := map[string]any{
		"run_id":    runID,
		"key":       key,
		"value":     value,
		"timestamp": c.clock.Now().UnixMilli(),
		"step":      0,
	}
	if target.ModelID != "" {
		req["model_id"] = target.ModelID
	}
	if err := c.do(ctx, "POST", "api/2.0/mlflow/runs/log-metric", nil, req, nil); err != nil {
		return fmt.Errorf("logging metric %s: %w", key, err)
	}
	return nil
}
