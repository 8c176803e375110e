/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mlflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"chainguard.dev/evaltrace/tracing/backend"
)

// DefaultExperimentID is the experiment every tracking server starts with.
const DefaultExperimentID = "0"

// SetExperiment selects the named experiment, creating it when missing.
func (c *Client) SetExperiment(ctx context.Context, name string) (string, error) {
	var got struct {
		Experiment struct {
			ID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := c.do(ctx, "GET", "api/2.0/mlflow/experiments/get-by-name", url.Values{"experiment_name": {name}}, nil, &got)
	id := got.Experiment.ID
	switch {
	case err == nil:
	case errors.Is(err, backend.ErrNotFound):
		var created struct {
			ID string `json:"experiment_id"`
		}
		if err := c.do(ctx, "POST", "api/2.0/mlflow/experiments/create", nil, map[string]string{"name": name}, &created); err != nil {
			return "", fmt.Errorf("creating experiment %q: %w", name, err)
		}
		id = created.ID
	default:
		return "", fmt.Errorf("looking up experiment %q: %w", name, err)
	}

	c.mu.Lock()
	c.experimentID = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) currentExperiment() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.experimentID
}
