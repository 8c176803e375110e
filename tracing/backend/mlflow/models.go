/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mlflow

import (
	"context"
	"fmt"

	"chainguard.dev/evaltrace/tracing/backend"
	"chainguard.dev/evaltrace/tracing/tagcodec"
)

type loggedModel struct {
	Info struct {
		ModelID      string `json:"model_id"`
		Name         string `json:"name"`
		ExperimentID string `json:"experiment_id"`
		ModelType    string `json:"model_type"`
		SourceRunID  string `json:"source_run_id"`
	} `json:"info"`
	Data struct {
		Params []keyValue `json:"params"`
	} `json:"data"`
}

func (m loggedModel) model() backend.Model {
	out := backend.Model{
		ID:           m.Info.ModelID,
		Name:         m.Info.Name,
		Type:         m.Info.ModelType,
		ExperimentID: m.Info.ExperimentID,
		RunID:        m.Info.SourceRunID,
	}
	if len(m.Data.Params) > 0 {
		out.Params = make(map[string]any, len(m.Data.Params))
		for _, p := range m.Data.Params {
			out.Params[p.Key] = decodeParam(p.Value)
		}
	}
	return out
}

// Params are strings on the wire. Non-string values travel as JSON.
func encodeParam(v any) (string, error) {
	if s, ok := v.(string); ok {
		return s, nil
	}
	return tagcodec.EncodeValue(v)
}

func decodeParam(s string) any {
	v, err := tagcodec.DecodeValue(s)
	if err != nil {
		return s
	}
	return v
}

// CreateExternalModel records a model that is not stored by the server.
func (c *Client) CreateExternalModel(ctx context.Context, spec backend.ExternalModelSpec) (backend.Model, error) {
	params := make([]keyValue, 0, len(spec.Params))
	for k, v := range spec.Params {
		s, err := encodeParam(v)
		if err != nil {
			return backend.Model{}, fmt.Errorf("param %q: %w", k, err)
		}
		params = append(params, keyValue{Key: k, Value: s})
	}
	experimentID := spec.ExperimentID
	if experimentID == "" {
		experimentID = c.currentExperiment()
	}

	req := map[string]any{
		"experiment_id": experimentID,
		"name":          spec.Name,
		"model_type":    spec.Type,
		"params":        params,
		"tags":          []keyValue{{Key: "mlflow.external", Value: "true"}},
	}
	if spec.RunID != "" {
		req["source_run_id"] = spec.RunID
	}

	var got struct {
		Model loggedModel `json:"model"`
	}
	if err := c.do(ctx, "POST", "api/2.0/mlflow/logged-models", nil, req, &got); err != nil {
		return backend.Model{}, fmt.Errorf("creating external model %q: %w", spec.Name, err)
	}
	return got.Model.model(), nil
}

// GetModel fetches a logged model by id.
func (c *Client) GetModel(ctx context.Context, id string) (backend.Model, error) {
	var got struct {
		Model loggedModel `json:"model"`
	}
	if err := c.do(ctx, "GET", "api/2.0/mlflow/logged-models/"+id, nil, nil, &got); err != nil {
		return backend.Model{}, fmt.Errorf("fetching model %s: %w", id, err)
	}
	return got.Model.model(), nil
}

// SetActiveModel links traces started from now on to the model. The server
// confirms the model exists.
func (c *Client) SetActiveModel(ctx context.Context, id string) error {
	if _, err := c.GetModel(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	c.activeModel = id
	c.mu.Unlock()
	return nil
}
