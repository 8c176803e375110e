/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mlflow

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"chainguard.dev/evaltrace/tracing/backend"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// Trace metadata and tag keys understood by the tracking server.
const (
	metaSourceRun       = "mlflow.sourceRun"
	metaModelID         = "mlflow.modelId"
	tagTraceName        = "mlflow.traceName"
	tagArtifactLocation = "mlflow.artifactLocation"

	attrInputs  = "mlflow.spanInputs"
	attrOutputs = "mlflow.spanOutputs"
	attrTraceID = "mlflow.traceRequestId"

	artifactScheme = "mlflow-artifacts:/"
	traceDataFile  = "traces.json"
)

type traceInfo struct {
	RequestID       string     `json:"request_id"`
	ExperimentID    string     `json:"experiment_id"`
	TimestampMs     int64      `json:"timestamp_ms"`
	ExecutionTimeMs int64      `json:"execution_time_ms,omitempty"`
	Status          string     `json:"status"`
	RequestMetadata []keyValue `json:"request_metadata,omitempty"`
	Tags            []keyValue `json:"tags,omitempty"`
}

func (ti traceInfo) trace() backend.Trace {
	meta := fromPairs(ti.RequestMetadata)
	tags := fromPairs(ti.Tags)
	t := backend.Trace{
		ID:           ti.RequestID,
		ExperimentID: ti.ExperimentID,
		Name:         tags[tagTraceName],
		RunID:        meta[metaSourceRun],
		ModelID:      meta[metaModelID],
		Tags:         tags,
		Status:       backend.Status(ti.Status),
		StartTime:    time.UnixMilli(ti.TimestampMs),
	}
	if ti.Status != "" && t.Status != backend.StatusInProgress {
		t.EndTime = t.StartTime.Add(time.Duration(ti.ExecutionTimeMs) * time.Millisecond)
	}
	return t
}

// wireSpan is the span encoding stored in a trace's data artifact.
type wireSpan struct {
	Name    string `json:"name"`
	Context struct {
		SpanID  string `json:"span_id"`
		TraceID string `json:"trace_id"`
	} `json:"context"`
	ParentID      string            `json:"parent_id,omitempty"`
	StartTimeNs   int64             `json:"start_time"`
	EndTimeNs     int64             `json:"end_time,omitempty"`
	StatusCode    string            `json:"status_code"`
	StatusMessage string            `json:"status_message,omitempty"`
	Attributes    map[string]string `json:"attributes"`
}

type traceData struct {
	Spans []wireSpan `json:"spans"`
}

func toWire(s backend.Span) (wireSpan, error) {
	w := wireSpan{
		Name:          s.Name,
		ParentID:      s.ParentID,
		StartTimeNs:   s.StartTime.UnixNano(),
		StatusCode:    string(s.Status),
		StatusMessage: s.Error,
		Attributes:    make(map[string]string, 3),
	}
	w.Context.SpanID = s.ID
	w.Context.TraceID = s.TraceID
	if !s.EndTime.IsZero() {
		w.EndTimeNs = s.EndTime.UnixNano()
	}
	// Attribute values are themselves JSON documents.
	for key, v := range map[string]any{attrTraceID: s.TraceID, attrInputs: s.Inputs, attrOutputs: s.Outputs} {
		if v == nil {
			continue
		}
		data, err := json.Marshal(v)
		if err != nil {
			return wireSpan{}, fmt.Errorf("span %s %s: %w", s.Name, key, err)
		}
		w.Attributes[key] = string(data)
	}
	return w, nil
}

func fromWire(w wireSpan) backend.Span {
	s := backend.Span{
		ID:        w.Context.SpanID,
		TraceID:   w.Context.TraceID,
		ParentID:  w.ParentID,
		Name:      w.Name,
		Status:    backend.Status(strings.TrimPrefix(w.StatusCode, "STATUS_CODE_")),
		Error:     w.StatusMessage,
		StartTime: time.Unix(0, w.StartTimeNs),
		Inputs:    decodeAttr(w.Attributes[attrInputs]),
		Outputs:   decodeAttr(w.Attributes[attrOutputs]),
	}
	if s.Status == "UNSET" {
		s.Status = backend.StatusOK
	}
	if w.EndTimeNs != 0 {
		s.EndTime = time.Unix(0, w.EndTimeNs)
	}
	return s
}

func decodeAttr(raw string) any {
	if raw == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// openTrace buffers a trace's spans until the root closes.
type openTrace struct {
	experimentID string
	artifacts    string
	start        time.Time
	spans        []backend.Span
	uploaded     bool
}

func (o *openTrace) find(id string) int {
	for i := range o.spans {
		if o.spans[i].ID == id {
			return i
		}
	}
	return -1
}

func spanID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:8])
}

// StartTrace registers a trace with the server and opens its root span.
func (c *Client) StartTrace(ctx context.Context, name string, inputs any) (backend.SpanRef, error) {
	c.mu.Lock()
	experimentID, runID, modelID := c.experimentID, c.activeRun, c.activeModel
	c.mu.Unlock()

	meta := map[string]string{}
	if runID != "" {
		meta[metaSourceRun] = runID
	}
	if modelID != "" {
		meta[metaModelID] = modelID
	}
	now := c.clock.Now()

	var got struct {
		TraceInfo traceInfo `json:"trace_info"`
	}
	if err := c.do(ctx, "POST", "api/2.0/mlflow/traces", nil, traceInfo{
		ExperimentID:    experimentID,
		TimestampMs:     now.UnixMilli(),
		Status:          string(backend.StatusInProgress),
		RequestMetadata: toPairs(meta),
		Tags:            []keyValue{{Key: tagTraceName, Value: name}},
	}, &got); err != nil {
		return backend.SpanRef{}, fmt.Errorf("starting trace %q: %w", name, err)
	}

	ti := got.TraceInfo
	ref := backend.SpanRef{TraceID: ti.RequestID, SpanID: spanID()}
	c.mu.Lock()
	c.open[ref.TraceID] = &openTrace{
		experimentID: ti.ExperimentID,
		artifacts:    fromPairs(ti.Tags)[tagArtifactLocation],
		start:        now,
		spans: []backend.Span{{
			ID:        ref.SpanID,
			TraceID:   ref.TraceID,
			Name:      name,
			Status:    backend.StatusInProgress,
			Inputs:    inputs,
			StartTime: now,
		}},
	}
	c.mu.Unlock()
	return ref, nil
}

// StartSpan opens a span under parent. Spans stay client-side until EndTrace.
func (c *Client) StartSpan(ctx context.Context, parent backend.SpanRef, name string, inputs any) (backend.SpanRef, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.open[parent.TraceID]
	if !ok || o.find(parent.SpanID) < 0 {
		return backend.SpanRef{}, fmt.Errorf("span %s/%s: %w", parent.TraceID, parent.SpanID, backend.ErrNotFound)
	}
	ref := backend.SpanRef{TraceID: parent.TraceID, SpanID: spanID()}
	o.spans = append(o.spans, backend.Span{
		ID:        ref.SpanID,
		TraceID:   ref.TraceID,
		ParentID:  parent.SpanID,
		Name:      name,
		Status:    backend.StatusInProgress,
		Inputs:    inputs,
		StartTime: c.clock.Now(),
	})
	return ref, nil
}

// EndSpan closes a buffered span.
func (c *Client) EndSpan(ctx context.Context, ref backend.SpanRef, outputs any, err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	o, ok := c.open[ref.TraceID]
	if !ok {
		return fmt.Errorf("trace %s: %w", ref.TraceID, backend.ErrNotFound)
	}
	i := o.find(ref.SpanID)
	if i < 0 {
		return fmt.Errorf("span %s/%s: %w", ref.TraceID, ref.SpanID, backend.ErrNotFound)
	}
	closeSpan(&o.spans[i], outputs, err, c.clock.Now())
	return nil
}

func closeSpan(s *backend.Span, outputs any, err error, now time.Time) {
	s.Outputs = outputs
	s.Status = backend.StatusFor(err)
	if err != nil {
		s.Error = err.Error()
	}
	s.EndTime = now
}

// EndTrace closes the root span, uploads the span data and finalizes the
// trace's status. The trace stays open until the server accepts the final
// status, so a failed call can be retried.
func (c *Client) EndTrace(ctx context.Context, traceID string, outputs any, err error) error {
	c.mu.Lock()
	o, ok := c.open[traceID]
	var snap openTrace
	if ok {
		if o.spans[0].EndTime.IsZero() {
			closeSpan(&o.spans[0], outputs, err, c.clock.Now())
		}
		snap = *o
		snap.spans = slices.Clone(o.spans)
	}
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("trace %s: %w", traceID, backend.ErrNotFound)
	}

	if !snap.uploaded {
		if uerr := c.uploadSpans(ctx, traceID, &snap); uerr != nil {
			// The trace record is still worth finalizing without its span data.
			clog.FromContext(ctx).With("trace_id", traceID).With("error", uerr.Error()).Warn("Failed to upload trace data")
		} else {
			c.mu.Lock()
			o.uploaded = true
			c.mu.Unlock()
		}
	}

	root := snap.spans[0]
	if err := c.do(ctx, "PATCH", "api/2.0/mlflow/traces/"+url.PathEscape(traceID), nil, map[string]any{
		"request_id":   traceID,
		"timestamp_ms": root.EndTime.UnixMilli(),
		"status":       string(root.Status),
	}, nil); err != nil {
		return fmt.Errorf("ending trace %s: %w", traceID, err)
	}

	c.mu.Lock()
	delete(c.open, traceID)
	c.mu.Unlock()
	return nil
}

func (c *Client) uploadSpans(ctx context.Context, traceID string, o *openTrace) error {
	path, err := artifactPath(o.artifacts)
	if err != nil {
		return err
	}
	data := traceData{Spans: make([]wireSpan, 0, len(o.spans))}
	for _, s := range o.spans {
		w, err := toWire(s)
		if err != nil {
			return err
		}
		data.Spans = append(data.Spans, w)
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding trace %s: %w", traceID, err)
	}
	u := c.base.JoinPath("api/2.0/mlflow-artifacts/artifacts", path, traceDataFile)
	return c.send(ctx, "PUT", u.String(), bytes.NewReader(body), "application/json", nil)
}

// artifactPath turns an mlflow-artifacts:/ URI into a proxied artifact path.
func artifactPath(location string) (string, error) {
	if location == "" {
		return "", errors.New("trace has no artifact location")
	}
	rest, ok := strings.CutPrefix(location, artifactScheme)
	if !ok {
		return "", fmt.Errorf("artifact location %q is not served by the tracking server", location)
	}
	return strings.TrimLeft(rest, "/"), nil
}

// SetTag writes a tag on a trace, open or closed.
func (c *Client) SetTag(ctx context.Context, traceID, key, value string) error {
	if err := c.do(ctx, "PATCH", "api/2.0/mlflow/traces/"+url.PathEscape(traceID)+"/tags", nil, keyValue{Key: key, Value: value}, nil); err != nil {
		return fmt.Errorf("setting tag %s on trace %s: %w", key, traceID, err)
	}
	return nil
}

// SearchTraces lists traces newest first and loads each one's spans.
func (c *Client) SearchTraces(ctx context.Context, req backend.SearchRequest) (backend.Page, error) {
	experiments := req.ExperimentIDs
	if len(experiments) == 0 {
		experiments = []string{c.currentExperiment()}
	}
	q := url.Values{
		"experiment_ids": experiments,
		"order_by":       {"timestamp_ms DESC"},
	}
	if len(req.Filter) > 0 {
		q.Set("filter", req.Filter.String())
	}
	if req.PageSize > 0 {
		q.Set("max_results", strconv.Itoa(req.PageSize))
	}
	if req.PageToken != "" {
		q.Set("page_token", req.PageToken)
	}

	var got struct {
		Traces        []traceInfo `json:"traces"`
		NextPageToken string      `json:"next_page_token"`
	}
	if err := c.do(ctx, "GET", "api/2.0/mlflow/traces", q, nil, &got); err != nil {
		return backend.Page{}, fmt.Errorf("searching traces: %w", err)
	}

	page := backend.Page{
		Traces:        make([]backend.Trace, 0, len(got.Traces)),
		NextPageToken: got.NextPageToken,
	}
	for _, ti := range got.Traces {
		t := ti.trace()
		spans, err := c.traceSpans(ctx, t.ID)
		if err != nil {
			return backend.Page{}, err
		}
		t.Spans = spans
		page.Traces = append(page.Traces, t)
	}
	return page, nil
}

// traceSpans fetches a trace's data artifact. Traces whose data was never
// uploaded have no spans.
func (c *Client) traceSpans(ctx context.Context, traceID string) ([]backend.Span, error) {
	var data traceData
	err := c.do(ctx, "GET", "ajax-api/2.0/mlflow/get-trace-artifact", url.Values{"request_id": {traceID}}, nil, &data)
	if errors.Is(err, backend.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching spans of trace %s: %w", traceID, err)
	}

	spans := make([]backend.Span, 0, len(data.Spans))
	for _, w := range data.Spans {
		s := fromWire(w)
		if s.IsRoot() {
			spans = append([]backend.Span{s}, spans...)
			continue
		}
		spans = append(spans, s)
	}
	return spans, nil
}
