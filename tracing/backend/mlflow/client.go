/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mlflow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"chainguard.dev/evaltrace/tracing/backend"
	"github.com/sethvargo/go-envconfig"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Config is the environment the client is created from.
type Config struct {
	TrackingURI string        `env:"MLFLOW_TRACKING_URI,required"`
	Token       string        `env:"MLFLOW_TRACKING_TOKEN"`
	RunID       string        `env:"MLFLOW_RUN_ID"`
	Timeout     time.Duration `env:"MLFLOW_HTTP_REQUEST_TIMEOUT,default=30s"`
}

// APIError is a non-2xx response from the tracking server.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"error_code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mlflow: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("mlflow: %d %s", e.Status, http.StatusText(e.Status))
}

// Temporary reports whether retrying the request could succeed.
func (e *APIError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Is maps missing resources to backend.ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == backend.ErrNotFound &&
		(e.Status == http.StatusNotFound || e.Code == "RESOURCE_DOES_NOT_EXIST")
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock sets the clock used for timestamps.
func WithClock(clock clockz.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// Client talks to an MLflow tracking server.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	clock clockz.Clock

	mu           sync.Mutex
	experimentID string
	activeRun    string
	activeModel  string
	open         map[string]*openTrace
}

var _ backend.Backend = (*Client)(nil)

// New creates a Client for cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.TrackingURI, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing tracking URI: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("tracking URI %q must be http or https", cfg.TrackingURI)
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		base:  base,
		token: cfg.Token,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		clock:        clockz.RealClock,
		experimentID: DefaultExperimentID,
		activeRun:    cfg.RunID,
		open:         make(map[string]*openTrace),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewFromEnv creates a Client from the MLFLOW_* environment.
func NewFromEnv(ctx context.Context, opts ...Option) (*Client, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, fmt.Errorf("reading mlflow environment: %w", err)
	}
	return New(cfg, opts...)
}

// TrackingURI returns the server's base URL.
func (c *Client) TrackingURI() string {
	return c.base.String()
}

// do sends a JSON request and decodes a JSON response into out, if non-nil.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	u := c.base.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	return c.send(ctx, method, u.String(), body, "application/json", out)
}

func (c *Client) send(ctx context.Context, method, target string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	// Error bodies are small; cap them to avoid reading a proxy's HTML page.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err := json.Unmarshal(data, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decoding %s response: %w", req.URL.Path, err)
	}
	return nil
}

// keyValue is MLflow's list-of-pairs encoding for tags, params and metadata.
type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func toPairs(m map[string]string) []keyValue {
	out := make([]keyValue, 0, len(m))
	for k, v := range m {
		out = append(out, keyValue{Key: k, Value: v})
	}
	return out
}

func fromPairs(kvs []keyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}
