/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package mlflow implements backend.Backend against an MLflow tracking server's
REST API.

Trace metadata (status, timestamps, tags, links to runs and models) lives in
the tracking store. Span payloads are buffered client-side while a trace is
open and uploaded as the trace's data artifact when the root closes, the way
the MLflow clients do.

Configuration comes from the environment:

	MLFLOW_TRACKING_URI    base URL of the tracking server (required)
	MLFLOW_TRACKING_TOKEN  bearer token, if the server needs one
	MLFLOW_RUN_ID          run to treat as active, if any

	c, err := mlflow.NewFromEnv(ctx)
	if err != nil {
		clog.FatalContextf(ctx, "failed to create mlflow backend: %v", err)
	}
*/
package mlflow
