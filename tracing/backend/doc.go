/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package backend defines the narrow contract the engine consumes from a tracing
and experiment-tracking server.

The engine never stores traces itself. It starts and ends traces and spans,
writes string tags, searches traces with a structured Filter, and manages the
model and run a process is bound to. Implementations:

  - memory: in-process, used by tests and local development.
  - mlflow: REST client for an MLflow-compatible tracking server.

Tags are always trace-scoped. Writing a tag for a child span writes it on the
span's trace.
*/
package backend
