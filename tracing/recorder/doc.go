/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package recorder opens and closes traces and spans against a backend.

A root trace is opened with OpenRootTrace. The returned context carries the
open span so that OpenChildSpan can nest under it. When no trace is active,
OpenChildSpan returns a nil *Handle and every method accepting a nil handle is
a no-op:

	ctx, h := rec.OpenRootTrace(ctx, "answer", inputs)
	out, err := recorder.Run(ctx, rec, h, func(ctx context.Context) (string, error) {
		return answer(ctx, q)
	})

Backend failures never reach the caller. Each backend call is retried once
with backoff, and a final failure is logged and counted. A trace whose root
cannot be opened runs untraced.

Every open span is mirrored as an OpenTelemetry span, so instrumented calls
also appear in OTLP pipelines.
*/
package recorder
