/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package fieldpath resolves dotted paths such as "messages.1.content" against
the inputs and outputs recorded on a span.

Paths are used to render a partial view of a call (for example only the
question out of a request payload) without re-fetching the full span:

	v, err := fieldpath.Extract(map[string]any{
		"messages": []any{
			map[string]any{"content": "hi"},
			map[string]any{"content": "hello there"},
		},
	}, "messages.1.content")
	// v == "hello there"
*/
package fieldpath
