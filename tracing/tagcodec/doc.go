/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package tagcodec owns every tag key and tag value the engine writes to a trace.

Tracing backends only store string tags, so evaluation results and metadata
are encoded here and nowhere else:

  - Evaluation values are JSON. Booleans are the JSON literals true and false,
    which keeps backend filters such as tag.`domino.is_eval` = 'true' working.
  - Every evaluation label produces two tags: the encoded value under
    domino.evaluation_result.<label> and the marker "true" under
    domino.evaluation_label.<label>.
  - Engine bookkeeping lives under domino.internal.

Decoding is the exact inverse of encoding. Integers decode as int64 and
floating point numbers as float64; an integral float keeps a trailing ".0" on
the wire so it does not come back as an integer.
*/
package tagcodec
