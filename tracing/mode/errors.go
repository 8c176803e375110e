/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package mode

import "fmt"

// ConfigurationError reports an environment that cannot support the
// requested mode. It is fatal at initialization.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tracing configuration: %s: %v", e.Reason, e.Err)
	}
	return "tracing configuration: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
