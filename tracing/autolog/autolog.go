/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package autolog is the registry of framework integrations that trace their
// own calls once enabled.
//
// Integrations register themselves from an init function, the way
// database/sql drivers do:
//
//	func init() {
//		autolog.Register("openai", func(context.Context) error { return nil })
//	}
//
// Mode resolution enables the integrations a caller names. Instrumented code
// then asks Enabled before emitting its own child spans.
package autolog

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/chainguard-dev/clog"
)

// EnableFunc prepares an integration. A returned error leaves it disabled.
type EnableFunc func(ctx context.Context) error

var (
	mu           sync.RWMutex
	integrations = map[string]EnableFunc{}
	enabled      = map[string]bool{}
)

// Register makes an integration available under name. Registering the same
// name twice panics.
func Register(name string, fn EnableFunc) {
	mu.Lock()
	defer mu.Unlock()
	if fn == nil {
		panic("autolog: Register enable func is nil")
	}
	if _, dup := integrations[name]; dup {
		panic(fmt.Sprintf("autolog: Register called twice for %q", name))
	}
	integrations[name] = fn
}

// Registered returns the sorted names of all registered integrations.
func Registered() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(integrations))
	for name := range integrations {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Enable turns on each named integration and returns the ones that are now
// enabled. Unknown and failing integrations are logged and skipped.
func Enable(ctx context.Context, names ...string) []string {
	log := clog.FromContext(ctx)
	var out []string
	for _, name := range names {
		mu.RLock()
		fn, ok := integrations[name]
		already := enabled[name]
		mu.RUnlock()

		switch {
		case !ok:
			log.With("integration", name).Warn("Unknown autolog integration, skipping")
			continue
		case already:
			out = append(out, name)
			continue
		}

		if err := fn(ctx); err != nil {
			log.With("integration", name).With("error", err.Error()).Warn("Failed to enable autolog integration")
			continue
		}
		mu.Lock()
		enabled[name] = true
		mu.Unlock()
		out = append(out, name)
	}
	return out
}

// Enabled reports whether the named integration has been enabled.
func Enabled(name string) bool {
	mu.RLock()
	defer mu.RUnlock()
	return enabled[name]
}

// Reset disables every integration. Registrations are kept.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	clear(enabled)
}
