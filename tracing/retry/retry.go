/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry retries backend calls with exponential backoff and jitter.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"chainguard.dev/evaltrace/tracing/backend"
	"github.com/chainguard-dev/clog"
	"github.com/zoobzio/clockz"
)

// Config configures retry behavior for backend calls.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	// 0 means do not retry at all.
	MaxRetries int
	// BaseBackoff is the wait before the first retry.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
	// MaxJitter is the maximum random jitter added to backoff.
	MaxJitter time.Duration
	// Clock is used for waiting between attempts (default: clockz.RealClock).
	Clock clockz.Clock
}

// Validate checks that the retry configuration has valid values.
func (c Config) Validate() error {
	if c.MaxRetries < 0 {
		return errors.New("max retries cannot be negative")
	}
	if c.BaseBackoff < 0 {
		return errors.New("base backoff cannot be negative")
	}
	if c.MaxBackoff < 0 {
		return errors.New("max backoff cannot be negative")
	}
	if c.MaxJitter < 0 {
		return errors.New("max jitter cannot be negative")
	}
	return nil
}

// DefaultConfig retries a failed backend call exactly once. Tracing sits on
// the request path, so waits stay short.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  1,
		BaseBackoff: 100 * time.Millisecond,
		MaxBackoff:  time.Second,
		MaxJitter:   50 * time.Millisecond,
	}
}

// Transient reports whether err is worth retrying. Cancellation and missing
// objects are not. Errors that classify themselves with a Temporary method
// are taken at their word.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, backend.ErrNotFound) {
		return false
	}
	var t interface{ Temporary() bool }
	if errors.As(err, &t) {
		return t.Temporary()
	}
	return true
}

// Do executes fn with exponential backoff retry. It only retries on errors
// that isRetryable accepts.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

	clock := cfg.Clock
	if clock == nil {
		clock = clockz.RealClock
	}

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, lastErr = fn()
		if lastErr == nil {
			return result, nil
		}

		if !isRetryable(lastErr) {
			return result, lastErr
		}

		if attempt >= cfg.MaxRetries {
			break
		}

		// BaseBackoff * 2^attempt, capped at MaxBackoff
		backoff := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff)

		var jitter time.Duration
		if cfg.MaxJitter > 0 {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(cfg.MaxJitter)))
			if err == nil {
				jitter = time.Duration(n.Int64())
			}
		}

		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", backoff+jitter).
			With("error", lastErr.Error()).
			Warn("Backend call failed, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-clock.After(backoff + jitter):
		}
	}

	if cfg.MaxRetries == 0 {
		return result, lastErr
	}
	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
}

// Call is Do for operations with no result.
func Call(ctx context.Context, cfg Config, operation string, fn func() error) error {
	_, err := Do(ctx, cfg, operation, Transient, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}
