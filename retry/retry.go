/*
Copyright 2026 Megashkola, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package retry provides bounded exponential backoff for external API calls.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/chainguard-dev/clog"
)

// Config controls backoff behavior for retried operations.
type Config struct {
	// MaxRetries is the number of retry attempts after the initial call.
	// 0 means do not retry at all.
	MaxRetries int
	// BaseBackoff is the initial backoff duration.
	BaseBackoff time.Duration
	// MaxBackoff caps the exponential backoff.
	MaxBackoff time.Duration
	// MaxJitter is the maximum random jitter added to each backoff.
	MaxJitter time.Duration
}

// Validate checks that the configuration has sane values.
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

// DefaultConfig returns a configuration suitable for transient GitHub and
// LLM API errors. The budget is deliberately small: per-issue failures are
// recorded and surfaced rather than retried indefinitely.
func DefaultConfig() Config {
	return Config{
		MaxRetries:  2,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  10 * time.Second,
		MaxJitter:   250 * time.Millisecond,
	}
}

// Do executes fn with exponential backoff, retrying only errors that
// isRetryable classifies as transient. The operation name is used for
// logging and error wrapping.
func Do[T any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T, error)) (T, error) {
	var result T
	var lastErr error

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

		backoff := min(cfg.BaseBackoff<<attempt, cfg.MaxBackoff)
		var jitter time.Duration
		if cfg.MaxJitter > 0 {
			jitter = rand.N(cfg.MaxJitter)
		}

		clog.FromContext(ctx).With("operation", operation).
			With("attempt", attempt+1).
			With("max_retries", cfg.MaxRetries).
			With("backoff", backoff+jitter).
			With("error", lastErr.Error()).
			Warn("Transient error, retrying")

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(backoff + jitter):
		}
	}

	return result, fmt.Errorf("%s failed after %d retries: %w", operation, cfg.MaxRetries, lastErr)
}

// Do2 is Do for functions returning a second value alongside the result,
// such as GitHub API calls that return the HTTP response.
func Do2[T1, T2 any](ctx context.Context, cfg Config, operation string, isRetryable func(error) bool, fn func() (T1, T2, error)) (T1, T2, error) {
	type pair struct {
		first  T1
		second T2
	}
	p, err := Do(ctx, cfg, operation, isRetryable, func() (pair, error) {
		first, second, err := fn()
		return pair{first, second}, err
	})
	return p.first, p.second, err
}
