// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ucx

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures retries of operations built on top of the command
// engine. The engine itself never retries a command.
type RetryConfig struct {
	// OnRetry, if set, is called after a failed attempt that will be
	// retried, with the 1-based attempt number and the wait before the
	// next one.
	OnRetry func(attempt int, err error, wait time.Duration)
	// MaxAttempts bounds the number of calls (0 = call once, no retry).
	MaxAttempts int
	// InitialBackoff is the wait after the first failure.
	InitialBackoff time.Duration
	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
	// BackoffMultiplier grows the wait after every failure.
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the wait at random.
	Jitter float64
	// RetryTimeout bounds all attempts together (0 = only ctx).
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    10 * time.Millisecond,
		MaxBackoff:        1 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// ConnectionRetryConfig returns the retry configuration used when probing a
// freshly opened module.
func ConnectionRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    ConnectionInitialBackoff,
		MaxBackoff:        ConnectionMaxBackoff,
		BackoffMultiplier: ConnectionBackoffMultiplier,
		Jitter:            ConnectionJitter,
		RetryTimeout:      ConnectionRetryTimeout,
	}
}

// backoff produces the waits between attempts.
type backoff struct {
	cfg  *RetryConfig
	next time.Duration
}

func newBackoff(cfg *RetryConfig) *backoff {
	return &backoff{cfg: cfg, next: cfg.InitialBackoff}
}

// wait returns the jittered wait before the next attempt and grows the
// base wait for the one after.
func (b *backoff) wait() time.Duration {
	d := withJitter(b.next, b.cfg.Jitter)
	grown := time.Duration(float64(b.next) * b.cfg.BackoffMultiplier)
	b.next = min(grown, b.cfg.MaxBackoff)
	return d
}

func withJitter(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	spread := int64(float64(d) * factor)
	if spread <= 0 {
		return d
	}
	return d + time.Duration(rand.Int64N(spread+1))
}

// RetryableFunc is a function that can be retried
type RetryableFunc func() error

// RetryWithConfig calls fn until it succeeds, returns an error IsRetryable
// rejects, or the attempts or time run out. The last error of fn is
// returned; if no attempt ran, the context error is.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn RetryableFunc) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	if config.MaxAttempts <= 0 {
		return fn()
	}

	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	b := newBackoff(config)
	var lastErr error
	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry context cancelled: %w", ctx.Err())
		}

		lastErr = fn()
		if lastErr == nil || !IsRetryable(lastErr) || attempt >= config.MaxAttempts {
			return lastErr
		}

		wait := b.wait()
		Debugf("attempt %d/%d failed, next in %v: %v", attempt, config.MaxAttempts, wait, lastErr)
		if config.OnRetry != nil {
			config.OnRetry(attempt, lastErr, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return lastErr
		case <-timer.C:
		}
	}
}

// ExecRetry runs Exec under RetryWithConfig. Only transient failures such
// as timeouts and I/O errors are retried; an ERROR status is final. Use it
// for idempotent commands only.
func (c *Client) ExecRetry(ctx context.Context, cfg *RetryConfig, cmd string, params ...Param) error {
	return RetryWithConfig(ctx, cfg, func() error {
		return c.Exec(cmd, params...)
	})
}
