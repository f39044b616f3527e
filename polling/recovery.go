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

package polling

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/internal/syncutil"
)

// ClientRecoverer brings a module back after host sleep or a fatal
// transport error.
type ClientRecoverer interface {
	// AttemptRecovery returns nil once the module answers again.
	AttemptRecovery(ctx context.Context) error

	// Client returns the current client; it changes after a reopen.
	Client() *ucx.Client
}

// ReopenFunc opens a fresh client, typically through ucx.Connect.
type ReopenFunc func(ctx context.Context) (*ucx.Client, error)

// DefaultRecoverer tries two tiers on each attempt: an AT probe on the
// current client, which is enough when the port survived, then a full
// reopen through reopenFunc.
type DefaultRecoverer struct {
	client      *ucx.Client
	reopenFunc  ReopenFunc
	backoff     time.Duration
	maxAttempts int
	mu          syncutil.Mutex
}

// NewDefaultRecoverer creates a recoverer for client. With a nil
// reopenFunc only the probe is attempted.
func NewDefaultRecoverer(
	client *ucx.Client,
	reopenFunc ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		client:      client,
		reopenFunc:  reopenFunc,
		backoff:     backoff,
		maxAttempts: maxAttempts,
	}
}

// AttemptRecovery implements ClientRecoverer.
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var lastErr error
	for attempt := range r.maxAttempts {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.backoff):
			}
		}

		err := r.client.Probe(ctx, ucx.ConnectionRetryConfig(1))
		if err == nil {
			return nil
		}
		lastErr = err

		if r.reopenFunc == nil {
			continue
		}
		_ = r.client.Close()
		fresh, reopenErr := r.reopenFunc(ctx)
		if reopenErr == nil {
			ucx.Debugf("module reopened after %d recovery attempts", attempt+1)
			r.client = fresh
			return nil
		}
		lastErr = reopenErr
	}
	return fmt.Errorf("recovery failed after %d attempts: %w", r.maxAttempts, lastErr)
}

// Client returns the current client.
func (r *DefaultRecoverer) Client() *ucx.Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client
}
