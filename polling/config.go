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
	"time"

	"github.com/ZaparooProject/go-ucx"
)

// Config holds the session settings. Zero fields take the DefaultConfig
// value when the session is created.
type Config struct {
	// PollInterval is the period of HandleRx calls while idle.
	PollInterval time.Duration
	// PauseAckTimeout bounds how long PauseWithAck waits for the receive
	// loop to park.
	PauseAckTimeout time.Duration
	// SleepThreshold is how far a tick may be late before the gap is taken
	// as a host sleep. A module on a USB bridge is often reset or
	// re-enumerated across a suspend. Negative disables the check.
	SleepThreshold time.Duration
	// RecoveryAttempts and RecoveryBackoff shape recoverers made by
	// NewRecoverer.
	RecoveryAttempts int
	RecoveryBackoff  time.Duration
}

// DefaultConfig returns the default polling configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval:     20 * time.Millisecond,
		PauseAckTimeout:  500 * time.Millisecond,
		SleepThreshold:   2 * time.Second,
		RecoveryAttempts: 3,
		RecoveryBackoff:  500 * time.Millisecond,
	}
}

// resolved returns a copy of c with unset fields defaulted.
func (c *Config) resolved() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.PauseAckTimeout <= 0 {
		out.PauseAckTimeout = def.PauseAckTimeout
	}
	if out.SleepThreshold == 0 {
		out.SleepThreshold = def.SleepThreshold
	}
	if out.RecoveryAttempts <= 0 {
		out.RecoveryAttempts = def.RecoveryAttempts
	}
	if out.RecoveryBackoff <= 0 {
		out.RecoveryBackoff = def.RecoveryBackoff
	}
	return &out
}

// sleptThrough reports whether gap, the time since the previous tick,
// exceeds the poll interval by more than the sleep threshold.
func (c *Config) sleptThrough(gap time.Duration) bool {
	if c.SleepThreshold < 0 {
		return false
	}
	return gap > c.PollInterval+c.SleepThreshold
}

// NewRecoverer returns a DefaultRecoverer for client using the recovery
// settings of c.
func (c *Config) NewRecoverer(client *ucx.Client, reopen ReopenFunc) *DefaultRecoverer {
	r := c.resolved()
	return NewDefaultRecoverer(client, reopen, r.RecoveryBackoff, r.RecoveryAttempts)
}
