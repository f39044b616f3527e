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

import "time"

const (
	// DefaultCommandTimeout bounds a command span from send to status line.
	DefaultCommandTimeout = 10 * time.Second
	// DefaultReadTimeout is the longest single transport read while waiting.
	DefaultReadTimeout = 10 * time.Millisecond
	// DefaultRxBufferSize is the receive line buffer capacity in bytes.
	DefaultRxBufferSize = 1024
	// DefaultURCQueueSlots is the URC queue depth used by WithURCQueue(0, ...).
	DefaultURCQueueSlots = 8
	// DefaultTraceEntries is the trace depth used by WithTrace(0).
	DefaultTraceEntries = 32
	// DefaultBaudRate is the UART speed of a module after reset.
	DefaultBaudRate = 115200
)

const (
	// DefaultConnectionRetries is the number of probe attempts after opening a port.
	DefaultConnectionRetries = 3
	// ConnectionInitialBackoff is the initial delay between probe attempts.
	ConnectionInitialBackoff = 100 * time.Millisecond
	// ConnectionMaxBackoff is the maximum delay between probe attempts.
	ConnectionMaxBackoff = 500 * time.Millisecond
	// ConnectionBackoffMultiplier is the exponential backoff multiplier.
	ConnectionBackoffMultiplier = 2.0
	// ConnectionJitter is the random jitter factor (0.0-1.0).
	ConnectionJitter = 0.1
	// ConnectionRetryTimeout is the overall timeout for all probe attempts.
	ConnectionRetryTimeout = 10 * time.Second
	// ProbeTimeout is the command timeout of a single AT probe.
	ProbeTimeout = 1 * time.Second
)
