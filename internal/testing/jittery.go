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

package testing

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Stream is the timed byte stream shape shared by the simulators and the
// ucx transports.
type Stream interface {
	Read(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
}

// JitterConfig configures the behavior of JitteryConnection.
type JitterConfig struct {
	MaxLatencyMs      int
	FragmentMinBytes  int
	StallAfterBytes   int
	StallDuration     time.Duration
	Seed              uint64
	FragmentReads     bool
	USBBoundaryStress bool
}

// DefaultJitterConfig returns a sensible default configuration for testing.
func DefaultJitterConfig() JitterConfig {
	return JitterConfig{
		MaxLatencyMs:     20,
		FragmentReads:    true,
		FragmentMinBytes: 1,
	}
}

// JitteryConnection wraps a Stream and delivers its output the way a
// USB-UART bridge does: late, in random fragments, split at 64-byte USB
// packet boundaries and with an occasional stall. Bytes are never lost;
// whatever is not returned by one Read is kept for the next.
type JitteryConnection struct {
	backend             Stream
	rng                 *rand.Rand
	readBuf             []byte
	config              JitterConfig
	mu                  sync.Mutex
	bytesReadSinceStall int
	stallTriggered      bool
}

// NewJitteryConnection wraps backend with jitter simulation.
func NewJitteryConnection(backend Stream, config JitterConfig) *JitteryConnection {
	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec // Test code, not crypto
	}
	if config.FragmentMinBytes < 1 {
		config.FragmentMinBytes = 1
	}

	return &JitteryConnection{
		backend: backend,
		config:  config,
		rng:     rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // Test code, not crypto
		readBuf: make([]byte, 0, 1024),
	}
}

// Write passes writes through to the backend without modification.
func (j *JitteryConnection) Write(data []byte) (int, error) {
	return j.backend.Write(data) //nolint:wrapcheck // Pass-through wrapper
}

// Read returns a fragment of the backend's output.
func (j *JitteryConnection) Read(buf []byte, timeout time.Duration) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.config.MaxLatencyMs > 0 {
		delay := time.Duration(j.rng.IntN(j.config.MaxLatencyMs+1)) * time.Millisecond
		if timeout >= 0 && delay > timeout {
			delay = timeout
		}
		time.Sleep(delay)
	}

	if len(j.readBuf) == 0 {
		tmp := make([]byte, 1024)
		n, err := j.backend.Read(tmp, timeout)
		if err != nil {
			return 0, err //nolint:wrapcheck // Pass-through wrapper
		}
		if n == 0 {
			return 0, nil
		}
		j.readBuf = append(j.readBuf, tmp[:n]...)
	}

	toReturn := min(len(j.readBuf), len(buf))
	toReturn = j.applyStall(toReturn)
	toReturn = j.applyUSBBoundary(toReturn)

	if j.config.FragmentReads && toReturn > j.config.FragmentMinBytes {
		lo := j.config.FragmentMinBytes
		toReturn = lo + j.rng.IntN(toReturn-lo+1)
	}

	copy(buf, j.readBuf[:toReturn])
	j.readBuf = j.readBuf[toReturn:]
	j.bytesReadSinceStall += toReturn
	return toReturn, nil
}

// applyStall caps a read at StallAfterBytes and sleeps once that many
// bytes have been delivered.
func (j *JitteryConnection) applyStall(n int) int {
	if j.config.StallAfterBytes <= 0 || j.stallTriggered {
		return n
	}
	if j.bytesReadSinceStall >= j.config.StallAfterBytes {
		j.stallTriggered = true
		time.Sleep(j.config.StallDuration)
		return n
	}
	return min(n, j.config.StallAfterBytes-j.bytesReadSinceStall)
}

func (j *JitteryConnection) applyUSBBoundary(n int) int {
	if !j.config.USBBoundaryStress || n == 0 {
		return n
	}
	untilBoundary := 64 - j.bytesReadSinceStall%64
	return min(n, untilBoundary)
}

// ResetStallState resets the stall tracking state.
func (j *JitteryConnection) ResetStallState() {
	j.mu.Lock()
	j.bytesReadSinceStall = 0
	j.stallTriggered = false
	j.mu.Unlock()
}

// Buffered returns how many bytes were read from the backend but not yet
// delivered.
func (j *JitteryConnection) Buffered() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.readBuf)
}
