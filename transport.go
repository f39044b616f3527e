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
	"bytes"
	"time"

	"github.com/ZaparooProject/go-ucx/internal/syncutil"
)

// Transport is the byte stream to a u-connectXpress module. It can be
// implemented by UART, or by I2C and SPI through a UART bridge.
type Transport interface {
	// Read waits up to timeout for at least one byte. A zero timeout polls
	// and a negative timeout blocks. Running out of time is not an error:
	// Read returns 0 and a nil error.
	Read(p []byte, timeout time.Duration) (int, error)

	// Write sends p completely or returns an error.
	Write(p []byte) (int, error)

	// Close closes the transport connection
	Close() error

	// Type returns the transport type
	Type() TransportType
}

// BaudRateSetter is implemented by transports whose line speed can change
// after the module has been told to switch.
type BaudRateSetter interface {
	SetBaudRate(baud int) error
}

// TransportType represents the type of transport
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportI2C represents an I2C-to-UART bridge.
	TransportI2C TransportType = "i2c"
	// TransportSPI represents an SPI-to-UART bridge.
	TransportSPI TransportType = "spi"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// MockTransport provides a mock implementation of Transport for testing.
// Complete command lines written to it are matched against the configured
// responses, and the matching reply is queued for reading.
type MockTransport struct {
	responses map[string][]byte
	callCount map[string]int
	errorMap  map[string]error
	onWrite   func(data []byte)
	notify    chan struct{}
	readErr   error
	rx        []byte
	written   []byte
	pending   []byte
	readChunk int
	mu        syncutil.Mutex
	closed    bool
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		responses: make(map[string][]byte),
		callCount: make(map[string]int),
		errorMap:  make(map[string]error),
		notify:    make(chan struct{}, 1),
	}
}

// Read implements Transport interface
func (m *MockTransport) Read(p []byte, timeout time.Duration) (int, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return 0, ErrTransportClosed
		}
		if m.readErr != nil {
			err := m.readErr
			m.mu.Unlock()
			return 0, err
		}
		if len(m.rx) > 0 {
			limit := len(p)
			if m.readChunk > 0 && m.readChunk < limit {
				limit = m.readChunk
			}
			n := copy(p[:limit], m.rx)
			m.rx = m.rx[n:]
			m.mu.Unlock()
			return n, nil
		}
		m.mu.Unlock()

		if timeout == 0 {
			return 0, nil
		}
		select {
		case <-m.notify:
		case <-deadline:
			return 0, nil
		}
	}
}

// Write implements Transport interface
func (m *MockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrTransportClosed
	}
	m.written = append(m.written, p...)
	m.pending = append(m.pending, p...)

	for {
		idx := bytes.IndexByte(m.pending, '\r')
		if idx < 0 {
			break
		}
		line := string(m.pending[:idx])
		m.pending = m.pending[idx+1:]
		m.callCount[line]++
		if err, ok := m.errorMap[line]; ok {
			m.mu.Unlock()
			return 0, err
		}
		if reply, ok := m.responses[line]; ok {
			m.rx = append(m.rx, reply...)
			m.signal()
		}
	}
	hook := m.onWrite
	m.mu.Unlock()

	if hook != nil {
		hook(append([]byte(nil), p...))
	}
	return len(p), nil
}

// Close implements Transport interface
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
	return nil
}

// Type implements Transport interface
func (*MockTransport) Type() TransportType {
	return TransportMock
}

func (m *MockTransport) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// Test helper methods

// SetResponse configures the bytes returned after the given command line
// (without the trailing CR) is written.
func (m *MockTransport) SetResponse(line string, reply []byte) {
	m.mu.Lock()
	m.responses[line] = reply
	m.mu.Unlock()
}

// SetError configures an error to be returned when the given line is written.
func (m *MockTransport) SetError(line string, err error) {
	m.mu.Lock()
	m.errorMap[line] = err
	m.mu.Unlock()
}

// SetReadError makes every following Read fail with err. Pass nil to clear.
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	m.readErr = err
	m.mu.Unlock()
	m.signal()
}

// SetReadChunk limits how many bytes a single Read returns. Zero removes
// the limit.
func (m *MockTransport) SetReadChunk(n int) {
	m.mu.Lock()
	m.readChunk = n
	m.mu.Unlock()
}

// OnWrite installs a hook that sees a copy of every write.
func (m *MockTransport) OnWrite(hook func(data []byte)) {
	m.mu.Lock()
	m.onWrite = hook
	m.mu.Unlock()
}

// Inject queues unsolicited bytes for reading.
func (m *MockTransport) Inject(data []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, data...)
	m.mu.Unlock()
	m.signal()
}

// Written returns a copy of everything written so far.
func (m *MockTransport) Written() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.written...)
}

// Pending returns how many injected or reply bytes have not been read yet.
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rx)
}

// GetCallCount returns how many times a command line was written
func (m *MockTransport) GetCallCount(line string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount[line]
}

// Reset clears recorded writes, queued data and call counts
func (m *MockTransport) Reset() {
	m.mu.Lock()
	m.callCount = make(map[string]int)
	m.written = nil
	m.pending = nil
	m.rx = nil
	m.closed = false
	m.mu.Unlock()
}
