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

// Package uart provides a serial transport for u-connectXpress modules.
package uart

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"go.bug.st/serial"
)

// DefaultBaudRate is the speed modules use after reset.
const DefaultBaudRate = ucx.DefaultBaudRate

// minPollTimeout stands in for a zero (poll) timeout. Serial drivers
// treat a zero read timeout differently across platforms.
const minPollTimeout = time.Millisecond

// Option configures New.
type Option func(*Transport)

// WithBaudRate opens the port at baud instead of DefaultBaudRate.
func WithBaudRate(baud int) Option {
	return func(t *Transport) {
		t.baudRate = baud
	}
}

// Transport implements ucx.Transport over a serial port at 8N1.
type Transport struct {
	port        serial.Port
	portName    string
	baudRate    int
	readTimeout time.Duration
	mu          sync.Mutex
	readMu      sync.Mutex
	timeoutSet  bool
	closed      bool
}

func lineMode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

// New opens portName.
func New(portName string, opts ...Option) (*Transport, error) {
	t := &Transport{portName: portName, baudRate: DefaultBaudRate}
	for _, opt := range opts {
		opt(t)
	}
	if t.baudRate <= 0 {
		return nil, fmt.Errorf("%w: baud rate %d", ucx.ErrInvalidParameter, t.baudRate)
	}

	port, err := serial.Open(portName, lineMode(t.baudRate))
	if err != nil {
		return nil, fmt.Errorf("failed to open UART port %s: %w", portName, err)
	}
	t.port = port
	ucx.Debugf("uart: opened %s at %d baud", portName, t.baudRate)
	return t, nil
}

// Read waits up to timeout for data. A zero timeout polls, a negative one
// blocks until data arrives or the port fails.
func (t *Transport) Read(p []byte, timeout time.Duration) (int, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	if t.isClosed() {
		return 0, ucx.NewTransportClosedError("read", t.portName)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if err := t.setReadTimeout(timeout); err != nil {
		return 0, err
	}

	n, err := t.port.Read(p)
	if err != nil {
		return n, t.wrapError("read", err)
	}
	return n, nil
}

// setReadTimeout passes timeout to the driver when it changed since the
// previous read.
func (t *Transport) setReadTimeout(timeout time.Duration) error {
	switch {
	case timeout < 0:
		timeout = serial.NoTimeout
	case timeout < minPollTimeout:
		timeout = minPollTimeout
	}
	if t.timeoutSet && t.readTimeout == timeout {
		return nil
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return t.wrapError("set read timeout", err)
	}
	t.readTimeout = timeout
	t.timeoutSet = true
	return nil
}

// Write sends p completely and waits until it has left the port.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ucx.NewTransportClosedError("write", t.portName)
	}

	written := 0
	for written < len(p) {
		n, err := t.port.Write(p[written:])
		if err != nil {
			return written, t.wrapError("write", err)
		}
		if n == 0 {
			return written, ucx.NewTransportWriteError("write", t.portName)
		}
		written += n
	}

	if err := t.drainWithRetry("write"); err != nil {
		return written, err
	}
	return written, nil
}

// SetBaudRate changes the host side line speed. The module has to be told
// first, with AT+USYST or AT+USYFWUS.
func (t *Transport) SetBaudRate(baud int) error {
	if baud <= 0 {
		return fmt.Errorf("%w: baud rate %d", ucx.ErrInvalidParameter, baud)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ucx.NewTransportClosedError("set baud rate", t.portName)
	}
	if err := t.port.SetMode(lineMode(baud)); err != nil {
		return t.wrapError("set baud rate", err)
	}
	ucx.Debugf("uart: %s now at %d baud", t.portName, baud)
	t.baudRate = baud
	return nil
}

// BaudRate returns the current host side line speed.
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baudRate
}

// Drain waits until all written data has been transmitted.
func (t *Transport) Drain() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ucx.NewTransportClosedError("drain", t.portName)
	}
	return t.drainWithRetry("drain")
}

// ResetInput discards received bytes that have not been read yet.
func (t *Transport) ResetInput() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ucx.NewTransportClosedError("reset input", t.portName)
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return t.wrapError("reset input", err)
	}
	return nil
}

// Close closes the transport connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.port != nil {
		if err := t.port.Close(); err != nil {
			return fmt.Errorf("UART close failed: %w", err)
		}
	}
	return nil
}

// PortName returns the device path the transport was opened on.
func (t *Transport) PortName() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() ucx.TransportType {
	return ucx.TransportUART
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// wrapError classifies a driver error. A closed port or a vanished device
// is permanent; anything else may be retried.
func (t *Transport) wrapError(op string, err error) error {
	errType := ucx.ErrorTypeTransient
	var portErr *serial.PortError
	if (errors.As(err, &portErr) && portErr.Code() == serial.PortClosed) || ucx.IsFatal(err) {
		errType = ucx.ErrorTypePermanent
	}
	return ucx.NewTransportError(op, t.portName, err, errType)
}

// isInterruptedSystemCall checks if an error is caused by an interrupted system call
func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drainWithRetry performs port drain with retry logic for interrupted
// system calls. Called with mu held.
func (t *Transport) drainWithRetry(operation string) error {
	const maxRetries = 3
	baseDelay := 2 * time.Millisecond

	for attempt := range maxRetries {
		err := t.port.Drain()
		if err == nil {
			return nil
		}
		if isInterruptedSystemCall(err) && attempt < maxRetries-1 {
			time.Sleep(baseDelay << attempt)
			continue
		}
		return t.wrapError("UART "+operation+" drain", err)
	}
	return fmt.Errorf("UART %s drain failed after %d retries", operation, maxRetries)
}
