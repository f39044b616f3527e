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

// Package i2c reaches a u-connectXpress module through an SC16IS7xx
// I2C-to-UART bridge.
package i2c

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/internal/sc16is7xx"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

const (
	// DefaultAddress is the 7-bit bridge address with A0 and A1 tied high.
	DefaultAddress = 0x48

	// Max clock frequency (400 kHz).
	maxClockFreq = 400 * physic.KiloHertz
)

// Option configures New.
type Option func(*options)

type options struct {
	baudRate int
	crystal  int
	channel  byte
}

// WithBaudRate sets the UART speed between bridge and module.
func WithBaudRate(baud int) Option {
	return func(o *options) {
		o.baudRate = baud
	}
}

// WithCrystal sets the bridge oscillator frequency in Hz.
func WithCrystal(hz int) Option {
	return func(o *options) {
		o.crystal = hz
	}
}

// WithChannel selects UART channel B (1) on dual-channel bridges.
func WithChannel(channel byte) Option {
	return func(o *options) {
		o.channel = channel
	}
}

// Transport implements ucx.Transport over an I2C bridge.
type Transport struct {
	bridge   *sc16is7xx.Bridge
	bus      io.Closer // Held so Close() can release the OS file descriptor
	busName  string
	baudRate int
	mu       sync.Mutex
	closed   bool
}

// ParsePath splits a detection path like "/dev/i2c-1:0x48" into bus and
// address. A bare bus name gets DefaultAddress.
func ParsePath(path string) (bus string, addr uint16, err error) {
	bus, suffix, found := strings.Cut(path, ":")
	if !found {
		return bus, DefaultAddress, nil
	}
	v, err := strconv.ParseUint(suffix, 0, 7)
	if err != nil {
		return "", 0, fmt.Errorf("%w: I2C address %q", ucx.ErrInvalidParameter, suffix)
	}
	return bus, uint16(v), nil
}

// New opens the bus named in path and initializes the bridge.
func New(path string, opts ...Option) (*Transport, error) {
	o := options{baudRate: ucx.DefaultBaudRate, crystal: sc16is7xx.DefaultCrystal}
	for _, opt := range opts {
		opt(&o)
	}

	busName, addr, err := ParsePath(path)
	if err != nil {
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}
	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	t, err := newTransport(&i2c.Dev{Addr: addr, Bus: bus}, bus, path, o)
	if err != nil {
		_ = bus.Close()
		return nil, err
	}
	return t, nil
}

func newTransport(dev sc16is7xx.Bus, closer io.Closer, name string, o options) (*Transport, error) {
	bridge := sc16is7xx.New(dev, sc16is7xx.Config{Crystal: o.crystal, Channel: o.channel})
	if err := bridge.Init(o.baudRate); err != nil {
		return nil, fmt.Errorf("%w: I2C bridge at %s: %w", ucx.ErrTransportNotReady, name, err)
	}
	ucx.Debugf("i2c: bridge at %s ready, %d baud", name, o.baudRate)
	return &Transport{
		bridge:   bridge,
		bus:      closer,
		busName:  name,
		baudRate: o.baudRate,
	}, nil
}

// Read polls the receive FIFO until data arrives or timeout passes.
func (t *Transport) Read(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ucx.NewTransportClosedError("read", t.busName)
	}
	n, err := t.bridge.Read(p, timeout)
	if err != nil {
		return n, t.wrapError("read", err)
	}
	return n, nil
}

// Write fills the transmit FIFO with p.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ucx.NewTransportClosedError("write", t.busName)
	}
	n, err := t.bridge.Write(p)
	if err != nil {
		return n, t.wrapError("write", err)
	}
	return n, nil
}

// SetBaudRate changes the bridge UART speed.
func (t *Transport) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ucx.NewTransportClosedError("set baud rate", t.busName)
	}
	if err := t.bridge.SetBaudRate(baud); err != nil {
		if errors.Is(err, sc16is7xx.ErrBaudRate) {
			return fmt.Errorf("%w: %w", ucx.ErrInvalidParameter, err)
		}
		return t.wrapError("set baud rate", err)
	}
	t.baudRate = baud
	return nil
}

// BaudRate returns the bridge UART speed.
func (t *Transport) BaudRate() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.baudRate
}

// Close closes the transport connection and releases the I2C bus file descriptor.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	if t.bus != nil {
		if err := t.bus.Close(); err != nil {
			return fmt.Errorf("failed to close I2C bus: %w", err)
		}
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() ucx.TransportType {
	return ucx.TransportI2C
}

func (t *Transport) wrapError(op string, err error) error {
	if errors.Is(err, sc16is7xx.ErrWriteTimeout) {
		return ucx.NewTransportError(op, t.busName, err, ucx.ErrorTypeTimeout)
	}
	return ucx.NewTransportError(op, t.busName, err, ucx.ErrorTypeTransient)
}
