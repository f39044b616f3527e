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

// Package spi reaches a u-connectXpress module through an SC16IS7xx
// SPI-to-UART bridge.
package spi

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/internal/sc16is7xx"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

const (
	// DefaultFrequency is safe for every SC16IS7xx variant.
	DefaultFrequency = 4 * physic.MegaHertz

	mode = spi.Mode0
)

// Option configures New.
type Option func(*options)

type options struct {
	frequency physic.Frequency
	baudRate  int
	crystal   int
	channel   byte
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

// WithFrequency sets the SPI clock.
func WithFrequency(f physic.Frequency) Option {
	return func(o *options) {
		o.frequency = f
	}
}

// Transport implements ucx.Transport over an SPI bridge.
type Transport struct {
	bridge   *sc16is7xx.Bridge
	port     io.Closer
	portName string
	baudRate int
	mu       sync.Mutex
	closed   bool
}

// New opens the SPI port and initializes the bridge.
func New(portName string, opts ...Option) (*Transport, error) {
	o := options{
		frequency: DefaultFrequency,
		baudRate:  ucx.DefaultBaudRate,
		crystal:   sc16is7xx.DefaultCrystal,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("failed to open SPI port %s: %w", portName, err)
	}

	conn, err := port.Connect(o.frequency, mode, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("failed to connect SPI: %w", err)
	}

	t, err := newTransport(conn, port, portName, o)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	return t, nil
}

func newTransport(conn sc16is7xx.Bus, closer io.Closer, name string, o options) (*Transport, error) {
	bridge := sc16is7xx.New(conn, sc16is7xx.Config{Crystal: o.crystal, Channel: o.channel, SPI: true})
	if err := bridge.Init(o.baudRate); err != nil {
		return nil, fmt.Errorf("%w: SPI bridge at %s: %w", ucx.ErrTransportNotReady, name, err)
	}
	ucx.Debugf("spi: bridge at %s ready, %d baud", name, o.baudRate)
	return &Transport{
		bridge:   bridge,
		port:     closer,
		portName: name,
		baudRate: o.baudRate,
	}, nil
}

// Read polls the receive FIFO until data arrives or timeout passes.
func (t *Transport) Read(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ucx.NewTransportClosedError("read", t.portName)
	}
	n, err := t.bridge.Read(p, timeout)
	if err != nil {
		return n, ucx.NewTransportError("read", t.portName, err, ucx.ErrorTypeTransient)
	}
	return n, nil
}

// Write fills the transmit FIFO with p.
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, ucx.NewTransportClosedError("write", t.portName)
	}
	n, err := t.bridge.Write(p)
	switch {
	case errors.Is(err, sc16is7xx.ErrWriteTimeout):
		return n, ucx.NewTransportError("write", t.portName, err, ucx.ErrorTypeTimeout)
	case err != nil:
		return n, ucx.NewTransportError("write", t.portName, err, ucx.ErrorTypeTransient)
	}
	return n, nil
}

// SetBaudRate changes the bridge UART speed.
func (t *Transport) SetBaudRate(baud int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ucx.NewTransportClosedError("set baud rate", t.portName)
	}
	if err := t.bridge.SetBaudRate(baud); err != nil {
		if errors.Is(err, sc16is7xx.ErrBaudRate) {
			return fmt.Errorf("%w: %w", ucx.ErrInvalidParameter, err)
		}
		return ucx.NewTransportError("set baud rate", t.portName, err, ucx.ErrorTypeTransient)
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
			return fmt.Errorf("SPI close failed: %w", err)
		}
	}
	return nil
}

// Type returns the transport type
func (*Transport) Type() ucx.TransportType {
	return ucx.TransportSPI
}
