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

// Package sc16is7xx drives the UART of an NXP SC16IS7xx bridge over I2C or
// SPI, which is how u-connectXpress modules are reached from hosts without
// a free serial port.
package sc16is7xx

import (
	"errors"
	"fmt"
	"time"
)

// Registers, as seen with LCR[7] = 0.
const (
	RegRHR       = 0x00 // receive holding register (read)
	RegTHR       = 0x00 // transmit holding register (write)
	RegIER       = 0x01
	RegFCR       = 0x02 // FIFO control (write)
	RegIIR       = 0x02 // interrupt identification (read)
	RegLCR       = 0x03
	RegMCR       = 0x04
	RegLSR       = 0x05
	RegSPR       = 0x07 // scratch pad
	RegTXLVL     = 0x08
	RegRXLVL     = 0x09
	RegIOControl = 0x0E
	RegEFCR      = 0x0F
)

// Divisor latch registers, visible while LCR[7] = 1.
const (
	RegDLL = 0x00
	RegDLH = 0x01
)

// Register bits
const (
	LCRWordLen8     = 0x03
	LCRDivisorLatch = 0x80

	FCREnable  = 0x01
	FCRResetRX = 0x02
	FCRResetTX = 0x04

	LSRDataReady = 0x01
	LSROverrun   = 0x02

	IOControlReset = 0x08
)

// FIFOSize is the depth of each FIFO.
const FIFOSize = 64

// DefaultCrystal is the oscillator fitted to most breakout boards.
const DefaultCrystal = 14_745_600

// spiRead marks a register read in the SPI command byte.
const spiRead = 0x80

// Errors
var (
	ErrBaudRate     = errors.New("sc16is7xx: baud rate not reachable with this crystal")
	ErrNoChip       = errors.New("sc16is7xx: no bridge answering")
	ErrWriteTimeout = errors.New("sc16is7xx: transmit FIFO stayed full")
)

// Bus moves bytes to and from the chip. periph's *i2c.Dev and spi.Conn
// both implement it.
type Bus interface {
	Tx(w, r []byte) error
}

// Config describes how the chip is wired.
type Config struct {
	// Crystal is the oscillator frequency in Hz.
	Crystal int
	// Channel selects channel A (0) or B (1) on dual-UART parts.
	Channel byte
	// PollInterval is the pause between FIFO level checks while waiting.
	PollInterval time.Duration
	// WriteTimeout bounds how long Write waits for FIFO space.
	WriteTimeout time.Duration
	// SPI selects SPI framing of register accesses instead of I2C.
	SPI bool
}

// DefaultConfig returns channel A, I2C framing and DefaultCrystal.
func DefaultConfig() Config {
	return Config{
		Crystal:      DefaultCrystal,
		PollInterval: time.Millisecond,
		WriteTimeout: time.Second,
	}
}

// Bridge is one UART channel of the chip.
type Bridge struct {
	bus    Bus
	config Config
	lcr    byte
}

// New wraps bus. Zero fields of config take their DefaultConfig values.
func New(bus Bus, config Config) *Bridge {
	defaults := DefaultConfig()
	if config.Crystal <= 0 {
		config.Crystal = defaults.Crystal
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	return &Bridge{
		bus:    bus,
		config: config,
		lcr:    LCRWordLen8,
	}
}

// Divisor returns the baud rate divisor for crystal and baud, with the
// prescaler at 1.
func Divisor(crystal, baud int) (uint16, error) {
	if baud <= 0 || crystal <= 0 {
		return 0, fmt.Errorf("%w: %d baud", ErrBaudRate, baud)
	}
	div := (crystal + 8*baud) / (16 * baud)
	if div < 1 || div > 0xFFFF {
		return 0, fmt.Errorf("%w: %d baud from %d Hz", ErrBaudRate, baud, crystal)
	}
	return uint16(div), nil
}

// address builds the register address byte.
func (b *Bridge) address(reg byte, read bool) byte {
	addr := reg<<3 | (b.config.Channel&1)<<1
	if b.config.SPI && read {
		addr |= spiRead
	}
	return addr
}

// ReadRegisters reads len(p) bytes starting at reg. Reading RHR repeatedly
// pops the receive FIFO.
func (b *Bridge) ReadRegisters(reg byte, p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if b.config.SPI {
		w := make([]byte, len(p)+1)
		r := make([]byte, len(p)+1)
		w[0] = b.address(reg, true)
		if err := b.bus.Tx(w, r); err != nil {
			return fmt.Errorf("sc16is7xx: read register 0x%02X: %w", reg, err)
		}
		copy(p, r[1:])
		return nil
	}
	if err := b.bus.Tx([]byte{b.address(reg, true)}, p); err != nil {
		return fmt.Errorf("sc16is7xx: read register 0x%02X: %w", reg, err)
	}
	return nil
}

// WriteRegisters writes p starting at reg. Writing THR repeatedly fills
// the transmit FIFO.
func (b *Bridge) WriteRegisters(reg byte, p []byte) error {
	w := make([]byte, 0, len(p)+1)
	w = append(w, b.address(reg, false))
	w = append(w, p...)
	if err := b.bus.Tx(w, nil); err != nil {
		return fmt.Errorf("sc16is7xx: write register 0x%02X: %w", reg, err)
	}
	return nil
}

// ReadRegister reads a single register.
func (b *Bridge) ReadRegister(reg byte) (byte, error) {
	var v [1]byte
	err := b.ReadRegisters(reg, v[:])
	return v[0], err
}

// WriteRegister writes a single register.
func (b *Bridge) WriteRegister(reg, v byte) error {
	return b.WriteRegisters(reg, []byte{v})
}

// Init checks that the chip answers, then sets 8N1 at baud with both
// FIFOs enabled and empty.
func (b *Bridge) Init(baud int) error {
	const scratch = 0x5A
	if err := b.WriteRegister(RegSPR, scratch); err != nil {
		return err
	}
	v, err := b.ReadRegister(RegSPR)
	if err != nil {
		return err
	}
	if v != scratch {
		return fmt.Errorf("%w: scratch pad read back 0x%02X", ErrNoChip, v)
	}

	if err := b.SetBaudRate(baud); err != nil {
		return err
	}
	return b.WriteRegister(RegFCR, FCREnable|FCRResetRX|FCRResetTX)
}

// SetBaudRate programs the divisor latch.
func (b *Bridge) SetBaudRate(baud int) error {
	div, err := Divisor(b.config.Crystal, baud)
	if err != nil {
		return err
	}
	if err := b.WriteRegister(RegLCR, b.lcr|LCRDivisorLatch); err != nil {
		return err
	}
	if err := b.WriteRegisters(RegDLL, []byte{byte(div)}); err != nil {
		return err
	}
	if err := b.WriteRegisters(RegDLH, []byte{byte(div >> 8)}); err != nil {
		return err
	}
	return b.WriteRegister(RegLCR, b.lcr)
}

// RxLevel returns how many bytes wait in the receive FIFO.
func (b *Bridge) RxLevel() (int, error) {
	v, err := b.ReadRegister(RegRXLVL)
	return int(v), err
}

// TxLevel returns how much space is left in the transmit FIFO.
func (b *Bridge) TxLevel() (int, error) {
	v, err := b.ReadRegister(RegTXLVL)
	return int(v), err
}

// Read waits up to timeout for received bytes. A zero timeout polls and a
// negative one waits until data arrives. Running out of time returns
// (0, nil).
func (b *Bridge) Read(p []byte, timeout time.Duration) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}
	for {
		level, err := b.RxLevel()
		if err != nil {
			return 0, err
		}
		if level > 0 {
			n := min(level, len(p), FIFOSize)
			if err := b.ReadRegisters(RegRHR, p[:n]); err != nil {
				return 0, err
			}
			return n, nil
		}

		wait := b.config.PollInterval
		switch {
		case timeout == 0:
			return 0, nil
		case timeout > 0:
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return 0, nil
			}
			wait = min(wait, remaining)
		}
		time.Sleep(wait)
	}
}

// Write queues p in the transmit FIFO as space frees up.
func (b *Bridge) Write(p []byte) (int, error) {
	written := 0
	deadline := time.Now().Add(b.config.WriteTimeout)
	for written < len(p) {
		space, err := b.TxLevel()
		if err != nil {
			return written, err
		}
		if space == 0 {
			if !time.Now().Before(deadline) {
				return written, ErrWriteTimeout
			}
			time.Sleep(b.config.PollInterval)
			continue
		}
		n := min(space, len(p)-written)
		if err := b.WriteRegisters(RegTHR, p[written:written+n]); err != nil {
			return written, err
		}
		written += n
		deadline = time.Now().Add(b.config.WriteTimeout)
	}
	return written, nil
}

// ResetFIFOs discards everything in both FIFOs.
func (b *Bridge) ResetFIFOs() error {
	return b.WriteRegister(RegFCR, FCREnable|FCRResetRX|FCRResetTX)
}
