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
	"errors"
	"sync"
)

// SC16IS7xx register numbers used by the bridge simulator.
const (
	bridgeRegTHR   = 0x00
	bridgeRegDLH   = 0x01
	bridgeRegFCR   = 0x02
	bridgeRegLCR   = 0x03
	bridgeRegTXLVL = 0x08
	bridgeRegRXLVL = 0x09

	bridgeLCRLatch = 0x80
	bridgeFCRRxRst = 0x02
	bridgeFIFOSize = 64
)

var errEmptyTransfer = errors.New("virtual bridge: empty transfer")

// VirtualBridge simulates the register interface of an SC16IS7xx
// I2C/SPI-to-UART bridge with a module on its UART side. Tx accepts the
// transfers periph's *i2c.Dev and spi.Conn would put on the wire.
type VirtualBridge struct {
	module  Stream
	fail    error
	rxFIFO  []byte
	regs    [16]byte
	mu      sync.Mutex
	txBytes int
	dll     byte
	dlh     byte
	spi     bool
	txFull  bool
}

// NewVirtualBridge puts module behind a simulated bridge using SPI or I2C
// framing.
func NewVirtualBridge(module Stream, spi bool) *VirtualBridge {
	return &VirtualBridge{module: module, spi: spi}
}

// Tx performs one bus transaction.
func (v *VirtualBridge) Tx(w, r []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.fail != nil {
		return v.fail
	}
	if len(w) == 0 {
		return errEmptyTransfer
	}

	addr := w[0]
	reg := (addr >> 3) & 0x0F
	if v.spi {
		if addr&0x80 != 0 {
			if len(r) > 0 {
				r[0] = 0
				v.readRegister(reg, r[1:])
			}
			return nil
		}
		return v.writeRegister(reg, w[1:])
	}

	if len(r) > 0 {
		v.readRegister(reg, r)
		return nil
	}
	return v.writeRegister(reg, w[1:])
}

func (v *VirtualBridge) latched() bool {
	return v.regs[bridgeRegLCR]&bridgeLCRLatch != 0
}

func (v *VirtualBridge) readRegister(reg byte, p []byte) {
	for i := range p {
		switch {
		case reg == bridgeRegTHR && v.latched():
			p[i] = v.dll
		case reg == bridgeRegDLH && v.latched():
			p[i] = v.dlh
		case reg == bridgeRegTHR:
			if len(v.rxFIFO) == 0 {
				p[i] = 0
				continue
			}
			p[i] = v.rxFIFO[0]
			v.rxFIFO = v.rxFIFO[1:]
		case reg == bridgeRegRXLVL:
			v.fillFIFO()
			p[i] = byte(len(v.rxFIFO))
		case reg == bridgeRegTXLVL:
			if v.txFull {
				p[i] = 0
			} else {
				p[i] = bridgeFIFOSize
			}
		default:
			p[i] = v.regs[reg]
		}
	}
}

// fillFIFO moves module output into the receive FIFO.
func (v *VirtualBridge) fillFIFO() {
	space := bridgeFIFOSize - len(v.rxFIFO)
	if space <= 0 {
		return
	}
	buf := make([]byte, space)
	n, err := v.module.Read(buf, 0)
	if err != nil || n == 0 {
		return
	}
	v.rxFIFO = append(v.rxFIFO, buf[:n]...)
}

func (v *VirtualBridge) writeRegister(reg byte, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch {
	case reg == bridgeRegTHR && v.latched():
		v.dll = data[len(data)-1]
	case reg == bridgeRegDLH && v.latched():
		v.dlh = data[len(data)-1]
	case reg == bridgeRegTHR:
		if len(data) > bridgeFIFOSize {
			return errors.New("virtual bridge: transmit FIFO overflow")
		}
		v.txBytes += len(data)
		if _, err := v.module.Write(data); err != nil {
			return err
		}
	case reg == bridgeRegFCR:
		if data[len(data)-1]&bridgeFCRRxRst != 0 {
			v.rxFIFO = v.rxFIFO[:0]
		}
		v.regs[reg] = data[len(data)-1]
	default:
		v.regs[reg] = data[len(data)-1]
	}
	return nil
}

// Divisor returns the programmed baud rate divisor.
func (v *VirtualBridge) Divisor() uint16 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return uint16(v.dlh)<<8 | uint16(v.dll)
}

// Register returns the last value written to reg.
func (v *VirtualBridge) Register(reg byte) byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.regs[reg&0x0F]
}

// TxBytes returns how many bytes were pushed into the transmit FIFO.
func (v *VirtualBridge) TxBytes() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.txBytes
}

// SetTxFull makes the transmit FIFO report no free space.
func (v *VirtualBridge) SetTxFull(full bool) {
	v.mu.Lock()
	v.txFull = full
	v.mu.Unlock()
}

// SetFailure makes every transaction fail with err; nil clears it.
func (v *VirtualBridge) SetFailure(err error) {
	v.mu.Lock()
	v.fail = err
	v.mu.Unlock()
}
