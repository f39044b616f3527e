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

// Package xmodem sends data to a receiver with XMODEM-CRC framing, in
// 128-byte or 1K blocks. It owns no transport: the caller lends it a Port
// for the duration of a transfer, typically inside ucx.Client.Exclusive.
package xmodem

import (
	"errors"
	"fmt"
	"time"

	"github.com/sigurn/crc16"

	ucx "github.com/ZaparooProject/go-ucx"
)

// Control bytes
const (
	SOH     = 0x01 // Start of a 128-byte block
	STX     = 0x02 // Start of a 1K block
	EOT     = 0x04
	ACK     = 0x06
	NAK     = 0x15
	CAN     = 0x18
	CRCMode = 'C' // Receiver asks for CRC-16 framing
	PadByte = 0x1A
)

// Block sizes
const (
	BlockSize128 = 128
	BlockSize1K  = 1024
)

const (
	headerLen = 3
	crcLen    = 2
)

// Errors
var (
	ErrChecksumModeRejected = errors.New("xmodem: receiver requested checksum mode, only CRC is supported")
	ErrCancelled            = errors.New("xmodem: transfer cancelled by receiver")
	ErrRetriesExhausted     = errors.New("xmodem: block retries exhausted")
	ErrStartTimeout         = errors.New("xmodem: timeout waiting for receiver to start")
	ErrEOTTimeout           = errors.New("xmodem: timeout waiting for EOT acknowledge")
	ErrDataSource           = errors.New("xmodem: data source failed")
	ErrInvalidBlockSize     = errors.New("xmodem: block size must be 128 or 1024")
	ErrNoData               = errors.New("xmodem: nothing to send")
)

var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CRC returns the CRC-16/XMODEM of data (polynomial 0x1021, initial value 0).
func CRC(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Port is the byte stream the transfer runs on. ucx.Transport satisfies it.
type Port interface {
	// Read waits up to timeout for at least one byte and returns 0 and a
	// nil error when none arrived.
	Read(p []byte, timeout time.Duration) (int, error)
	Write(p []byte) (int, error)
}

// DataSource fills buf with the data found at offset. Returning 0 ends the
// transfer early; an error aborts it.
type DataSource func(buf []byte, offset int) (int, error)

// ProgressFunc is called after every acknowledged block.
type ProgressFunc func(total, transferred int)

// Config holds the transfer tunables.
type Config struct {
	// BlockSize is BlockSize128 or BlockSize1K.
	BlockSize int
	// Timeout bounds the wait for the reply to one block or to EOT.
	Timeout time.Duration
	// MaxRetries is how many times one block is sent before giving up.
	MaxRetries int
	// StartTimeout bounds the wait for the receiver's start character.
	StartTimeout time.Duration
	// PollInterval is the longest single read while waiting for a reply.
	PollInterval time.Duration
	// InterBlockDelay is slept after each acknowledged block.
	InterBlockDelay time.Duration
}

// DefaultConfig returns 1K blocks, a 15 s block timeout, 10 attempts per
// block and a 60 s start timeout.
func DefaultConfig() Config {
	return Config{
		BlockSize:    BlockSize1K,
		Timeout:      15 * time.Second,
		MaxRetries:   10,
		StartTimeout: 60 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}
}

// Sender runs one transfer at a time over a borrowed Port.
type Sender struct {
	port   Port
	packet []byte
	rx     [1]byte
	config Config
}

// NewSender validates config and prepares a sender on port. Zero fields
// take their DefaultConfig values.
func NewSender(port Port, config Config) (*Sender, error) {
	if port == nil {
		return nil, errors.New("xmodem: nil port")
	}
	defaults := DefaultConfig()
	if config.BlockSize == 0 {
		config.BlockSize = defaults.BlockSize
	}
	if config.BlockSize != BlockSize128 && config.BlockSize != BlockSize1K {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, config.BlockSize)
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = defaults.MaxRetries
	}
	if config.StartTimeout <= 0 {
		config.StartTimeout = defaults.StartTimeout
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}

	return &Sender{
		port:   port,
		config: config,
		packet: make([]byte, headerLen+config.BlockSize+crcLen),
	}, nil
}

// Config returns the effective configuration.
func (s *Sender) Config() Config {
	return s.config
}

// readByte waits for one reply byte until deadline. ok is false on timeout.
func (s *Sender) readByte(deadline time.Time) (b byte, ok bool, err error) {
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, false, nil
		}
		n, err := s.port.Read(s.rx[:], min(remaining, s.config.PollInterval))
		if err != nil {
			return 0, false, fmt.Errorf("xmodem read: %w", err)
		}
		if n == 1 {
			return s.rx[0], true, nil
		}
	}
}

// WaitForStart waits for the receiver's CRC start character. Other bytes
// are ignored, except NAK (checksum mode, rejected) and CAN.
func (s *Sender) WaitForStart() error {
	ucx.Debugf("xmodem: waiting for receiver")
	deadline := time.Now().Add(s.config.StartTimeout)
	for {
		b, ok, err := s.readByte(deadline)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStartTimeout
		}
		switch b {
		case CRCMode:
			ucx.Debugf("xmodem: receiver ready (CRC mode)")
			return nil
		case NAK:
			return ErrChecksumModeRejected
		case CAN:
			return ErrCancelled
		}
	}
}

// buildPacket frames data as block blockNum, padded to the block size.
func (s *Sender) buildPacket(blockNum byte, data []byte) []byte {
	size := s.config.BlockSize
	pkt := s.packet
	if size == BlockSize1K {
		pkt[0] = STX
	} else {
		pkt[0] = SOH
	}
	pkt[1] = blockNum
	pkt[2] = ^blockNum

	payload := pkt[headerLen : headerLen+size]
	n := copy(payload, data)
	for i := n; i < size; i++ {
		payload[i] = PadByte
	}

	crc := CRC(payload)
	pkt[headerLen+size] = byte(crc >> 8)
	pkt[headerLen+size+1] = byte(crc)
	return pkt
}

// SendBlock sends data as block blockNum and waits for ACK. NAK, a timeout,
// an unexpected reply or an I/O error costs one attempt; CAN aborts.
func (s *Sender) SendBlock(blockNum byte, data []byte) error {
	if len(data) > s.config.BlockSize {
		return fmt.Errorf("xmodem: %d bytes do not fit a %d-byte block", len(data), s.config.BlockSize)
	}
	pkt := s.buildPacket(blockNum, data)

	for attempt := 1; attempt <= s.config.MaxRetries; attempt++ {
		ucx.Debugf("xmodem: block %d attempt %d/%d", blockNum, attempt, s.config.MaxRetries)
		if _, err := s.port.Write(pkt); err != nil {
			ucx.Warnf("xmodem: write of block %d failed: %v", blockNum, err)
			continue
		}

		acked, err := s.awaitBlockReply(blockNum)
		if err != nil {
			return err
		}
		if acked {
			return nil
		}
	}

	return fmt.Errorf("%w: block %d after %d attempts", ErrRetriesExhausted, blockNum, s.config.MaxRetries)
}

// awaitBlockReply reports whether the block was acknowledged. It only
// returns an error for CAN.
func (s *Sender) awaitBlockReply(blockNum byte) (bool, error) {
	deadline := time.Now().Add(s.config.Timeout)
	for {
		b, ok, err := s.readByte(deadline)
		if err != nil {
			ucx.Warnf("xmodem: block %d: %v", blockNum, err)
			return false, nil
		}
		if !ok {
			ucx.Warnf("xmodem: timeout waiting for ACK on block %d", blockNum)
			return false, nil
		}
		switch b {
		case ACK:
			return true, nil
		case NAK:
			ucx.Debugf("xmodem: block %d NAKed", blockNum)
			return false, nil
		case CAN:
			return false, ErrCancelled
		default:
			ucx.Debugf("xmodem: ignoring 0x%02X while waiting for block %d reply", b, blockNum)
		}
	}
}

// SendEOT ends the transfer and waits for the final ACK. A NAK is logged
// and the wait goes on; EOT is not sent again.
func (s *Sender) SendEOT() error {
	if _, err := s.port.Write([]byte{EOT}); err != nil {
		return fmt.Errorf("xmodem: write EOT: %w", err)
	}

	deadline := time.Now().Add(s.config.Timeout)
	for {
		b, ok, err := s.readByte(deadline)
		if err != nil {
			return err
		}
		if !ok {
			return ErrEOTTimeout
		}
		switch b {
		case ACK:
			ucx.Debugf("xmodem: EOT acknowledged")
			return nil
		case CAN:
			return ErrCancelled
		case NAK:
			ucx.Warnf("xmodem: receiver NAKed EOT")
		default:
			ucx.Debugf("xmodem: ignoring 0x%02X while waiting for EOT reply", b)
		}
	}
}

// Send runs a whole transfer of total bytes read from src: the start
// handshake, one block per chunk (block numbers start at 1 and wrap
// modulo 256) and EOT. progress may be nil.
func (s *Sender) Send(total int, src DataSource, progress ProgressFunc) error {
	if total <= 0 {
		return ErrNoData
	}
	if src == nil {
		return fmt.Errorf("%w: nil source", ErrDataSource)
	}

	ucx.Debugf("xmodem: sending %d bytes in %d-byte blocks", total, s.config.BlockSize)
	if err := s.WaitForStart(); err != nil {
		return err
	}

	buf := make([]byte, s.config.BlockSize)
	blockNum := byte(1)
	offset := 0
	for offset < total {
		want := min(s.config.BlockSize, total-offset)
		n, err := src(buf[:want], offset)
		if err != nil {
			return fmt.Errorf("%w at offset %d: %w", ErrDataSource, offset, err)
		}
		if n == 0 {
			ucx.Debugf("xmodem: source ended at %d of %d bytes", offset, total)
			break
		}
		if n > want {
			return fmt.Errorf("%w: returned %d bytes for a %d-byte request", ErrDataSource, n, want)
		}

		if err := s.SendBlock(blockNum, buf[:n]); err != nil {
			return fmt.Errorf("transfer failed at offset %d: %w", offset, err)
		}
		offset += n
		blockNum++
		if progress != nil {
			progress(total, offset)
		}
		if s.config.InterBlockDelay > 0 {
			time.Sleep(s.config.InterBlockDelay)
		}
	}

	return s.SendEOT()
}
