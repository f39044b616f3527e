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
	"time"

	"github.com/sigurn/crc16"
)

// XMODEM control bytes as seen by the receiver.
const (
	xmSOH = 0x01
	xmSTX = 0x02
	xmEOT = 0x04
	xmACK = 0x06
	xmNAK = 0x15
	xmCAN = 0x18
)

var errReceiverClosed = errors.New("xmodem receiver closed")

var xmodemTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// XMODEMReceiverConfig scripts the receiver's misbehavior.
type XMODEMReceiverConfig struct {
	// NAKAttempts NAKs the first n attempts of the given block, counted
	// from 1 in transfer order.
	NAKAttempts map[int]int
	// CancelAtBlock answers CAN instead of ACK to that block. Zero never
	// cancels.
	CancelAtBlock int
	// StartChar is sent once when the receiver is created. Zero means 'C'.
	StartChar byte
	// NoStart suppresses the start character.
	NoStart bool
	// NAKAlways rejects every block.
	NAKAlways bool
	// NAKEOT answers the first EOT with NAK.
	NAKEOT bool
	// SilentEOT never acknowledges EOT.
	SilentEOT bool
}

// XMODEMReceiver is a CRC-mode XMODEM receiver. It checks block numbers,
// their complement and the CRC of every packet, and collects the payload.
type XMODEMReceiver struct {
	notify     chan struct{}
	attempts   map[int]int
	config     XMODEMReceiverConfig
	out        []byte
	packet     []byte
	data       []byte
	blockSizes []int
	mu         sync.Mutex
	need       int
	badPackets int
	expected   byte
	eotSeen    int
	complete   bool
	closed     bool
}

// NewXMODEMReceiver creates a receiver that is ready to start.
func NewXMODEMReceiver(config XMODEMReceiverConfig) *XMODEMReceiver {
	r := &XMODEMReceiver{
		config:   config,
		attempts: make(map[int]int),
		notify:   make(chan struct{}, 1),
		expected: 1,
	}
	if !config.NoStart {
		start := config.StartChar
		if start == 0 {
			start = 'C'
		}
		r.out = append(r.out, start)
	}
	return r
}

// Write consumes bytes from the sender.
func (r *XMODEMReceiver) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return 0, errReceiverClosed
	}

	for _, b := range p {
		if r.need > 0 {
			r.packet = append(r.packet, b)
			r.need--
			if r.need == 0 {
				r.handlePacket()
			}
			continue
		}

		switch b {
		case xmSOH:
			r.packet = append(r.packet[:0], b)
			r.need = 2 + 128 + 2
		case xmSTX:
			r.packet = append(r.packet[:0], b)
			r.need = 2 + 1024 + 2
		case xmEOT:
			r.eotSeen++
			switch {
			case r.config.NAKEOT && r.eotSeen == 1:
				r.reply(xmNAK)
			case r.config.SilentEOT:
			default:
				r.complete = true
				r.reply(xmACK)
			}
		}
	}
	return len(p), nil
}

func (r *XMODEMReceiver) handlePacket() {
	size := len(r.packet) - 5
	num, inv := r.packet[1], r.packet[2]
	payload := r.packet[3 : 3+size]
	crc := uint16(r.packet[3+size])<<8 | uint16(r.packet[4+size])

	if num^inv != 0xFF || crc16.Checksum(payload, xmodemTable) != crc {
		r.badPackets++
		r.reply(xmNAK)
		return
	}

	if num == r.expected-1 {
		// The ACK for the previous block was lost; accept the repeat.
		r.reply(xmACK)
		return
	}
	if num != r.expected {
		r.badPackets++
		r.reply(xmNAK)
		return
	}

	seq := len(r.blockSizes) + 1
	r.attempts[seq]++
	switch {
	case r.config.CancelAtBlock == seq:
		r.reply(xmCAN)
		return
	case r.config.NAKAlways, r.attempts[seq] <= r.config.NAKAttempts[seq]:
		r.reply(xmNAK)
		return
	}

	r.data = append(r.data, payload...)
	r.blockSizes = append(r.blockSizes, size)
	r.expected++
	r.reply(xmACK)
}

func (r *XMODEMReceiver) reply(b byte) {
	r.out = append(r.out, b)
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// Read returns reply bytes, waiting up to timeout for one. A zero timeout
// polls and a negative one blocks.
func (r *XMODEMReceiver) Read(p []byte, timeout time.Duration) (int, error) {
	return waitRead(&r.mu, r.notify, timeout, func() (int, bool, error) {
		if r.closed {
			return 0, true, errReceiverClosed
		}
		if len(r.out) == 0 {
			return 0, false, nil
		}
		n := copy(p, r.out)
		r.out = r.out[n:]
		return n, true, nil
	})
}

// Close makes further reads and writes fail.
func (r *XMODEMReceiver) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	select {
	case r.notify <- struct{}{}:
	default:
	}
	return nil
}

// Data returns the received payload including the padding of the last block.
func (r *XMODEMReceiver) Data() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]byte(nil), r.data...)
}

// BlockSizes returns the size of every accepted block in order.
func (r *XMODEMReceiver) BlockSizes() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.blockSizes...)
}

// Attempts returns how many well-formed packets arrived for block seq.
func (r *XMODEMReceiver) Attempts(seq int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[seq]
}

// BadPackets returns how many packets failed the number or CRC check.
func (r *XMODEMReceiver) BadPackets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.badPackets
}

// EOTCount returns how many EOT bytes were received.
func (r *XMODEMReceiver) EOTCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eotSeen
}

// Complete reports whether EOT was acknowledged.
func (r *XMODEMReceiver) Complete() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.complete
}

// waitRead runs try under mu until it reports done, waking on notify and
// giving up after timeout.
func waitRead(mu *sync.Mutex, notify <-chan struct{}, timeout time.Duration,
	try func() (int, bool, error),
) (int, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		mu.Lock()
		n, done, err := try()
		mu.Unlock()
		if done {
			return n, err
		}
		if timeout == 0 {
			return 0, nil
		}
		select {
		case <-notify:
		case <-deadline:
			return 0, nil
		}
	}
}
