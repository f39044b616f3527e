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
	"strconv"
	"time"

	"github.com/ZaparooProject/go-ucx/internal/frame"
)

// rxEvent is what the receive loop stopped for.
type rxEvent int

const (
	// rxIdle means no more input arrived within the read window.
	rxIdle rxEvent = iota
	// rxStatus means the command status line was received.
	rxStatus
	// rxResponse means the expected response line (and its binary
	// payload, if any) was received.
	rxResponse
)

// lineClass is the classification of one complete text line.
type lineClass int

const (
	lineIgnored lineClass = iota
	lineStatus
	lineResponse
	lineURC
	lineUnexpected
)

type binState int

const (
	binFlush binState = iota
	binResponse
	binURC
)

// binaryRx tracks an inline binary payload while it is received. It lives
// across reads so a payload can arrive in any number of pieces.
type binaryRx struct {
	dst        []byte
	urcLine    string
	header     frame.HeaderReader
	state      binState
	pos        int
	remaining  int
	active     bool
	headerDone bool
}

func (b *binaryRx) begin() {
	b.active = true
	b.headerDone = false
	b.header.Reset()
	b.state = binFlush
	b.dst = nil
	b.pos = 0
	b.remaining = 0
	b.urcLine = ""
}

func (b *binaryRx) reset() {
	b.active = false
	b.headerDone = false
	b.header.Reset()
	b.state = binFlush
	b.dst = nil
	b.urcLine = ""
}

// receive runs the receive state machine until a status or response line
// completes, or until no input arrives within the read window. With a zero
// deadline every read waits the configured read timeout.
func (c *Client) receive(deadline time.Time) rxEvent {
	for {
		if c.bin.active {
			ev, progressed := c.receiveBinary(deadline)
			if ev != rxIdle || !progressed {
				return ev
			}
			continue
		}

		if c.inPos == c.inLen {
			n, ok := c.read(c.inbuf, deadline)
			if !ok {
				return rxIdle
			}
			c.inPos, c.inLen = 0, n
		}

		b := c.inbuf[c.inPos]
		c.inPos++
		if ev := c.parseIncomingByte(b); ev != rxIdle {
			return ev
		}
	}
}

// read performs one transport read bounded by the read timeout and the
// deadline. It reports false when nothing was read.
func (c *Client) read(p []byte, deadline time.Time) (int, bool) {
	wait := c.config.ReadTimeout
	if !deadline.IsZero() {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return 0, false
		}
		if remaining < wait {
			wait = remaining
		}
	}

	n, err := c.transport.Read(p, wait)
	if err != nil {
		c.recordIOError(err)
		return 0, false
	}
	return n, n > 0
}

func (c *Client) parseIncomingByte(b byte) rxEvent {
	switch {
	case b == frame.SOH:
		c.bin.begin()
	case b == frame.CR || b == frame.LF:
		class := c.classifyLine(c.rx.Bytes())
		if class == lineURC {
			c.handleTextURC(c.rx.Bytes())
		}
		c.rx.Reset()
		switch class {
		case lineStatus:
			return rxStatus
		case lineResponse:
			return rxResponse
		}
	case frame.IsPrintable(b):
		if !c.rx.Append(b) {
			Warnf("%s receive line exceeded %d bytes, discarded", c.prefix, c.rx.Cap())
		}
	}
	return rxIdle
}

// classifyLine decides what a complete line is. Status and response lines
// are only recognized while a command is executing.
func (c *Client) classifyLine(line []byte) lineClass {
	if len(line) == 0 {
		return lineIgnored
	}

	Debugf("%s RX %s", c.prefix, line)
	if c.trace != nil && c.executing.Load() {
		c.trace.RecordRX(line, "")
	}

	if c.executing.Load() {
		switch {
		case c.expected != "" && bytes.HasPrefix(line, []byte(c.expected)):
			c.rspParams = string(line[len(c.expected):])
			c.rspPrefixed = true
			return lineResponse
		case string(line) == frame.StatusOK:
			c.setStatus(nil)
			return lineStatus
		case bytes.HasPrefix(line, []byte(frame.StatusError)):
			if c.parseErrorLine(line) {
				return lineStatus
			}
			Warnf("%s unexpected data: %s", c.prefix, line)
			return lineUnexpected
		case !frame.IsURCMarker(line[0]) && !bytes.HasPrefix(line, []byte(frame.CommandPrefix)):
			c.rspParams = string(line)
			c.rspPrefixed = false
			return lineResponse
		}
	}

	if frame.IsURCMarker(line[0]) {
		return lineURC
	}
	Warnf("%s unexpected data: %s", c.prefix, line)
	return lineUnexpected
}

// parseErrorLine handles ERROR and ERROR:<code>. It reports false for any
// other line that merely starts with ERROR.
func (c *Client) parseErrorLine(line []byte) bool {
	if len(line) == len(frame.StatusError) {
		Debugf("%s command failed", c.prefix)
		c.setStatus(&StatusError{Code: CodeError})
		return true
	}
	if !bytes.HasPrefix(line, []byte(frame.ErrorCodePrefix)) {
		return false
	}

	digits := line[len(frame.ErrorCodePrefix):]
	if len(digits) == 0 || digits[0] < '0' || digits[0] > '9' {
		return false
	}
	code, err := strconv.Atoi(string(digits))
	if err != nil {
		return false
	}
	Debugf("%s command failed with error code %d", c.prefix, code)
	c.setStatus(&StatusError{Code: code, Extended: true})
	return true
}

func (c *Client) handleTextURC(line []byte) {
	if c.queue == nil {
		c.urc.dispatch(string(line), nil)
		return
	}
	if c.queue.reserve(line) {
		c.queue.commit(0)
		return
	}
	Warnf("%s URC queue full, dropping %s", c.prefix, line)
}

// setupBinary picks the destination of a payload once its length is known.
// The line received before SOH decides who the payload belongs to.
func (c *Client) setupBinary(length int) {
	b := &c.bin
	b.headerDone = true
	b.remaining = length
	b.pos = 0
	b.state = binFlush
	b.dst = nil

	line := c.rx.Bytes()
	Debugf("%s RX [%d bytes]", c.prefix, length)

	switch c.classifyLine(line) {
	case lineResponse:
		b.state = binResponse
		b.dst = c.rspBin
		c.rspBinLen = 0
	case lineURC:
		c.setupBinaryURC(line, length)
	default:
		Warnf("%s unexpected binary data (%d bytes)", c.prefix, length)
	}
	c.rx.Reset()
}

func (c *Client) setupBinaryURC(line []byte, length int) {
	b := &c.bin
	if c.queue != nil {
		if !c.queue.reserve(line) {
			Warnf("%s URC queue full, dropping %s", c.prefix, line)
			return
		}
		space := c.queue.payloadSpace()
		if len(space) > length {
			b.state = binURC
			b.dst = space
			return
		}
		c.queue.abort()
		Warnf("%s not enough space for URC binary data (%d bytes)", c.prefix, length)
		return
	}

	space := c.rx.Spare()
	if len(space) > length {
		b.state = binURC
		b.dst = space
		b.urcLine = string(line)
		return
	}
	Warnf("%s not enough space for URC binary data (%d bytes)", c.prefix, length)
}

// receiveBinary consumes header and payload bytes. progressed is false
// when no input arrived; the state is kept for the next call.
func (c *Client) receiveBinary(deadline time.Time) (ev rxEvent, progressed bool) {
	b := &c.bin

	if !b.headerDone {
		if c.inPos == c.inLen {
			n, ok := c.read(c.inbuf, deadline)
			if !ok {
				return rxIdle, false
			}
			c.inPos, c.inLen = 0, n
		}
		n, done := b.header.Feed(c.inbuf[c.inPos:c.inLen])
		c.inPos += n
		if !done {
			return rxIdle, true
		}
		c.setupBinary(b.header.Length())
	}

	for b.remaining > 0 {
		space := len(b.dst) - b.pos

		if c.inPos < c.inLen {
			take := min(c.inLen-c.inPos, b.remaining)
			if space > 0 {
				take = copy(b.dst[b.pos:], c.inbuf[c.inPos:c.inPos+min(take, space)])
				b.pos += take
			}
			c.inPos += take
			b.remaining -= take
			continue
		}

		var n int
		var ok bool
		if space > 0 {
			n, ok = c.read(b.dst[b.pos:b.pos+min(space, b.remaining)], deadline)
			b.pos += n
		} else {
			n, ok = c.read(c.flushBuf[:min(len(c.flushBuf), b.remaining)], deadline)
		}
		if !ok {
			return rxIdle, false
		}
		b.remaining -= n
	}

	return c.finishBinary(), true
}

func (c *Client) finishBinary() rxEvent {
	b := &c.bin
	state, dst, pos, urcLine := b.state, b.dst, b.pos, b.urcLine
	b.reset()

	switch state {
	case binResponse:
		c.rspBinLen = pos
		if c.trace != nil {
			c.trace.RecordRX(dst[:pos], "binary")
		}
		return rxResponse
	case binURC:
		if c.queue != nil {
			c.queue.commit(pos)
		} else {
			c.urc.dispatch(urcLine, dst[:pos])
		}
	case binFlush:
	}
	return rxIdle
}
