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
	"fmt"
	"time"
)

// Command is an open command span. It holds the client's command lock
// from Begin until End; every Command must be ended exactly once.
type Command struct {
	c    *Client
	name string
	done bool
}

// Begin sends a command and opens its span. It blocks while another
// command is in flight. Parameter encoding errors are reported by End,
// and nothing is sent in that case.
func (c *Client) Begin(cmd string, params ...Param) *Command {
	c.mu.Lock()
	c.executing.Store(true)
	c.statusSet = false
	c.status = nil
	c.expected = ""
	c.rspParams = ""
	c.rspBin = nil
	c.rspBinLen = 0
	if c.trace != nil {
		c.trace.Clear()
	}
	c.cmdStart = time.Now()

	wire, text, binLen, err := encodeCommand(cmd, params)
	if err != nil {
		Warnf("%s %s not sent: %v", c.prefix, cmd, err)
		c.setStatus(err)
		return &Command{c: c, name: cmd}
	}

	Debugf("%s TX %s", c.prefix, text)
	if binLen > 0 {
		Debugf("%s TX [%d bytes]", c.prefix, binLen)
	}
	if c.trace != nil {
		c.trace.RecordTX(wire, cmd)
	}

	if _, err := c.transport.Write(wire); err != nil {
		c.storeIOError(err)
		Warnf("%s write failed: %v", c.prefix, err)
		c.setStatus(fmt.Errorf("%w: %w", ErrIO, err))
	}
	return &Command{c: c, name: cmd}
}

// Name returns the command text the span was opened with.
func (cmd *Command) Name() string {
	return cmd.name
}

func (c *Client) deadline() time.Time {
	return c.cmdStart.Add(time.Duration(c.cmdTimeout.Load()))
}

// ResponseLine waits for the next response line starting with prefix and
// returns its parameters with the prefix removed. An empty prefix accepts
// any line that is not a status, URC or echo. A binary payload following
// the line is stored in bin (excess bytes are dropped) and its stored
// length returned.
//
// ErrCommandTimeout is returned when the command window runs out; the
// status is left open for End. ErrNoResponse is returned when the status
// line arrives first.
func (cmd *Command) ResponseLine(prefix string, bin []byte) (string, int, error) {
	if cmd.done {
		return "", 0, ErrCommandNotActive
	}
	c := cmd.c
	c.expected = prefix
	c.rspBin = bin
	c.rspBinLen = 0
	c.rspParams = ""

	deadline := c.deadline()
	for !c.statusSet {
		if c.receive(deadline) == rxResponse {
			return c.rspParams, c.rspBinLen, nil
		}
		if !c.statusSet && !time.Now().Before(deadline) {
			Warnf("%s %s response timeout", c.prefix, cmd.name)
			if c.trace != nil {
				c.trace.RecordTimeout("waiting for " + prefix)
			}
			return "", 0, c.wrapTrace(ErrCommandTimeout)
		}
	}

	if c.status != nil {
		return "", 0, c.wrapTrace(fmt.Errorf("%w: %w", ErrNoResponse, c.status))
	}
	return "", 0, c.wrapTrace(ErrNoResponse)
}

// Prefixed reports whether the last line returned by ResponseLine began
// with the expected prefix, which was then removed, rather than being a
// bare response line.
func (cmd *Command) Prefixed() bool {
	return cmd.c.rspPrefixed
}

// ResponseParams waits for a response line like ResponseLine and decodes
// its parameters into dests. It returns how many fields were decoded.
func (cmd *Command) ResponseParams(prefix string, bin []byte, dests ...Dest) (int, error) {
	line, _, err := cmd.ResponseLine(prefix, bin)
	if err != nil {
		return 0, err
	}
	return DecodeParams(line, dests...)
}

// End waits for the status line, closes the span and releases the command
// lock. URCs queued during the command are dispatched afterwards. The
// command timeout reverts to the last permanent value.
func (cmd *Command) End() error {
	if cmd.done {
		return ErrCommandNotActive
	}
	cmd.done = true
	c := cmd.c

	deadline := c.deadline()
	for !c.statusSet {
		c.receive(deadline)
		if !c.statusSet && !time.Now().Before(deadline) {
			Warnf("%s %s command timeout", c.prefix, cmd.name)
			if c.trace != nil {
				c.trace.RecordTimeout("waiting for status")
			}
			c.setStatus(ErrCommandTimeout)
		}
	}

	status := c.wrapTrace(c.status)
	c.cmdTimeout.Store(c.stickyTimeout.Load())
	c.expected = ""
	c.rspBin = nil
	c.executing.Store(false)
	c.mu.Unlock()

	c.ProcessURCs()
	return status
}

// Exec sends a command with parameters and waits for its status.
func (c *Client) Exec(cmd string, params ...Param) error {
	return c.Begin(cmd, params...).End()
}

// ExecSimple sends a command without parameters and waits for its status.
func (c *Client) ExecSimple(cmd string) error {
	return c.Exec(cmd)
}
