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
	"encoding/binary"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ErrModuleClosed is returned by a closed VirtualModule.
var ErrModuleClosed = errors.New("virtual module closed")

// ModuleHandler answers one command. params is the text after '=', bin
// the inline binary payload if the command carried one. The returned text
// is sent verbatim, so it must include line endings and the status line.
// Handlers run with the module locked and must not call its methods.
type ModuleHandler func(params string, bin []byte) string

// VirtualModule simulates a u-connectXpress module at the byte level. It
// parses command lines (including inline binary payloads), answers them
// from a handler table and can emit URCs at any time. After a firmware
// update command it hands the byte stream to an attached XMODEM receiver.
type VirtualModule struct {
	handlers   map[string]ModuleHandler
	updateOn   map[string]bool
	notify     chan struct{}
	bootloader *XMODEMReceiver
	binData    []byte
	out        []byte
	line       []byte
	commands   []string
	mu         sync.Mutex
	baudRate   int
	binHdr     [2]byte
	binHdrN    int
	binLeft    int
	inBinary   bool
	echo       bool
	updating   bool
	closed     bool
}

// NewVirtualModule creates a module that answers AT, ATE0/ATE1, AT+GMI,
// AT+GMM, AT+GMR, AT+USYST and AT+USYFWUS. Anything else gets ERROR.
func NewVirtualModule() *VirtualModule {
	m := &VirtualModule{
		handlers: make(map[string]ModuleHandler),
		updateOn: map[string]bool{"AT+USYFWUS": true},
		notify:   make(chan struct{}, 1),
		baudRate: 115200,
	}
	m.Respond("AT", OK)
	m.Respond("AT+GMI", "u-blox\r\n"+OK)
	m.Respond("AT+GMM", "NORA-W36\r\n"+OK)
	m.Respond("AT+GMR", "\"3.1.0-150\"\r\n"+OK)
	m.handlers["ATE0"] = func(string, []byte) string {
		m.echo = false
		return OK
	}
	m.handlers["ATE1"] = func(string, []byte) string {
		m.echo = true
		return OK
	}
	m.handlers["AT+USYST"] = func(params string, _ []byte) string {
		baud, err := strconv.Atoi(strings.Split(params, ",")[0])
		if err != nil || baud <= 0 {
			return ERROR
		}
		m.baudRate = baud
		return OK
	}
	m.handlers["AT+USYFWUS"] = func(params string, _ []byte) string {
		if params != "" {
			baud, err := strconv.Atoi(strings.Split(params, ",")[0])
			if err != nil || baud <= 0 {
				return ERROR
			}
			m.baudRate = baud
		}
		if m.bootloader == nil {
			return ERROR
		}
		return OK
	}
	return m
}

// Status lines
const (
	OK    = "OK\r\n"
	ERROR = "ERROR\r\n"
)

// ExtendedError returns an ERROR:<code> status line.
func ExtendedError(code int) string {
	return "ERROR:" + strconv.Itoa(code) + "\r\n"
}

// BinaryLine returns prefix followed by an inline binary payload, the way
// the module announces binary data in responses and URCs.
func BinaryLine(prefix string, payload []byte) string {
	b := make([]byte, 0, len(prefix)+3+len(payload))
	b = append(b, prefix...)
	b = append(b, 0x01)
	b = binary.BigEndian.AppendUint16(b, uint16(len(payload))) //nolint:gosec // test payloads stay below 64 KiB
	b = append(b, payload...)
	return string(b)
}

// Handle installs a handler for a command name, the text before '='.
func (m *VirtualModule) Handle(name string, h ModuleHandler) {
	m.mu.Lock()
	m.handlers[name] = h
	m.mu.Unlock()
}

// Respond answers a command name with fixed text.
func (m *VirtualModule) Respond(name, reply string) {
	m.Handle(name, func(string, []byte) string { return reply })
}

// AttachBootloader sets the receiver that takes over after AT+USYFWUS.
func (m *VirtualModule) AttachBootloader(r *XMODEMReceiver) {
	m.mu.Lock()
	m.bootloader = r
	m.mu.Unlock()
}

// UpdateAfter makes a successful name command hand the stream to the
// bootloader, as AT+USYFWUS does by default.
func (m *VirtualModule) UpdateAfter(name string) {
	m.mu.Lock()
	m.updateOn[name] = true
	m.mu.Unlock()
}

// Updating reports whether the module has entered firmware update mode.
func (m *VirtualModule) Updating() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updating
}

// BaudRate returns the rate last requested by AT+USYST or AT+USYFWUS.
func (m *VirtualModule) BaudRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baudRate
}

// Commands returns every command line received, in order. Binary
// payloads are not included.
func (m *VirtualModule) Commands() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commands...)
}

// Inject queues raw bytes as if the module had sent them.
func (m *VirtualModule) Inject(raw string) {
	m.mu.Lock()
	m.out = append(m.out, raw...)
	m.mu.Unlock()
	m.signal()
}

// InjectURC queues an unsolicited line.
func (m *VirtualModule) InjectURC(line string) {
	m.Inject(line + "\r\n")
}

// Write consumes bytes from the host.
func (m *VirtualModule) Write(p []byte) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrModuleClosed
	}
	if m.updating {
		r := m.bootloader
		m.mu.Unlock()
		return r.Write(p)
	}

	for i, b := range p {
		if m.inBinary {
			m.feedBinary(b)
			continue
		}
		switch b {
		case '\r':
			m.execute(nil)
			if m.updating {
				r := m.bootloader
				m.mu.Unlock()
				m.signal()
				if _, err := r.Write(p[i+1:]); err != nil {
					return i + 1, err
				}
				return len(p), nil
			}
		case '\n':
		case 0x01:
			m.inBinary = true
			m.binHdrN = 0
			m.binData = m.binData[:0]
		default:
			m.line = append(m.line, b)
		}
	}
	m.mu.Unlock()
	m.signal()
	return len(p), nil
}

func (m *VirtualModule) feedBinary(b byte) {
	if m.binHdrN < len(m.binHdr) {
		m.binHdr[m.binHdrN] = b
		m.binHdrN++
		if m.binHdrN == len(m.binHdr) {
			m.binLeft = int(binary.BigEndian.Uint16(m.binHdr[:]))
			if m.binLeft == 0 {
				m.inBinary = false
				m.execute(m.binData)
			}
		}
		return
	}
	m.binData = append(m.binData, b)
	m.binLeft--
	if m.binLeft == 0 {
		m.inBinary = false
		m.execute(m.binData)
	}
}

// execute answers the buffered line. Called with mu held.
func (m *VirtualModule) execute(bin []byte) {
	line := string(m.line)
	m.line = m.line[:0]
	if line == "" {
		return
	}
	m.commands = append(m.commands, line)
	if m.echo {
		m.out = append(m.out, line...)
		m.out = append(m.out, '\r', '\n')
	}

	name, params, _ := strings.Cut(line, "=")
	h, ok := m.handlers[name]
	if !ok {
		m.out = append(m.out, ERROR...)
		return
	}
	reply := h(params, bin)
	m.out = append(m.out, reply...)
	if m.updateOn[name] && m.bootloader != nil && strings.HasSuffix(reply, OK) {
		m.updating = true
	}
}

// Read returns module output, waiting up to timeout for some. A zero
// timeout polls and a negative one blocks.
func (m *VirtualModule) Read(p []byte, timeout time.Duration) (int, error) {
	m.mu.Lock()
	if m.updating && len(m.out) == 0 {
		r := m.bootloader
		m.mu.Unlock()
		return r.Read(p, timeout)
	}
	m.mu.Unlock()

	return waitRead(&m.mu, m.notify, timeout, func() (int, bool, error) {
		if m.closed {
			return 0, true, ErrModuleClosed
		}
		if len(m.out) == 0 {
			return 0, false, nil
		}
		n := copy(p, m.out)
		m.out = m.out[n:]
		return n, true, nil
	})
}

// Close makes further reads and writes fail.
func (m *VirtualModule) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
	return nil
}

func (m *VirtualModule) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
