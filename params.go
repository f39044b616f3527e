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
	"net/netip"
	"strconv"

	"github.com/ZaparooProject/go-ucx/internal/frame"
)

type paramKind int

const (
	paramText paramKind = iota
	paramBinary
)

// Param is one typed argument of an outgoing command. Text params are
// rendered when constructed; a Binary param carries raw bytes that are sent
// behind an SOH length header.
type Param struct {
	err  error
	text string
	data []byte
	kind paramKind
}

// Int is a decimal integer parameter.
func Int(v int32) Param {
	return Param{text: strconv.FormatInt(int64(v), 10)}
}

// String is a quoted string parameter. Quotes, backslashes and control
// characters are escaped.
func String(s string) Param {
	return Param{text: `"` + Escape([]byte(s)) + `"`}
}

// BinaryString is a quoted string parameter carrying arbitrary bytes, with
// every non-printable byte escaped.
func BinaryString(data []byte) Param {
	return Param{text: `"` + Escape(data) + `"`}
}

// IP is an IPv4 or IPv6 address parameter.
func IP(addr netip.Addr) Param {
	text, err := FormatIPAddress(addr)
	return Param{text: text, err: err}
}

// MAC is a MAC address parameter.
func MAC(mac MACAddress) Param {
	return Param{text: mac.String()}
}

// BdAddr is a Bluetooth device address parameter.
func BdAddr(addr BdAddress) Param {
	return Param{text: addr.String()}
}

// Hex is a byte array sent as uppercase hex digits.
func Hex(data []byte) Param {
	return Param{text: string(appendHexUpper(make([]byte, 0, 2*len(data)), data))}
}

// IntList is a bracketed list of 16-bit integers.
func IntList(values []int16) Param {
	return Param{text: FormatIntList(values)}
}

// Binary is a raw binary payload. It must be the last parameter of a
// command and holds between 1 and 65535 bytes.
func Binary(data []byte) Param {
	p := Param{kind: paramBinary, data: data}
	switch {
	case len(data) == 0:
		p.err = fmt.Errorf("%w: empty binary payload", ErrInvalidParameter)
	case len(data) > frame.MaxBinaryLength:
		p.err = fmt.Errorf("%w: binary payload of %d bytes", ErrDataTooLarge, len(data))
	}
	return p
}

// encodeCommand renders cmd and its parameters into one write. The line
// ends with CR unless the last parameter is binary. The text part is
// returned separately for logging.
func encodeCommand(cmd string, params []Param) (wire []byte, text string, binLen int, err error) {
	wire = make([]byte, 0, len(cmd)+16*len(params)+1)
	wire = append(wire, cmd...)

	binary := false
	for i, p := range params {
		if p.err != nil {
			return nil, "", 0, fmt.Errorf("param %d: %w", i, p.err)
		}
		if p.kind == paramBinary {
			if i != len(params)-1 {
				return nil, "", 0, fmt.Errorf("param %d: %w", i, ErrBinaryNotLast)
			}
			text = string(wire)
			wire, err = frame.AppendBinaryHeader(wire, len(p.data))
			if err != nil {
				return nil, "", 0, fmt.Errorf("param %d: %w", i, ErrDataTooLarge)
			}
			wire = append(wire, p.data...)
			binary = true
			binLen = len(p.data)
			continue
		}
		if i > 0 {
			wire = append(wire, ',')
		}
		wire = append(wire, p.text...)
	}

	if !binary {
		text = string(wire)
		wire = append(wire, frame.CR)
	}
	return wire, text, binLen, nil
}
