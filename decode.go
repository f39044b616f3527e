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
	"net/netip"
	"strconv"
)

// Dest receives one decoded field of a response or URC parameter line.
type Dest struct {
	decode func(field string) bool
	kind   string
}

// IntOut decodes a signed decimal integer.
func IntOut(v *int32) Dest {
	return Dest{kind: "int", decode: func(field string) bool {
		if field == "" || (field[0] != '-' && (field[0] < '0' || field[0] > '9')) {
			return false
		}
		n, err := strconv.ParseInt(field, 10, 32)
		if err != nil {
			return false
		}
		*v = int32(n)
		return true
	}}
}

// StringOut decodes a string, removing quotes and escapes.
func StringOut(v *string) Dest {
	return Dest{kind: "string", decode: func(field string) bool {
		*v = string(Unescape(unquote(field)))
		return true
	}}
}

// BinaryStringOut decodes a string that may carry arbitrary bytes.
func BinaryStringOut(v *[]byte) Dest {
	return Dest{kind: "binary string", decode: func(field string) bool {
		*v = Unescape(unquote(field))
		return true
	}}
}

// IPOut decodes an IPv4 or IPv6 address.
func IPOut(v *netip.Addr) Dest {
	return Dest{kind: "ip", decode: func(field string) bool {
		addr, err := ParseIPAddress(field)
		if err != nil {
			return false
		}
		*v = addr
		return true
	}}
}

// MACOut decodes a MAC address.
func MACOut(v *MACAddress) Dest {
	return Dest{kind: "mac", decode: func(field string) bool {
		mac, err := ParseMACAddress(field)
		if err != nil {
			return false
		}
		*v = mac
		return true
	}}
}

// BdAddrOut decodes a Bluetooth device address.
func BdAddrOut(v *BdAddress) Dest {
	return Dest{kind: "bd address", decode: func(field string) bool {
		bd, err := ParseBdAddress(field)
		if err != nil {
			return false
		}
		*v = bd
		return true
	}}
}

// IntListOut decodes a bracketed list of 16-bit integers.
func IntListOut(v *[]int16) Dest {
	return Dest{kind: "int list", decode: func(field string) bool {
		list, err := ParseIntList(field)
		if err != nil {
			return false
		}
		*v = list
		return true
	}}
}

// HexOut decodes a byte array written as hex digits.
func HexOut(v *[]byte) Dest {
	return Dest{kind: "hex", decode: func(field string) bool {
		if len(field)%2 != 0 {
			return false
		}
		out := make([]byte, len(field)/2)
		if err := decodeHexInto(out, field); err != nil {
			return false
		}
		*v = out
		return true
	}}
}

// Skip ignores a field.
func Skip() Dest {
	return Dest{kind: "skip", decode: func(string) bool { return true }}
}

// DecodeParams decodes the comma separated fields of line into dests, in
// order. It returns how many fields were decoded. A line with fewer fields
// than dests is not an error; decoding stops at the last field. A malformed
// field returns a *ParamError carrying its index.
func DecodeParams(line string, dests ...Dest) (int, error) {
	rest := line
	for i, d := range dests {
		end, err := FindParamEnd(rest)
		if err != nil {
			return i, &ParamError{Index: i, Kind: "syntax", Value: rest}
		}
		field := rest[:end]
		if !d.decode(field) {
			return i, &ParamError{Index: i, Kind: d.kind, Value: field}
		}
		if end == len(rest) {
			return i + 1, nil
		}
		rest = rest[end+1:]
	}
	return len(dests), nil
}
