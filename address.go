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
	"encoding/hex"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
)

// MACAddress is a 48-bit hardware address. On the wire it is 12 hex digits
// with no separators.
type MACAddress [6]byte

// String returns the address as 12 uppercase hex digits.
func (m MACAddress) String() string {
	return string(appendHexUpper(nil, m[:]))
}

// ParseMACAddress parses exactly 12 hex digits.
func ParseMACAddress(s string) (MACAddress, error) {
	var mac MACAddress
	if len(s) != 2*len(mac) {
		return mac, fmt.Errorf("%w: MAC address %q", ErrInvalidFormat, s)
	}
	if err := decodeHexInto(mac[:], s); err != nil {
		return mac, fmt.Errorf("%w: MAC address %q", ErrInvalidFormat, s)
	}
	return mac, nil
}

// BdAddressType tells public and random Bluetooth device addresses apart.
type BdAddressType int

const (
	// BdAddressPublic is a public device address (suffix 'p').
	BdAddressPublic BdAddressType = iota
	// BdAddressRandom is a random device address (suffix 'r').
	BdAddressRandom
)

// BdAddress is a Bluetooth device address with its type.
type BdAddress struct {
	Addr [6]byte
	Type BdAddressType
}

// String returns 12 uppercase hex digits followed by 'p' or 'r'.
func (b BdAddress) String() string {
	out := appendHexUpper(make([]byte, 0, 13), b.Addr[:])
	if b.Type == BdAddressRandom {
		return string(append(out, 'r'))
	}
	return string(append(out, 'p'))
}

// ParseBdAddress parses 12 hex digits with an optional 'p' or 'r' suffix.
// Without a suffix the address is public.
func ParseBdAddress(s string) (BdAddress, error) {
	var bd BdAddress
	if s == "" {
		return bd, fmt.Errorf("%w: empty BD address", ErrInvalidFormat)
	}

	digits := s
	switch s[len(s)-1] {
	case 'r':
		bd.Type = BdAddressRandom
		digits = s[:len(s)-1]
	case 'p':
		bd.Type = BdAddressPublic
		digits = s[:len(s)-1]
	}

	if len(digits) != 2*len(bd.Addr) {
		return bd, fmt.Errorf("%w: BD address %q", ErrInvalidFormat, s)
	}
	if err := decodeHexInto(bd.Addr[:], digits); err != nil {
		return bd, fmt.Errorf("%w: BD address %q", ErrInvalidFormat, s)
	}
	return bd, nil
}

// ParseIPAddress parses the module's IP address notation. A string holding
// a '.' is IPv4 in dotted decimal. Anything else must be IPv6 with all eight
// groups written out, optionally enclosed in brackets.
func ParseIPAddress(s string) (netip.Addr, error) {
	if strings.IndexByte(s, '.') >= 0 {
		return parseIPv4(s)
	}
	return parseIPv6(s)
}

// FormatIPAddress renders an address the way the module expects it: dotted
// decimal for IPv4 and eight zero-padded lowercase groups in brackets for
// IPv6.
func FormatIPAddress(addr netip.Addr) (string, error) {
	switch {
	case !addr.IsValid():
		return "", fmt.Errorf("%w: invalid IP address", ErrInvalidParameter)
	case addr.Is4():
		return addr.String(), nil
	default:
		b := addr.As16()
		var sb strings.Builder
		_ = sb.WriteByte('[')
		for i := 0; i < 16; i += 2 {
			if i > 0 {
				_ = sb.WriteByte(':')
			}
			_, _ = fmt.Fprintf(&sb, "%04x", uint16(b[i])<<8|uint16(b[i+1]))
		}
		_ = sb.WriteByte(']')
		return sb.String(), nil
	}
}

func parseIPv4(s string) (netip.Addr, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return netip.Addr{}, fmt.Errorf("%w: IPv4 address %q", ErrInvalidFormat, s)
	}

	var octets [4]byte
	for i, part := range parts {
		if part == "" || part[0] < '0' || part[0] > '9' {
			return netip.Addr{}, fmt.Errorf("%w: IPv4 address %q", ErrInvalidFormat, s)
		}
		v, err := strconv.ParseUint(part, 10, 8)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("%w: IPv4 address %q", ErrInvalidFormat, s)
		}
		octets[i] = byte(v)
	}
	return netip.AddrFrom4(octets), nil
}

func parseIPv6(s string) (netip.Addr, error) {
	body := s
	if strings.HasPrefix(body, "[") {
		if !strings.HasSuffix(body, "]") {
			return netip.Addr{}, fmt.Errorf("%w: IPv6 address %q", ErrInvalidFormat, s)
		}
		body = body[1 : len(body)-1]
	}

	groups := strings.Split(body, ":")
	if len(groups) != 8 {
		return netip.Addr{}, fmt.Errorf("%w: IPv6 address %q", ErrInvalidFormat, s)
	}

	var b [16]byte
	for i, g := range groups {
		if g == "" || len(g) > 4 {
			return netip.Addr{}, fmt.Errorf("%w: IPv6 address %q", ErrInvalidFormat, s)
		}
		v, err := strconv.ParseUint(g, 16, 16)
		if err != nil {
			return netip.Addr{}, fmt.Errorf("%w: IPv6 address %q", ErrInvalidFormat, s)
		}
		b[2*i] = byte(v >> 8)
		b[2*i+1] = byte(v)
	}
	return netip.AddrFrom16(b), nil
}

// ParseIntList parses a bracketed list of 16-bit integers such as [1,-2,3].
// The empty list is written [].
func ParseIntList(s string) ([]int16, error) {
	if s == "[]" {
		return []int16{}, nil
	}
	if len(s) < 3 || s[0] != '[' || s[len(s)-1] != ']' {
		return nil, fmt.Errorf("%w: int list %q", ErrInvalidFormat, s)
	}

	parts := strings.Split(s[1:len(s)-1], ",")
	values := make([]int16, 0, len(parts))
	for _, part := range parts {
		v, err := strconv.ParseInt(part, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: int list %q", ErrInvalidFormat, s)
		}
		values = append(values, int16(v))
	}
	return values, nil
}

// FormatIntList renders values as a bracketed, comma separated list.
func FormatIntList(values []int16) string {
	var sb strings.Builder
	_ = sb.WriteByte('[')
	for i, v := range values {
		if i > 0 {
			_ = sb.WriteByte(',')
		}
		_, _ = sb.WriteString(strconv.Itoa(int(v)))
	}
	_ = sb.WriteByte(']')
	return sb.String()
}

func decodeHexInto(dst []byte, s string) error {
	if len(s) != 2*len(dst) {
		return ErrInvalidFormat
	}
	if _, err := hex.Decode(dst, []byte(s)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFormat, err)
	}
	return nil
}
