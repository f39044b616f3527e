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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMACAddress(t *testing.T) {
	t.Parallel()

	mac, err := ParseMACAddress("0012f3a4B5C6")
	require.NoError(t, err)
	assert.Equal(t, MACAddress{0x00, 0x12, 0xF3, 0xA4, 0xB5, 0xC6}, mac)
	assert.Equal(t, "0012F3A4B5C6", mac.String())

	for _, bad := range []string{"", "0012F3A4B5", "0012F3A4B5C6D7", "0012F3A4B5CG", "00:12:F3:A4:B5"} {
		_, err := ParseMACAddress(bad)
		require.ErrorIs(t, err, ErrInvalidFormat, bad)
	}
}

func TestBdAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		want     string
		wantType BdAddressType
		wantErr  bool
	}{
		{name: "public", input: "0012F3A4B5C6p", want: "0012F3A4B5C6p", wantType: BdAddressPublic},
		{name: "random", input: "0012f3a4b5c6r", want: "0012F3A4B5C6r", wantType: BdAddressRandom},
		{name: "no suffix is public", input: "0012F3A4B5C6", want: "0012F3A4B5C6p", wantType: BdAddressPublic},
		{name: "empty", input: "", wantErr: true},
		{name: "unknown suffix", input: "0012F3A4B5C6x", wantErr: true},
		{name: "short", input: "0012F3r", wantErr: true},
		{name: "not hex", input: "ZZ12F3A4B5C6r", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			bd, err := ParseBdAddress(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, bd.Type)
			assert.Equal(t, tt.want, bd.String())
		})
	}
}

func TestParseIPAddress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    netip.Addr
		wantErr bool
	}{
		{name: "ipv4", input: "192.168.0.1", want: netip.MustParseAddr("192.168.0.1")},
		{name: "ipv4 zeros", input: "0.0.0.0", want: netip.MustParseAddr("0.0.0.0")},
		{
			name:  "ipv6 bracketed",
			input: "[2001:0db8:0000:0000:0000:0000:0000:0001]",
			want:  netip.MustParseAddr("2001:db8::1"),
		},
		{name: "ipv6 bare short groups", input: "fe80:0:0:0:1:2:3:4", want: netip.MustParseAddr("fe80::1:2:3:4")},
		{name: "ipv4 too few octets", input: "1.2.3", wantErr: true},
		{name: "ipv4 octet too big", input: "1.2.3.256", wantErr: true},
		{name: "ipv4 negative", input: "1.2.3.-1", wantErr: true},
		{name: "ipv4 trailing junk", input: "1.2.3.4x", wantErr: true},
		{name: "ipv6 compressed", input: "[2001:db8::1]", wantErr: true},
		{name: "ipv6 unterminated", input: "[2001:0db8:0:0:0:0:0:1", wantErr: true},
		{name: "ipv6 group too long", input: "20011:0:0:0:0:0:0:1", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseIPAddress(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatIPAddress(t *testing.T) {
	t.Parallel()

	got, err := FormatIPAddress(netip.MustParseAddr("10.0.0.7"))
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7", got)

	got, err = FormatIPAddress(netip.MustParseAddr("2001:db8::ab"))
	require.NoError(t, err)
	assert.Equal(t, "[2001:0db8:0000:0000:0000:0000:0000:00ab]", got)

	back, err := ParseIPAddress(got)
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("2001:db8::ab"), back)

	_, err = FormatIPAddress(netip.Addr{})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestIntList(t *testing.T) {
	t.Parallel()

	list, err := ParseIntList("[1,-2,32767]")
	require.NoError(t, err)
	assert.Equal(t, []int16{1, -2, 32767}, list)
	assert.Equal(t, "[1,-2,32767]", FormatIntList(list))

	list, err = ParseIntList("[]")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Equal(t, "[]", FormatIntList(nil))

	for _, bad := range []string{"", "1,2", "[", "[1,,2]", "[40000]", "[a]"} {
		_, err := ParseIntList(bad)
		require.ErrorIs(t, err, ErrInvalidFormat, bad)
	}
}
