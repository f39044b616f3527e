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

func TestEncodeCommand_TextParams(t *testing.T) {
	t.Parallel()

	mac := MACAddress{0x00, 0x12, 0xF3, 0xA4, 0xB5, 0xC6}
	bd := BdAddress{Addr: mac, Type: BdAddressRandom}

	tests := []struct {
		name   string
		cmd    string
		want   string
		params []Param
	}{
		{name: "no params", cmd: "AT", want: "AT"},
		{name: "query", cmd: "AT+UWSC?", want: "AT+UWSC?"},
		{name: "ints", cmd: "AT+UWSC=", params: []Param{Int(0), Int(-12)}, want: "AT+UWSC=0,-12"},
		{name: "escaped string", cmd: "AT+UWSC=", params: []Param{Int(0), String(`my "net"`)}, want: `AT+UWSC=0,"my \"net\""`},
		{name: "binary string", cmd: "AT+X=", params: []Param{BinaryString([]byte{0, 0xFF})}, want: `AT+X="\0\xFF"`},
		{name: "ipv4", cmd: "AT+UWSIPS=", params: []Param{IP(netip.MustParseAddr("10.0.0.1"))}, want: "AT+UWSIPS=10.0.0.1"},
		{name: "mac", cmd: "AT+UWAPMACA=", params: []Param{MAC(mac)}, want: "AT+UWAPMACA=0012F3A4B5C6"},
		{name: "bd address", cmd: "AT+UBTC=", params: []Param{BdAddr(bd)}, want: "AT+UBTC=0012F3A4B5C6r"},
		{name: "hex", cmd: "AT+H=", params: []Param{Hex([]byte{0xDE, 0xAD})}, want: "AT+H=DEAD"},
		{name: "int list", cmd: "AT+L=", params: []Param{IntList([]int16{1, 6, 11})}, want: "AT+L=[1,6,11]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wire, text, binLen, err := encodeCommand(tt.cmd, tt.params)
			require.NoError(t, err)
			assert.Equal(t, tt.want, text)
			assert.Equal(t, tt.want+"\r", string(wire))
			assert.Zero(t, binLen)
		})
	}
}

func TestEncodeCommand_Binary(t *testing.T) {
	t.Parallel()

	payload := []byte{0x00, 0x0D, 0x0A, 0xFF}
	wire, text, binLen, err := encodeCommand("AT+USOWB=", []Param{Int(3), Binary(payload)})
	require.NoError(t, err)

	assert.Equal(t, "AT+USOWB=3", text)
	assert.Equal(t, len(payload), binLen)

	want := append([]byte("AT+USOWB=3"), 0x01, 0x00, 0x04)
	want = append(want, payload...)
	assert.Equal(t, want, wire)
}

func TestEncodeCommand_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want   error
		name   string
		params []Param
	}{
		{name: "binary not last", params: []Param{Binary([]byte{1}), Int(1)}, want: ErrBinaryNotLast},
		{name: "empty binary", params: []Param{Binary(nil)}, want: ErrInvalidParameter},
		{name: "oversized binary", params: []Param{Binary(make([]byte, 0x10000))}, want: ErrDataTooLarge},
		{name: "invalid ip", params: []Param{IP(netip.Addr{})}, want: ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wire, _, _, err := encodeCommand("AT+X=", tt.params)
			require.ErrorIs(t, err, tt.want)
			assert.Nil(t, wire)
		})
	}
}

func TestDecodeParams(t *testing.T) {
	t.Parallel()

	var (
		id   int32
		name string
		raw  []byte
		ip   netip.Addr
		mac  MACAddress
		bd   BdAddress
		list []int16
		hex  []byte
	)

	line := `7,"NORA\"W36",ignored,"\x01\x02",192.168.1.20,0012F3A4B5C6,0012F3A4B5C6r,[1,2],CAFE`
	n, err := DecodeParams(line,
		IntOut(&id), StringOut(&name), Skip(), BinaryStringOut(&raw), IPOut(&ip),
		MACOut(&mac), BdAddrOut(&bd), IntListOut(&list), HexOut(&hex))
	require.NoError(t, err)
	assert.Equal(t, 9, n)

	assert.Equal(t, int32(7), id)
	assert.Equal(t, `NORA"W36`, name)
	assert.Equal(t, []byte{1, 2}, raw)
	assert.Equal(t, netip.MustParseAddr("192.168.1.20"), ip)
	assert.Equal(t, "0012F3A4B5C6", mac.String())
	assert.Equal(t, BdAddressRandom, bd.Type)
	assert.Equal(t, []int16{1, 2}, list)
	assert.Equal(t, []byte{0xCA, 0xFE}, hex)
}

func TestDecodeParams_FewerFieldsThanDests(t *testing.T) {
	t.Parallel()

	var a, b int32 = 0, 99
	n, err := DecodeParams("5", IntOut(&a), IntOut(&b))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, int32(5), a)
	assert.Equal(t, int32(99), b, "untouched when the line is short")
}

func TestDecodeParams_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		line      string
		dests     []Dest
		wantIndex int
		wantN     int
	}{
		{name: "bad int", line: "x", dests: []Dest{IntOut(new(int32))}, wantIndex: 0, wantN: 0},
		{name: "int overflow", line: "1,99999999999", dests: []Dest{IntOut(new(int32)), IntOut(new(int32))}, wantIndex: 1, wantN: 1},
		{name: "plus sign", line: "+5", dests: []Dest{IntOut(new(int32))}, wantIndex: 0, wantN: 0},
		{name: "unterminated string", line: `1,"abc`, dests: []Dest{IntOut(new(int32)), StringOut(new(string))}, wantIndex: 1, wantN: 1},
		{name: "odd hex", line: "ABC", dests: []Dest{HexOut(new([]byte))}, wantIndex: 0, wantN: 0},
		{name: "bad mac", line: "nope", dests: []Dest{MACOut(new(MACAddress))}, wantIndex: 0, wantN: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			n, err := DecodeParams(tt.line, tt.dests...)
			require.ErrorIs(t, err, ErrInvalidFormat)
			var pe *ParamError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.wantIndex, pe.Index)
			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, -(tt.wantIndex + 1), StatusCode(err))
		})
	}
}
