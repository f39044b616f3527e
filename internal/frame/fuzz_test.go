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

package frame

import (
	"testing"
)

// =============================================================================
// Fuzz Tests for Line Framing
// =============================================================================
// Noise on the serial line (baud mismatch, a module rebooting mid-line) must
// never make the framing helpers panic or grow past their fixed capacity.
//
// Run with: go test -fuzz=FuzzLineBuffer -fuzztime=30s ./internal/frame/

// FuzzLineBuffer feeds arbitrary bytes into a small line buffer.
func FuzzLineBuffer(f *testing.F) {
	f.Add([]byte("+UEBTC:0,\"AABBCCDDEEFF\"\r\n"), 16)
	f.Add([]byte("OK\r\n"), 4)
	f.Add([]byte{}, 2)
	f.Add([]byte{0xFF, 0x00, 0x01, 0x7F}, 3)

	f.Fuzz(func(t *testing.T, data []byte, capacity int) {
		if capacity < 0 {
			capacity = -capacity
		}
		capacity = capacity%512 + 1

		lb := NewLineBuffer(capacity)
		for _, b := range data {
			if b == CR || b == LF {
				lb.Reset()
				continue
			}
			_ = lb.Append(b)
			if lb.Len() >= lb.Cap() {
				t.Fatalf("line length %d reached capacity %d", lb.Len(), lb.Cap())
			}
			if len(lb.Spare())+lb.Len() != lb.Cap() {
				t.Fatalf("spare %d + len %d != cap %d", len(lb.Spare()), lb.Len(), lb.Cap())
			}
		}
	})
}

// FuzzHeaderReader splits a header at arbitrary points and checks the length
// always comes out the same.
func FuzzHeaderReader(f *testing.F) {
	f.Add(uint16(0), 1)
	f.Add(uint16(0xFFFF), 2)
	f.Add(uint16(300), 0)

	f.Fuzz(func(t *testing.T, length uint16, split int) {
		hdr, err := AppendBinaryHeader(nil, int(length))
		if err != nil {
			t.Fatal(err)
		}
		payload := hdr[1:]
		if split < 0 {
			split = -split
		}
		split %= len(payload) + 1

		var hr HeaderReader
		n1, done := hr.Feed(payload[:split])
		if n1 != split {
			t.Fatalf("consumed %d of first %d bytes", n1, split)
		}
		if !done {
			_, done = hr.Feed(payload[split:])
		}
		if !done {
			t.Fatal("header not complete")
		}
		if hr.Length() != int(length) {
			t.Fatalf("length %d, want %d", hr.Length(), length)
		}
	})
}
