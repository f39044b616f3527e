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

// Package frame holds the byte-level framing of the AT line protocol: line
// terminators, status tokens and the inline binary payload header.
package frame

// Control bytes
const (
	CR  = '\r' // Line terminator sent after every command
	LF  = '\n'
	SOH = 0x01 // Starts an inline binary payload
)

// Binary header layout: SOH followed by a big-endian 16-bit length.
const (
	BinaryHeaderLen = 3
	BinaryLengthLen = 2
	MaxBinaryLength = 0xFFFF
)

// Terminal status tokens
const (
	StatusOK        = "OK"
	StatusError     = "ERROR"
	ErrorCodePrefix = "ERROR:"
	CommandPrefix   = "AT"
)

// FlushChunkSize is how many unwanted binary bytes are discarded per read.
const FlushChunkSize = 64

// IsPrintable reports whether b is stored as part of a text line.
func IsPrintable(b byte) bool {
	return b >= 0x20 && b <= 0x7E
}

// IsURCMarker reports whether a line starting with b is an unsolicited result.
func IsURCMarker(b byte) bool {
	return b == '+' || b == '*'
}
