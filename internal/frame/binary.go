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
	"encoding/binary"
	"errors"
)

// ErrBinaryTooLarge is returned when a payload does not fit the 16-bit length.
var ErrBinaryTooLarge = errors.New("binary payload exceeds 65535 bytes")

// AppendBinaryHeader appends SOH and the big-endian payload length to dst.
func AppendBinaryHeader(dst []byte, length int) ([]byte, error) {
	if length < 0 || length > MaxBinaryLength {
		return dst, ErrBinaryTooLarge
	}
	dst = append(dst, SOH)
	return binary.BigEndian.AppendUint16(dst, uint16(length)), nil
}

// HeaderReader collects the two length bytes that follow SOH. The bytes may
// arrive split across reads.
type HeaderReader struct {
	buf   [BinaryLengthLen]byte
	count int
}

// Feed consumes bytes from p until the header is complete. It returns the
// number of bytes consumed and whether the length is now known.
func (h *HeaderReader) Feed(p []byte) (int, bool) {
	n := copy(h.buf[h.count:], p)
	h.count += n
	return n, h.count == BinaryLengthLen
}

// Needed returns how many header bytes are still missing.
func (h *HeaderReader) Needed() int {
	return BinaryLengthLen - h.count
}

// Length returns the announced payload length once Feed reported completion.
func (h *HeaderReader) Length() int {
	return int(binary.BigEndian.Uint16(h.buf[:]))
}

// Reset prepares the reader for the next header.
func (h *HeaderReader) Reset() {
	h.count = 0
}
