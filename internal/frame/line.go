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

// LineBuffer accumulates one text line in a buffer allocated once.
// When a line fills the whole capacity it is discarded along with every
// further byte up to the next Reset, so a line can be at most Cap()-1 bytes
// long and no fragment of an over-long line is ever returned.
type LineBuffer struct {
	buf      []byte
	n        int
	overflow bool
}

// NewLineBuffer allocates a line buffer with the given capacity.
func NewLineBuffer(capacity int) *LineBuffer {
	if capacity < 2 {
		capacity = 2
	}
	return &LineBuffer{buf: make([]byte, capacity)}
}

// Append stores b. It returns false only for the byte that made the line
// overflow. Bytes appended after that are dropped until Reset.
func (l *LineBuffer) Append(b byte) bool {
	if l.overflow {
		return true
	}
	l.buf[l.n] = b
	l.n++
	if l.n == len(l.buf) {
		l.n = 0
		l.overflow = true
		return false
	}
	return true
}

// Bytes returns the current line. The slice is only valid until the next
// Append or Reset.
func (l *LineBuffer) Bytes() []byte {
	return l.buf[:l.n]
}

// String returns a copy of the current line.
func (l *LineBuffer) String() string {
	return string(l.buf[:l.n])
}

// Len returns the current line length.
func (l *LineBuffer) Len() int {
	return l.n
}

// Cap returns the buffer capacity.
func (l *LineBuffer) Cap() int {
	return len(l.buf)
}

// Overflowed reports whether the current line was discarded for being too
// long.
func (l *LineBuffer) Overflowed() bool {
	return l.overflow
}

// Reset discards the current line and ends any overflow.
func (l *LineBuffer) Reset() {
	l.n = 0
	l.overflow = false
}

// Spare returns the unused tail of the buffer after the current line.
func (l *LineBuffer) Spare() []byte {
	return l.buf[l.n:]
}
