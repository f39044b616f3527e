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

package xmodem

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// BytesSource serves a transfer from memory.
func BytesSource(data []byte) DataSource {
	return func(buf []byte, offset int) (int, error) {
		if offset >= len(data) {
			return 0, nil
		}
		return copy(buf, data[offset:]), nil
	}
}

// ReaderAtSource serves a transfer from r, for example an *os.File.
func ReaderAtSource(r io.ReaderAt) DataSource {
	return func(buf []byte, offset int) (int, error) {
		n, err := r.ReadAt(buf, int64(offset))
		if errors.Is(err, io.EOF) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("read at %d: %w", offset, err)
		}
		return n, nil
	}
}

// SendFile sends the contents of the file at path.
func (s *Sender) SendFile(path string, progress ProgressFunc) error {
	f, err := os.Open(path) //nolint:gosec // path comes from the caller
	if err != nil {
		return fmt.Errorf("xmodem: open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("xmodem: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", ErrNoData, path)
	}
	return s.Send(int(info.Size()), ReaderAtSource(f), progress)
}
