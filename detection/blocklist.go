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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB VID:PID pairs that are never probed. The
// entries are bridges that enumerate like a serial port but are known to
// belong to other hardware commonly found next to u-blox EVKs.
func DefaultBlocklist() []string {
	return []string{
		"1366:0105", // SEGGER J-Link CDC, probing it disturbs the debugger
		"1366:1015", // SEGGER J-Link OB
	}
}

// IsBlocked reports whether vidpid is on the blocklist. The comparison
// ignores case and surrounding space.
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}
	for _, blocked := range blocklist {
		if vidpid == strings.ToUpper(strings.TrimSpace(blocked)) {
			return true
		}
	}
	return false
}

var (
	vidKeys = []string{"VID:", "VENDOR=", "VID="}
	pidKeys = []string{"PID:", "PRODUCT=", "PID="}
)

// ParseVIDPID extracts "VVVV:PPPP" from a USB descriptor such as
// "VID:1234 PID:5678", "vendor=1234 product=5678" or "1234:5678".
// It returns an empty string when no pair is found.
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(descriptor)

	vid := valueAfter(descriptor, vidKeys)
	pid := valueAfter(descriptor, pidKeys)
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	if before, after, ok := strings.Cut(descriptor, ":"); ok && isHex(before) && isHex(after) {
		return descriptor
	}
	return ""
}

func valueAfter(s string, keys []string) string {
	for _, key := range keys {
		if idx := strings.Index(s, key); idx >= 0 {
			return extractHex(s[idx+len(key):])
		}
	}
	return ""
}

// extractHex returns the first run of uppercase hex digits in s.
func extractHex(s string) string {
	start := strings.IndexFunc(s, isUpperHexRune)
	if start < 0 {
		return ""
	}
	end := strings.IndexFunc(s[start:], func(r rune) bool { return !isUpperHexRune(r) })
	if end < 0 {
		return s[start:]
	}
	return s[start : start+end]
}

func isUpperHexRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F')
}

// isHex reports whether s is a non-empty run of hex digits of either case.
func isHex(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isUpperHexRune(r) && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// IsPathIgnored reports whether devicePath is on the ignore list. Paths are
// compared cleaned and without case, so "COM3" matches "com3".
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}
	normalized := normalizedPath(devicePath)
	for _, ignorePath := range ignorePaths {
		if ignorePath == "" {
			continue
		}
		if devicePath == ignorePath || normalized == normalizedPath(ignorePath) {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
