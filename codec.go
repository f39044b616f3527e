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
	"strings"
)

// FindParamEnd returns the index of the comma that ends the first parameter
// in s, or len(s) when the parameter runs to the end of the line. Commas
// inside quoted strings, after a backslash or inside [...] lists do not end
// a parameter. An unterminated string, escape or list is an error.
func FindParamEnd(s string) (int, error) {
	var inString, inBracket, escape bool

	i := 0
	for ; i < len(s); i++ {
		c := s[i]
		switch {
		case escape:
			escape = false
		case c == '\\':
			escape = true
		case inString:
			if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '[':
			inBracket = true
		case c == ']':
			inBracket = false
		case c == ',' && !inBracket:
			return i, nil
		}
	}

	if inString || inBracket || escape {
		return 0, ErrInvalidFormat
	}
	return i, nil
}

// SplitParams splits a response parameter line into its raw fields.
func SplitParams(line string) ([]string, error) {
	var fields []string
	for {
		end, err := FindParamEnd(line)
		if err != nil {
			return fields, err
		}
		fields = append(fields, line[:end])
		if end == len(line) {
			return fields, nil
		}
		line = line[end+1:]
	}
}

// Escape renders data for use inside a quoted string parameter. Control
// characters get their C escape, other non-printable bytes become \xNN.
func Escape(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for _, c := range data {
		switch c {
		case '\r':
			_, _ = sb.WriteString(`\r`)
		case '\n':
			_, _ = sb.WriteString(`\n`)
		case '\t':
			_, _ = sb.WriteString(`\t`)
		case '\b':
			_, _ = sb.WriteString(`\b`)
		case '"':
			_, _ = sb.WriteString(`\"`)
		case '\\':
			_, _ = sb.WriteString(`\\`)
		case 0:
			_, _ = sb.WriteString(`\0`)
		default:
			if c >= 0x20 && c <= 0x7E {
				_ = sb.WriteByte(c)
			} else {
				_, _ = sb.WriteString(`\x`)
				_, _ = sb.Write(appendHexUpper(nil, []byte{c}))
			}
		}
	}
	return sb.String()
}

// Unescape reverses Escape. Unknown escapes are kept as written, and a \x
// not followed by two hex digits yields a plain 'x'.
func Unescape(s string) []byte {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			out = append(out, c)
			continue
		}
		i++
		switch s[i] {
		case 'r':
			out = append(out, '\r')
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'b':
			out = append(out, '\b')
		case '"':
			out = append(out, '"')
		case '\\':
			out = append(out, '\\')
		case '0':
			out = append(out, 0)
		case 'x':
			if i+2 < len(s) {
				var b [1]byte
				if _, err := hex.Decode(b[:], []byte(s[i+1:i+3])); err == nil {
					out = append(out, b[0])
					i += 2
					continue
				}
			}
			out = append(out, 'x')
		default:
			out = append(out, '\\', s[i])
		}
	}
	return out
}

// unquote strips the surrounding quotes of a string field.
func unquote(field string) string {
	if field == "" || field[0] != '"' {
		return field
	}
	field = field[1:]
	if field != "" && field[len(field)-1] == '"' {
		field = field[:len(field)-1]
	}
	return field
}

// appendHexUpper appends data as uppercase hex digits.
func appendHexUpper(dst, data []byte) []byte {
	return append(dst, strings.ToUpper(hex.EncodeToString(data))...)
}
