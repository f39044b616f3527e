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
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindParamEnd(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{name: "empty", input: "", want: 0},
		{name: "single field", input: "42", want: 2},
		{name: "two fields", input: "1,2", want: 1},
		{name: "empty first field", input: ",2", want: 0},
		{name: "comma in string", input: `"a,b",c`, want: 5},
		{name: "escaped quote in string", input: `"a\"b",c`, want: 6},
		{name: "escaped comma outside string", input: `a\,b,c`, want: 4},
		{name: "comma in list", input: "[1,2],3", want: 5},
		{name: "list then string", input: `[1],"x,y"`, want: 3},
		{name: "unterminated string", input: `"abc`, wantErr: true},
		{name: "unterminated list", input: "[1,2", wantErr: true},
		{name: "dangling escape", input: `abc\`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := FindParamEnd(tt.input)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitParams(t *testing.T) {
	t.Parallel()

	fields, err := SplitParams(`1,"NORA-W36",[1,2,3],,0012F3A4B5C6p`)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", `"NORA-W36"`, "[1,2,3]", "", "0012F3A4B5C6p"}, fields)

	fields, err = SplitParams("")
	require.NoError(t, err)
	assert.Equal(t, []string{""}, fields)

	fields, err = SplitParams(`1,"open`)
	require.ErrorIs(t, err, ErrInvalidFormat)
	assert.Equal(t, []string{"1"}, fields)
}

func TestEscape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input []byte
		want  string
	}{
		{name: "plain", input: []byte("hello"), want: "hello"},
		{name: "quote and backslash", input: []byte(`a"b\c`), want: `a\"b\\c`},
		{name: "control characters", input: []byte("\r\n\t\b"), want: `\r\n\t\b`},
		{name: "nul", input: []byte{'a', 0, 'b'}, want: `a\0b`},
		{name: "high and low bytes", input: []byte{0x01, 0x7F, 0xFF}, want: `\x01\x7F\xFF`},
		{name: "empty", input: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Escape(tt.input))
		})
	}
}

func TestUnescape(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  []byte
	}{
		{name: "plain", input: "hello", want: []byte("hello")},
		{name: "all known escapes", input: `\r\n\t\b\"\\\0`, want: []byte{'\r', '\n', '\t', '\b', '"', '\\', 0}},
		{name: "hex upper and lower", input: `\xAB\xcd`, want: []byte{0xAB, 0xCD}},
		{name: "bad hex keeps x", input: `\xZZ`, want: []byte("xZZ")},
		{name: "short hex keeps x", input: `\x4`, want: []byte("x4")},
		{name: "unknown escape kept", input: `\q`, want: []byte(`\q`)},
		{name: "trailing backslash kept", input: `a\`, want: []byte(`a\`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Unescape(tt.input))
		})
	}
}

func TestUnquote(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", unquote(`"abc"`))
	assert.Equal(t, "abc", unquote(`"abc`))
	assert.Equal(t, "abc", unquote("abc"))
	assert.Empty(t, unquote(`""`))
	assert.Empty(t, unquote(""))
}

func TestHexHelpers(t *testing.T) {
	t.Parallel()

	all := make([]byte, 256)
	for i := range all {
		all[i] = byte(i)
	}

	encoded := appendHexUpper([]byte("x="), all)
	require.Len(t, encoded, 2+2*len(all))
	assert.Equal(t, "x=000102", string(encoded[:8]))
	assert.Equal(t, "FEFF", string(encoded[len(encoded)-4:]))
	assert.Equal(t, strings.ToUpper(string(encoded[2:])), string(encoded[2:]))

	decoded := make([]byte, len(all))
	require.NoError(t, decodeHexInto(decoded, strings.ToLower(string(encoded[2:]))))
	assert.Equal(t, all, decoded)

	tests := []struct {
		name  string
		input string
	}{
		{name: "odd length", input: "ABC"},
		{name: "too long", input: "ABCDEF"},
		{name: "invalid digit", input: "AG"},
		{name: "separator", input: "A:"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dst := make([]byte, 1)
			require.ErrorIs(t, decodeHexInto(dst, tt.input), ErrInvalidFormat)
		})
	}
}

func FuzzEscapeRoundTrip(f *testing.F) {
	f.Add([]byte("hello"))
	f.Add([]byte{0, 1, 2, '"', '\\', ',', '[', ']'})
	f.Add([]byte("\r\n\t\b"))

	f.Fuzz(func(t *testing.T, data []byte) {
		escaped := Escape(data)
		assert.Equal(t, append([]byte{}, data...), append([]byte{}, Unescape(escaped)...))

		quoted := `"` + escaped + `"`
		end, err := FindParamEnd(quoted + ",1")
		require.NoError(t, err)
		assert.Equal(t, len(quoted), end)
	})
}

func FuzzFindParamEnd(f *testing.F) {
	f.Add(`1,"a,b",[1,2]`)
	f.Add(`"\"`)
	f.Add(`[[],]`)

	f.Fuzz(func(t *testing.T, s string) {
		end, err := FindParamEnd(s)
		if err != nil {
			return
		}
		require.LessOrEqual(t, end, len(s))
		if end < len(s) {
			assert.Equal(t, byte(','), s[end])
		}
	})
}
