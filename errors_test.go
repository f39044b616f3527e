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
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "transport timeout", err: ErrTransportTimeout, want: true},
		{name: "transport read", err: ErrTransportRead, want: true},
		{name: "transport write", err: ErrTransportWrite, want: true},
		{name: "transport not ready", err: ErrTransportNotReady, want: true},
		{name: "command timeout", err: ErrCommandTimeout, want: true},
		{name: "no response", err: ErrNoResponse, want: true},
		{name: "wrapped command timeout", err: fmt.Errorf("probe: %w", ErrCommandTimeout), want: true},
		{name: "io error with transient cause", err: fmt.Errorf("%w: %w", ErrIO, errors.New("glitch")), want: true},
		{name: "io error with closed transport", err: fmt.Errorf("%w: %w", ErrIO, ErrTransportClosed), want: false},
		{name: "status error", err: &StatusError{Code: CodeError}, want: false},
		{name: "extended status error", err: &StatusError{Code: 4, Extended: true}, want: false},
		{name: "param error", err: &ParamError{Index: 1, Kind: "int", Value: "x"}, want: false},
		{name: "transport closed", err: ErrTransportClosed, want: false},
		{name: "invalid parameter", err: ErrInvalidParameter, want: false},
		{name: "unknown", err: errors.New("something else"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "transport closed", err: ErrTransportClosed, want: true},
		{name: "device not found", err: ErrDeviceNotFound, want: true},
		{name: "device not supported", err: ErrDeviceNotSupported, want: true},
		{name: "eof", err: io.EOF, want: true},
		{name: "closed pipe", err: io.ErrClosedPipe, want: true},
		{name: "wrapped eof", err: fmt.Errorf("%w: %w", ErrIO, io.EOF), want: true},
		{name: "command timeout", err: ErrCommandTimeout, want: false},
		{name: "status error", err: &StatusError{Code: CodeError}, want: false},
		{name: "transient io", err: fmt.Errorf("%w: %w", ErrIO, errors.New("glitch")), want: false},
		{name: "permanent transport error", err: NewTransportClosedError("read", "/dev/ttyUSB0"), want: true},
		{name: "transient transport error", err: NewTransportReadError("read", "/dev/ttyUSB0"), want: false},
		{name: "timeout transport error", err: NewTimeoutError("read", "/dev/ttyUSB0"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestIsRetryable_TransportError(t *testing.T) {
	t.Parallel()

	err := &TransportError{Op: "write", Err: errors.New("busy"), Retryable: true, Type: ErrorTypePermanent}
	assert.True(t, IsRetryable(err), "Retryable flag wins over the category")

	err = &TransportError{Op: "write", Err: ErrTransportTimeout, Retryable: false}
	assert.False(t, IsRetryable(err), "Retryable flag wins over the wrapped sentinel")
}

func TestNewTransportError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		build     func() *TransportError
		sentinel  error
		name      string
		errType   ErrorType
		retryable bool
	}{
		{
			name:      "timeout",
			build:     func() *TransportError { return NewTimeoutError("read", "COM3") },
			sentinel:  ErrTransportTimeout,
			errType:   ErrorTypeTimeout,
			retryable: true,
		},
		{
			name:      "write",
			build:     func() *TransportError { return NewTransportWriteError("write", "COM3") },
			sentinel:  ErrTransportWrite,
			errType:   ErrorTypeTransient,
			retryable: true,
		},
		{
			name:      "read",
			build:     func() *TransportError { return NewTransportReadError("read", "COM3") },
			sentinel:  ErrTransportRead,
			errType:   ErrorTypeTransient,
			retryable: true,
		},
		{
			name:      "closed",
			build:     func() *TransportError { return NewTransportClosedError("read", "COM3") },
			sentinel:  ErrTransportClosed,
			errType:   ErrorTypePermanent,
			retryable: false,
		},
		{
			name:      "data too large",
			build:     func() *TransportError { return NewDataTooLargeError("write", "COM3") },
			sentinel:  ErrDataTooLarge,
			errType:   ErrorTypePermanent,
			retryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.build()
			assert.Equal(t, "COM3", err.Port)
			assert.Equal(t, tt.errType, err.Type)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestTransportError_Error(t *testing.T) {
	t.Parallel()

	withPort := &TransportError{Op: "read", Port: "/dev/ttyACM0", Err: ErrTransportRead}
	assert.Equal(t, "read /dev/ttyACM0: transport read failed", withPort.Error())

	noPort := &TransportError{Op: "read", Err: ErrTransportRead}
	assert.Equal(t, "read: transport read failed", noPort.Error())
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	plain := &StatusError{Code: CodeError}
	assert.Equal(t, "command returned ERROR", plain.Error())
	require.ErrorIs(t, plain, ErrCommandFailed)
	_, ok := ExtendedCode(plain)
	assert.False(t, ok)

	extended := fmt.Errorf("AT+UWSC: %w", &StatusError{Code: 17, Extended: true})
	assert.Contains(t, extended.Error(), "ERROR:17")
	require.ErrorIs(t, extended, ErrCommandFailed)
	code, ok := ExtendedCode(extended)
	assert.True(t, ok)
	assert.Equal(t, 17, code)
}

func TestParamError(t *testing.T) {
	t.Parallel()

	err := &ParamError{Index: 2, Kind: "ip", Value: "nope"}
	assert.Equal(t, `param 2 (ip): invalid value "nope"`, err.Error())
	assert.ErrorIs(t, err, ErrInvalidFormat)
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want int
	}{
		{name: "ok", err: nil, want: CodeOK},
		{name: "error", err: &StatusError{Code: CodeError}, want: CodeError},
		{name: "extended error", err: &StatusError{Code: 12, Extended: true}, want: -12},
		{name: "extended zero", err: &StatusError{Code: 0, Extended: true}, want: 0},
		{name: "timeout", err: ErrCommandTimeout, want: CodeTimeout},
		{name: "status before response", err: ErrNoResponse, want: CodeTimeout},
		{name: "io", err: fmt.Errorf("%w: %w", ErrIO, io.EOF), want: CodeIOError},
		{name: "first field", err: &ParamError{Index: 0, Kind: "int"}, want: -1},
		{name: "third field", err: &ParamError{Index: 2, Kind: "int"}, want: -3},
		{name: "other", err: ErrInvalidParameter, want: CodeError},
		{
			name: "traced status",
			err:  &TraceableError{Err: &StatusError{Code: 5, Extended: true}},
			want: -5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, StatusCode(tt.err))
		})
	}
}

func TestTraceBuffer_BasicOperations(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("uart", "/dev/ttyUSB0", 8)
	assert.Equal(t, 0, tb.Len())

	tb.RecordTX([]byte("AT+GMM\r"), "AT+GMM")
	tb.RecordRX([]byte("NORA-W36"), "")
	tb.RecordTimeout("waiting for status")
	assert.Equal(t, 3, tb.Len())

	err := tb.WrapError(ErrCommandTimeout)
	require.ErrorIs(t, err, ErrCommandTimeout)

	te := GetTrace(err)
	require.NotNil(t, te)
	assert.Equal(t, "uart", te.Transport)
	assert.Equal(t, "/dev/ttyUSB0", te.Port)
	require.Len(t, te.Trace, 3)
	assert.Equal(t, TraceTX, te.Trace[0].Direction)
	assert.Equal(t, TraceRX, te.Trace[1].Direction)
	assert.Equal(t, "TIMEOUT: waiting for status", te.Trace[2].Note)
}

func TestTraceBuffer_EvictsOldest(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("mock", "test", 3)
	for i := range 5 {
		tb.RecordRX([]byte{byte('a' + i)}, "")
	}
	assert.Equal(t, 3, tb.Len())

	te := GetTrace(tb.WrapError(ErrCommandFailed))
	require.NotNil(t, te)
	assert.Equal(t, []byte("c"), te.Trace[0].Data)
	assert.Equal(t, []byte("e"), te.Trace[2].Data)
}

func TestTraceBuffer_WrapNilAndClear(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("mock", "test", 0)
	require.NoError(t, tb.WrapError(nil))

	tb.RecordTX([]byte("AT"), "")
	tb.Clear()
	assert.Equal(t, 0, tb.Len())
}

func TestTraceBuffer_CopiesData(t *testing.T) {
	t.Parallel()

	tb := NewTraceBuffer("mock", "test", 4)
	data := []byte("OK")
	tb.RecordRX(data, "")
	data[0] = 'X'

	te := GetTrace(tb.WrapError(ErrCommandFailed))
	require.NotNil(t, te)
	assert.Equal(t, []byte("OK"), te.Trace[0].Data)
}

func TestTraceableError_FormatTrace(t *testing.T) {
	t.Parallel()

	te := &TraceableError{
		Err:       ErrCommandFailed,
		Transport: "uart",
		Port:      "COM4",
		Trace: []TraceEntry{
			{Direction: TraceTX, Data: []byte("AT+UBTM?\r"), Note: "AT+UBTM?"},
			{Direction: TraceRX, Data: []byte("ERROR")},
		},
	}

	out := te.FormatTrace()
	assert.Contains(t, out, "[uart:COM4] Wire trace (2 entries):")
	assert.Contains(t, out, `> "AT+UBTM?\r"`)
	assert.Contains(t, out, "(AT+UBTM?)")
	assert.Contains(t, out, `< "ERROR"`)
	assert.Equal(t, ErrCommandFailed.Error(), te.Error())
	assert.ErrorIs(t, te, ErrCommandFailed)
}

func TestTraceableError_FormatTrace_Empty(t *testing.T) {
	t.Parallel()

	te := &TraceableError{Err: ErrCommandTimeout, Transport: "spi", Port: "/dev/spidev0.0"}
	assert.Equal(t, "[spi:/dev/spidev0.0] (no trace data)", te.FormatTrace())
}

func TestHasTraceAndGetTrace(t *testing.T) {
	t.Parallel()

	assert.False(t, HasTrace(nil))
	assert.False(t, HasTrace(ErrCommandFailed))
	assert.Nil(t, GetTrace(ErrCommandFailed))

	tb := NewTraceBuffer("mock", "test", 4)
	wrapped := fmt.Errorf("setup: %w", tb.WrapError(ErrCommandFailed))
	assert.True(t, HasTrace(wrapped))
	assert.NotNil(t, GetTrace(wrapped))
}

func TestTraceEntry_String(t *testing.T) {
	t.Parallel()

	text := TraceEntry{Direction: TraceTX, Data: []byte("AT"), Note: "probe"}
	assert.Contains(t, text.String(), `TX: "AT" (probe)`)

	bin := TraceEntry{Direction: TraceRX, Data: []byte{0x01, 0x00, 0x02}}
	assert.Contains(t, bin.String(), "RX: 01 00 02")
}

func TestFormatHexBytes(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "(empty)", formatHexBytes(nil))
	assert.Equal(t, "DE AD BE EF", formatHexBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF}))

	long := make([]byte, 40)
	out := formatHexBytes(long)
	assert.True(t, strings.HasSuffix(out, "... (40 bytes total)"))
	assert.Equal(t, 32, strings.Count(out, "00"))
}
