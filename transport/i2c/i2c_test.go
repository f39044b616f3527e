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

package i2c

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/internal/sc16is7xx"
	virt "github.com/ZaparooProject/go-ucx/internal/testing"
)

type fakeCloser struct {
	closed int
}

func (f *fakeCloser) Close() error {
	f.closed++
	return nil
}

// silentBus answers every read with zeros, like an empty address.
type silentBus struct{}

func (silentBus) Tx(_, r []byte) error {
	clear(r)
	return nil
}

func defaultOptions() options {
	return options{baudRate: ucx.DefaultBaudRate, crystal: sc16is7xx.DefaultCrystal}
}

func newTestTransport(t *testing.T) (*Transport, *virt.VirtualModule, *virt.VirtualBridge, *fakeCloser) {
	t.Helper()
	module := virt.NewVirtualModule()
	bridge := virt.NewVirtualBridge(module, false)
	closer := &fakeCloser{}
	tr, err := newTransport(bridge, closer, "mock://i2c:0x48", defaultOptions())
	require.NoError(t, err)
	return tr, module, bridge, closer
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		wantBus  string
		wantAddr uint16
		wantErr  bool
	}{
		{name: "bare bus", path: "/dev/i2c-1", wantBus: "/dev/i2c-1", wantAddr: DefaultAddress},
		{name: "hex address", path: "/dev/i2c-1:0x4D", wantBus: "/dev/i2c-1", wantAddr: 0x4D},
		{name: "decimal address", path: "1:77", wantBus: "1", wantAddr: 77},
		{name: "bad address", path: "/dev/i2c-1:zz", wantErr: true},
		{name: "address too large", path: "/dev/i2c-1:0x80", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bus, addr, err := ParsePath(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ucx.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBus, bus)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestTransport_WithClient(t *testing.T) {
	t.Parallel()

	tr, module, bridge, _ := newTestTransport(t)
	assert.Equal(t, uint16(8), bridge.Divisor())
	assert.Equal(t, ucx.TransportI2C, tr.Type())

	client, err := ucx.New(tr)
	require.NoError(t, err)
	defer func() { _ = client.Close() }()

	require.NoError(t, client.Exec("AT"))

	var manufacturer string
	cmd := client.Begin("AT+GMI")
	_, err = cmd.ResponseParams("", nil, ucx.StringOut(&manufacturer))
	require.NoError(t, err)
	require.NoError(t, cmd.End())
	assert.Equal(t, "u-blox", manufacturer)
	assert.Equal(t, []string{"AT", "AT+GMI"}, module.Commands())
}

func TestTransport_SetBaudRate(t *testing.T) {
	t.Parallel()

	tr, _, bridge, _ := newTestTransport(t)

	require.NoError(t, tr.SetBaudRate(921600))
	assert.Equal(t, uint16(1), bridge.Divisor())
	assert.Equal(t, 921600, tr.BaudRate())

	err := tr.SetBaudRate(1)
	require.ErrorIs(t, err, ucx.ErrInvalidParameter)
	assert.Equal(t, 921600, tr.BaudRate())
}

func TestTransport_CloseAndErrors(t *testing.T) {
	t.Parallel()

	tr, _, bridge, closer := newTestTransport(t)

	bridge.SetTxFull(true)
	tr.bridge = sc16is7xx.New(bridge, sc16is7xx.Config{WriteTimeout: 10 * time.Millisecond})
	_, err := tr.Write([]byte("AT\r"))
	require.Error(t, err)
	var te *ucx.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, ucx.ErrorTypeTimeout, te.Type)
	assert.True(t, ucx.IsRetryable(err))

	busErr := errors.New("remote I/O error")
	bridge.SetFailure(busErr)
	_, err = tr.Read(make([]byte, 4), 0)
	assert.ErrorIs(t, err, busErr)

	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	assert.Equal(t, 1, closer.closed)

	_, err = tr.Read(make([]byte, 4), 0)
	assert.True(t, ucx.IsFatal(err))
	_, err = tr.Write([]byte("AT\r"))
	assert.ErrorIs(t, err, ucx.ErrTransportClosed)
}

func TestNewTransport_NoBridge(t *testing.T) {
	t.Parallel()

	_, err := newTransport(silentBus{}, &fakeCloser{}, "mock://empty", defaultOptions())
	require.ErrorIs(t, err, ucx.ErrTransportNotReady)
	assert.ErrorIs(t, err, sc16is7xx.ErrNoChip)
	assert.True(t, ucx.IsRetryable(err), "a bridge that is still powering up can be retried")
}
