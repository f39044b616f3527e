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

package sc16is7xx

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	virt "github.com/ZaparooProject/go-ucx/internal/testing"
)

// recordingBus keeps every transfer and answers reads with zeros.
type recordingBus struct {
	writes [][]byte
	reads  []int
}

func (b *recordingBus) Tx(w, r []byte) error {
	b.writes = append(b.writes, append([]byte(nil), w...))
	b.reads = append(b.reads, len(r))
	clear(r)
	return nil
}

func fastConfig(spi bool) Config {
	return Config{
		SPI:          spi,
		PollInterval: time.Millisecond,
		WriteTimeout: 20 * time.Millisecond,
	}
}

func TestDivisor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		crystal int
		baud    int
		want    uint16
		wantErr bool
	}{
		{name: "115200", crystal: DefaultCrystal, baud: 115200, want: 8},
		{name: "9600", crystal: DefaultCrystal, baud: 9600, want: 96},
		{name: "921600", crystal: DefaultCrystal, baud: 921600, want: 1},
		{name: "rounded", crystal: 1_843_200, baud: 115200, want: 1},
		{name: "too fast", crystal: 1_843_200, baud: 921600, wantErr: true},
		{name: "too slow", crystal: DefaultCrystal, baud: 10, wantErr: true},
		{name: "zero", crystal: DefaultCrystal, baud: 0, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Divisor(tt.crystal, tt.baud)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBaudRate)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddressFraming(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		wantWrite []byte
		wantRead  []byte
		channel   byte
		spi       bool
	}{
		{name: "i2c channel A", wantRead: []byte{0x48}, wantWrite: []byte{0x18, 0x03}},
		{name: "i2c channel B", channel: 1, wantRead: []byte{0x4A}, wantWrite: []byte{0x1A, 0x03}},
		{name: "spi channel A", spi: true, wantRead: []byte{0xC8, 0x00}, wantWrite: []byte{0x18, 0x03}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			bus := &recordingBus{}
			cfg := fastConfig(tt.spi)
			cfg.Channel = tt.channel
			b := New(bus, cfg)

			_, err := b.RxLevel()
			require.NoError(t, err)
			require.NoError(t, b.WriteRegister(RegLCR, LCRWordLen8))

			require.Len(t, bus.writes, 2)
			assert.Equal(t, tt.wantRead, bus.writes[0])
			assert.Equal(t, tt.wantWrite, bus.writes[1])
			assert.Equal(t, 0, bus.reads[1])
		})
	}
}

func TestInit(t *testing.T) {
	t.Parallel()

	for _, spi := range []bool{false, true} {
		bridge := virt.NewVirtualBridge(virt.NewVirtualModule(), spi)
		b := New(bridge, fastConfig(spi))

		require.NoError(t, b.Init(115200))
		assert.Equal(t, uint16(8), bridge.Divisor())
		assert.Equal(t, byte(LCRWordLen8), bridge.Register(RegLCR))
		assert.Equal(t, byte(FCREnable|FCRResetRX|FCRResetTX), bridge.Register(RegFCR))

		require.NoError(t, b.SetBaudRate(921600))
		assert.Equal(t, uint16(1), bridge.Divisor())
		assert.Equal(t, byte(LCRWordLen8), bridge.Register(RegLCR))
	}
}

func TestInit_NoChip(t *testing.T) {
	t.Parallel()

	b := New(&recordingBus{}, fastConfig(false))
	assert.ErrorIs(t, b.Init(115200), ErrNoChip)
}

func TestReadWrite(t *testing.T) {
	t.Parallel()

	for _, spi := range []bool{false, true} {
		module := virt.NewVirtualModule()
		bridge := virt.NewVirtualBridge(module, spi)
		b := New(bridge, fastConfig(spi))
		require.NoError(t, b.Init(115200))

		n, err := b.Write([]byte("AT+GMM\r"))
		require.NoError(t, err)
		assert.Equal(t, 7, n)
		assert.Equal(t, []string{"AT+GMM"}, module.Commands())

		var got []byte
		buf := make([]byte, 4)
		for len(got) < len("NORA-W36\r\nOK\r\n") {
			n, err := b.Read(buf, 50*time.Millisecond)
			require.NoError(t, err)
			require.NotZero(t, n)
			got = append(got, buf[:n]...)
		}
		assert.Equal(t, "NORA-W36\r\nOK\r\n", string(got))
	}
}

func TestWrite_LongerThanFIFO(t *testing.T) {
	t.Parallel()

	module := virt.NewVirtualModule()
	bridge := virt.NewVirtualBridge(module, false)
	b := New(bridge, fastConfig(false))

	long := make([]byte, 3*FIFOSize+5)
	for i := range long {
		long[i] = 'A'
	}
	n, err := b.Write(long)
	require.NoError(t, err)
	assert.Equal(t, len(long), n)
	assert.Equal(t, len(long), bridge.TxBytes())
}

func TestRead_Timeouts(t *testing.T) {
	t.Parallel()

	bridge := virt.NewVirtualBridge(virt.NewVirtualModule(), false)
	b := New(bridge, fastConfig(false))
	buf := make([]byte, 8)

	start := time.Now()
	n, err := b.Read(buf, 0)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), 20*time.Millisecond)

	start = time.Now()
	n, err = b.Read(buf, 30*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestWrite_FIFOFull(t *testing.T) {
	t.Parallel()

	bridge := virt.NewVirtualBridge(virt.NewVirtualModule(), false)
	bridge.SetTxFull(true)
	b := New(bridge, fastConfig(false))

	n, err := b.Write([]byte("AT\r"))
	assert.ErrorIs(t, err, ErrWriteTimeout)
	assert.Zero(t, n)
}

func TestBusError(t *testing.T) {
	t.Parallel()

	busErr := errors.New("remote I/O error")
	bridge := virt.NewVirtualBridge(virt.NewVirtualModule(), false)
	bridge.SetFailure(busErr)
	b := New(bridge, fastConfig(false))

	_, err := b.Read(make([]byte, 4), 0)
	require.ErrorIs(t, err, busErr)
	_, err = b.Write([]byte("AT\r"))
	require.ErrorIs(t, err, busErr)
}
