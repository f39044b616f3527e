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

package probe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestReadBridgeFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		want    []BridgeConfig
		wantErr bool
	}{
		{
			name: "array",
			body: `[{"device":"/dev/i2c-1:0x48","baud_rate":460800},{"device":"/dev/i2c-3"}]`,
			want: []BridgeConfig{
				{Device: "/dev/i2c-1:0x48", BaudRate: 460800, Configured: true},
				{Device: "/dev/i2c-3", Configured: true},
			},
		},
		{
			name: "single object",
			body: `{"device":"/dev/spidev0.1","name":"hat","metadata":{"board":"pi"}}`,
			want: []BridgeConfig{{
				Device:     "/dev/spidev0.1",
				Name:       "hat",
				Metadata:   map[string]string{"board": "pi"},
				Configured: true,
			}},
		},
		{name: "garbage", body: `device=/dev/i2c-1`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, t.TempDir(), "i2c.json", tt.body)

			got, err := readBridgeFile(path)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

//nolint:paralleltest // t.Setenv
func TestLoadBridgeConfigs_HomeAndEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("UCX_SPI_DEVICE", "/dev/spidev1.0")
	t.Setenv("UCX_SPI_BAUD", "921600")
	writeConfig(t, filepath.Join(home, ".config", "ucx"), "spi.json", `{"device":"/dev/spidev0.0"}`)

	got := LoadBridgeConfigs("spi")
	require.Len(t, got, 2)
	assert.Equal(t, "/dev/spidev0.0", got[0].Device)
	assert.Equal(t, "/dev/spidev1.0", got[1].Device)
	assert.Equal(t, 921600, got[1].BaudRate)
	assert.True(t, got[1].Configured)
}

//nolint:paralleltest // t.Setenv
func TestLoadBridgeConfigs_Nothing(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("UCX_I2C_DEVICE", "")

	assert.Empty(t, LoadBridgeConfigs("i2c"))
}

func TestDedupeBridgeConfigs(t *testing.T) {
	t.Parallel()

	got := DedupeBridgeConfigs([]BridgeConfig{
		{Device: "/dev/i2c-1:0x48", Configured: true, BaudRate: 460800},
		{Device: ""},
		{Device: "/dev/i2c-1:0x48"},
		{Device: "/dev/i2c-3:0x48"},
	})
	assert.Equal(t, []BridgeConfig{
		{Device: "/dev/i2c-1:0x48", Configured: true, BaudRate: 460800},
		{Device: "/dev/i2c-3:0x48"},
	}, got)
}
