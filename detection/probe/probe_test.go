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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/detection"
	virt "github.com/ZaparooProject/go-ucx/internal/testing"
)

type simTransport struct{ *virt.VirtualModule }

func (simTransport) Type() ucx.TransportType { return ucx.TransportMock }

func TestModule_Modes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantMeta     map[string]string
		name         string
		wantCommands []string
		mode         detection.Mode
		want         detection.Confidence
	}{
		{
			name:         "safe",
			mode:         detection.Safe,
			wantCommands: []string{"AT"},
			want:         detection.Medium,
		},
		{
			name:         "full",
			mode:         detection.Full,
			wantCommands: []string{"AT", "AT+GMI", "AT+GMM", "AT+GMR"},
			want:         detection.High,
			wantMeta: map[string]string{
				"manufacturer": "u-blox",
				"model":        "NORA-W36",
				"firmware":     "3.1.0-150",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			module := virt.NewVirtualModule()

			res, err := Module(context.Background(), simTransport{module}, tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Confidence)
			assert.Equal(t, tt.wantMeta, res.Metadata)
			assert.Equal(t, tt.wantCommands, module.Commands())
		})
	}
}

func TestModule_Failures(t *testing.T) {
	t.Parallel()

	t.Run("passive", func(t *testing.T) {
		t.Parallel()
		module := virt.NewVirtualModule()
		_, err := Module(context.Background(), simTransport{module}, detection.Passive)
		require.ErrorIs(t, err, ucx.ErrInvalidParameter)
		assert.Empty(t, module.Commands())
	})

	t.Run("error status", func(t *testing.T) {
		t.Parallel()
		module := virt.NewVirtualModule()
		module.Respond("AT", virt.ERROR)
		_, err := Module(context.Background(), simTransport{module}, detection.Safe)
		assert.ErrorIs(t, err, ucx.ErrCommandFailed)
	})

	t.Run("silent device", func(t *testing.T) {
		t.Parallel()
		module := virt.NewVirtualModule()
		module.Respond("AT", "")
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := Module(ctx, simTransport{module}, detection.Safe)
		require.ErrorIs(t, err, ucx.ErrCommandTimeout)
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("identity fails", func(t *testing.T) {
		t.Parallel()
		module := virt.NewVirtualModule()
		module.Respond("AT+GMM", virt.ExtendedError(3))
		res, err := Module(context.Background(), simTransport{module}, detection.Full)
		require.ErrorIs(t, err, ucx.ErrCommandFailed)
		assert.Equal(t, "u-blox", res.Metadata["manufacturer"])
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		module := virt.NewVirtualModule()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := Module(ctx, simTransport{module}, detection.Safe)
		require.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, module.Commands())
	})
}
