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

//nolint:paralleltest // Tests mutate package-level hooks and the environment
package spi

import (
	"context"
	"runtime"
	"testing"

	"github.com/ZaparooProject/go-ucx/detection"
	"github.com/ZaparooProject/go-ucx/detection/probe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubHooks(t *testing.T, nodes []string, answering map[string]probe.Result) *[]string {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("UCX_SPI_DEVICE", "")

	origProbe, origGlob := probeFn, globDevices
	t.Cleanup(func() { probeFn, globDevices = origProbe, origGlob })

	var probed []string
	globDevices = func() []string { return nodes }
	probeFn = func(_ context.Context, cfg probe.BridgeConfig, _ detection.Mode) (probe.Result, bool) {
		probed = append(probed, cfg.Device)
		res, ok := answering[cfg.Device]
		return res, ok
	}
	return &probed
}

func TestDetect_SafeModeProbesConfiguredOnly(t *testing.T) {
	probed := stubHooks(t, []string{"/dev/spidev0.0", "/dev/spidev0.1"}, map[string]probe.Result{
		"/dev/spidev0.1": {Confidence: detection.Medium},
	})
	t.Setenv("UCX_SPI_DEVICE", "/dev/spidev0.1")

	devices, err := New().Detect(context.Background(), &detection.Options{Mode: detection.Safe})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "spi", devices[0].Transport)
	assert.Equal(t, detection.Medium, devices[0].Confidence)
	assert.Equal(t, []string{"/dev/spidev0.1"}, *probed)
}

func TestDetect_FullModeGlobsDevices(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("spidev nodes are Linux only")
	}
	probed := stubHooks(t, []string{"/dev/spidev0.0", "/dev/spidev0.1"}, map[string]probe.Result{
		"/dev/spidev0.0": {Confidence: detection.High, Metadata: map[string]string{"firmware": "3.1.0"}},
	})

	devices, err := New().Detect(context.Background(), &detection.Options{Mode: detection.Full})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "/dev/spidev0.0", devices[0].Path)
	assert.Equal(t, "3.1.0", devices[0].Metadata["firmware"])
	assert.Equal(t, "SPI bridge on spidev0.0", devices[0].Name)
	assert.Equal(t, []string{"/dev/spidev0.0", "/dev/spidev0.1"}, *probed)
}

func TestDetect_Passive(t *testing.T) {
	probed := stubHooks(t, nil, nil)
	t.Setenv("UCX_SPI_DEVICE", "/dev/spidev1.0")

	devices, err := New().Detect(context.Background(), &detection.Options{Mode: detection.Passive})
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, detection.Low, devices[0].Confidence)
	assert.Equal(t, "SPI bridge from environment", devices[0].Name)
	assert.Empty(t, *probed)
}

func TestDetect_NoConfig(t *testing.T) {
	stubHooks(t, []string{"/dev/spidev0.0"}, nil)

	_, err := New().Detect(context.Background(), &detection.Options{Mode: detection.Safe})
	require.ErrorIs(t, err, detection.ErrNoDevicesFound)
}

func TestDetect_Cancelled(t *testing.T) {
	stubHooks(t, nil, nil)
	t.Setenv("UCX_SPI_DEVICE", "/dev/spidev1.0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Detect(ctx, &detection.Options{Mode: detection.Safe})
	require.ErrorIs(t, err, detection.ErrDetectionTimeout)
}
