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

// Package i2c finds u-connectXpress modules behind SC16IS7xx I2C-to-UART
// bridges. Importing it registers the detector.
package i2c

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ZaparooProject/go-ucx/detection"
	"github.com/ZaparooProject/go-ucx/detection/probe"
	"github.com/ZaparooProject/go-ucx/transport/i2c"
)

const probeTimeout = 2 * time.Second

// probeFn is swapped out in tests.
var probeFn = probeBridge

// globBuses lists the I2C buses of the host; swapped out in tests.
var globBuses = func() []string {
	matches, _ := filepath.Glob("/dev/i2c-*")
	return matches
}

type detector struct{}

// New creates a new I2C detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "i2c"
}

// Detect probes configured bridges and, on Linux, the default bridge
// address on every bus. Passive mode reports configured bridges only.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	if runtime.GOOS != "linux" {
		return nil, detection.ErrUnsupportedPlatform
	}

	var devices []detection.DeviceInfo
	for _, cfg := range candidates() {
		if ctx.Err() != nil {
			return devices, detection.ErrDetectionTimeout
		}
		if detection.IsPathIgnored(cfg.Device, opts.IgnorePaths) {
			continue
		}

		if opts.Mode == detection.Passive {
			if cfg.Configured {
				devices = append(devices, deviceInfo(cfg, detection.Low, nil))
			}
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		res, ok := probeFn(probeCtx, cfg, opts.Mode)
		cancel()
		if ok {
			devices = append(devices, deviceInfo(cfg, res.Confidence, res.Metadata))
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

func candidates() []probe.BridgeConfig {
	configs := probe.LoadBridgeConfigs("i2c")
	for _, bus := range globBuses() {
		configs = append(configs, probe.BridgeConfig{
			Device: fmt.Sprintf("%s:0x%02x", bus, i2c.DefaultAddress),
			Name:   "I2C bridge on " + filepath.Base(bus),
		})
	}
	return probe.DedupeBridgeConfigs(configs)
}

func deviceInfo(cfg probe.BridgeConfig, confidence detection.Confidence,
	extra map[string]string,
) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "i2c",
		Path:       cfg.Device,
		Name:       cfg.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string, len(cfg.Metadata)+len(extra)+1),
	}
	if device.Name == "" {
		device.Name = "I2C bridge at " + cfg.Device
	}
	for k, v := range cfg.Metadata {
		device.Metadata[k] = v
	}
	if cfg.BaudRate > 0 {
		device.Metadata["baud_rate"] = fmt.Sprint(cfg.BaudRate)
	}
	for k, v := range extra {
		device.Metadata[k] = v
	}
	return device
}

// probeBridge opens the bridge, which fails fast when no chip answers the
// scratch pad check, and then sends AT to the module behind it.
func probeBridge(ctx context.Context, cfg probe.BridgeConfig, mode detection.Mode) (probe.Result, bool) {
	if _, err := os.Stat(busPath(cfg.Device)); err != nil {
		return probe.Result{}, false
	}

	var opts []i2c.Option
	if cfg.BaudRate > 0 {
		opts = append(opts, i2c.WithBaudRate(cfg.BaudRate))
	}
	transport, err := i2c.New(cfg.Device, opts...)
	if err != nil {
		return probe.Result{}, false
	}
	defer func() { _ = transport.Close() }()

	res, err := probe.Module(ctx, transport, mode)
	return res, err == nil
}

func busPath(device string) string {
	bus, _, err := i2c.ParsePath(device)
	if err != nil {
		return device
	}
	return bus
}
