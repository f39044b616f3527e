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

// Package spi finds u-connectXpress modules behind SC16IS7xx SPI-to-UART
// bridges. Importing it registers the detector.
package spi

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ZaparooProject/go-ucx/detection"
	"github.com/ZaparooProject/go-ucx/detection/probe"
	"github.com/ZaparooProject/go-ucx/transport/spi"
)

const probeTimeout = 2 * time.Second

var (
	// probeFn is swapped out in tests.
	probeFn = probeBridge

	globDevices = func() []string {
		matches, _ := filepath.Glob("/dev/spidev*")
		return matches
	}
)

// detector implements the Detector interface for SPI devices
type detector struct{}

// New creates a new SPI detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "spi"
}

// gatherConfigs collects configured bridges followed by every spidev node.
// Globbed nodes are only probed in Full mode: a write to a chip select
// wired to something else is not harmless.
func gatherConfigs(mode detection.Mode) []probe.BridgeConfig {
	configs := probe.LoadBridgeConfigs("spi")
	if mode == detection.Full && runtime.GOOS == "linux" {
		for _, path := range globDevices() {
			configs = append(configs, probe.BridgeConfig{
				Device: path,
				Name:   "SPI bridge on " + filepath.Base(path),
			})
		}
	}
	return probe.DedupeBridgeConfigs(configs)
}

// Detect probes the SPI bridges it knows about.
func (*detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	configs := gatherConfigs(opts.Mode)
	if len(configs) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, cfg := range configs {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		if detection.IsPathIgnored(cfg.Device, opts.IgnorePaths) {
			continue
		}

		device := createDeviceInfo(cfg)
		if opts.Mode == detection.Passive {
			devices = append(devices, device)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		res, ok := probeFn(probeCtx, cfg, opts.Mode)
		cancel()
		if !ok {
			continue
		}
		device.Confidence = res.Confidence
		for k, v := range res.Metadata {
			device.Metadata[k] = v
		}
		devices = append(devices, device)
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// createDeviceInfo creates a DeviceInfo from a BridgeConfig
func createDeviceInfo(cfg probe.BridgeConfig) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "spi",
		Path:       cfg.Device,
		Name:       cfg.Name,
		Confidence: detection.Low,
		Metadata:   make(map[string]string),
	}
	for k, v := range cfg.Metadata {
		device.Metadata[k] = v
	}
	if cfg.BaudRate > 0 {
		device.Metadata["baud_rate"] = fmt.Sprint(cfg.BaudRate)
	}
	if device.Name == "" {
		device.Name = "SPI bridge at " + cfg.Device
	}
	return device
}

func probeBridge(ctx context.Context, cfg probe.BridgeConfig, mode detection.Mode) (probe.Result, bool) {
	if _, err := os.Stat(cfg.Device); err != nil {
		return probe.Result{}, false
	}

	var opts []spi.Option
	if cfg.BaudRate > 0 {
		opts = append(opts, spi.WithBaudRate(cfg.BaudRate))
	}
	transport, err := spi.New(cfg.Device, opts...)
	if err != nil {
		return probe.Result{}, false
	}
	defer func() { _ = transport.Close() }()

	res, err := probe.Module(ctx, transport, mode)
	return res, err == nil
}
