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

// Package uart finds u-connectXpress modules on serial ports. Importing it
// registers the detector with the detection package.
package uart

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ucx/detection"
	"github.com/ZaparooProject/go-ucx/detection/probe"
	"github.com/ZaparooProject/go-ucx/transport/uart"
)

// probeTimeout bounds the probe of a single port.
const probeTimeout = 2 * time.Second

// knownBridges are the USB-UART bridges found on u-blox evaluation kits
// and adapter boards.
var knownBridges = []string{
	"0403:6001", // FTDI FT232R
	"0403:6010", // FTDI FT2232 (EVK-NINA, EVK-NORA)
	"0403:6015", // FTDI FT231X
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

// ubloxVID matches modules with native USB.
const ubloxVID = "1546:"

// probeDeviceFn is swapped out in tests.
var probeDeviceFn = probeDevice

// detector implements the Detector interface for UART devices.
type detector struct{}

// New creates a new UART detector
func New() detection.Detector {
	return &detector{}
}

func init() {
	detection.RegisterDetector(New())
}

// Transport returns the transport type
func (*detector) Transport() string {
	return "uart"
}

// Detect lists serial ports, drops blocked and ignored ones and probes the
// rest unless opts.Mode is Passive.
func (d *detector) Detect(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	ports, err := getSerialPorts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var devices []detection.DeviceInfo
	for i := range d.filterPorts(ports, opts) {
		if ctx.Err() != nil {
			break
		}
		if device, ok := d.processPort(ctx, &ports[i], opts); ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// filterPorts returns the indexes of ports worth looking at.
func (*detector) filterPorts(ports []serialPort, opts *detection.Options) []int {
	var keep []int
	for i := range ports {
		port := &ports[i]
		if port.VIDPID != "" && detection.IsBlocked(port.VIDPID, opts.Blocklist) {
			continue
		}
		if detection.IsPathIgnored(port.Path, opts.IgnorePaths) {
			continue
		}
		keep = append(keep, i)
	}
	return keep
}

// processPort decides what a single port is. Passive mode trusts the USB
// identity alone; the other modes only report ports that answered.
func (*detector) processPort(ctx context.Context, port *serialPort,
	opts *detection.Options,
) (detection.DeviceInfo, bool) {
	likely := isLikelyModule(port)

	if opts.Mode == detection.Passive {
		if !likely {
			return detection.DeviceInfo{}, false
		}
		return createDeviceInfo(port, detection.Low, nil), true
	}

	if opts.Mode == detection.Safe && !likely && port.VIDPID == "" {
		// Built-in ports are left alone unless asked for a full scan.
		return detection.DeviceInfo{}, false
	}

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	res, ok := probeDeviceFn(probeCtx, port.Path, opts.Mode)
	if !ok {
		return detection.DeviceInfo{}, false
	}
	return createDeviceInfo(port, res.Confidence, res.Metadata), true
}

// createDeviceInfo builds a DeviceInfo struct from port data
func createDeviceInfo(port *serialPort, confidence detection.Confidence,
	extra map[string]string,
) detection.DeviceInfo {
	device := detection.DeviceInfo{
		Transport:  "uart",
		Path:       port.Path,
		Name:       port.Name,
		Confidence: confidence,
		Metadata:   make(map[string]string),
	}
	if port.VIDPID != "" {
		device.Metadata["vidpid"] = port.VIDPID
	}
	if port.Manufacturer != "" {
		device.Metadata["usb_manufacturer"] = port.Manufacturer
	}
	if port.Product != "" {
		device.Metadata["product"] = port.Product
	}
	if port.SerialNumber != "" {
		device.Metadata["serial"] = port.SerialNumber
	}
	for k, v := range extra {
		device.Metadata[k] = v
	}
	return device
}

// serialPort represents a serial port with metadata
type serialPort struct {
	Path         string
	Name         string
	VIDPID       string
	Manufacturer string
	Product      string
	SerialNumber string
}

// isLikelyModule reports whether the USB identity of a port points at a
// u-blox kit.
func isLikelyModule(port *serialPort) bool {
	vidpid := strings.ToUpper(port.VIDPID)
	if strings.HasPrefix(vidpid, ubloxVID) {
		return true
	}
	for _, known := range knownBridges {
		if vidpid == known {
			return true
		}
	}

	text := strings.ToLower(port.Product + " " + port.Manufacturer)
	for _, keyword := range []string{"u-blox", "ublox", "nora", "nina", "evk"} {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

// probeDevice opens path and sends a single AT. No retry is made: the
// port may belong to a device that does not speak AT at all.
func probeDevice(ctx context.Context, path string, mode detection.Mode) (probe.Result, bool) {
	transport, err := uart.New(path)
	if err != nil {
		return probe.Result{}, false
	}
	defer func() { _ = transport.Close() }()

	res, err := probe.Module(ctx, transport, mode)
	return res, err == nil
}
