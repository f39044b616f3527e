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

//go:build linux

package uart

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

const sysTTY = "/sys/class/tty"

// onboardPatterns are UARTs wired directly to the host, as on a Raspberry
// Pi carrying a module on its header.
var onboardPatterns = []string{"/dev/ttyAMA*", "/dev/ttyS*", "/dev/serial0"}

// fallbackPatterns are used when sysfs is unavailable.
var fallbackPatterns = []string{"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyAMA*", "/dev/ttyS*"}

// getSerialPorts lists USB serial ports from sysfs, with their USB
// descriptors, followed by the onboard UARTs.
func getSerialPorts(ctx context.Context) ([]serialPort, error) {
	ports := usbPorts(ctx)
	ports = append(ports, globPorts(onboardPatterns, ports)...)
	if len(ports) == 0 {
		return globPorts(fallbackPatterns, nil), nil
	}
	return ports, nil
}

func usbPorts(ctx context.Context) []serialPort {
	entries, err := os.ReadDir(sysTTY)
	if err != nil {
		return nil
	}

	var ports []serialPort
	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		resolved, err := filepath.EvalSymlinks(filepath.Join(sysTTY, entry.Name(), "device"))
		if err != nil || !strings.Contains(resolved, "/usb") {
			continue
		}
		port := serialPort{Path: "/dev/" + entry.Name(), Name: entry.Name()}
		findUSBDevice(&port, resolved)
		ports = append(ports, port)
	}
	return ports
}

// findUSBDevice walks up from the tty interface to the USB device node,
// which is the first directory holding idVendor.
func findUSBDevice(port *serialPort, dir string) {
	for range 8 {
		if !strings.HasPrefix(filepath.Clean(dir), "/sys/") {
			return
		}
		vid, ok := readAttr(dir, "idVendor")
		if ok {
			pid, _ := readAttr(dir, "idProduct")
			port.VIDPID = strings.ToUpper(vid + ":" + pid)
			port.Manufacturer, _ = readAttr(dir, "manufacturer")
			port.Product, _ = readAttr(dir, "product")
			port.SerialNumber, _ = readAttr(dir, "serial")
			return
		}
		dir = filepath.Dir(dir)
	}
}

func readAttr(dir, name string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(dir, name)) //nolint:gosec // dir is checked to be under /sys
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// globPorts returns the existing device nodes matching patterns that are
// not already in known.
func globPorts(patterns []string, known []serialPort) []serialPort {
	seen := make(map[string]bool, len(known))
	for _, p := range known {
		seen[p.Path] = true
	}

	var ports []serialPort
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(pattern)
		for _, path := range matches {
			if seen[path] {
				continue
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			seen[path] = true
			ports = append(ports, serialPort{Path: path, Name: filepath.Base(path)})
		}
	}
	return ports
}
