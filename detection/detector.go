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

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Mode sets how much detection may talk to a candidate port.
type Mode int

const (
	// Passive mode only looks at port descriptors and never opens a port.
	Passive Mode = iota
	// Safe mode opens the port and sends a single AT, expecting OK.
	Safe
	// Full mode also asks the module for its identity with AT+GMM.
	Full
)

// Confidence represents the confidence level of device detection
type Confidence int

const (
	// Low confidence: the port carries a known USB bridge but was not probed.
	Low Confidence = iota
	// Medium confidence: something answered AT with OK.
	Medium
	// High confidence: the module identified itself.
	High
)

func (c Confidence) String() string {
	switch c {
	case Low:
		return "low"
	case Medium:
		return "medium"
	case High:
		return "high"
	default:
		return "unknown"
	}
}

// DeviceInfo describes a port that looks like a u-connectXpress module.
type DeviceInfo struct {
	// Metadata such as "vidpid", "serial" or "model".
	Metadata map[string]string
	// Transport type: "uart", "i2c", "spi"
	Transport string
	// Connection path (e.g., "/dev/ttyUSB0", "COM3")
	Path string
	// Human-readable device name
	Name string
	// Detection confidence level
	Confidence Confidence
}

// String returns a human-readable representation of the device
func (d DeviceInfo) String() string {
	return fmt.Sprintf("%s device at %s (confidence: %s)", d.Transport, d.Path, d.Confidence)
}

// Options configures the detection behavior
type Options struct {
	// USB VID:PID pairs to skip (e.g., ["1234:5678", "ABCD:EF01"])
	Blocklist []string
	// Device paths to explicitly ignore (e.g., ["/dev/ttyUSB0", "COM2"])
	IgnorePaths []string
	// Which transports to check (empty = all)
	Transports []string
	// Cache TTL duration
	CacheTTL time.Duration
	// Maximum time to wait for detection
	Timeout time.Duration
	// Detection invasiveness level
	Mode Mode
	// Enable result caching
	EnableCache bool
}

// DefaultOptions returns sensible default detection options
func DefaultOptions() Options {
	return Options{
		Mode:        Safe,
		Timeout:     5 * time.Second,
		Blocklist:   DefaultBlocklist(),
		EnableCache: true,
		CacheTTL:    30 * time.Second,
	}
}

// Detector interface for transport-specific device detection
type Detector interface {
	// Detect searches for devices using the given options
	Detect(ctx context.Context, opts *Options) ([]DeviceInfo, error)
	// Transport returns the transport type this detector handles
	Transport() string
}

// Errors
var (
	// ErrNoDevicesFound indicates no module answered on any port.
	ErrNoDevicesFound = errors.New("no u-connectXpress modules found")
	// ErrDetectionTimeout indicates detection timed out
	ErrDetectionTimeout = errors.New("detection timeout")
	// ErrUnsupportedPlatform indicates the platform doesn't support this detection method
	ErrUnsupportedPlatform = errors.New("platform not supported")
)

var (
	registry   []Detector
	registryMu sync.Mutex
)

// RegisterDetector adds a detector to the registry. Transport packages
// call it from init.
func RegisterDetector(d Detector) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = append(registry, d)
}

// getDetectors returns detectors filtered by transport types
func getDetectors(transports []string) []Detector {
	registryMu.Lock()
	defer registryMu.Unlock()

	if len(transports) == 0 {
		return append([]Detector(nil), registry...)
	}

	var filtered []Detector
	for _, d := range registry {
		for _, t := range transports {
			if d.Transport() == t {
				filtered = append(filtered, d)
				break
			}
		}
	}
	return filtered
}

// DetectAll runs every registered detector in parallel and merges their
// results. Devices are returned even when some detectors failed; the
// first failure is returned only when nothing was found.
func DetectAll(ctx context.Context, opts *Options) ([]DeviceInfo, error) {
	if opts == nil {
		defaults := DefaultOptions()
		opts = &defaults
	}
	detectors := getDetectors(opts.Transports)
	if len(detectors) == 0 {
		return nil, errors.New("no detectors available for specified transports")
	}

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	found := make([][]DeviceInfo, len(detectors))
	errs := make([]error, len(detectors))

	// Detector errors are collected rather than returned so one broken
	// transport does not cancel the others.
	var g errgroup.Group
	for i, d := range detectors {
		g.Go(func() error {
			found[i], errs[i] = runSingleDetector(ctx, d, opts)
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ErrDetectionTimeout
	}

	var all []DeviceInfo
	for _, devices := range found {
		all = append(all, devices...)
	}
	if len(all) > 0 {
		return all, nil
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return nil, ErrNoDevicesFound
}

// runSingleDetector performs detection for a single detector
func runSingleDetector(ctx context.Context, detector Detector, opts *Options) ([]DeviceInfo, error) {
	if opts.EnableCache {
		if cached, found := getCached(detector.Transport(), opts.Mode, opts.CacheTTL); found {
			// Cached entries never went through the current options.
			return filterDevices(cached, opts), nil
		}
	}

	devices, err := detector.Detect(ctx, opts)
	if err != nil && !errors.Is(err, ErrNoDevicesFound) {
		return nil, err
	}

	if opts.EnableCache {
		if len(devices) > 0 {
			setCached(detector.Transport(), opts.Mode, devices)
		} else {
			// A module that was unplugged must not linger until the TTL.
			clearCacheForTransport(detector.Transport())
		}
	}
	return devices, nil
}

// filterDevices applies IgnorePaths and Blocklist filtering to a device list.
func filterDevices(devices []DeviceInfo, opts *Options) []DeviceInfo {
	if len(opts.IgnorePaths) == 0 && len(opts.Blocklist) == 0 {
		return devices
	}

	var filtered []DeviceInfo
	for _, device := range devices {
		if IsPathIgnored(device.Path, opts.IgnorePaths) {
			continue
		}
		if vidpid, ok := device.Metadata["vidpid"]; ok && IsBlocked(vidpid, opts.Blocklist) {
			continue
		}
		filtered = append(filtered, device)
	}
	return filtered
}

// ClearDetectionCache removes all cached detection results
func ClearDetectionCache() {
	clearCache()
}

// ClearDetectionCacheForTransport removes cached results for a specific transport
func ClearDetectionCacheForTransport(transport string) {
	clearCacheForTransport(transport)
}
