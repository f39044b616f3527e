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

package ucx

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-ucx/detection"
)

// TransportFactory opens a transport for a device path.
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory opens a transport for a detected device.
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// DeviceDetector lists candidate modules. detection.DetectAll is the default.
type DeviceDetector func(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error)

// ConnectOption configures Connect
type ConnectOption func(*connectConfig) error

// connectConfig holds configuration options for Connect
type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         DeviceDetector
	clientOptions          []Option
	connectionRetries      int
	autoDetect             bool
	skipProbe              bool
}

// WithAutoDetection enables automatic device detection
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithClientOptions passes options through to New.
func WithClientOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.clientOptions = append(c.clientOptions, opts...)
		return nil
	}
}

// WithTransportFactory sets the factory used for an explicit device path.
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the factory used for auto-detected devices.
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets how many AT probes are attempted after the
// transport is open.
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("%w: connection retries must be at least 1", ErrInvalidParameter)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector replaces detection.DetectAll, mostly for tests.
func WithDeviceDetector(detector DeviceDetector) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

// WithoutProbe skips the AT probe, for modules sitting in a bootloader.
func WithoutProbe() ConnectOption {
	return func(c *connectConfig) error {
		c.skipProbe = true
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		connectionRetries: DefaultConnectionRetries,
	}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	return config, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, string, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config.transportDeviceFactory, config.deviceDetector)
	}
	transport, err := createManualTransport(path, config.transportFactory)
	return transport, path, err
}

// Connect opens a transport, either for path or for the first auto-detected
// module, creates a client on it and probes the module with AT.
func Connect(ctx context.Context, path string, opts ...ConnectOption) (*Client, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply connect options: %w", err)
	}

	transport, port, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	clientOpts := append([]Option{WithPort(port)}, config.clientOptions...)
	client, err := New(transport, clientOpts...)
	if err != nil {
		_ = transport.Close()
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	if config.skipProbe {
		return client, nil
	}

	if err := client.Probe(ctx, ConnectionRetryConfig(config.connectionRetries)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to set up module after %d attempts: %w", config.connectionRetries, err)
	}
	return client, nil
}

// createManualTransport handles creation of transport for a specific path
func createManualTransport(path string, factory TransportFactory) (Transport, error) {
	if factory == nil {
		return nil, errors.New("transport factory not provided")
	}

	transport, err := factory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

// createAutoDetectedTransport handles auto-detection of devices
func createAutoDetectedTransport(
	ctx context.Context,
	factory TransportFromDeviceFactory,
	detector DeviceDetector,
) (Transport, string, error) {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	var devices []detection.DeviceInfo
	var err error
	if detector == nil {
		detector = detection.DetectAll
	}
	devices, err = detector(ctx, &opts)
	if err != nil {
		return nil, "", fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, "", fmt.Errorf("%w: no u-connectXpress modules found", ErrDeviceNotFound)
	}

	device := devices[0]
	if factory == nil {
		return nil, "", errors.New("transport device factory not provided")
	}
	Debugf("auto-detected %s module at %s", device.Transport, device.Path)
	transport, err := factory(device)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", device.Path, err)
	}
	return transport, device.Path, nil
}
