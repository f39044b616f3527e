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

// Command ucx talks to a u-connectXpress module: it runs AT commands,
// prints URCs and updates firmware.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/detection"
	_ "github.com/ZaparooProject/go-ucx/detection/i2c"
	_ "github.com/ZaparooProject/go-ucx/detection/spi"
	_ "github.com/ZaparooProject/go-ucx/detection/uart"
	"github.com/ZaparooProject/go-ucx/transport/i2c"
	"github.com/ZaparooProject/go-ucx/transport/spi"
	"github.com/ZaparooProject/go-ucx/transport/uart"
)

// defaultCommands run when neither -exec, -listen nor -firmware is given.
const defaultCommands = "AT+GMI;AT+GMM;AT+GMR"

type config struct {
	device     string
	exec       string
	firmware   string
	logDir     string
	baud       int
	fwBaud     int
	timeout    time.Duration
	listen     bool
	bootloader bool
	debug      bool
	log        bool
}

func parseConfig(args []string, stderr io.Writer) (*config, error) {
	cfg := &config{}
	fs := flag.NewFlagSet("ucx", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfg.device, "device", "", "Device path (auto-detect if empty)")
	fs.IntVar(&cfg.baud, "baud", ucx.DefaultBaudRate, "UART speed to the module")
	fs.StringVar(&cfg.exec, "exec", "", "AT commands to run, separated by ';'")
	fs.BoolVar(&cfg.listen, "listen", false, "Print URCs until interrupted")
	fs.StringVar(&cfg.firmware, "firmware", "", "Firmware image to send over XMODEM")
	fs.IntVar(&cfg.fwBaud, "fw-baud", 0, "Line speed for the firmware transfer (0 keeps -baud)")
	fs.BoolVar(&cfg.bootloader, "bootloader", false, "Module already waits in its bootloader")
	fs.DurationVar(&cfg.timeout, "timeout", ucx.DefaultCommandTimeout, "Command timeout")
	fs.BoolVar(&cfg.debug, "debug", false, "Enable debug output")
	fs.BoolVar(&cfg.log, "log", false, "Write a session log")
	fs.StringVar(&cfg.logDir, "log-dir", "", "Session log directory (default $"+ucx.LogDirEnv+" or the working directory)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	if cfg.baud <= 0 || cfg.fwBaud < 0 {
		return nil, fmt.Errorf("%w: baud rate must be positive", ucx.ErrInvalidParameter)
	}
	if cfg.timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive", ucx.ErrInvalidParameter)
	}
	if cfg.bootloader && cfg.firmware == "" {
		return nil, errors.New("-bootloader needs -firmware")
	}

	if cfg.logDir != "" {
		cfg.log = true
	}
	if cfg.debug {
		ucx.SetDebugEnabled(true)
	}
	return cfg, nil
}

// newTransportFromDevice opens the transport a detector reported. Bridge
// detectors may carry the module speed in the metadata.
func newTransportFromDevice(device detection.DeviceInfo, baud int) (ucx.Transport, error) {
	if v, ok := device.Metadata["baud_rate"]; ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			baud = n
		}
	}

	switch strings.ToLower(device.Transport) {
	case "uart":
		transport, err := uart.New(device.Path, uart.WithBaudRate(baud))
		if err != nil {
			return nil, fmt.Errorf("failed to create UART transport: %w", err)
		}
		return transport, nil
	case "i2c":
		transport, err := i2c.New(device.Path, i2c.WithBaudRate(baud))
		if err != nil {
			return nil, fmt.Errorf("failed to create I2C transport: %w", err)
		}
		return transport, nil
	case "spi":
		transport, err := spi.New(device.Path, spi.WithBaudRate(baud))
		if err != nil {
			return nil, fmt.Errorf("failed to create SPI transport: %w", err)
		}
		return transport, nil
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", device.Transport)
	}
}

// transportKind guesses the transport from a device path.
func transportKind(path string) string {
	lower := strings.ToLower(path)
	switch {
	case strings.Contains(lower, "i2c"):
		return "i2c"
	case strings.Contains(lower, "spi"):
		return "spi"
	default:
		return "uart"
	}
}

// newTransport opens an explicit device path.
func newTransport(path string, baud int) (ucx.Transport, error) {
	if path == "" {
		return nil, errors.New("empty device path")
	}
	return newTransportFromDevice(detection.DeviceInfo{Transport: transportKind(path), Path: path}, baud)
}

func clientOptions(cfg *config) []ucx.Option {
	opts := []ucx.Option{ucx.WithCommandTimeout(cfg.timeout)}
	if cfg.listen {
		opts = append(opts, ucx.WithURCQueue(0, ucx.DropOldest))
	}
	if cfg.debug {
		opts = append(opts, ucx.WithTrace(0))
	}
	return opts
}

func connect(ctx context.Context, cfg *config) (*ucx.Client, error) {
	connectOpts := []ucx.ConnectOption{
		ucx.WithTransportFactory(func(path string) (ucx.Transport, error) {
			return newTransport(path, cfg.baud)
		}),
		ucx.WithTransportFromDeviceFactory(func(device detection.DeviceInfo) (ucx.Transport, error) {
			return newTransportFromDevice(device, cfg.baud)
		}),
		ucx.WithClientOptions(clientOptions(cfg)...),
	}
	if cfg.device == "" {
		connectOpts = append(connectOpts, ucx.WithAutoDetection())
		ucx.Debugln("Auto-detecting u-connectXpress modules...")
	}
	if cfg.bootloader {
		connectOpts = append(connectOpts, ucx.WithoutProbe())
	}

	client, err := ucx.Connect(ctx, cfg.device, connectOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to module: %w", err)
	}
	return client, nil
}

func run(ctx context.Context, cfg *config, out io.Writer) error {
	if cfg.log {
		path, err := ucx.InitSessionLog(cfg.logDir)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(out, "Session log: %s\n", path)
		defer func() { _ = ucx.CloseSessionLog() }()
	}

	client, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	ucx.AnnotateSessionLog("transport", string(client.Transport().Type()))
	if cfg.device != "" {
		ucx.AnnotateSessionLog("device", cfg.device)
	}
	defer func() {
		if err := client.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close module: %v\n", err)
		}
	}()

	if cfg.firmware != "" {
		// The module restarts into the new firmware; nothing else can run.
		return runFirmware(ctx, client, cfg, out)
	}

	commands := splitCommands(cfg.exec)
	if len(commands) == 0 && !cfg.listen {
		commands = splitCommands(defaultCommands)
	}
	if err := runExec(client, commands, out); err != nil {
		return err
	}
	if cfg.listen {
		return runListen(ctx, client, func(ctx context.Context) (*ucx.Client, error) {
			return connect(ctx, cfg)
		}, out)
	}
	return nil
}

func main() {
	os.Exit(mainWithExitCode(os.Args[1:]))
}

func mainWithExitCode(args []string) int {
	cfg, err := parseConfig(args, os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Stdout); err != nil {
		if errors.Is(err, context.Canceled) {
			// User requested shutdown, exit cleanly
			return 0
		}
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}
