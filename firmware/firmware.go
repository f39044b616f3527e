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

// Package firmware updates u-connectXpress modules over their AT
// interface. The module is told to enter its bootloader (or only to
// change its line speed), and the image is then sent with XMODEM 1K on
// the same transport.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/xmodem"
)

// Commands used to prepare the module.
const (
	CmdStartUpdate = "AT+USYFWUS"
	CmdSetUART     = "AT+USYST="
)

// DefaultBaudSettle is how long the module gets to switch its line speed.
const DefaultBaudSettle = 500 * time.Millisecond

// ErrNoImage is returned for an empty firmware image.
var ErrNoImage = errors.New("firmware image is empty")

// MaxImageSize is the largest image Update accepts. It keeps sizes
// representable in an int on 32-bit platforms.
const MaxImageSize = math.MaxInt32

// Phase names the step an update is in.
type Phase string

// Update phases
const (
	PhasePreparing    Phase = "preparing"
	PhaseTransferring Phase = "transferring"
	PhaseComplete     Phase = "complete"
)

// Progress reports how far an update has come.
type Progress struct {
	Phase       Phase
	Total       int
	Transferred int
	// Percent is Transferred relative to Total, 0 to 100.
	Percent int
	Elapsed time.Duration
}

// ProgressFunc receives progress reports. It runs on the updating
// goroutine and should return quickly.
type ProgressFunc func(Progress)

// Options controls an update.
type Options struct {
	// Progress is optional.
	Progress ProgressFunc
	// XMODEM configures the transfer. Zero fields take the xmodem
	// defaults; BlockSize defaults to 1K here.
	XMODEM xmodem.Config
	// BaudRate is the line speed used for the transfer. Zero keeps the
	// current speed.
	BaudRate int
	// BaudSettle is the pause after a speed change before the transfer.
	BaudSettle time.Duration
	// EnterUpdateMode sends AT+USYFWUS first. Without it the module must
	// already be waiting in its bootloader; only AT+USYST is sent when
	// BaudRate is set.
	EnterUpdateMode bool
	// FlowControl asks for hardware flow control with AT+USYFWUS.
	FlowControl bool
}

// DefaultOptions enters update mode at the current speed and sends 1K
// blocks.
func DefaultOptions() Options {
	cfg := xmodem.DefaultConfig()
	cfg.BlockSize = xmodem.BlockSize1K
	return Options{
		EnterUpdateMode: true,
		BaudSettle:      DefaultBaudSettle,
		XMODEM:          cfg,
	}
}

// UpdateFile sends the image stored at path.
func UpdateFile(ctx context.Context, client *ucx.Client, path string, opts Options) error {
	f, err := os.Open(path) //nolint:gosec // path comes from the caller
	if err != nil {
		return fmt.Errorf("failed to open firmware image: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat firmware image: %w", err)
	}
	if info.Size() > MaxImageSize {
		return fmt.Errorf("%w: firmware image %s is %d bytes", ucx.ErrDataTooLarge, path, info.Size())
	}
	ucx.Debugf("firmware: image %s (%d bytes)", path, info.Size())
	return Update(ctx, client, xmodem.ReaderAtSource(f), int(info.Size()), opts)
}

// Update prepares the module and sends size bytes read from src. The
// module reboots into the new image when the transfer completes, so the
// client should be closed and reopened afterwards.
func Update(ctx context.Context, client *ucx.Client, src xmodem.DataSource, size int, opts Options) error {
	if client == nil || src == nil {
		return fmt.Errorf("%w: client and data source are required", ucx.ErrInvalidParameter)
	}
	if size <= 0 {
		return ErrNoImage
	}
	if int64(size) > MaxImageSize {
		return fmt.Errorf("%w: firmware image is %d bytes", ucx.ErrDataTooLarge, size)
	}
	if opts.BaudRate < 0 {
		return fmt.Errorf("%w: baud rate %d", ucx.ErrInvalidParameter, opts.BaudRate)
	}
	if opts.BaudSettle <= 0 {
		opts.BaudSettle = DefaultBaudSettle
	}
	if opts.XMODEM.BlockSize == 0 {
		opts.XMODEM.BlockSize = xmodem.BlockSize1K
	}

	start := time.Now()
	report := func(phase Phase, transferred int) {
		if opts.Progress == nil {
			return
		}
		opts.Progress(Progress{
			Phase:       phase,
			Total:       size,
			Transferred: transferred,
			Percent:     percent(transferred, size),
			Elapsed:     time.Since(start),
		})
	}

	ucx.Debugf("firmware: update of %d bytes started", size)
	report(PhasePreparing, 0)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepare(client, opts); err != nil {
		return err
	}

	err := client.Exclusive(func(t ucx.Transport) error {
		if opts.BaudRate > 0 {
			if err := sleepCtx(ctx, opts.BaudSettle); err != nil {
				return err
			}
			switchHostBaud(t, opts.BaudRate)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		sender, err := xmodem.NewSender(t, opts.XMODEM)
		if err != nil {
			return err
		}
		return sender.Send(size, src, func(_, transferred int) {
			report(PhaseTransferring, transferred)
		})
	})
	if err != nil {
		return fmt.Errorf("firmware transfer failed: %w", err)
	}

	report(PhaseComplete, size)
	ucx.Debugf("firmware: update complete in %v, module will reboot", time.Since(start).Round(time.Millisecond))
	return nil
}

// prepare tells the module what is coming.
func prepare(client *ucx.Client, opts Options) error {
	if opts.EnterUpdateMode {
		var params []ucx.Param
		if opts.BaudRate > 0 {
			params = append(params, ucx.Int(int32(opts.BaudRate))) //nolint:gosec // baud rates fit in int32
			if opts.FlowControl {
				params = append(params, ucx.Int(1))
			}
		}
		cmd := CmdStartUpdate
		if len(params) > 0 {
			cmd += "="
		}
		if err := client.Exec(cmd, params...); err != nil {
			return fmt.Errorf("failed to enter firmware update mode: %w", err)
		}
		return nil
	}

	if opts.BaudRate > 0 {
		ucx.Debugf("firmware: changing baud rate to %d", opts.BaudRate)
		if err := client.Exec(CmdSetUART, ucx.Int(int32(opts.BaudRate)), ucx.Int(1)); err != nil { //nolint:gosec // baud rates fit in int32
			return fmt.Errorf("failed to change baud rate: %w", err)
		}
	}
	return nil
}

func switchHostBaud(t ucx.Transport, baud int) {
	setter, ok := t.(ucx.BaudRateSetter)
	if !ok {
		ucx.Warnf("firmware: %s transport cannot change speed, reconfigure the host to %d baud", t.Type(), baud)
		return
	}
	if err := setter.SetBaudRate(baud); err != nil {
		ucx.Warnf("firmware: failed to switch host to %d baud: %v", baud, err)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// percent computes in int64 so large images do not overflow a 32-bit int.
func percent(transferred, total int) int {
	return int(int64(transferred) * 100 / int64(total))
}
