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

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/firmware"
	"github.com/ZaparooProject/go-ucx/polling"
)

// maxBinary bounds the binary payload kept from one response line.
const maxBinary = 4096

func splitCommands(s string) []string {
	var commands []string
	for _, part := range strings.Split(s, ";") {
		if cmd := strings.TrimSpace(part); cmd != "" {
			commands = append(commands, cmd)
		}
	}
	return commands
}

// responsePrefix returns the information text prefix of an extended
// command, "+UWSSC:" for "AT+UWSSC?". Other commands get "".
func responsePrefix(cmd string) string {
	rest, ok := strings.CutPrefix(strings.ToUpper(cmd), "AT+")
	if !ok {
		return ""
	}
	if i := strings.IndexAny(rest, "=?"); i >= 0 {
		rest = rest[:i]
	}
	if rest == "" {
		return ""
	}
	return "+" + rest + ":"
}

// execute sends one command line as typed and collects every response
// line until the status. Lines that belong to the command keep their
// prefix in the output.
func execute(client *ucx.Client, cmd string) ([]string, error) {
	prefix := responsePrefix(cmd)
	span := client.Begin(cmd)
	bin := make([]byte, maxBinary)

	var lines []string
	for {
		line, n, err := span.ResponseLine(prefix, bin)
		if err != nil {
			break
		}
		if span.Prefixed() {
			line = prefix + line
		}
		if n > 0 {
			line = fmt.Sprintf("%s [%d bytes: % x]", line, n, bin[:min(n, 16)])
		}
		lines = append(lines, line)
	}
	return lines, span.End()
}

func runExec(client *ucx.Client, commands []string, out io.Writer) error {
	for _, cmd := range commands {
		_, _ = fmt.Fprintf(out, "> %s\n", cmd)
		lines, err := execute(client, cmd)
		for _, line := range lines {
			_, _ = fmt.Fprintln(out, line)
		}
		if err != nil {
			_, _ = fmt.Fprintln(out, statusText(err))
			return fmt.Errorf("%s: %w", cmd, err)
		}
		_, _ = fmt.Fprintln(out, "OK")
	}
	return nil
}

func statusText(err error) string {
	var se *ucx.StatusError
	switch {
	case errors.As(err, &se) && se.Extended:
		return fmt.Sprintf("ERROR:%d", se.Code)
	case errors.As(err, &se):
		return "ERROR"
	case errors.Is(err, ucx.ErrCommandTimeout):
		return "TIMEOUT"
	default:
		return "FAILED"
	}
}

// runListen prints URCs until ctx is done. With a reopen function the
// module is reconnected after host sleep or a lost port.
func runListen(ctx context.Context, client *ucx.Client, reopen polling.ReopenFunc, out io.Writer) error {
	printURC := func(line string, bin []byte) {
		if len(bin) > 0 {
			_, _ = fmt.Fprintf(out, "%s [%d bytes]\n", line, len(bin))
			return
		}
		_, _ = fmt.Fprintln(out, line)
	}
	client.SetUnhandledURC(printURC)

	pcfg := polling.DefaultConfig()
	session := polling.NewSession(client, pcfg)
	session.SetOnError(func(err error) {
		ucx.Warnf("receive error: %v", err)
	})
	if reopen != nil {
		session.SetRecoverer(pcfg.NewRecoverer(client, func(ctx context.Context) (*ucx.Client, error) {
			fresh, err := reopen(ctx)
			if err != nil {
				return nil, err
			}
			fresh.SetUnhandledURC(printURC)
			return fresh, nil
		}))
	}
	defer func() {
		_ = session.Close()
		// The caller only closes the client it handed in.
		if current := session.Client(); current != client {
			_ = current.Close()
		}
	}()

	_, _ = fmt.Fprintln(out, "Listening for URCs. Press Ctrl+C to stop...")
	if err := session.Start(ctx); err != nil {
		return fmt.Errorf("receive session ended: %w", err)
	}
	return nil
}

func firmwareOptions(cfg *config, out io.Writer) firmware.Options {
	opts := firmware.DefaultOptions()
	opts.BaudRate = cfg.fwBaud
	opts.EnterUpdateMode = !cfg.bootloader
	opts.Progress = progressPrinter(out)
	return opts
}

// progressPrinter prints phase changes and every tenth of the transfer.
func progressPrinter(out io.Writer) firmware.ProgressFunc {
	var lastPhase firmware.Phase
	lastStep := -1
	return func(p firmware.Progress) {
		step := p.Percent / 10
		if p.Phase == lastPhase && step == lastStep {
			return
		}
		lastPhase, lastStep = p.Phase, step
		_, _ = fmt.Fprintf(out, "%-12s %7d/%d bytes %3d%% %v\n",
			p.Phase, p.Transferred, p.Total, p.Percent, p.Elapsed.Round(time.Millisecond))
	}
}

func runFirmware(ctx context.Context, client *ucx.Client, cfg *config, out io.Writer) error {
	_, _ = fmt.Fprintf(out, "Updating firmware from %s\n", cfg.firmware)
	if err := firmware.UpdateFile(ctx, client, cfg.firmware, firmwareOptions(cfg, out)); err != nil {
		return fmt.Errorf("firmware update failed: %w", err)
	}
	_, _ = fmt.Fprintln(out, "Firmware sent; the module restarts into it.")
	return nil
}
