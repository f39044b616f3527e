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

// Package probe checks whether an open transport leads to a
// u-connectXpress module. Detectors use it after they found a candidate
// port, bus or chip select.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/detection"
)

// DefaultTimeout bounds each probe command.
const DefaultTimeout = 500 * time.Millisecond

// Result describes a module that answered.
type Result struct {
	// Metadata holds manufacturer, model and firmware in Full mode.
	Metadata   map[string]string
	Confidence detection.Confidence
}

// identity commands read in Full mode, keyed by metadata name.
var identity = []struct {
	key string
	cmd string
}{
	{key: "manufacturer", cmd: "AT+GMI"},
	{key: "model", cmd: "AT+GMM"},
	{key: "firmware", cmd: "AT+GMR"},
}

// Module sends a single AT to t; there are no retries, so a port holding
// some other device is not hammered. Safe mode stops at the OK, Full mode
// also reads the module identity. The transport stays open and belongs to
// the caller.
func Module(ctx context.Context, t ucx.Transport, mode detection.Mode) (Result, error) {
	if mode == detection.Passive {
		return Result{}, fmt.Errorf("%w: passive mode does not probe", ucx.ErrInvalidParameter)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	client, err := ucx.New(t, ucx.WithCommandTimeout(commandTimeout(ctx)))
	if err != nil {
		return Result{}, err
	}

	if err := client.ExecSimple("AT"); err != nil {
		return Result{}, fmt.Errorf("no answer to AT: %w", err)
	}
	if mode != detection.Full {
		return Result{Confidence: detection.Medium}, nil
	}

	res := Result{Confidence: detection.High, Metadata: make(map[string]string)}
	for _, id := range identity {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		value, err := readString(client, id.cmd)
		if err != nil {
			return res, fmt.Errorf("%s: %w", id.cmd, err)
		}
		res.Metadata[id.key] = value
	}
	return res, nil
}

// commandTimeout keeps each command inside the context deadline.
func commandTimeout(ctx context.Context) time.Duration {
	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = max(remaining, time.Millisecond)
		}
	}
	return timeout
}

func readString(client *ucx.Client, cmd string) (string, error) {
	var value string
	span := client.Begin(cmd)
	_, err := span.ResponseParams("", nil, ucx.StringOut(&value))
	if endErr := span.End(); err == nil {
		err = endErr
	}
	return value, err
}
