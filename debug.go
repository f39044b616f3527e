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
	"fmt"
	"io"
	"os"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-ucx/internal/syncutil"
)

// logLevel tags a message in the sinks.
type logLevel string

const (
	levelDebug logLevel = "DEBUG"
	levelWarn  logLevel = "WARN"
)

var (
	// debugEnabled controls console output. Messages always go to the
	// session log when one is open.
	debugEnabled atomic.Bool

	logMu      syncutil.Mutex
	consoleOut io.Writer = os.Stderr
	session    *sessionLog
)

func init() {
	if os.Getenv("UCX_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

func emit(level logLevel, message string) {
	logMu.Lock()
	defer logMu.Unlock()

	if session != nil {
		session.entry(time.Now(), level, message)
	}
	if debugEnabled.Load() {
		_, _ = fmt.Fprintf(consoleOut, "%s: %s\n", level, message)
	}
}

// Debugf logs a formatted debug message. The AT exchange (TX/RX lines,
// URCs, XMODEM progress) is reported through here.
func Debugf(format string, args ...any) {
	emit(levelDebug, fmt.Sprintf(format, args...))
}

// Debugln logs its operands the way fmt.Sprint formats them.
func Debugln(args ...any) {
	emit(levelDebug, fmt.Sprint(args...))
}

// Warnf logs something that went wrong without failing an operation, such
// as a dropped URC or a discarded line.
func Warnf(format string, args ...any) {
	emit(levelWarn, fmt.Sprintf(format, args...))
}

// SetDebugEnabled turns console debug output on or off.
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether console debug output is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetDebugOutput redirects console output, which goes to stderr by
// default, and returns the previous writer.
func SetDebugOutput(w io.Writer) io.Writer {
	logMu.Lock()
	defer logMu.Unlock()
	prev := consoleOut
	consoleOut = w
	return prev
}
