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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// LogDirEnv names the environment variable that selects the session log
// directory when InitSessionLog is given none.
const LogDirEnv = "UCX_LOG_DIR"

// sessionLog is an open log file. Access is guarded by logMu.
type sessionLog struct {
	file    *os.File
	started time.Time
	entries int
	err     error
}

func (s *sessionLog) printf(format string, args ...any) {
	if s.err != nil {
		return
	}
	_, s.err = fmt.Fprintf(s.file, format, args...)
}

func (s *sessionLog) entry(at time.Time, level logLevel, message string) {
	s.entries++
	s.printf("%s %-5s %s\n", at.Format("15:04:05.000"), level, message)
}

// InitSessionLog opens a new log file that receives every message
// regardless of the console setting, and returns its path. The file is
// created in dir, in $UCX_LOG_DIR when dir is empty, or in the working
// directory. Opening a new log closes the previous one.
func InitSessionLog(dir string) (string, error) {
	if dir == "" {
		dir = os.Getenv(LogDirEnv)
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}

	now := time.Now()
	file, err := os.CreateTemp(dir, "ucx_"+now.Format("20060102_150405")+"_*.log")
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	s := &sessionLog{file: file, started: now}
	s.printf("# u-connectXpress session log\n")
	s.printf("# started %s\n", now.Format(time.RFC3339))
	s.printf("# pid %d, %s/%s, %s\n", os.Getpid(), runtime.GOOS, runtime.GOARCH, runtime.Version())
	if len(os.Args) > 0 {
		s.printf("# command %q\n", os.Args)
	}
	s.printf("\n")

	logMu.Lock()
	prev := session
	session = s
	logMu.Unlock()

	if prev != nil {
		_ = prev.close()
	}
	return filepath.Clean(file.Name()), nil
}

// AnnotateSessionLog adds a key/value line to the open session log, for
// facts such as the port or the module model. It does nothing when no log
// is open.
func AnnotateSessionLog(key, value string) {
	logMu.Lock()
	defer logMu.Unlock()
	if session != nil {
		session.printf("# %s: %s\n", key, value)
	}
}

func (s *sessionLog) close() error {
	s.printf("\n# ended after %s, %d entries\n", time.Since(s.started).Round(time.Millisecond), s.entries)
	return errors.Join(s.err, s.file.Close())
}

// CloseSessionLog closes the open session log. It reports the first write
// error seen while the log was open.
func CloseSessionLog() error {
	logMu.Lock()
	s := session
	session = nil
	logMu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.close(); err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// SessionLogPath returns the path of the open session log, or "".
func SessionLogPath() string {
	logMu.Lock()
	defer logMu.Unlock()
	if session == nil {
		return ""
	}
	return filepath.Clean(session.file.Name())
}
