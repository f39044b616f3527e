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

package polling

import "sync/atomic"

// State is the life cycle stage of a Session.
type State int32

const (
	// StateStopped means Start has not run or has returned.
	StateStopped State = iota
	// StateRunning means the receive loop is polling.
	StateRunning
	// StatePaused means the receive loop is parked until Resume.
	StatePaused
	// StateRecovering means the module is being probed or reopened.
	StateRecovering
	// StateFailed means the session stopped on a fatal error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateRecovering:
		return "recovering"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// stateBox is an atomic State.
type stateBox struct {
	v atomic.Int32
}

func (b *stateBox) load() State {
	return State(b.v.Load())
}

func (b *stateBox) store(s State) {
	b.v.Store(int32(s))
}

// transition moves from one state to another and reports whether the
// current state was from.
func (b *stateBox) transition(from, to State) bool {
	return b.v.CompareAndSwap(int32(from), int32(to))
}
