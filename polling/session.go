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

// Package polling keeps a client's receive path serviced in the
// background, so URCs are routed while the application issues no
// commands.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-ucx"
	"github.com/ZaparooProject/go-ucx/internal/syncutil"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSessionClosed is returned by Start after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrSessionRunning is returned by a second concurrent Start.
	ErrSessionRunning = errors.New("session already running")
	// ErrHostSleep is reported to OnError when a tick arrived much later
	// than the poll interval.
	ErrHostSleep = errors.New("host sleep detected")
)

// Metrics counts what the receive loop did.
type Metrics struct {
	PollCycles      int64         // HandleRx calls
	IOErrors        int64         // transport errors seen
	SleepsDetected  int64         // late ticks taken as host sleep
	Recoveries      int64         // recovery attempts started
	LastPollLatency time.Duration // duration of the last HandleRx
}

// Session runs HandleRx on a ticker and, in queue mode, drains the URC
// queue as soon as the receive path signals it.
type Session struct {
	config     *Config
	client     *ucx.Client
	recoverer  ClientRecoverer
	onError    func(error)
	cancel     context.CancelFunc
	pauseChan  chan struct{}
	resumeChan chan struct{}
	ackChan    chan struct{}
	swapChan   chan struct{}
	seenIOErrs uint64

	pollCycles  atomic.Int64
	ioErrors    atomic.Int64
	sleeps      atomic.Int64
	recoveries  atomic.Int64
	pollLatency atomic.Int64
	state       stateBox
	mu          syncutil.RWMutex
	isPaused    atomic.Bool
	closed      atomic.Bool
}

// NewSession creates a session for client. A nil config selects
// DefaultConfig.
func NewSession(client *ucx.Client, config *Config) *Session {
	return &Session{
		client:     client,
		config:     config.resolved(),
		pauseChan:  make(chan struct{}, 1),
		resumeChan: make(chan struct{}, 1),
		ackChan:    make(chan struct{}, 1),
		swapChan:   make(chan struct{}, 1),
	}
}

// SetRecoverer enables recovery after host sleep and fatal transport
// errors. Without one, a fatal error stops the session.
func (s *Session) SetRecoverer(r ClientRecoverer) {
	s.mu.Lock()
	s.recoverer = r
	s.mu.Unlock()
}

// SetOnError installs a callback for transport errors seen by the receive
// loop. A panicking callback is contained.
func (s *Session) SetOnError(fn func(error)) {
	s.mu.Lock()
	s.onError = fn
	s.mu.Unlock()
}

// Client returns the client in use; it changes after a recovery reopened
// the module.
func (s *Session) Client() *ucx.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client
}

// State returns where the session is in its life cycle.
func (s *Session) State() State {
	return s.state.load()
}

// Metrics returns a snapshot of the loop counters.
func (s *Session) Metrics() Metrics {
	return Metrics{
		PollCycles:      s.pollCycles.Load(),
		IOErrors:        s.ioErrors.Load(),
		SleepsDetected:  s.sleeps.Load(),
		Recoveries:      s.recoveries.Load(),
		LastPollLatency: time.Duration(s.pollLatency.Load()),
	}
}

// Start runs the session and blocks until ctx is done, Close is called or
// a fatal transport error could not be recovered. It returns nil after
// Close, ctx.Err() on cancellation and the transport error otherwise.
func (s *Session) Start(ctx context.Context) error {
	if !s.state.transition(StateStopped, StateRunning) && !s.state.transition(StateFailed, StateRunning) {
		return ErrSessionRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		s.state.store(StateStopped)
		return ErrSessionClosed
	}
	s.cancel = cancel
	s.seenIOErrs = s.client.IOErrors()
	s.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return s.receiveLoop(gctx) })
	g.Go(func() error { return s.urcLoop(gctx) })

	if err := g.Wait(); err != nil {
		s.state.store(StateFailed)
		return err
	}
	s.state.store(StateStopped)
	if s.closed.Load() {
		return nil
	}
	return ctx.Err()
}

// Close stops a running session. It does not close the client and does
// not wait; Start returns once both loops have exited.
func (s *Session) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Pause parks the receive loop after its current HandleRx call.
func (s *Session) Pause() {
	if s.isPaused.CompareAndSwap(false, true) {
		select {
		case s.pauseChan <- struct{}{}:
		default:
		}
	}
}

// Resume restarts a paused receive loop.
func (s *Session) Resume() {
	if !s.isPaused.CompareAndSwap(true, false) {
		return
	}
	select {
	case <-s.pauseChan:
		// The loop never saw the pause.
		return
	default:
	}
	select {
	case s.resumeChan <- struct{}{}:
	default:
	}
}

// PauseWithAck pauses and waits until the receive loop has parked. When
// the loop does not acknowledge within Config.PauseAckTimeout, it is
// stuck behind a command and the client lock serializes access anyway,
// so nil is returned.
func (s *Session) PauseWithAck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case <-s.ackChan:
	default:
	}
	if !s.isPaused.CompareAndSwap(false, true) {
		return nil
	}
	select {
	case s.pauseChan <- struct{}{}:
	default:
	}

	if st := s.state.load(); st == StateStopped || st == StateFailed {
		return nil
	}

	timer := time.NewTimer(s.config.PauseAckTimeout)
	defer timer.Stop()
	select {
	case <-s.ackChan:
		return nil
	case <-timer.C:
		ucx.Debugf("receive loop did not acknowledge pause within %v", s.config.PauseAckTimeout)
		return nil
	case <-ctx.Done():
		s.Resume()
		return ctx.Err()
	}
}

// Exclusive pauses the receive loop, runs fn on the client and resumes.
// It is meant for XMODEM transfers and other long raw exchanges. Pauses
// are not counted: fn ends any earlier Pause as well.
func (s *Session) Exclusive(ctx context.Context, fn func(*ucx.Client) error) error {
	if err := s.PauseWithAck(ctx); err != nil {
		return err
	}
	defer s.Resume()
	return fn(s.Client())
}

func (s *Session) receiveLoop(ctx context.Context) error {
	interval := s.config.PollInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := s.pollOnce(ctx); err != nil {
			return err
		}
		// Round(0) drops the monotonic reading, which does not advance
		// while a Linux host is suspended.
		last := time.Now().Round(0)

		select {
		case <-ctx.Done():
			return nil
		case <-s.pauseChan:
			if !s.park(ctx) {
				return nil
			}
		case <-ticker.C:
			gap := time.Now().Round(0).Sub(last)
			if !s.config.sleptThrough(gap) {
				continue
			}
			s.sleeps.Add(1)
			s.reportError(fmt.Errorf("%w: no tick for %v", ErrHostSleep, gap.Round(time.Millisecond)))
			if err := s.attemptRecovery(ctx, nil); err != nil {
				return err
			}
		}
	}
}

// pollOnce runs one HandleRx and looks at the transport errors it caused.
func (s *Session) pollOnce(ctx context.Context) error {
	client := s.Client()
	start := time.Now()
	client.HandleRx()
	s.pollLatency.Store(int64(time.Since(start)))
	s.pollCycles.Add(1)

	count := client.IOErrors()
	s.mu.Lock()
	fresh := count != s.seenIOErrs
	s.seenIOErrs = count
	s.mu.Unlock()
	if !fresh {
		return nil
	}

	err := client.LastIOError()
	s.ioErrors.Add(1)
	s.reportError(err)
	if !ucx.IsFatal(err) {
		return nil
	}
	return s.attemptRecovery(ctx, err)
}

func (s *Session) park(ctx context.Context) bool {
	s.state.transition(StateRunning, StatePaused)
	defer s.state.transition(StatePaused, StateRunning)

	select {
	case s.ackChan <- struct{}{}:
	default:
	}
	select {
	case <-s.resumeChan:
		return true
	case <-ctx.Done():
		return false
	}
}

// attemptRecovery runs the recoverer. cause is the fatal transport error,
// or nil after a host sleep.
func (s *Session) attemptRecovery(ctx context.Context, cause error) error {
	s.mu.RLock()
	r := s.recoverer
	s.mu.RUnlock()

	if r == nil {
		if cause != nil {
			return fmt.Errorf("receive session stopped: %w", cause)
		}
		return nil
	}

	s.recoveries.Add(1)
	s.state.store(StateRecovering)
	err := r.AttemptRecovery(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		if cause != nil {
			err = errors.Join(cause, err)
		}
		return fmt.Errorf("receive session stopped: %w", err)
	}

	s.setClient(r.Client())
	s.state.transition(StateRecovering, StateRunning)
	return nil
}

func (s *Session) setClient(client *ucx.Client) {
	s.mu.Lock()
	if client == nil || client == s.client {
		s.mu.Unlock()
		return
	}
	s.client = client
	s.seenIOErrs = client.IOErrors()
	s.mu.Unlock()

	select {
	case s.swapChan <- struct{}{}:
	default:
	}
}

// urcLoop drains the URC queue when the receive path signals it. In
// direct mode URCReady is nil and the loop only waits for shutdown.
func (s *Session) urcLoop(ctx context.Context) error {
	for {
		client := s.Client()
		select {
		case <-ctx.Done():
			return nil
		case <-s.swapChan:
		case <-client.URCReady():
			client.ProcessURCs()
		}
	}
}

func (s *Session) reportError(err error) {
	s.mu.RLock()
	fn := s.onError
	s.mu.RUnlock()
	if fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			ucx.Warnf("session error callback panicked: %v", r)
		}
	}()
	fn(err)
}
