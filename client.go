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
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-ucx/internal/frame"
	"github.com/ZaparooProject/go-ucx/internal/syncutil"
)

// instanceCounter numbers clients for log prefixes only.
var instanceCounter atomic.Int32

// ClientConfig holds the tunables of a Client.
type ClientConfig struct {
	// RxBufferSize is the capacity of the receive line buffer. A line that
	// fills it completely is discarded up to its terminator.
	RxBufferSize int
	// CommandTimeout bounds a command from send to status line.
	CommandTimeout time.Duration
	// ReadTimeout is the longest single transport read while waiting.
	ReadTimeout time.Duration
	// URCQueueSlots enables queue mode when positive. In direct mode (0)
	// URC handlers run inline on the receive path.
	URCQueueSlots int
	// OverflowPolicy applies when the URC queue is full.
	OverflowPolicy OverflowPolicy
	// TraceEntries enables wire tracing of command failures when positive.
	TraceEntries int
	// Port names the connection in traces and logs.
	Port string
}

// DefaultClientConfig returns the default client configuration
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RxBufferSize:   DefaultRxBufferSize,
		CommandTimeout: DefaultCommandTimeout,
		ReadTimeout:    DefaultReadTimeout,
	}
}

// Option configures a Client
type Option func(*ClientConfig) error

// WithRxBufferSize sets the receive line buffer capacity.
func WithRxBufferSize(size int) Option {
	return func(c *ClientConfig) error {
		if size < 16 {
			return fmt.Errorf("%w: rx buffer size %d", ErrInvalidParameter, size)
		}
		c.RxBufferSize = size
		return nil
	}
}

// WithCommandTimeout sets the sticky command timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(c *ClientConfig) error {
		if d <= 0 {
			return fmt.Errorf("%w: command timeout %v", ErrInvalidParameter, d)
		}
		c.CommandTimeout = d
		return nil
	}
}

// WithReadTimeout sets the longest single transport read.
func WithReadTimeout(d time.Duration) Option {
	return func(c *ClientConfig) error {
		if d <= 0 {
			return fmt.Errorf("%w: read timeout %v", ErrInvalidParameter, d)
		}
		c.ReadTimeout = d
		return nil
	}
}

// WithURCQueue switches the client to queue mode. URCs received on the
// receive path are stored in a ring of the given number of slots and
// dispatched later by ProcessURCs. Zero slots selects DefaultURCQueueSlots.
func WithURCQueue(slots int, policy OverflowPolicy) Option {
	return func(c *ClientConfig) error {
		if slots < 0 {
			return fmt.Errorf("%w: URC queue slots %d", ErrInvalidParameter, slots)
		}
		if slots == 0 {
			slots = DefaultURCQueueSlots
		}
		c.URCQueueSlots = slots
		c.OverflowPolicy = policy
		return nil
	}
}

// WithTrace records the wire exchange of each command and attaches it to
// command errors as a *TraceableError. Zero entries selects
// DefaultTraceEntries.
func WithTrace(entries int) Option {
	return func(c *ClientConfig) error {
		if entries <= 0 {
			entries = DefaultTraceEntries
		}
		c.TraceEntries = entries
		return nil
	}
}

// WithPort names the connection in traces and logs.
func WithPort(port string) Option {
	return func(c *ClientConfig) error {
		c.Port = port
		return nil
	}
}

// Client is an AT command client for one u-connectXpress module. At most
// one command is in flight at a time; Begin blocks until the previous
// command has ended.
type Client struct {
	transport Transport
	rx        *frame.LineBuffer
	queue     *urcQueue
	urc       *urcDispatcher
	trace     *TraceBuffer
	cmdStart  time.Time
	status    error
	lastIOErr error
	expected  string
	rspParams string
	rspBin    []byte
	inbuf     []byte
	flushBuf  [frame.FlushChunkSize]byte
	prefix    string
	bin       binaryRx
	config    ClientConfig
	inPos     int
	inLen     int
	rspBinLen int

	cmdTimeout    atomic.Int64
	stickyTimeout atomic.Int64
	ioErrCount    atomic.Uint64
	mu            syncutil.Mutex
	ioErrMu       syncutil.Mutex
	executing     atomic.Bool
	statusSet     bool
	rspPrefixed   bool
	closed        atomic.Bool
}

// New creates a client on top of an open transport.
func New(transport Transport, opts ...Option) (*Client, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	config := DefaultClientConfig()
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}

	id := instanceCounter.Add(1)
	c := &Client{
		transport: transport,
		config:    config,
		prefix:    fmt.Sprintf("[ucx#%d]", id),
		rx:        frame.NewLineBuffer(config.RxBufferSize),
		inbuf:     make([]byte, 256),
	}
	c.urc = newURCDispatcher(c.prefix)
	c.cmdTimeout.Store(int64(config.CommandTimeout))
	c.stickyTimeout.Store(int64(config.CommandTimeout))

	if config.URCQueueSlots > 0 {
		c.queue = newURCQueue(config.URCQueueSlots, config.RxBufferSize, config.OverflowPolicy)
	}
	if config.TraceEntries > 0 {
		c.trace = NewTraceBuffer(string(transport.Type()), config.Port, config.TraceEntries)
	}

	Debugf("%s client on %s transport %s (rx buffer %d, URC queue %d)",
		c.prefix, transport.Type(), config.Port, config.RxBufferSize, config.URCQueueSlots)
	return c, nil
}

// Transport returns the underlying transport.
func (c *Client) Transport() Transport {
	return c.transport
}

// String returns the log prefix of the client.
func (c *Client) String() string {
	return c.prefix
}

// Close removes all URC handlers and closes the transport.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.urc.reset()
	if err := c.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// SetCommandTimeout changes the command timeout and returns the previous
// value. A permanent timeout becomes the value restored after every
// command; a temporary one applies until the next command ends.
func (c *Client) SetCommandTimeout(d time.Duration, permanent bool) time.Duration {
	prev := time.Duration(c.cmdTimeout.Swap(int64(d)))
	if permanent {
		c.stickyTimeout.Store(int64(d))
	}
	return prev
}

// CommandTimeout returns the timeout that applies to the next command.
func (c *Client) CommandTimeout() time.Duration {
	return time.Duration(c.cmdTimeout.Load())
}

// LastIOError returns the most recent error reported by the transport.
func (c *Client) LastIOError() error {
	c.ioErrMu.Lock()
	defer c.ioErrMu.Unlock()
	return c.lastIOErr
}

// IOErrors returns how many transport errors the client has seen. A
// watcher compares it between calls to spot a new LastIOError.
func (c *Client) IOErrors() uint64 {
	return c.ioErrCount.Load()
}

// HandleRx consumes the bytes the module sent while no command was
// running and routes the URCs among them. It does nothing while a command
// is executing; the command span handles incoming bytes itself.
func (c *Client) HandleRx() {
	if !c.executing.Load() {
		c.mu.Lock()
		if !c.executing.Load() {
			c.receive(time.Time{})
		}
		c.mu.Unlock()
	}
	c.ProcessURCs()
}

// ProcessURCs dispatches every queued URC and returns how many ran. It is
// a no-op in direct mode and while another goroutine is draining.
func (c *Client) ProcessURCs() int {
	if c.queue == nil {
		return 0
	}
	return c.queue.drain(c.urc.dispatch)
}

// URCReady is signalled when a URC has been queued. It returns nil in
// direct mode.
func (c *Client) URCReady() <-chan struct{} {
	if c.queue == nil {
		return nil
	}
	return c.queue.ready
}

// QueuedURCs returns how many URCs wait in the queue.
func (c *Client) QueuedURCs() int {
	if c.queue == nil {
		return 0
	}
	return c.queue.len()
}

// DroppedURCs returns how many URCs the queue has discarded.
func (c *Client) DroppedURCs() uint64 {
	if c.queue == nil {
		return 0
	}
	return c.queue.dropped.Load()
}

// Exclusive runs fn with the command lock held, giving it sole use of the
// transport. The receive path is paused for the duration; bytes it had
// buffered but not yet parsed are discarded.
func (c *Client) Exclusive(fn func(Transport) error) error {
	c.mu.Lock()
	c.executing.Store(true)
	if pending := c.inLen - c.inPos; pending > 0 {
		Debugf("%s discarding %d buffered bytes before exclusive access", c.prefix, pending)
	}
	c.inPos, c.inLen = 0, 0
	c.rx.Reset()
	c.bin.reset()

	err := fn(c.transport)

	c.executing.Store(false)
	c.mu.Unlock()
	c.ProcessURCs()
	return err
}

// Probe sends AT until the module answers OK, using cfg for retries.
func (c *Client) Probe(ctx context.Context, cfg *RetryConfig) error {
	if cfg == nil {
		cfg = DefaultRetryConfig()
	}
	err := RetryWithConfig(ctx, cfg, func() error {
		c.SetCommandTimeout(ProbeTimeout, false)
		return c.ExecSimple("AT")
	})
	if err != nil {
		return fmt.Errorf("module did not answer AT: %w", err)
	}
	return nil
}

func (c *Client) setStatus(err error) {
	c.status = err
	c.statusSet = true
}

func (c *Client) storeIOError(err error) {
	c.ioErrMu.Lock()
	c.lastIOErr = err
	c.ioErrMu.Unlock()
	c.ioErrCount.Add(1)
}

func (c *Client) recordIOError(err error) {
	c.storeIOError(err)
	Warnf("%s read failed: %v", c.prefix, err)
	if c.executing.Load() && !c.statusSet {
		c.setStatus(fmt.Errorf("%w: %w", ErrIO, err))
	}
}

// wrapTrace attaches the wire trace to a command error when tracing is on.
func (c *Client) wrapTrace(err error) error {
	if err == nil || c.trace == nil {
		return err
	}
	var te *TraceableError
	if errors.As(err, &te) {
		return err
	}
	return c.trace.WrapError(err)
}
