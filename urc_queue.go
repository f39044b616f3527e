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
	"sync/atomic"

	"github.com/ZaparooProject/go-ucx/internal/syncutil"
)

// OverflowPolicy decides what happens to a URC that arrives while the
// queue is full.
type OverflowPolicy int

const (
	// DropNewest discards the arriving URC.
	DropNewest OverflowPolicy = iota
	// DropOldest discards the oldest queued URC to make room.
	DropOldest
)

func (p OverflowPolicy) String() string {
	if p == DropOldest {
		return "drop-oldest"
	}
	return "drop-newest"
}

// urcSlot holds one URC line followed by its binary payload in a single
// fixed buffer.
type urcSlot struct {
	buf        []byte
	lineLen    int
	payloadLen int
}

// urcQueue is a ring of preallocated slots between the receive path
// (producer) and whoever drains URCs (consumer). The producer reserves a
// slot for a line, may fill its payload, then commits or aborts it.
type urcQueue struct {
	ready    chan struct{}
	slots    []urcSlot
	head     int
	count    int
	reserved int
	dropped  atomic.Uint64
	draining atomic.Bool
	mu       syncutil.Mutex
	policy   OverflowPolicy
}

func newURCQueue(slots, slotSize int, policy OverflowPolicy) *urcQueue {
	q := &urcQueue{
		ready:    make(chan struct{}, 1),
		slots:    make([]urcSlot, slots),
		reserved: -1,
		policy:   policy,
	}
	for i := range q.slots {
		q.slots[i].buf = make([]byte, slotSize)
	}
	return q
}

// reserve claims the next free slot and stores line in it. It returns false
// when the URC has to be dropped.
func (q *urcQueue) reserve(line []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	size := len(q.slots[0].buf)
	if len(line)+1 > size {
		q.dropped.Add(1)
		return false
	}

	if q.count == len(q.slots) {
		if q.policy != DropOldest {
			q.dropped.Add(1)
			return false
		}
		q.head = (q.head + 1) % len(q.slots)
		q.count--
		q.dropped.Add(1)
	}

	idx := (q.head + q.count) % len(q.slots)
	slot := &q.slots[idx]
	slot.lineLen = copy(slot.buf, line)
	slot.payloadLen = 0
	q.reserved = idx
	return true
}

// payloadSpace returns the part of the reserved slot behind the line.
func (q *urcQueue) payloadSpace() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.reserved < 0 {
		return nil
	}
	slot := &q.slots[q.reserved]
	return slot.buf[slot.lineLen+1:]
}

// commit publishes the reserved slot with n payload bytes.
func (q *urcQueue) commit(n int) {
	q.mu.Lock()
	if q.reserved < 0 {
		q.mu.Unlock()
		return
	}
	q.slots[q.reserved].payloadLen = n
	q.reserved = -1
	q.count++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// abort releases the reserved slot without publishing it.
func (q *urcQueue) abort() {
	q.mu.Lock()
	q.reserved = -1
	q.mu.Unlock()
}

// pop copies the oldest entry out of the queue.
func (q *urcQueue) pop() (line string, bin []byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		return "", nil, false
	}
	slot := &q.slots[q.head]
	line = string(slot.buf[:slot.lineLen])
	if slot.payloadLen > 0 {
		start := slot.lineLen + 1
		bin = append([]byte(nil), slot.buf[start:start+slot.payloadLen]...)
	}
	q.head = (q.head + 1) % len(q.slots)
	q.count--
	return line, bin, true
}

// drain hands every queued entry to fn in arrival order. Only one drain
// runs at a time; a concurrent call returns 0 at once.
func (q *urcQueue) drain(fn func(line string, bin []byte)) int {
	if !q.draining.CompareAndSwap(false, true) {
		return 0
	}
	defer q.draining.Store(false)

	n := 0
	for {
		line, bin, ok := q.pop()
		if !ok {
			return n
		}
		fn(line, bin)
		n++
	}
}

func (q *urcQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
