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
	"strings"

	"github.com/ZaparooProject/go-ucx/internal/syncutil"
)

// URCHandler receives the parameter text of an unsolicited result (the part
// after the first ':') and its binary payload, if any. The bin slice is only
// valid for the duration of the call.
type URCHandler func(params string, bin []byte)

// UnhandledURCFunc receives complete URC lines that no handler claimed.
type UnhandledURCFunc func(line string, bin []byte)

// URCVerb returns the verb of a URC line: the text before the first ':',
// or the whole line when it has none.
func URCVerb(line string) (verb, params string) {
	if i := strings.IndexByte(line, ':'); i >= 0 {
		return line[:i], line[i+1:]
	}
	return line, ""
}

type urcDispatcher struct {
	handlers  map[string]URCHandler
	unhandled UnhandledURCFunc
	prefix    string
	mu        syncutil.RWMutex
}

func newURCDispatcher(prefix string) *urcDispatcher {
	return &urcDispatcher{
		handlers: make(map[string]URCHandler),
		prefix:   prefix,
	}
}

func (d *urcDispatcher) register(verb string, h URCHandler) {
	d.mu.Lock()
	d.handlers[verb] = h
	d.mu.Unlock()
}

func (d *urcDispatcher) unregister(verb string) {
	d.mu.Lock()
	delete(d.handlers, verb)
	d.mu.Unlock()
}

func (d *urcDispatcher) setUnhandled(fn UnhandledURCFunc) {
	d.mu.Lock()
	d.unhandled = fn
	d.mu.Unlock()
}

func (d *urcDispatcher) reset() {
	d.mu.Lock()
	d.handlers = make(map[string]URCHandler)
	d.unhandled = nil
	d.mu.Unlock()
}

// dispatch routes one URC line. A panicking handler is logged and the
// receive path carries on.
func (d *urcDispatcher) dispatch(line string, bin []byte) {
	verb, params := URCVerb(line)

	d.mu.RLock()
	h := d.handlers[verb]
	fallback := d.unhandled
	d.mu.RUnlock()

	Debugf("%s URC %q params %q (%d bytes binary)", d.prefix, verb, params, len(bin))

	defer func() {
		if r := recover(); r != nil {
			Warnf("%s URC handler for %s panicked: %v", d.prefix, verb, r)
		}
	}()

	switch {
	case h != nil:
		h(params, bin)
	case fallback != nil:
		fallback(line, bin)
	}
}

// RegisterURC installs the handler for a URC verb such as "+UEBTC".
// Registering a verb again replaces its handler.
func (c *Client) RegisterURC(verb string, h URCHandler) {
	c.urc.register(verb, h)
}

// UnregisterURC removes the handler for a verb. Removing a verb that has no
// handler does nothing.
func (c *Client) UnregisterURC(verb string) {
	c.urc.unregister(verb)
}

// SetUnhandledURC installs a fallback for URCs whose verb has no handler.
// Pass nil to drop them silently.
func (c *Client) SetUnhandledURC(fn UnhandledURCFunc) {
	c.urc.setUnhandled(fn)
}
