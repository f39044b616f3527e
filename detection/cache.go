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

package detection

import (
	"maps"
	"time"

	"github.com/ZaparooProject/go-ucx/internal/syncutil"
)

// cacheKey separates results by how thoroughly the ports were examined.
type cacheKey struct {
	transport string
	mode      Mode
}

type cacheEntry struct {
	stored  time.Time
	devices []DeviceInfo
}

// resultCache remembers detection results per transport and mode. A lookup
// is served by an entry taken in the requested mode or a more thorough one,
// never by a shallower scan.
type resultCache struct {
	entries map[cacheKey]cacheEntry
	mu      syncutil.RWMutex
}

var cache = &resultCache{entries: make(map[cacheKey]cacheEntry)}

func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d
		if d.Metadata != nil {
			out[i].Metadata = maps.Clone(d.Metadata)
		}
	}
	return out
}

// getCached returns the freshest usable result for transport at mode.
func getCached(transport string, mode Mode, ttl time.Duration) ([]DeviceInfo, bool) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	var best cacheEntry
	found := false
	for m := mode; m <= Full; m++ {
		entry, ok := cache.entries[cacheKey{transport: transport, mode: m}]
		if !ok || time.Since(entry.stored) > ttl {
			continue
		}
		if !found || !entry.stored.Before(best.stored) {
			best, found = entry, true
		}
	}
	if !found {
		return nil, false
	}
	return cloneDevices(best.devices), true
}

func setCached(transport string, mode Mode, devices []DeviceInfo) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.entries[cacheKey{transport: transport, mode: mode}] = cacheEntry{
		devices: cloneDevices(devices),
		stored:  time.Now(),
	}
}

func clearCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	clear(cache.entries)
}

// clearCacheForTransport drops the results of every mode for transport.
func clearCacheForTransport(transport string) {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	for key := range cache.entries {
		if key.transport == transport {
			delete(cache.entries, key)
		}
	}
}
