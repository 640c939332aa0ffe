// Copyright the go-heyvl authors
//
// Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with
// the License. You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on
// an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied. See the License for the
// specific language governing permissions and limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0
package verifier

import (
	"crypto/sha256"
	"sync"

	"github.com/heylang/go-heyvl/pkg/smt"
)

// cached is a remembered query outcome.  Inconclusive outcomes are never
// cached, since a retry with a fresh solver may well do better.
type cached struct {
	status Status
	model  *smt.Model
}

// Cache remembers definite query outcomes keyed by the canonical text of
// the encoded script.  Identical obligations recur both across procedures
// and, heavily, across slicing probes of the same obligation; the cache is
// shared by all workers.
type Cache struct {
	mu      sync.Mutex
	entries map[[sha256.Size]byte]cached
}

// NewCache constructs an empty cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[[sha256.Size]byte]cached)}
}

func (c *Cache) lookup(text string) (cached, bool) {
	key := sha256.Sum256([]byte(text))
	//
	c.mu.Lock()
	defer c.mu.Unlock()
	//
	entry, ok := c.entries[key]
	//
	return entry, ok
}

func (c *Cache) store(text string, entry cached) {
	if entry.status != StatusVerified && entry.status != StatusRefuted {
		return
	}
	//
	key := sha256.Sum256([]byte(text))
	//
	c.mu.Lock()
	defer c.mu.Unlock()
	//
	c.entries[key] = entry
}
