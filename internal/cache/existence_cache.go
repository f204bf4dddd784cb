// Copyright 2024 FAL Database Authors
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

package cache

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// ExistenceCache maps (storage, identifier) to an exists flag. Keys are a
// one-way digest of "storage:identifier" so arbitrarily long identifiers map
// to fixed-length keys.
//
// Thread-safe: uses RWMutex for concurrent access.
type ExistenceCache struct {
	mu      sync.RWMutex
	entries map[uint64]bool
	maxSize int
}

// NewExistenceCache creates a new existence cache.
// maxSize: maximum number of entries (use 0 for unlimited).
func NewExistenceCache(maxSize int) *ExistenceCache {
	return &ExistenceCache{
		entries: make(map[uint64]bool, 256),
		maxSize: maxSize,
	}
}

func cacheKey(storageID int64, identifier string) uint64 {
	return xxhash.Sum64String(strconv.FormatInt(storageID, 10) + ":" + identifier)
}

// Has reports whether the cache holds an answer for the identifier.
// Always false when caching is disabled (FALDB_CACHE=0).
func (c *ExistenceCache) Has(storageID int64, identifier string) bool {
	if Disabled {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[cacheKey(storageID, identifier)]
	return ok
}

// Get returns the cached exists flag for the identifier.
// Precondition: Has returned true. Returns false on a miss.
func (c *ExistenceCache) Get(storageID int64, identifier string) bool {
	if Disabled {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.entries[cacheKey(storageID, identifier)]
}

// Set stores the exists flag for the identifier.
// No-op if caching is disabled (FALDB_CACHE=0).
func (c *ExistenceCache) Set(storageID int64, identifier string, exists bool) {
	if Disabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey(storageID, identifier)
	if c.maxSize > 0 && len(c.entries) >= c.maxSize {
		// Don't add new entries when at capacity. Misses re-derive truth
		// from the table, so dropping writes here is always safe.
		if _, exists := c.entries[key]; !exists {
			return
		}
	}
	c.entries[key] = exists
}

// InvalidatePath removes a specific identifier from the cache.
func (c *ExistenceCache) InvalidatePath(storageID int64, identifier string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, cacheKey(storageID, identifier))
}

// Invalidate clears all entries from the cache.
func (c *ExistenceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) > 0 {
		c.entries = make(map[uint64]bool, 256)
	}
}

// Size returns the current number of entries in the cache.
func (c *ExistenceCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
