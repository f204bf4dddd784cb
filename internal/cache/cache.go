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

// Package cache provides the existence lookaside cache for the database
// driver.
//
// The cache is never authoritative: every external existence check starts
// with a probe here, and on miss the driver re-derives the answer from a
// row count against the entries table before populating the cache. Losing
// the whole cache is therefore a performance regression, never a
// correctness one, and any eviction policy is acceptable.
package cache

import "os"

// Disabled turns the existence cache into a permanent miss.
// Set via FALDB_CACHE=0, useful to isolate cache-related bugs.
var Disabled = os.Getenv("FALDB_CACHE") == "0"

// Invalidator is implemented by caches that support full invalidation.
type Invalidator interface {
	// Invalidate clears all entries from the cache.
	Invalidate()
}
