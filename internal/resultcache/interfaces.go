/*
Copyright 2025 The llm-d Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package resultcache

// Reader provides read-only access to cached results.
// Values are clones; callers may modify them freely.
type Reader[V any] interface {
	// Get returns the value stored under key if it has not expired.
	Get(key Key) (V, bool)

	// Len returns the number of stored entries, expired or not.
	Len() int
}

// Writer provides write access to cached results.
// Invalidation on underlying data change is the caller's job.
type Writer[V any] interface {
	// Put stores a clone of value under key, evicting the oldest entry when full.
	Put(key Key, value V)

	// Invalidate removes every entry for a scope key. An empty scope removes everything.
	// Returns the number of entries removed.
	Invalidate(scope string) int

	// Prune removes expired entries and returns how many were removed.
	Prune() int
}

// ReadWriter combines both read and write access to the cache.
type ReadWriter[V any] interface {
	Reader[V]
	Writer[V]
}
