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

// Package resultcache memoizes engine results keyed on scope, horizon and
// scenario change set. Stored values are immutable clones.
package resultcache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
)

// Key identifies one cached result.
type Key struct {
	// Scope is the request scope key, including its date range.
	Scope   string
	Horizon string

	// ChangeSet hashes the scenario and analysis options; zero when none.
	ChangeSet uint64
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%016x", k.Scope, k.Horizon, k.ChangeSet)
}

// HashScenario returns a stable hash of a scenario and its options.
func HashScenario(sc v1alpha1.Scenario, opts v1alpha1.AnalysisOptions) (uint64, error) {
	raw, err := json.Marshal(struct {
		Scenario v1alpha1.Scenario        `json:"scenario"`
		Options  v1alpha1.AnalysisOptions `json:"options"`
	}{sc, opts})
	if err != nil {
		return 0, fmt.Errorf("hashing scenario %q: %w", sc.Name, err)
	}
	return xxhash.Sum64(raw), nil
}

type entry[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// Cache is a TTL and size bounded map of cloned values, safe for concurrent use.
type Cache[V any] struct {
	mu      sync.RWMutex
	entries map[Key]entry[V]

	ttl        time.Duration
	maxEntries int
	clone      func(V) V
	now        func() time.Time
}

var _ ReadWriter[int] = (*Cache[int])(nil)

// New creates a cache. clone must return a value sharing no mutable state
// with its argument. A nil now uses time.Now.
func New[V any](cfg config.CacheConfig, clone func(V) V, now func() time.Time) *Cache[V] {
	if now == nil {
		now = time.Now
	}
	return &Cache[V]{
		entries:    make(map[Key]entry[V]),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		clone:      clone,
		now:        now,
	}
}

// Get returns a clone of the value under key.
func (c *Cache[V]) Get(key Key) (V, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return c.clone(e.value), true
}

// Put stores a clone of value.
func (c *Cache[V]) Put(key Key, value V) {
	now := c.now()
	stored := c.clone(value)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.pruneLocked(now)
		if len(c.entries) >= c.maxEntries {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = entry[V]{value: stored, storedAt: now, expiresAt: now.Add(c.ttl)}
}

// Invalidate removes every entry for scope, or all entries when scope is empty.
func (c *Cache[V]) Invalidate(scope string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for k := range c.entries {
		if scope == "" || k.Scope == scope {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Prune removes expired entries.
func (c *Cache[V]) Prune() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pruneLocked(now)
}

// Len returns the number of stored entries.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *Cache[V]) pruneLocked(now time.Time) int {
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// evictOldestLocked drops the entry stored first; ties go to the smaller key.
func (c *Cache[V]) evictOldestLocked() {
	var (
		oldest Key
		at     time.Time
		found  bool
	)
	for k, e := range c.entries {
		if !found || e.storedAt.Before(at) || (e.storedAt.Equal(at) && k.String() < oldest.String()) {
			oldest, at, found = k, e.storedAt, true
		}
	}
	if found {
		delete(c.entries, oldest)
	}
}
