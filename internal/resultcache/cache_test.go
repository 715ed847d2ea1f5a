package resultcache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workforce-planning/capacity-intelligence/api/v1alpha1"
	"github.com/workforce-planning/capacity-intelligence/internal/config"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func cloneSlice(in []string) []string { return append([]string(nil), in...) }

func newCache(maxEntries int) (*Cache[[]string], *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	cfg := config.CacheConfig{Enabled: true, TTL: time.Minute, MaxEntries: maxEntries}
	return New(cfg, cloneSlice, clock.Now), clock
}

func TestGetPut(t *testing.T) {
	c, _ := newCache(10)
	key := Key{Scope: "all", Horizon: "3m"}

	_, ok := c.Get(key)
	assert.False(t, ok)

	value := []string{"a", "b"}
	c.Put(key, value)
	value[0] = "changed"

	got, ok := c.Get(key)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, got, "stored values are cloned on write")
	got[1] = "changed"

	again, _ := c.Get(key)
	assert.Equal(t, []string{"a", "b"}, again, "returned values are cloned on read")
}

func TestTTL(t *testing.T) {
	c, clock := newCache(10)
	key := Key{Scope: "all"}
	c.Put(key, []string{"x"})

	clock.Advance(59 * time.Second)
	_, ok := c.Get(key)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok = c.Get(key)
	assert.False(t, ok, "entries expire at the TTL")
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Prune())
	assert.Equal(t, 0, c.Len())
}

func TestMaxEntries(t *testing.T) {
	c, clock := newCache(2)
	c.Put(Key{Scope: "a"}, []string{"a"})
	clock.Advance(time.Second)
	c.Put(Key{Scope: "b"}, []string{"b"})
	clock.Advance(time.Second)
	c.Put(Key{Scope: "c"}, []string{"c"})

	assert.Equal(t, 2, c.Len())
	_, ok := c.Get(Key{Scope: "a"})
	assert.False(t, ok, "the oldest entry is evicted")
	_, ok = c.Get(Key{Scope: "c"})
	assert.True(t, ok)

	// Overwriting an existing key does not evict.
	c.Put(Key{Scope: "b"}, []string{"b2"})
	assert.Equal(t, 2, c.Len())
}

func TestInvalidate(t *testing.T) {
	c, _ := newCache(10)
	c.Put(Key{Scope: "eng", Horizon: "3m"}, []string{"1"})
	c.Put(Key{Scope: "eng", Horizon: "6m"}, []string{"2"})
	c.Put(Key{Scope: "ops", Horizon: "3m"}, []string{"3"})

	assert.Equal(t, 2, c.Invalidate("eng"))
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 1, c.Invalidate(""))
	assert.Equal(t, 0, c.Len())
}

func TestHashScenario(t *testing.T) {
	sc := v1alpha1.Scenario{Name: "s", Changes: v1alpha1.ChangeList{
		v1alpha1.AddProject{ProjectID: "p", HoursPerPeriod: 100},
	}}
	opts := v1alpha1.AnalysisOptions{IncludeRiskAnalysis: true}

	h1, err := HashScenario(sc, opts)
	require.NoError(t, err)
	h2, err := HashScenario(sc, opts)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	other := sc
	other.Changes = v1alpha1.ChangeList{v1alpha1.AddProject{ProjectID: "p", HoursPerPeriod: 101}}
	h3, err := HashScenario(other, opts)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)

	h4, err := HashScenario(sc, v1alpha1.AnalysisOptions{})
	require.NoError(t, err)
	assert.NotEqual(t, h1, h4)
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newCache(8)
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := Key{Scope: "all", ChangeSet: uint64(i % 16)}
			c.Put(key, []string{"v"})
			c.Get(key)
			if i%10 == 0 {
				c.Prune()
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 8)
}
