// Package cache is a small in-process read-through cache used on the event
// ingestion hot path (server registry and curator roster lookups).
// Loads are singleflighted so a burst of events for one key produces a
// single database query, and entries may serve stale while a background
// refresh runs.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type Options struct {
	// TTL is how long a loaded value is served as fresh.
	TTL time.Duration
	// StaleWhileRevalidate extends the entry's life past TTL; within that
	// window the stale value is returned and one background reload runs.
	StaleWhileRevalidate time.Duration
	// NegativeTTL caches "not found" results; zero disables negative caching.
	NegativeTTL time.Duration
	// MaxEntries bounds the cache; oldest-inserted entries are evicted first.
	MaxEntries int
}

// MetricsHooks are optional observation callbacks, keyed by cache key.
type MetricsHooks struct {
	OnHit   func(labels map[string]string)
	OnMiss  func(labels map[string]string)
	OnStale func(labels map[string]string)
	OnStore func(labels map[string]string)
	OnError func(labels map[string]string)
}

// Loader fetches the value for a key. ok=false with a nil error is a
// cacheable "not found"; an error is cached only when NegativeTTL is set.
type Loader func(ctx context.Context, key string) (interface{}, bool, error)

type slot struct {
	value    interface{}
	err      error
	missing  bool
	freshFor time.Time
	staleFor time.Time
}

type Cache struct {
	mu       sync.RWMutex
	slots    map[string]*slot
	insertAt []string
	opts     Options
	hooks    MetricsHooks
	group    singleflight.Group
}

func New(opts Options, hooks MetricsHooks) *Cache {
	return &Cache{
		slots: make(map[string]*slot),
		opts:  opts,
		hooks: hooks,
	}
}

type loaded struct {
	value interface{}
	ok    bool
	err   error
}

// Get returns the cached value for key, loading it on miss. Within the
// stale window the previous value is returned immediately and a single
// refresh runs in the background.
func (c *Cache) Get(ctx context.Context, key string, loader Loader) (interface{}, bool, error) {
	now := time.Now()

	c.mu.RLock()
	s, present := c.slots[key]
	if present && now.Before(s.freshFor) {
		c.mu.RUnlock()
		c.observe(c.hooks.OnHit, key)
		if s.missing {
			return nil, false, s.err
		}
		return s.value, true, nil
	}
	if present && now.Before(s.staleFor) {
		value, missing, err := s.value, s.missing, s.err
		c.mu.RUnlock()
		c.observe(c.hooks.OnStale, key)
		go func() {
			_, _, _ = c.group.Do("refresh:"+key, func() (interface{}, error) {
				v, ok, loadErr := loader(context.WithoutCancel(ctx), key)
				c.store(key, v, ok, loadErr)
				return nil, nil
			})
		}()
		if missing {
			return nil, false, err
		}
		return value, true, nil
	}
	c.mu.RUnlock()

	if present {
		c.evict(key)
	}
	c.observe(c.hooks.OnMiss, key)

	result, _, _ := c.group.Do(key, func() (interface{}, error) {
		v, ok, err := loader(ctx, key)
		c.store(key, v, ok, err)
		return loaded{value: v, ok: ok, err: err}, nil
	})
	r := result.(loaded)
	if !r.ok {
		return nil, false, r.err
	}
	return r.value, true, nil
}

func (c *Cache) store(key string, value interface{}, ok bool, err error) {
	now := time.Now()
	s := &slot{}
	if ok {
		s.value = value
		s.freshFor = now.Add(c.opts.TTL)
		s.staleFor = s.freshFor.Add(c.opts.StaleWhileRevalidate)
	} else {
		if c.opts.NegativeTTL <= 0 {
			c.observe(c.hooks.OnError, key)
			return
		}
		s.missing = true
		s.err = err
		s.freshFor = now.Add(c.opts.NegativeTTL)
		s.staleFor = s.freshFor
	}

	c.mu.Lock()
	if _, exists := c.slots[key]; !exists {
		c.insertAt = append(c.insertAt, key)
	}
	c.slots[key] = s
	c.trim()
	c.mu.Unlock()
	c.observe(c.hooks.OnStore, key)
}

// evict removes an expired key so the subsequent load repopulates it.
func (c *Cache) evict(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.slots[key]; !ok {
		return
	}
	delete(c.slots, key)
	for i, k := range c.insertAt {
		if k == key {
			c.insertAt = append(c.insertAt[:i], c.insertAt[i+1:]...)
			return
		}
	}
}

// trim drops oldest-inserted entries past MaxEntries. Caller holds mu.
func (c *Cache) trim() {
	if c.opts.MaxEntries <= 0 {
		return
	}
	for len(c.slots) > c.opts.MaxEntries && len(c.insertAt) > 0 {
		victim := c.insertAt[0]
		c.insertAt = c.insertAt[1:]
		delete(c.slots, victim)
	}
}

func (c *Cache) observe(hook func(map[string]string), key string) {
	if hook != nil {
		hook(map[string]string{"key": key})
	}
}
