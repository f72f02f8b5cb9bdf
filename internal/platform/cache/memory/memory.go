// Package memory provides an in-process cache driver. It is the default for
// single-node installs and the driver tests run against.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cache"
	"github.com/MahdiBaghbani/sophi-admin-go/internal/platform/cfg"
)

// Config holds memory driver settings from [cache.drivers.memory].
type Config struct {
	DefaultTTLSeconds      int `mapstructure:"default_ttl_seconds"`
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`

	// MaxEntries bounds the table. When full, the entry closest to expiry is
	// evicted to make room. Zero means unbounded.
	MaxEntries int `mapstructure:"max_entries"`
}

// ApplyDefaults implements cfg.Setter.
func (c *Config) ApplyDefaults() {
	if c.DefaultTTLSeconds <= 0 {
		c.DefaultTTLSeconds = int(cache.TTLDefault / time.Second)
	}
	if c.CleanupIntervalSeconds <= 0 {
		c.CleanupIntervalSeconds = 300
	}
	if c.MaxEntries < 0 {
		c.MaxEntries = 0
	}
}

func init() {
	cache.RegisterDriver("memory", func(raw map[string]any) (cache.CacheWithCounter, error) {
		var c Config
		if err := cfg.Decode(raw, &c); err != nil {
			return nil, fmt.Errorf("memory cache config: %w", err)
		}
		m := New(
			time.Duration(c.DefaultTTLSeconds)*time.Second,
			time.Duration(c.CleanupIntervalSeconds)*time.Second,
		)
		m.maxEntries = c.MaxEntries
		return m, nil
	})
}

// entry holds either a byte value or a counter. Counters and values share one
// key space, matching the redis driver.
type entry struct {
	value     []byte
	count     int64
	isCounter bool
	expiresAt time.Time
}

func (e *entry) live(now time.Time) bool {
	return now.Before(e.expiresAt)
}

// Cache is an in-memory cache.CacheWithCounter.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*entry
	defaultTTL time.Duration
	maxEntries int
	now        func() time.Time

	stopClean chan struct{}
	closeOnce sync.Once
}

// New creates a cache. cleanupInterval sets how often expired entries are
// swept; 0 disables the sweeper and expired entries are dropped on access.
func New(defaultTTL, cleanupInterval time.Duration) *Cache {
	c := &Cache{
		entries:    make(map[string]*entry),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stopClean:  make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	}
	return c
}

// NewBounded is New with a MaxEntries limit.
func NewBounded(defaultTTL, cleanupInterval time.Duration, maxEntries int) *Cache {
	c := New(defaultTTL, cleanupInterval)
	if maxEntries > 0 {
		c.maxEntries = maxEntries
	}
	return c
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sweepLocked()
	return len(c.entries)
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.sweepLocked()
			c.mu.Unlock()
		case <-c.stopClean:
			return
		}
	}
}

func (c *Cache) sweepLocked() {
	now := c.now()
	for k, e := range c.entries {
		if !e.live(now) {
			delete(c.entries, k)
		}
	}
}

// lookupLocked returns the live entry for key, dropping it if expired.
func (c *Cache) lookupLocked(key string) (*entry, bool) {
	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !e.live(c.now()) {
		delete(c.entries, key)
		return nil, false
	}
	return e, true
}

// storeLocked inserts e under key, evicting if the table is full.
func (c *Cache) storeLocked(key string, e *entry) {
	if _, exists := c.entries[key]; !exists && c.maxEntries > 0 && len(c.entries) >= c.maxEntries {
		c.sweepLocked()
		if len(c.entries) >= c.maxEntries {
			c.evictOneLocked()
		}
	}
	c.entries[key] = e
}

func (c *Cache) evictOneLocked() {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
	}
	delete(c.entries, victim)
}

func (c *Cache) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return c.defaultTTL
	}
	return ttl
}

// Get returns a copy of the stored value. Expired, absent and counter keys
// all report cache.ErrNotFound.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(key)
	if !ok || e.isCounter {
		return nil, cache.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value. A zero ttl uses the default.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	e := &entry{
		value:     append([]byte(nil), value...),
		expiresAt: c.now().Add(c.ttl(ttl)),
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.storeLocked(key, e)
	return nil
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

// Exists reports whether a live value or counter is stored under key.
func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.lookupLocked(key)
	return ok, nil
}

// Increment adds delta to a fixed-window counter. The window starts on the
// first increment and is not extended by later ones.
func (c *Cache) Increment(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(key)
	if !ok || !e.isCounter {
		e = &entry{isCounter: true, expiresAt: c.now().Add(c.ttl(ttl))}
		c.storeLocked(key, e)
	}
	e.count += delta
	return e.count, e.expiresAt, nil
}

// GetCount returns the counter value, 0 when absent or expired.
func (c *Cache) GetCount(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lookupLocked(key)
	if !ok || !e.isCounter {
		return 0, nil
	}
	return e.count, nil
}

// Reset clears a counter.
func (c *Cache) Reset(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() { close(c.stopClean) })
	return nil
}

var _ cache.CacheWithCounter = (*Cache)(nil)
