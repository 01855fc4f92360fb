// Package idempotency drops duplicate platform deliveries. Socket Mode
// redelivers envelopes after slow acks, and one user action can fan out as
// multiple event kinds for the same message timestamp.
package idempotency

import (
	"strings"
	"sync"
	"time"
)

const (
	defaultTTL      = 10 * time.Minute
	defaultMaxItems = 4096
)

// EventKey builds the dedup key for a platform event. Events that originate
// from the same message share a key regardless of event kind.
func EventKey(channelID, ts string) string {
	return "evt:" + strings.TrimSpace(channelID) + "_" + strings.TrimSpace(ts)
}

type SeenCache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	ttl      time.Duration
	maxItems int
	now      func() time.Time
}

func NewSeenCache(ttl time.Duration, maxItems int) *SeenCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return &SeenCache{
		items:    make(map[string]time.Time),
		ttl:      ttl,
		maxItems: maxItems,
		now:      time.Now,
	}
}

// Observe marks the key as seen and reports whether this is its first
// occurrence within the TTL window.
func (c *SeenCache) Observe(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if at, ok := c.items[key]; ok && now.Sub(at) < c.ttl {
		return false
	}
	c.items[key] = now
	c.pruneLocked(now)
	return true
}

func (c *SeenCache) pruneLocked(now time.Time) {
	if len(c.items) <= c.maxItems {
		return
	}
	for key, at := range c.items {
		if now.Sub(at) >= c.ttl {
			delete(c.items, key)
		}
	}
	// Still over cap after expiry: drop oldest entries.
	for len(c.items) > c.maxItems {
		oldestKey := ""
		var oldestAt time.Time
		for key, at := range c.items {
			if oldestKey == "" || at.Before(oldestAt) {
				oldestKey = key
				oldestAt = at
			}
		}
		if oldestKey == "" {
			return
		}
		delete(c.items, oldestKey)
	}
}
