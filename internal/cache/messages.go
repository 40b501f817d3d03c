package cache

import (
	"container/list"
	"sync"
	"time"

	"github.com/chatbridge/chatbridge/internal/models"
)

// MessageCache is a bounded, time-expiring map of message envelopes keyed by
// their locally minted id. It is a pure cache: eviction is silent, and an
// evicted message is simply gone (the backend does not support re-delivery on
// request).
type MessageCache struct {
	max    int
	maxAge time.Duration

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = oldest
	now     func() time.Time
}

type messageEntry struct {
	id      string
	env     models.MessageEnvelope
	addedAt time.Time
}

// Bounds applied when a caller passes a non-positive limit.
const (
	defaultMessageCacheMax = 1000
	defaultMessageCacheAge = time.Hour
)

// NewMessageCache creates a cache holding at most max envelopes, each for at
// most maxAge. Non-positive bounds fall back to the defaults; a zero capacity
// would otherwise evict every envelope as it arrives.
func NewMessageCache(max int, maxAge time.Duration) *MessageCache {
	if max <= 0 {
		max = defaultMessageCacheMax
	}
	if maxAge <= 0 {
		maxAge = defaultMessageCacheAge
	}
	return &MessageCache{
		max:     max,
		maxAge:  maxAge,
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
	}
}

// Set stores env, evicting expired entries and then the oldest entries until
// the capacity bound holds.
func (c *MessageCache) Set(env models.MessageEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[env.ID]; ok {
		c.order.Remove(el)
		delete(c.entries, env.ID)
	}

	el := c.order.PushBack(&messageEntry{id: env.ID, env: env, addedAt: c.now()})
	c.entries[env.ID] = el

	c.evictLocked()
}

// Get returns the envelope for id if present and not expired.
func (c *MessageCache) Get(id string) (models.MessageEnvelope, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[id]
	if !ok {
		return models.MessageEnvelope{}, false
	}
	entry := el.Value.(*messageEntry)
	if c.now().Sub(entry.addedAt) > c.maxAge {
		c.order.Remove(el)
		delete(c.entries, id)
		return models.MessageEnvelope{}, false
	}
	return entry.env, true
}

// Len returns the number of cached envelopes, including any not yet lazily
// expired.
func (c *MessageCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MessageCache) evictLocked() {
	now := c.now()
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		entry := el.Value.(*messageEntry)
		if now.Sub(entry.addedAt) <= c.maxAge {
			break
		}
		c.order.Remove(el)
		delete(c.entries, entry.id)
		el = next
	}
	for len(c.entries) > c.max {
		el := c.order.Front()
		entry := el.Value.(*messageEntry)
		c.order.Remove(el)
		delete(c.entries, entry.id)
	}
}
