// Package cache provides the gateway's in-process lookup cache. Entries are
// written lazily on first remote lookup and live for the process lifetime;
// there is no expiry and no persistence across restarts.
package cache

import (
	"fmt"
	"sync"
)

// Cache is a mutex-guarded key/value store shared across connection workers.
// Concurrent first-time lookups for the same key may race and perform
// duplicate remote reads; lookups are referentially transparent, so
// last-writer-wins is acceptable.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]any
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[string]any)}
}

// Get returns the value stored under key.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries[key]
	return v, ok
}

// Put stores a value under key.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func nameKey(entity, name string) string { return entity + ":name:" + name }
func idKey(entity string, id any) string { return fmt.Sprintf("%s:id:%v", entity, id) }

// PutLookup stores a bidirectional name<->id pair for an entity. Both
// directions are written under one lock so a single lookup populates the
// pair atomically.
func (c *Cache) PutLookup(entity, name string, id any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[nameKey(entity, name)] = id
	c.entries[idKey(entity, id)] = name
}

// GetID returns the cached id for an entity name.
func (c *Cache) GetID(entity, name string) (any, bool) {
	return c.Get(nameKey(entity, name))
}

// GetName returns the cached name for an entity id.
func (c *Cache) GetName(entity string, id any) (string, bool) {
	v, ok := c.Get(idKey(entity, id))
	if !ok {
		return "", false
	}
	name, ok := v.(string)
	return name, ok
}
