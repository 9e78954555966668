package db

import (
	"sync"

	"github.com/lambdcalculus/dmbn/internal/perms"
)

// accessCache keeps decoded access rights by username. Storage stays the source
// of truth; a miss always falls back to it.
//
// Every eviction bumps the generation. A reader notes the generation before
// going to storage and only fills the cache if it didn't change in between, so
// a read that raced a mutation can't put back the old rights.
type accessCache struct {
	mu      sync.RWMutex
	entries map[string]perms.Rights
	gen     uint64
}

func newAccessCache() *accessCache {
	return &accessCache{entries: make(map[string]perms.Rights)}
}

func (c *accessCache) get(username string) (perms.Rights, bool, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[username]
	return r, ok, c.gen
}

func (c *accessCache) fill(username string, r perms.Rights, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.entries[username] = r
}

func (c *accessCache) evict(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, username)
	c.gen++
}

func (c *accessCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
