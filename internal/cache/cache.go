package cache

import (
	"sort"
	"sync"

	"github.com/lightshow/fxrunner/internal/fixture"
)

// GroupCache holds the runtime groups loaded at startup so that incoming
// commands can resolve a group by id or name without going back to the store.
type GroupCache struct {
	mu     sync.RWMutex
	groups map[uint]*fixture.Group
	names  map[string]uint
}

func NewGroupCache() *GroupCache {
	return &GroupCache{
		groups: make(map[uint]*fixture.Group),
		names:  make(map[string]uint),
	}
}

// Add stores g, replacing any group with the same id.
func (c *GroupCache) Add(g *fixture.Group) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.groups[g.ID()]; ok {
		delete(c.names, old.Name())
	}
	c.groups[g.ID()] = g
	c.names[g.Name()] = g.ID()
}

// Get retrieves a group by id.
func (c *GroupCache) Get(id uint) (*fixture.Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.groups[id]
	return g, ok
}

// GetByName retrieves a group by its unique name.
func (c *GroupCache) GetByName(name string) (*fixture.Group, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.names[name]
	if !ok {
		return nil, false
	}
	return c.groups[id], true
}

// Remove deletes the group with the given id and returns it.
func (c *GroupCache) Remove(id uint) (*fixture.Group, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.groups[id]
	if !ok {
		return nil, false
	}
	delete(c.groups, id)
	delete(c.names, g.Name())
	return g, true
}

// All returns the cached groups ordered by id.
func (c *GroupCache) All() []*fixture.Group {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*fixture.Group, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

func (c *GroupCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.groups)
}

// Reset clears all groups from the cache
func (c *GroupCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.groups = make(map[uint]*fixture.Group)
	c.names = make(map[string]uint)
}
