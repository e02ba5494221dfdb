package fixture

import (
	"fmt"
	"sync"
)

// Frame is a full DMX universe; index 0 holds channel 1.
type Frame [UniverseSize]uint8

// Universe is the set of groups rendered into a single frame. It validates that
// no address is driven twice and that no fixture belongs to two groups.
type Universe struct {
	mu        sync.RWMutex
	groups    []*Group
	addresses map[int]Fixture
	owners    map[Fixture]uint
}

// NewUniverse creates an empty universe.
func NewUniverse() *Universe {
	return &Universe{
		addresses: make(map[int]Fixture),
		owners:    make(map[Fixture]uint),
	}
}

// AddGroup registers g. Nothing is registered when validation fails.
func (u *Universe) AddGroup(g *Group) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	for _, existing := range u.groups {
		if existing.ID() == g.ID() {
			return fmt.Errorf("group %d already registered", g.ID())
		}
	}

	addresses := make(map[int]Fixture, len(u.addresses))
	for addr, f := range u.addresses {
		addresses[addr] = f
	}
	for _, f := range g.fixtures {
		if owner, ok := u.owners[f]; ok {
			return fmt.Errorf("fixture %q in group %d: %w", f.Name(), owner, ErrFixtureShared)
		}
		if err := occupy(addresses, f); err != nil {
			return fmt.Errorf("group %q: %w", g.Name(), err)
		}
	}

	u.addresses = addresses
	for _, f := range g.fixtures {
		u.owners[f] = g.ID()
	}
	u.groups = append(u.groups, g)
	return nil
}

// RemoveGroup unregisters the group with the given id.
func (u *Universe) RemoveGroup(id uint) (*Group, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	for i, g := range u.groups {
		if g.ID() != id {
			continue
		}
		u.groups = append(u.groups[:i:i], u.groups[i+1:]...)
		for _, f := range g.fixtures {
			delete(u.owners, f)
			for _, ch := range f.Channels() {
				delete(u.addresses, f.FirstChannel()+ch-1)
			}
		}
		return g, true
	}
	return nil, false
}

// Groups returns the registered groups in registration order.
func (u *Universe) Groups() []*Group {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return append([]*Group(nil), u.groups...)
}

// Frame renders every group into a fresh frame.
func (u *Universe) Frame() Frame {
	u.mu.RLock()
	defer u.mu.RUnlock()

	var frame Frame
	for _, g := range u.groups {
		g.PackInto(&frame)
	}
	return frame
}
