package fixture

import (
	"fmt"
)

// Group is an ordered set of fixtures addressed as one unit. A group exclusively
// owns its fixtures.
type Group struct {
	id       uint
	name     string
	fixtures []Fixture
}

// NewGroup creates a group, rejecting fixtures whose channels overlap.
func NewGroup(id uint, name string, fixtures ...Fixture) (*Group, error) {
	addresses := make(map[int]Fixture)
	seen := make(map[Fixture]bool, len(fixtures))
	for _, f := range fixtures {
		if seen[f] {
			return nil, fmt.Errorf("group %q: fixture %q listed twice: %w", name, f.Name(), ErrFixtureShared)
		}
		seen[f] = true
		if err := occupy(addresses, f); err != nil {
			return nil, fmt.Errorf("group %q: %w", name, err)
		}
	}

	return &Group{
		id:       id,
		name:     name,
		fixtures: append([]Fixture(nil), fixtures...),
	}, nil
}

// occupy claims the absolute addresses of f in addresses.
func occupy(addresses map[int]Fixture, f Fixture) error {
	for _, ch := range f.Channels() {
		addr := f.FirstChannel() + ch - 1
		if other, ok := addresses[addr]; ok && other != f {
			return fmt.Errorf("channel %d of %q and %q: %w", addr, other.Name(), f.Name(), ErrChannelOverlap)
		}
		addresses[addr] = f
	}
	return nil
}

func (g *Group) ID() uint     { return g.id }
func (g *Group) Name() string { return g.name }
func (g *Group) Len() int     { return len(g.fixtures) }

// Fixtures returns the group's fixtures in order.
func (g *Group) Fixtures() []Fixture {
	return append([]Fixture(nil), g.fixtures...)
}

// Pars returns the pars in group order.
func (g *Group) Pars() []*Par {
	var out []*Par
	for _, f := range g.fixtures {
		if p, ok := f.(*Par); ok {
			out = append(out, p)
		}
	}
	return out
}

// MovingHeadRgbs returns the RGB moving heads in group order.
func (g *Group) MovingHeadRgbs() []*MovingHeadRgb {
	var out []*MovingHeadRgb
	for _, f := range g.fixtures {
		if m, ok := f.(*MovingHeadRgb); ok {
			out = append(out, m)
		}
	}
	return out
}

// MovingHeadWheels returns the wheel moving heads in group order.
func (g *Group) MovingHeadWheels() []*MovingHeadWheel {
	var out []*MovingHeadWheel
	for _, f := range g.fixtures {
		if m, ok := f.(*MovingHeadWheel); ok {
			out = append(out, m)
		}
	}
	return out
}

// Blackout blacks out every fixture regardless of variant.
func (g *Group) Blackout() {
	for _, f := range g.fixtures {
		f.Blackout()
	}
}

// PackInto renders every fixture into its absolute addresses in frame. Channels
// not driven by a fixture are left untouched.
func (g *Group) PackInto(frame *Frame) {
	for _, f := range g.fixtures {
		values := f.Frame()
		for _, ch := range f.Channels() {
			frame[f.FirstChannel()+ch-2] = values[ch-1]
		}
	}
}
