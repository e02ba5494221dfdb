// Package memory keeps the topology and sequences in process memory.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/model"
	"github.com/lightshow/fxrunner/internal/model/convert"
	"github.com/lightshow/fxrunner/internal/sequence"
)

// Backend stores the venue and its sequences in memory.
type Backend struct {
	topology model.Topology
	effects  map[string][]model.LightsPredefinedEffect // keyed by track URI

	mu sync.RWMutex
}

// New creates an empty memory backend
func New() *Backend {
	return &Backend{
		effects: make(map[string][]model.LightsPredefinedEffect),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// SetTopology replaces the stored topology.
func (b *Backend) SetTopology(t model.Topology) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topology = t
}

// Topology returns the stored topology.
func (b *Backend) Topology() model.Topology {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.topology
}

// AddEffects appends rows to the sequences of their tracks.
func (b *Backend) AddEffects(rows ...model.LightsPredefinedEffect) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range rows {
		b.effects[r.TrackURI] = append(b.effects[r.TrackURI], r)
	}
}

// Tracks lists the URIs that have a sequence, sorted.
func (b *Backend) Tracks() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	uris := make([]string, 0, len(b.effects))
	for uri := range b.effects {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// FindByTrack returns the track's sequence ordered by timestamp then id.
func (b *Backend) FindByTrack(ctx context.Context, trackURI string) ([]sequence.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	rows := append([]model.LightsPredefinedEffect(nil), b.effects[trackURI]...)
	b.mu.RUnlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Timestamp != rows[j].Timestamp {
			return rows[i].Timestamp < rows[j].Timestamp
		}
		return rows[i].ID < rows[j].ID
	})
	return convert.EffectsToEvents(rows), nil
}

// LoadGroups builds fresh runtime groups from the stored topology.
func (b *Backend) LoadGroups(ctx context.Context, opts ...fixture.Option) ([]*fixture.Group, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return convert.TopologyToRuntime(b.Topology(), opts...)
}
