// Package storage defines where the runner reads its venue topology and the
// predefined effect sequences of tracks from.
package storage

import (
	"context"

	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/sequence"
)

// SequenceStore returns the predefined effects of a track, ordered by
// timestamp then id. A track without a sequence yields an empty slice.
type SequenceStore interface {
	FindByTrack(ctx context.Context, trackURI string) ([]sequence.Event, error)
}

// TopologyStore builds the runtime groups of the venue.
type TopologyStore interface {
	LoadGroups(ctx context.Context, opts ...fixture.Option) ([]*fixture.Group, error)
}

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	SequenceStore
	TopologyStore
}

var _ sequence.Fetcher = SequenceStore(nil)
