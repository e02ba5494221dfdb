package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightshow/fxrunner/internal/cache"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/handlers"
	"github.com/lightshow/fxrunner/internal/logging"
	"github.com/lightshow/fxrunner/internal/sequence"
	"github.com/lightshow/fxrunner/internal/track"
)

// TrackObserver is told about track changes and about the outcome of the
// sequence fetch that follows them.
type TrackObserver interface {
	TrackChanged(uri string, start time.Time)
	SequenceLoaded(uri string, err error)
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Scheduler  *sequence.Scheduler
	Handlers   *handlers.Service
	Universe   *fixture.Universe
	Groups     *cache.GroupCache
	Track      *track.Context
	LogManager *logging.SlogManager

	// Observers are optional.
	Observers []TrackObserver
}

// Manager turns incoming events into scheduler and handler calls.
type Manager struct {
	deps Dependencies
	ctx  context.Context
}

// NewManager creates a new worker manager. ctx bounds the sequence fetches
// started by track changes.
func NewManager(ctx context.Context, deps Dependencies) (*Manager, error) {
	if deps.Scheduler == nil {
		return nil, errors.New("worker: scheduler is required")
	}
	if deps.Handlers == nil {
		return nil, errors.New("worker: handlers are required")
	}
	if deps.Universe == nil {
		deps.Universe = fixture.NewUniverse()
	}
	if deps.Groups == nil {
		deps.Groups = cache.NewGroupCache()
	}
	if deps.Track == nil {
		deps.Track = track.NewContext()
	}
	return &Manager{deps: deps, ctx: ctx}, nil
}

func (m *Manager) logger() *slog.Logger {
	if m.deps.LogManager == nil {
		return slog.Default()
	}
	return m.deps.LogManager.Logger()
}

// LoadTopology registers groups with the universe, the group cache and the
// scheduler. A group that fails validation is skipped and reported; the others
// are still registered.
func (m *Manager) LoadTopology(groups []*fixture.Group) error {
	var errs []error
	for _, g := range groups {
		if err := m.deps.Universe.AddGroup(g); err != nil {
			m.logger().Error("Skipping group", "group", g.Name(), "error", err)
			errs = append(errs, fmt.Errorf("group %d: %w", g.ID(), err))
			continue
		}
		m.deps.Groups.Add(g)
		m.deps.Scheduler.AddGroup(g)
	}
	m.logger().Info("Topology loaded", "groups", m.deps.Groups.Len())
	return errors.Join(errs...)
}

// RemoveGroup takes a group out of the universe, the cache, the handlers and
// the scheduler.
func (m *Manager) RemoveGroup(id uint) bool {
	g, ok := m.deps.Groups.Remove(id)
	if !ok {
		return false
	}
	m.deps.Handlers.RemoveEffects(g)
	m.deps.Scheduler.RemoveGroup(id)
	m.deps.Universe.RemoveGroup(id)
	m.logger().Info("Group removed", "group", g.Name())
	return true
}

// awaitLoad reports the outcome of a sequence fetch.
func (m *Manager) awaitLoad(uri string, done <-chan error) {
	err := <-done
	switch {
	case errors.Is(err, sequence.ErrSuperseded):
		m.logger().Debug("Sequence fetch superseded", "track", uri)
	case err != nil:
		m.logger().Warn("Sequence loaded with errors", "track", uri, "error", err)
	default:
		m.logger().Info("Sequence ready", "track", uri)
	}
	for _, o := range m.deps.Observers {
		o.SequenceLoaded(uri, err)
	}
}
