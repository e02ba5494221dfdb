// Package handlers drives effects that are set directly on a group by a
// command, outside of any predefined sequence.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/lightshow/fxrunner/internal/cache"
	"github.com/lightshow/fxrunner/internal/effect"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/logging"
	"github.com/lightshow/fxrunner/pkg/events"
)

// ErrUnknownGroup is returned when a command addresses a group that is not loaded.
var ErrUnknownGroup = errors.New("unknown group")

// GroupOwner is the other driver of group effects, the sequence scheduler.
// A group with direct effects is held there so only one of them writes its
// fixtures.
type GroupOwner interface {
	HoldGroup(id uint)
	ReleaseGroup(id uint)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Registry   *effect.Registry
	Groups     *cache.GroupCache
	LogManager *logging.SlogManager
	Sequence   GroupOwner

	// Lock serializes fixture writes with the sequence scheduler.
	Lock sync.Locker
}

// Service keeps the directly set effects of every group.
type Service struct {
	deps    Dependencies
	mu      sync.Locker
	effects map[uint][]effect.Effect
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Lock == nil {
		deps.Lock = &sync.Mutex{}
	}
	if deps.Groups == nil {
		deps.Groups = cache.NewGroupCache()
	}
	return &Service{
		deps:    deps,
		mu:      deps.Lock,
		effects: make(map[uint][]effect.Effect),
	}
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.Default()
	}
	return s.deps.LogManager.Logger()
}

// SetEffects blacks out g and then attaches one effect per builder, replacing
// whatever was attached before.
func (s *Service) SetEffects(g *fixture.Group, builders []effect.Builder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.Blackout()
	list := make([]effect.Effect, 0, len(builders))
	for _, b := range builders {
		list = append(list, b(g))
	}
	s.effects[g.ID()] = list
}

// RemoveEffects blacks out g and drops its effects.
func (s *Service) RemoveEffects(g *fixture.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()

	g.Blackout()
	delete(s.effects, g.ID())
}

func (s *Service) resolveGroup(id uint, name string) (*fixture.Group, error) {
	if id != 0 {
		if g, ok := s.deps.Groups.Get(id); ok {
			return g, nil
		}
		return nil, fmt.Errorf("%w: %d", ErrUnknownGroup, id)
	}
	if g, ok := s.deps.Groups.GetByName(name); ok {
		return g, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownGroup, name)
}

// HandleSetEffects resolves the group and every effect of cmd. Nothing changes
// unless all of them resolve. The group is then taken from the sequence.
func (s *Service) HandleSetEffects(cmd events.SetEffectsCommand) error {
	if s.deps.Registry == nil {
		return errors.New("handlers: registry is required")
	}
	g, err := s.resolveGroup(cmd.GroupID, cmd.GroupName)
	if err != nil {
		return err
	}

	builders := make([]effect.Builder, 0, len(cmd.Effects))
	for i, spec := range cmd.Effects {
		b, err := s.deps.Registry.Resolve(spec.Name, spec.Props)
		if err != nil {
			return fmt.Errorf("effect %d: %w", i, err)
		}
		builders = append(builders, b)
	}

	if s.deps.Sequence != nil {
		s.deps.Sequence.HoldGroup(g.ID())
	}
	s.SetEffects(g, builders)
	s.logger().Info("Effects set", "group", g.Name(), "effects", len(builders))
	return nil
}

// HandleRemoveEffects resolves the group of cmd, removes its effects and hands
// it back to the sequence.
func (s *Service) HandleRemoveEffects(cmd events.RemoveEffectsCommand) error {
	g, err := s.resolveGroup(cmd.GroupID, cmd.GroupName)
	if err != nil {
		return err
	}
	s.RemoveEffects(g)
	if s.deps.Sequence != nil {
		s.deps.Sequence.ReleaseGroup(g.ID())
	}
	s.logger().Info("Effects removed", "group", g.Name())
	return nil
}

// Beat forwards a beat to every attached effect.
func (s *Service) Beat(ev events.BeatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.effects {
		for _, e := range list {
			e.Beat(ev)
		}
	}
}

// Tick advances every attached effect.
func (s *Service) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.effects {
		for _, e := range list {
			e.Tick()
		}
	}
}

// Groups returns the ids of the groups with attached effects.
func (s *Service) Groups() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint, 0, len(s.effects))
	for id := range s.effects {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Effects returns the effects attached to a group.
func (s *Service) Effects(id uint) []effect.Effect {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]effect.Effect(nil), s.effects[id]...)
}
