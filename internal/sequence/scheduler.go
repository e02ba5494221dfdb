package sequence

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lightshow/fxrunner/internal/effect"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/logging"
	"github.com/lightshow/fxrunner/pkg/events"
)

var (
	// ErrSuperseded is reported for a fetch whose result was dropped because a
	// later track change, load or stop happened first.
	ErrSuperseded = errors.New("sequence superseded")
	// ErrNoFetcher is reported when a track change arrives without a store.
	ErrNoFetcher = errors.New("no sequence fetcher configured")
)

// State is the playback state of the scheduler.
type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	if s == Playing {
		return "playing"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Observer is notified about effect activations and expirations. It is called
// with the stage lock held and must not block.
type Observer interface {
	EffectActivated(ev Event, groupID uint, trackURI string)
	EffectExpired(ev Event, trackURI string)
	GroupBlackedOut(groupID uint)
}

// ActiveEffect is a running effect instance for one group of an event.
type ActiveEffect struct {
	EventID uint
	Effect  effect.Effect
	Start   time.Duration
	End     time.Duration

	entry *entry
}

// Dependencies holds everything the scheduler needs.
type Dependencies struct {
	Registry   *effect.Registry
	Fetcher    Fetcher
	Clock      clockwork.Clock
	LogManager *logging.SlogManager
	Observer   Observer

	// Lock serializes the scheduler with every other writer of fixture state.
	// A private mutex is used when nil.
	Lock sync.Locker
}

// Scheduler activates and expires the effects of a predefined sequence.
// Pending events live in a min-heap that Tick drains, so nothing can fire
// after a stop.
type Scheduler struct {
	deps    Dependencies
	clock   clockwork.Clock
	mu      sync.Locker
	metrics *metrics

	groups map[uint]*fixture.Group
	// held groups are driven by direct effects and are not targeted by events
	held map[uint]bool

	state      State
	trackURI   string
	trackStart time.Time
	generation uint64

	entries map[uint]*entry
	pending pendingQueue
	active  []*ActiveEffect
	seq     int
}

// New creates an idle scheduler.
func New(deps Dependencies) (*Scheduler, error) {
	if deps.Registry == nil {
		return nil, errors.New("sequence: registry is required")
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Lock == nil {
		deps.Lock = &sync.Mutex{}
	}

	m, err := newMetrics()
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		deps:    deps,
		clock:   deps.Clock,
		mu:      deps.Lock,
		metrics: m,
		groups:  make(map[uint]*fixture.Group),
		held:    make(map[uint]bool),
		entries: make(map[uint]*entry),
	}, nil
}

func (s *Scheduler) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.Default()
	}
	return s.deps.LogManager.Logger()
}

// AddGroup makes g available as a target of sequence events.
func (s *Scheduler) AddGroup(g *fixture.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.ID()] = g
}

// RemoveGroup drops a group and its running effects. When the last group is
// removed the sequence stops with a blackout.
func (s *Scheduler) RemoveGroup(id uint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	g, ok := s.groups[id]
	if !ok {
		return false
	}
	delete(s.groups, id)
	delete(s.held, id)

	if s.dropEffects(g) {
		s.blackout(g)
	}

	if len(s.groups) == 0 {
		s.stopLocked(true)
		s.generation++
	}
	return true
}

// dropEffects removes the running effects of g and reports whether it had any.
func (s *Scheduler) dropEffects(g *fixture.Group) bool {
	kept := make([]*ActiveEffect, 0, len(s.active))
	removed := false
	for _, a := range s.active {
		if a.Effect.Group() == g {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	s.active = kept
	return removed
}

// HoldGroup hands a group over to another owner. Its running effects are
// dropped without a blackout, the new owner decides what the fixtures show,
// and later events skip the group until ReleaseGroup.
func (s *Scheduler) HoldGroup(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.held[id] = true
	if g, ok := s.groups[id]; ok && s.dropEffects(g) {
		s.logger().Debug("Sequence effects dropped for held group", "group", id)
	}
}

// ReleaseGroup makes a held group a target of sequence events again.
func (s *Scheduler) ReleaseGroup(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.held, id)
}

// Load replaces the current sequence. Events whose window already closed are
// discarded, events whose window contains the current offset start right away
// and the rest are queued. Events with an unknown effect or bad properties are
// skipped; their errors are joined into the returned error while every other
// event is still loaded.
func (s *Scheduler) Load(seq []Event, trackStart time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	return s.loadLocked(seq, trackStart)
}

func (s *Scheduler) loadLocked(seq []Event, trackStart time.Time) error {
	s.stopLocked(true)
	s.entries = make(map[uint]*entry)

	now := s.clock.Now()
	offset := now.Sub(trackStart)
	s.trackStart = trackStart
	s.state = Playing

	var errs []error
	byTimestamp := GroupByTimestamp(seq)
	for _, ts := range Timestamps(byTimestamp) {
		for _, ev := range byTimestamp[ts] {
			if ev.End() <= offset {
				continue
			}

			builder, err := s.deps.Registry.Resolve(ev.EffectName, ev.Props)
			if err != nil {
				s.skip(ev, err)
				errs = append(errs, fmt.Errorf("event %d: %w", ev.ID, err))
				continue
			}

			e := &entry{event: ev, builder: builder, index: -1, seq: s.seq}
			s.seq++
			s.entries[ev.ID] = e

			if ev.Start() <= offset {
				s.activate(e, now)
				continue
			}
			e.lifecycle = Lifecycle{Phase: Scheduled, FireAt: ev.Start()}
			heap.Push(&s.pending, e)
		}
	}

	s.logger().Info("Sequence loaded",
		"track", s.trackURI,
		"events", len(seq),
		"active", len(s.active),
		"pending", s.pending.Len(),
		"offset", offset)

	return errors.Join(errs...)
}

func (s *Scheduler) skip(ev Event, err error) {
	reason := reasonDecodeError
	if errors.Is(err, effect.ErrUnknownEffect) {
		reason = reasonUnknownEffect
	}
	s.logger().Warn("Skipping sequence event",
		"event", ev.ID,
		"effect", ev.EffectName,
		"track", s.trackURI,
		"error", err)
	s.metrics.skipped.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("reason", reason)))
}

// activate builds one effect per target group that is currently known.
func (s *Scheduler) activate(e *entry, now time.Time) {
	ctx := context.Background()
	e.lifecycle = Lifecycle{Phase: Active, Since: now}

	for _, id := range e.event.GroupIDs {
		g, ok := s.groups[id]
		if !ok {
			s.logger().Debug("Sequence event targets unknown group", "event", e.event.ID, "group", id)
			continue
		}
		if s.held[id] {
			s.logger().Debug("Sequence event targets held group", "event", e.event.ID, "group", id)
			continue
		}
		s.active = append(s.active, &ActiveEffect{
			EventID: e.event.ID,
			Effect:  e.builder(g),
			Start:   e.event.Start(),
			End:     e.event.End(),
			entry:   e,
		})
		s.metrics.activated.Add(ctx, 1,
			metric.WithAttributes(attribute.String("effect", e.event.EffectName)))
		if s.deps.Observer != nil {
			s.deps.Observer.EffectActivated(e.event, id, s.trackURI)
		}
	}
}

func (s *Scheduler) blackout(g *fixture.Group) {
	g.Blackout()
	s.metrics.blackouts.Add(context.Background(), 1)
	if s.deps.Observer != nil {
		s.deps.Observer.GroupBlackedOut(g.ID())
	}
}

// Tick expires finished effects, starts the queued events that are due and
// then advances every running effect. Each group whose effects expire is
// blacked out once per tick.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Playing {
		return
	}

	now := s.clock.Now()
	offset := now.Sub(s.trackStart)
	s.expire(offset)

	for next := s.pending.peek(); next != nil && next.lifecycle.FireAt <= offset; next = s.pending.peek() {
		e := heap.Pop(&s.pending).(*entry)
		if e.event.End() <= offset {
			e.lifecycle = Lifecycle{Phase: Expired}
			s.metrics.skipped.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("reason", reasonMissed)))
			continue
		}
		s.activate(e, now)
	}

	for _, a := range s.active {
		a.Effect.Tick()
	}
}

func (s *Scheduler) expire(offset time.Duration) {
	if len(s.active) == 0 {
		return
	}

	kept := make([]*ActiveEffect, 0, len(s.active))
	blackedOut := make(map[*fixture.Group]bool)
	for _, a := range s.active {
		if a.End > offset {
			kept = append(kept, a)
			continue
		}

		g := a.Effect.Group()
		if !blackedOut[g] {
			blackedOut[g] = true
			s.blackout(g)
		}
		if a.entry.lifecycle.Phase == Active {
			a.entry.lifecycle = Lifecycle{Phase: Expired}
			s.metrics.expired.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("effect", a.entry.event.EffectName)))
			if s.deps.Observer != nil {
				s.deps.Observer.EffectExpired(a.entry.event, s.trackURI)
			}
		}
	}
	s.active = kept
}

// Beat forwards a beat to every running effect.
func (s *Scheduler) Beat(ev events.BeatEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.active {
		a.Effect.Beat(ev)
	}
}

// Stop cancels every queued event and drops the running effects. With
// blackout set, every group that had a running effect is blacked out; without
// it the lights keep their last state, which is what a pause wants.
func (s *Scheduler) Stop(blackout bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked(blackout)
	s.generation++
}

func (s *Scheduler) stopLocked(blackout bool) {
	for _, e := range s.pending {
		e.lifecycle = Lifecycle{Phase: Cancelled}
		e.index = -1
	}
	s.pending = nil

	done := make(map[*fixture.Group]bool)
	for _, a := range s.active {
		g := a.Effect.Group()
		if blackout && !done[g] {
			done[g] = true
			s.blackout(g)
		}
	}
	for _, e := range s.entries {
		if e.lifecycle.Phase == Active {
			e.lifecycle = Lifecycle{Phase: Cancelled}
		}
	}
	s.active = nil
	s.state = Idle
}

// OnTrackChange stops the current sequence with a blackout and fetches the
// sequence of the new track in the background. The returned channel receives
// the outcome once: nil or the joined load errors on success, the fetch error,
// or ErrSuperseded when a later change won. Track changes are ignored while
// the scheduler has no groups.
func (s *Scheduler) OnTrackChange(ctx context.Context, ev events.TrackChangeEvent) <-chan error {
	done := make(chan error, 1)

	s.mu.Lock()
	s.stopLocked(true)
	s.generation++
	gen := s.generation
	s.trackURI = ev.TrackURI
	noGroups := len(s.groups) == 0
	s.mu.Unlock()

	if noGroups {
		done <- nil
		close(done)
		return done
	}
	if s.deps.Fetcher == nil {
		done <- ErrNoFetcher
		close(done)
		return done
	}

	go func() {
		defer close(done)
		seq, err := s.deps.Fetcher.FindByTrack(ctx, ev.TrackURI)

		s.mu.Lock()
		defer s.mu.Unlock()

		if gen != s.generation {
			s.metrics.fetches.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("outcome", "superseded")))
			done <- ErrSuperseded
			return
		}
		if err != nil {
			s.metrics.fetches.Add(context.Background(), 1,
				metric.WithAttributes(attribute.String("outcome", "failed")))
			s.logger().Error("Failed to fetch sequence", "track", ev.TrackURI, "error", err)
			done <- fmt.Errorf("fetching sequence for %s: %w", ev.TrackURI, err)
			return
		}
		s.metrics.fetches.Add(context.Background(), 1,
			metric.WithAttributes(attribute.String("outcome", "loaded")))
		done <- s.loadLocked(seq, ev.StartTime)
	}()

	return done
}

// Lifecycle returns the lifecycle of a loaded event.
func (s *Scheduler) Lifecycle(eventID uint) (Lifecycle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[eventID]
	if !ok {
		return Lifecycle{}, false
	}
	return e.lifecycle, true
}

// ActiveGroups returns the ids of the groups driven by a running effect.
func (s *Scheduler) ActiveGroups() []uint {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uint]bool)
	var ids []uint
	for _, a := range s.active {
		id := a.Effect.Group().ID()
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// PendingEvent is a queued activation.
type PendingEvent struct {
	EventID uint          `json:"eventId"`
	FireAt  time.Duration `json:"fireAt"`
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	State    State          `json:"state"`
	TrackURI string         `json:"trackUri"`
	Offset   time.Duration  `json:"offset"`
	Groups   []uint         `json:"groups"`
	Held     []uint         `json:"held,omitempty"`
	Pending  []PendingEvent `json:"pending"`
	Active   []uint         `json:"active"`
}

// Snapshot returns the current status. Pending events are in firing order and
// active event ids are listed once each in activation order.
func (s *Scheduler) Snapshot() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		State:    s.state,
		TrackURI: s.trackURI,
	}
	if s.state == Playing {
		st.Offset = s.clock.Since(s.trackStart)
	}

	for id := range s.groups {
		st.Groups = append(st.Groups, id)
	}
	sort.Slice(st.Groups, func(i, j int) bool { return st.Groups[i] < st.Groups[j] })

	for id := range s.held {
		st.Held = append(st.Held, id)
	}
	sort.Slice(st.Held, func(i, j int) bool { return st.Held[i] < st.Held[j] })

	queued := make(pendingQueue, len(s.pending))
	copy(queued, s.pending)
	sort.Slice(queued, queued.Less)
	for _, e := range queued {
		st.Pending = append(st.Pending, PendingEvent{EventID: e.event.ID, FireAt: e.lifecycle.FireAt})
	}

	seen := make(map[uint]bool)
	for _, a := range s.active {
		if !seen[a.EventID] {
			seen[a.EventID] = true
			st.Active = append(st.Active, a.EventID)
		}
	}
	return st
}
