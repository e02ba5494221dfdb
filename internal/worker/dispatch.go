package worker

import (
	"fmt"

	"github.com/lightshow/fxrunner/internal/dispatcher"
	"github.com/lightshow/fxrunner/internal/handlers"
	"github.com/lightshow/fxrunner/pkg/events"
)

// RegisterHandlers registers all event handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// Beats arrive at tempo rate - buffered, a late beat is worthless so drop on overflow
	d.Register(events.TypeBeat, m.handleBeat, dispatcher.Buffered(64))

	// Playback control - sync, the fetch itself runs in the background
	d.Register(events.TypeTrackChange, m.handleTrackChange, dispatcher.Logged())
	d.Register(events.TypeStop, m.handleStop, dispatcher.Logged())

	// Direct effects and topology - sync
	d.Register(events.TypeSetEffects, m.handleSetEffects, dispatcher.Logged())
	d.Register(events.TypeRemoveEffects, m.handleRemoveEffects, dispatcher.Logged())
	d.Register(events.TypeRemoveGroup, m.handleRemoveGroup, dispatcher.Logged())
}

func (m *Manager) handleBeat(e dispatcher.Event) (any, error) {
	var ev events.BeatEvent
	if err := e.Decode(&ev); err != nil {
		return nil, err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.Timestamp
	}

	m.deps.Track.Beat(ev.Timestamp)
	m.deps.Scheduler.Beat(ev)
	m.deps.Handlers.Beat(ev)
	return nil, nil
}

func (m *Manager) handleTrackChange(e dispatcher.Event) (any, error) {
	var ev events.TrackChangeEvent
	if err := e.Decode(&ev); err != nil {
		return nil, err
	}
	if ev.TrackURI == "" {
		return nil, fmt.Errorf("%s: missing track uri", e.Command)
	}
	if ev.StartTime.IsZero() {
		ev.StartTime = e.Timestamp
	}

	m.deps.Track.SetTrack(ev.TrackURI, ev.StartTime)
	for _, o := range m.deps.Observers {
		o.TrackChanged(ev.TrackURI, ev.StartTime)
	}

	done := m.deps.Scheduler.OnTrackChange(m.ctx, ev)
	go m.awaitLoad(ev.TrackURI, done)
	return ev.TrackURI, nil
}

// handleStop pauses playback. The lights keep their last state; blackouts
// belong to track changes and shutdown.
func (m *Manager) handleStop(e dispatcher.Event) (any, error) {
	m.deps.Scheduler.Stop(false)
	m.deps.Track.Clear()
	return nil, nil
}

func (m *Manager) handleSetEffects(e dispatcher.Event) (any, error) {
	var cmd events.SetEffectsCommand
	if err := e.Decode(&cmd); err != nil {
		return nil, err
	}
	if err := m.deps.Handlers.HandleSetEffects(cmd); err != nil {
		return nil, fmt.Errorf("failed to set effects: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleRemoveEffects(e dispatcher.Event) (any, error) {
	var cmd events.RemoveEffectsCommand
	if err := e.Decode(&cmd); err != nil {
		return nil, err
	}
	if err := m.deps.Handlers.HandleRemoveEffects(cmd); err != nil {
		return nil, fmt.Errorf("failed to remove effects: %w", err)
	}
	return nil, nil
}

func (m *Manager) handleRemoveGroup(e dispatcher.Event) (any, error) {
	var cmd events.RemoveGroupCommand
	if err := e.Decode(&cmd); err != nil {
		return nil, err
	}
	if !m.RemoveGroup(cmd.GroupID) {
		return nil, fmt.Errorf("remove group %d: %w", cmd.GroupID, handlers.ErrUnknownGroup)
	}
	return nil, nil
}
