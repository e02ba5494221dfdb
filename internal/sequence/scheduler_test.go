package sequence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightshow/fxrunner/internal/effect"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/pkg/events"
)

var waveProps = json.RawMessage(`{"color":"red"}`)

type recordingObserver struct {
	mu        sync.Mutex
	activated []uint
	expired   []uint
	blackouts []uint
}

func (o *recordingObserver) EffectActivated(ev Event, groupID uint, trackURI string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activated = append(o.activated, ev.ID)
}

func (o *recordingObserver) EffectExpired(ev Event, trackURI string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expired = append(o.expired, ev.ID)
}

func (o *recordingObserver) GroupBlackedOut(groupID uint) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.blackouts = append(o.blackouts, groupID)
}

func (o *recordingObserver) Blackouts() []uint {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]uint(nil), o.blackouts...)
}

func (o *recordingObserver) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activated, o.expired, o.blackouts = nil, nil, nil
}

type fakeFetcher struct {
	mu        sync.Mutex
	sequences map[string][]Event
	gates     map[string]chan struct{}
	err       error
	calls     []string
}

func (f *fakeFetcher) FindByTrack(ctx context.Context, uri string) ([]Event, error) {
	f.mu.Lock()
	f.calls = append(f.calls, uri)
	gate := f.gates[uri]
	seq, err := f.sequences[uri], f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return seq, err
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fixtureSet struct {
	clock    *clockwork.FakeClock
	observer *recordingObserver
	fetcher  *fakeFetcher
	sched    *Scheduler
	groups   map[uint]*fixture.Group
	pars     map[uint]*fixture.Par
}

func newFixtureSet(t *testing.T, groupIDs ...uint) *fixtureSet {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC))
	fs := &fixtureSet{
		clock:    clock,
		observer: &recordingObserver{},
		fetcher:  &fakeFetcher{sequences: map[string][]Event{}, gates: map[string]chan struct{}{}},
		groups:   make(map[uint]*fixture.Group),
		pars:     make(map[uint]*fixture.Par),
	}

	s, err := New(Dependencies{
		Registry: effect.NewRegistry(clock),
		Fetcher:  fs.fetcher,
		Clock:    clock,
		Observer: fs.observer,
	})
	require.NoError(t, err)
	fs.sched = s

	for i, id := range groupIDs {
		p, err := fixture.NewPar(fixture.ParConfig{
			ID:               id,
			Name:             "par",
			FirstChannel:     1 + i*10,
			MasterDimChannel: 1,
			RgbChannels:      fixture.RgbChannels{RedChannel: 2, GreenChannel: 3, BlueChannel: 4},
		}, fixture.WithClock(clock))
		require.NoError(t, err)
		g, err := fixture.NewGroup(id, "group", p)
		require.NoError(t, err)
		fs.groups[id] = g
		fs.pars[id] = p
		s.AddGroup(g)
	}
	return fs
}

func (fs *fixtureSet) advance(d time.Duration) {
	fs.clock.Advance(d)
	fs.sched.Tick()
}

func TestNew_RequiresRegistry(t *testing.T) {
	_, err := New(Dependencies{})
	assert.Error(t, err)
}

func TestLoad_PartitionsByOffset(t *testing.T) {
	fs := newFixtureSet(t, 1)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 2, Timestamp: 500, Duration: 2000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 3, Timestamp: 3000, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 4, Timestamp: 2000, Duration: 500, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 5, Timestamp: 1500, Duration: 500, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}

	require.NoError(t, fs.sched.Load(seq, fs.clock.Now().Add(-2*time.Second)))

	st := fs.sched.Snapshot()
	assert.Equal(t, Playing, st.State)
	assert.Equal(t, []uint{2, 4}, st.Active)
	assert.Equal(t, []PendingEvent{{EventID: 3, FireAt: 3 * time.Second}}, st.Pending)

	for _, id := range []uint{1, 5} {
		_, ok := fs.sched.Lifecycle(id)
		assert.False(t, ok, "event %d ended before the offset", id)
	}

	lc, ok := fs.sched.Lifecycle(3)
	require.True(t, ok)
	assert.Equal(t, Lifecycle{Phase: Scheduled, FireAt: 3 * time.Second}, lc)

	lc, ok = fs.sched.Lifecycle(4)
	require.True(t, ok)
	assert.Equal(t, Lifecycle{Phase: Active, Since: fs.clock.Now()}, lc)
}

func TestLoad_SkipsUnknownAndInvalidEvents(t *testing.T) {
	fs := newFixtureSet(t, 1)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 1000, EffectName: "Sparkle", GroupIDs: []uint{1}},
		{ID: 2, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: json.RawMessage(`{"color":"nope"}`), GroupIDs: []uint{1}},
		{ID: 3, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}

	err := fs.sched.Load(seq, fs.clock.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, effect.ErrUnknownEffect)
	var decodeErr *effect.DecodeError
	assert.ErrorAs(t, err, &decodeErr)

	st := fs.sched.Snapshot()
	assert.Equal(t, Playing, st.State)
	assert.Equal(t, []uint{3}, st.Active)
}

func TestTick_ExpiresAndBlacksOutOncePerGroup(t *testing.T) {
	fs := newFixtureSet(t, 1, 2)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 2, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 3, Timestamp: 0, Duration: 2000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{2}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))

	fs.advance(999 * time.Millisecond)
	assert.Empty(t, fs.observer.Blackouts())
	assert.Equal(t, []uint{1, 2, 3}, fs.sched.Snapshot().Active)

	fs.advance(time.Millisecond)
	assert.Equal(t, []uint{1}, fs.observer.Blackouts())
	assert.Equal(t, []uint{3}, fs.sched.Snapshot().Active)
	assert.Equal(t, []uint{1, 2}, fs.observer.expired)

	fs.advance(100 * time.Millisecond)
	assert.Equal(t, []uint{1}, fs.observer.Blackouts(), "expired effects are removed exactly once")

	for _, id := range []uint{1, 2} {
		lc, ok := fs.sched.Lifecycle(id)
		require.True(t, ok)
		assert.Equal(t, Expired, lc.Phase)
	}
}

func TestStop_WithoutBlackout(t *testing.T) {
	fs := newFixtureSet(t, 1, 2)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1, 2}},
		{ID: 2, Timestamp: 1000, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))
	fs.advance(500 * time.Millisecond)
	dimmer := fs.pars[2].MasterDimmer()

	fs.sched.Stop(false)

	st := fs.sched.Snapshot()
	assert.Equal(t, Idle, st.State)
	assert.Empty(t, st.Active)
	assert.Empty(t, st.Pending)
	assert.Empty(t, fs.observer.Blackouts())
	assert.Equal(t, dimmer, fs.pars[2].MasterDimmer())

	lc, _ := fs.sched.Lifecycle(2)
	assert.Equal(t, Cancelled, lc.Phase)

	// the cancelled event never fires
	fs.advance(2 * time.Second)
	assert.Empty(t, fs.sched.Snapshot().Active)
	assert.Equal(t, []uint{1, 1}, fs.observer.activated)
}

func TestStop_WithBlackout(t *testing.T) {
	fs := newFixtureSet(t, 1, 2, 3)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1, 2}},
		{ID: 2, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{2}},
		{ID: 3, Timestamp: 4000, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{3}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))
	fs.advance(250 * time.Millisecond)

	fs.sched.Stop(true)
	assert.ElementsMatch(t, []uint{1, 2}, fs.observer.Blackouts())
	for _, id := range []uint{1, 2} {
		assert.Equal(t, make([]uint8, 4), fs.pars[id].Frame())
	}

	fs.sched.Stop(true)
	assert.Len(t, fs.observer.Blackouts(), 2, "stopping twice is a no-op")
}

func TestEndToEnd_WaveThenBeatFadeOut(t *testing.T) {
	fs := newFixtureSet(t, 1)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 2, Timestamp: 5000, Duration: 5000, EffectName: "BeatFadeOut",
			Props: json.RawMessage(`{"colors":["blue"]}`), GroupIDs: []uint{1}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))

	st := fs.sched.Snapshot()
	assert.Equal(t, []uint{1}, st.Active)
	assert.Equal(t, []PendingEvent{{EventID: 2, FireAt: 5 * time.Second}}, st.Pending)

	fs.advance(5 * time.Second)

	assert.Equal(t, []uint{1}, fs.observer.Blackouts())
	st = fs.sched.Snapshot()
	assert.Equal(t, []uint{2}, st.Active)
	assert.Empty(t, st.Pending)

	lc, _ := fs.sched.Lifecycle(1)
	assert.Equal(t, Expired, lc.Phase)
	lc, _ = fs.sched.Lifecycle(2)
	assert.Equal(t, Lifecycle{Phase: Active, Since: fs.clock.Now()}, lc)

	// BeatFadeOut already ticked in the same tick
	assert.Equal(t, []uint8{255, 0, 0, 255}, fs.pars[1].Frame())
}

func TestTick_MissedPendingEventExpires(t *testing.T) {
	fs := newFixtureSet(t, 1)
	seq := []Event{
		{ID: 1, Timestamp: 1000, Duration: 100, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))

	fs.advance(2 * time.Second)

	lc, _ := fs.sched.Lifecycle(1)
	assert.Equal(t, Expired, lc.Phase)
	assert.Empty(t, fs.sched.Snapshot().Active)
	assert.Empty(t, fs.observer.activated)
	assert.Empty(t, fs.observer.Blackouts())
}

func TestTick_PendingFiresInOrder(t *testing.T) {
	fs := newFixtureSet(t, 1)
	seq := []Event{
		{ID: 3, Timestamp: 300, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 1, Timestamp: 100, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 2, Timestamp: 100, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))
	assert.Equal(t, []PendingEvent{
		{EventID: 1, FireAt: 100 * time.Millisecond},
		{EventID: 2, FireAt: 100 * time.Millisecond},
		{EventID: 3, FireAt: 300 * time.Millisecond},
	}, fs.sched.Snapshot().Pending)

	fs.advance(100 * time.Millisecond)
	assert.Equal(t, []uint{1, 2}, fs.sched.Snapshot().Active)

	fs.advance(200 * time.Millisecond)
	assert.Equal(t, []uint{1, 2, 3}, fs.sched.Snapshot().Active)
}

func TestBeat_ForwardsToActiveEffects(t *testing.T) {
	fs := newFixtureSet(t, 1)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 10000, EffectName: "BeatFadeOut",
			Props: json.RawMessage(`{"colors":["red","blue"],"enableFade":false}`), GroupIDs: []uint{1}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))

	fs.advance(10 * time.Millisecond)
	assert.Equal(t, []uint8{255, 255, 0, 0}, fs.pars[1].Frame())

	fs.sched.Beat(events.BeatEvent{Beat: events.Beat{Duration: 0.5}})
	fs.advance(10 * time.Millisecond)
	assert.Equal(t, []uint8{255, 0, 0, 255}, fs.pars[1].Frame())
}

func TestOnTrackChange_LoadsFetchedSequence(t *testing.T) {
	fs := newFixtureSet(t, 1)
	fs.fetcher.sequences["spotify:track:a"] = []Event{
		{ID: 7, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}
	require.NoError(t, fs.sched.Load([]Event{
		{ID: 1, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}, fs.clock.Now()))

	done := fs.sched.OnTrackChange(context.Background(), events.TrackChangeEvent{
		TrackURI:  "spotify:track:a",
		StartTime: fs.clock.Now(),
	})
	require.NoError(t, <-done)

	assert.Equal(t, []uint{1}, fs.observer.Blackouts(), "the previous track is blacked out")
	st := fs.sched.Snapshot()
	assert.Equal(t, Playing, st.State)
	assert.Equal(t, "spotify:track:a", st.TrackURI)
	assert.Equal(t, []uint{7}, st.Active)
}

func TestOnTrackChange_FetchFailureStaysIdle(t *testing.T) {
	fs := newFixtureSet(t, 1)
	fs.fetcher.err = errors.New("db down")

	err := <-fs.sched.OnTrackChange(context.Background(), events.TrackChangeEvent{TrackURI: "x", StartTime: fs.clock.Now()})
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.fetcher.err)
	assert.Equal(t, Idle, fs.sched.Snapshot().State)
}

func TestOnTrackChange_LaterChangeWins(t *testing.T) {
	fs := newFixtureSet(t, 1)
	gate := make(chan struct{})
	fs.fetcher.gates["slow"] = gate
	fs.fetcher.sequences["slow"] = []Event{
		{ID: 1, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}
	fs.fetcher.sequences["fast"] = []Event{
		{ID: 2, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}

	slow := fs.sched.OnTrackChange(context.Background(), events.TrackChangeEvent{TrackURI: "slow", StartTime: fs.clock.Now()})
	fast := fs.sched.OnTrackChange(context.Background(), events.TrackChangeEvent{TrackURI: "fast", StartTime: fs.clock.Now()})
	require.NoError(t, <-fast)

	close(gate)
	assert.ErrorIs(t, <-slow, ErrSuperseded)

	st := fs.sched.Snapshot()
	assert.Equal(t, "fast", st.TrackURI)
	assert.Equal(t, []uint{2}, st.Active)
}

func TestOnTrackChange_StopSupersedesFetch(t *testing.T) {
	fs := newFixtureSet(t, 1)
	gate := make(chan struct{})
	fs.fetcher.gates["slow"] = gate

	done := fs.sched.OnTrackChange(context.Background(), events.TrackChangeEvent{TrackURI: "slow", StartTime: fs.clock.Now()})
	fs.sched.Stop(false)
	close(gate)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, Idle, fs.sched.Snapshot().State)
}

func TestOnTrackChange_WithoutGroupsDoesNotFetch(t *testing.T) {
	fs := newFixtureSet(t)

	require.NoError(t, <-fs.sched.OnTrackChange(context.Background(), events.TrackChangeEvent{TrackURI: "x"}))
	assert.Empty(t, fs.fetcher.Calls())
}

func TestRemoveGroup(t *testing.T) {
	fs := newFixtureSet(t, 1, 2)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 2, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{2}},
		{ID: 3, Timestamp: 3000, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{2}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))

	assert.False(t, fs.sched.RemoveGroup(99))

	require.True(t, fs.sched.RemoveGroup(1))
	assert.Equal(t, []uint{1}, fs.observer.Blackouts())
	st := fs.sched.Snapshot()
	assert.Equal(t, Playing, st.State)
	assert.Equal(t, []uint{2}, st.Active)
	assert.Equal(t, []uint{2}, st.Groups)

	require.True(t, fs.sched.RemoveGroup(2))
	assert.Equal(t, []uint{1, 2}, fs.observer.Blackouts())
	st = fs.sched.Snapshot()
	assert.Equal(t, Idle, st.State)
	assert.Empty(t, st.Active)
	assert.Empty(t, st.Pending)

	lc, _ := fs.sched.Lifecycle(3)
	assert.Equal(t, Cancelled, lc.Phase)
}

func TestLoad_UnknownGroupIsIgnored(t *testing.T) {
	fs := newFixtureSet(t, 1)
	require.NoError(t, fs.sched.Load([]Event{
		{ID: 1, Timestamp: 0, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1, 42}},
	}, fs.clock.Now()))

	assert.Equal(t, []uint{1}, fs.observer.activated)
}

func TestTimestamps_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		in   []int64
		want []int64
	}{
		{name: "empty", in: nil, want: []int64{}},
		{name: "sorted", in: []int64{0, 500, 1000}, want: []int64{0, 500, 1000}},
		{name: "duplicates", in: []int64{1000, 0, 1000, 0, 250}, want: []int64{0, 250, 1000}},
		{name: "large values", in: []int64{100000, 9000, 20000}, want: []int64{9000, 20000, 100000}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evs := make([]Event, len(tt.in))
			for i, ts := range tt.in {
				evs[i] = Event{ID: uint(i), Timestamp: ts}
			}

			grouped := GroupByTimestamp(evs)
			assert.Equal(t, tt.want, Timestamps(grouped))

			total := 0
			for ts, bucket := range grouped {
				total += len(bucket)
				for _, e := range bucket {
					assert.Equal(t, ts, e.Timestamp)
				}
			}
			assert.Equal(t, len(evs), total)
		})
	}
}

func TestHoldGroup_SkipsHeldGroups(t *testing.T) {
	fs := newFixtureSet(t, 1, 2)
	seq := []Event{
		{ID: 1, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1, 2}},
		{ID: 2, Timestamp: 1000, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
		{ID: 3, Timestamp: 3000, Duration: 1000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}
	require.NoError(t, fs.sched.Load(seq, fs.clock.Now()))
	fs.observer.Reset()

	fs.sched.HoldGroup(1)
	assert.Empty(t, fs.observer.Blackouts(), "the new owner decides what a held group shows")
	st := fs.sched.Snapshot()
	assert.Equal(t, []uint{1}, st.Held)
	assert.Equal(t, []uint{1}, st.Active, "group 2 keeps its effect")

	fs.clock.Advance(1500 * time.Millisecond)
	fs.sched.Tick()
	assert.Equal(t, []uint{1}, fs.sched.Snapshot().Active)

	fs.sched.ReleaseGroup(1)
	assert.Empty(t, fs.sched.Snapshot().Held)
	fs.clock.Advance(2 * time.Second)
	fs.sched.Tick()
	assert.Equal(t, []uint{1, 3}, fs.sched.Snapshot().Active)
}

func TestActiveGroups(t *testing.T) {
	fs := newFixtureSet(t, 1, 2, 3)
	require.NoError(t, fs.sched.Load([]Event{
		{ID: 1, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{3, 1}},
		{ID: 2, Timestamp: 0, Duration: 5000, EffectName: "Wave", Props: waveProps, GroupIDs: []uint{1}},
	}, fs.clock.Now()))

	assert.Equal(t, []uint{1, 3}, fs.sched.ActiveGroups())

	fs.sched.Stop(false)
	assert.Empty(t, fs.sched.ActiveGroups())
}
