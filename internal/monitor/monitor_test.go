package monitor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightshow/fxrunner/internal/sequence"
	"github.com/lightshow/fxrunner/internal/track"
)

type fakeScheduler struct{ st sequence.Status }

func (f fakeScheduler) Snapshot() sequence.Status { return f.st }

type fakeFrames uint64

func (f fakeFrames) Rendered() uint64 { return uint64(f) }

type fakeConn bool

func (c fakeConn) Connected() bool { return bool(c) }

type recordingWriter struct {
	mu     sync.Mutex
	calls  int
	beats  uint64
	frames uint64
	got    chan struct{}
}

func (w *recordingWriter) Status(st sequence.Status, beats, frames uint64) {
	w.mu.Lock()
	w.calls++
	w.beats, w.frames = beats, frames
	w.mu.Unlock()
	if w.got != nil {
		w.got <- struct{}{}
	}
}

func TestNewService_RequiresScheduler(t *testing.T) {
	_, err := NewService(Dependencies{})
	assert.Error(t, err)
}

func TestGetProgramStatus(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tc := track.NewContext()
	tc.SetTrack("spotify:track:a", clock.Now())
	tc.Beat(clock.Now())

	s, err := NewService(Dependencies{
		Scheduler: fakeScheduler{st: sequence.Status{State: sequence.Playing, TrackURI: "spotify:track:a", Active: []uint{1}}},
		Track:     tc,
		Frames:    fakeFrames(40),
		Events:    fakeConn(true),
		Clock:     clock,
	})
	require.NoError(t, err)

	st := s.GetProgramStatus()

	assert.Equal(t, clock.Now(), st.Time)
	assert.Equal(t, sequence.Playing, st.Scheduler.State)
	assert.Equal(t, uint64(1), st.Beats)
	assert.Equal(t, uint64(40), st.Frames)
	assert.True(t, st.EventsConnected)
}

func TestReport_WritesFileAndWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w := &recordingWriter{}
	s, err := NewService(Dependencies{
		Scheduler:  fakeScheduler{st: sequence.Status{State: sequence.Idle}},
		Frames:     fakeFrames(7),
		Writer:     w,
		StatusPath: path,
	})
	require.NoError(t, err)

	s.Report()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded struct {
		Scheduler struct {
			State string `json:"state"`
		} `json:"scheduler"`
		Frames uint64 `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "idle", decoded.Scheduler.State)
	assert.Equal(t, uint64(7), decoded.Frames)

	assert.Equal(t, 1, w.calls)
	assert.Equal(t, uint64(7), w.frames)
}

func TestStartStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	w := &recordingWriter{got: make(chan struct{}, 4)}
	s, err := NewService(Dependencies{
		Scheduler: fakeScheduler{},
		Writer:    w,
		Clock:     clock,
		Interval:  time.Second,
	})
	require.NoError(t, err)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.True(t, s.IsRunning())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	select {
	case <-w.got:
	case <-ctx.Done():
		t.Fatal("status not reported")
	}

	s.Stop()
	s.Stop()
	assert.False(t, s.IsRunning())
}
