package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightshow/fxrunner/internal/config"
	"github.com/lightshow/fxrunner/internal/dispatcher"
	"github.com/lightshow/fxrunner/pkg/events"
)

// Compile-time interface check.
var _ Dispatcher = (*dispatcher.Dispatcher)(nil)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []dispatcher.Event
	got    chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{got: make(chan struct{}, 16)}
}

func (d *recordingDispatcher) Dispatch(e dispatcher.Event) (any, error) {
	d.mu.Lock()
	d.events = append(d.events, e)
	d.mu.Unlock()
	d.got <- struct{}{}
	return nil, nil
}

func (d *recordingDispatcher) all() []dispatcher.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatcher.Event(nil), d.events...)
}

func (d *recordingDispatcher) wait(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-d.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d", i+1)
		}
	}
}

// testServer upgrades every request and sends the envelopes of the next
// script entry, then closes the connection when drop is set.
type script struct {
	messages [][]byte
	drop     bool
}

func testServer(t *testing.T, scripts ...script) (*httptest.Server, *[]string) {
	t.Helper()
	var mu sync.Mutex
	var secrets []string
	conns := 0

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		secrets = append(secrets, r.URL.Query().Get("secret"))
		idx := conns
		conns++
		mu.Unlock()

		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()

		var s script
		if idx < len(scripts) {
			s = scripts[idx]
		}
		for _, msg := range s.messages {
			if err := c.WriteMessage(ws.TextMessage, msg); err != nil {
				return
			}
		}
		if s.drop {
			return
		}
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))

	return srv, &secrets
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func envelope(t *testing.T, msgType string, payload any) []byte {
	t.Helper()
	env, err := events.NewEnvelope(msgType, payload)
	require.NoError(t, err)
	data, err := json.Marshal(env)
	require.NoError(t, err)
	return data
}

func TestClient_DispatchesEnvelopes(t *testing.T) {
	start := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	srv, secrets := testServer(t, script{messages: [][]byte{
		envelope(t, events.TypeTrackChange, events.TrackChangeEvent{TrackURI: "spotify:track:a", StartTime: start}),
		[]byte(`not json`),
		envelope(t, events.TypeBeat, events.BeatEvent{Beat: events.Beat{Duration: 0.5}}),
		envelope(t, events.TypeStop, nil),
	}})
	defer srv.Close()

	d := newRecordingDispatcher()
	c := New(Config{URL: wsURL(srv), Secret: "s3cret"}, d, nil)
	require.NoError(t, c.Start())
	defer c.Close()

	d.wait(t, 3)

	got := d.all()
	require.Len(t, got, 3)
	assert.Equal(t, events.TypeTrackChange, got[0].Command)
	assert.Equal(t, events.TypeBeat, got[1].Command)
	assert.Equal(t, events.TypeStop, got[2].Command)
	assert.Empty(t, got[2].Payload)
	assert.False(t, got[0].Timestamp.IsZero())

	var tc events.TrackChangeEvent
	require.NoError(t, got[0].Decode(&tc))
	assert.Equal(t, "spotify:track:a", tc.TrackURI)
	assert.True(t, start.Equal(tc.StartTime))

	n, last := c.Received()
	assert.Equal(t, uint64(3), n)
	assert.False(t, last.IsZero())
	assert.True(t, c.Connected())
	assert.Equal(t, []string{"s3cret"}, *secrets)
}

func TestClient_Reconnects(t *testing.T) {
	srv, _ := testServer(t,
		script{messages: [][]byte{envelope(t, events.TypeStop, nil)}, drop: true},
		script{messages: [][]byte{envelope(t, events.TypeBeat, events.BeatEvent{})}},
	)
	defer srv.Close()

	d := newRecordingDispatcher()
	c := New(Config{URL: wsURL(srv)}, d, nil)
	c.initialBackoff = 10 * time.Millisecond
	require.NoError(t, c.Start())
	defer c.Close()

	d.wait(t, 2)

	got := d.all()
	assert.Equal(t, events.TypeStop, got[0].Command)
	assert.Equal(t, events.TypeBeat, got[1].Command)
}

func TestClient_DialFailure(t *testing.T) {
	c := New(Config{URL: "ws://127.0.0.1:1/events"}, newRecordingDispatcher(), nil)
	assert.Error(t, c.Start())

	c = New(Config{URL: "://bad"}, newRecordingDispatcher(), nil)
	assert.Error(t, c.Start())
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	srv, _ := testServer(t)
	defer srv.Close()

	c := New(Config{URL: wsURL(srv)}, newRecordingDispatcher(), nil)
	require.NoError(t, c.Start())

	require.NoError(t, c.Close())
	assert.False(t, c.Connected())
	assert.NoError(t, c.Close())
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.WebsocketConfig{Enabled: true, URL: "ws://x/events", Secret: "k"})
	assert.Equal(t, Config{URL: "ws://x/events", Secret: "k"}, cfg)
}
