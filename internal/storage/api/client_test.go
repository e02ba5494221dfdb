package apistore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lightshow/fxrunner/internal/config"
	"github.com/lightshow/fxrunner/internal/model"
	"github.com/lightshow/fxrunner/internal/sequence"
	"gorm.io/gorm"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:3000/api/", "secret123", 0)

	if c.baseURL != "http://localhost:3000/api" {
		t.Errorf("expected trailing slash trimmed, got %s", c.baseURL)
	}
	if c.apiKey != "secret123" {
		t.Errorf("expected apiKey=secret123, got %s", c.apiKey)
	}
	if c.httpClient.Timeout != defaultTimeout {
		t.Errorf("expected default timeout, got %s", c.httpClient.Timeout)
	}
}

func TestHealthcheck_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/healthcheck" {
			t.Errorf("expected path /healthcheck, got %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	b := New(config.APIConfig{ServerURL: server.URL})
	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	_ = b.Close()
}

func TestHealthcheck_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	if err := NewClient(server.URL, "", time.Second).Healthcheck(context.Background()); err == nil {
		t.Error("expected error for 500 response")
	}
}

func TestHealthcheck_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	if err := NewClient(url, "", time.Second).Healthcheck(context.Background()); err == nil {
		t.Error("expected error for unreachable server")
	}
}

func TestFindByTrack(t *testing.T) {
	var gotAuth, gotTrack string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lights/sequences" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotTrack = r.URL.Query().Get("trackUri")
		_ = json.NewEncoder(w).Encode([]sequence.Event{
			{ID: 1, Timestamp: 0, Duration: 500, EffectName: "Wave", Props: json.RawMessage(`{"color":"red"}`), GroupIDs: []uint{1}},
		})
	}))
	defer server.Close()

	b := New(config.APIConfig{ServerURL: server.URL, APIKey: "k"})
	events, err := b.FindByTrack(context.Background(), "spotify:track:1")
	if err != nil {
		t.Fatalf("FindByTrack failed: %v", err)
	}

	if gotAuth != "Bearer k" {
		t.Errorf("expected bearer auth, got %q", gotAuth)
	}
	if gotTrack != "spotify:track:1" {
		t.Errorf("expected track query, got %q", gotTrack)
	}
	if len(events) != 1 || events[0].EffectName != "Wave" || string(events[0].Props) != `{"color":"red"}` {
		t.Errorf("unexpected events %+v", events)
	}
}

func TestFindByTrack_NullBodyIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("null"))
	}))
	defer server.Close()

	events, err := New(config.APIConfig{ServerURL: server.URL}).FindByTrack(context.Background(), "x")
	if err != nil {
		t.Fatalf("FindByTrack failed: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", events)
	}
}

func TestFindByTrack_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer server.Close()

	_, err := New(config.APIConfig{ServerURL: server.URL}).FindByTrack(context.Background(), "x")
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestLoadGroups(t *testing.T) {
	top := model.Topology{
		Pars: []model.LightsPar{{
			Model:            gorm.Model{ID: 1},
			Name:             "Par",
			MasterDimChannel: 1,
			Channels:         model.RgbChannels{Red: 2, Green: 3, Blue: 4},
		}},
		Groups: []model.LightsGroup{{
			Model: gorm.Model{ID: 5},
			Name:  "Bar",
			Fixtures: []model.LightsGroupFixture{
				{Model: gorm.Model{ID: 1}, FixtureType: model.FixtureTypePar, FixtureID: 1, FirstChannel: 1},
			},
		}},
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lights/topology" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(top)
	}))
	defer server.Close()

	groups, err := New(config.APIConfig{ServerURL: server.URL}).LoadGroups(context.Background())
	if err != nil {
		t.Fatalf("LoadGroups failed: %v", err)
	}
	if len(groups) != 1 || groups[0].ID() != 5 || len(groups[0].Pars()) != 1 {
		t.Errorf("unexpected groups %+v", groups)
	}
}
