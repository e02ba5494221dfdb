// Package apistore reads topology and sequences from the lights HTTP API.
package apistore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lightshow/fxrunner/internal/config"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/model"
	"github.com/lightshow/fxrunner/internal/model/convert"
	"github.com/lightshow/fxrunner/internal/sequence"
)

const defaultTimeout = 30 * time.Second

// Client handles communication with the lights API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new API client. A zero timeout means 30 seconds.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Healthcheck checks if the lights API is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("healthcheck returned status %d", resp.StatusCode)
	}
	return nil
}

// getJSON issues an authenticated GET and decodes the response into out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// Topology fetches the venue layout.
func (c *Client) Topology(ctx context.Context) (model.Topology, error) {
	var t model.Topology
	err := c.getJSON(ctx, "/lights/topology", nil, &t)
	return t, err
}

// Sequence fetches the predefined effects of a track.
func (c *Client) Sequence(ctx context.Context, trackURI string) ([]sequence.Event, error) {
	var events []sequence.Event
	if err := c.getJSON(ctx, "/lights/sequences", url.Values{"trackUri": {trackURI}}, &events); err != nil {
		return nil, err
	}
	if events == nil {
		events = []sequence.Event{}
	}
	return events, nil
}

// Backend implements the storage backend on top of Client.
type Backend struct {
	client *Client
}

// New creates an API backend from config.
func New(cfg config.APIConfig) *Backend {
	return &Backend{client: NewClient(cfg.ServerURL, cfg.APIKey, cfg.Timeout)}
}

// Init verifies that the API is reachable.
func (b *Backend) Init() error {
	return b.client.Healthcheck(context.Background())
}

// Close cleans up resources
func (b *Backend) Close() error {
	b.client.httpClient.CloseIdleConnections()
	return nil
}

// FindByTrack fetches the track's sequence; the server decides the order.
func (b *Backend) FindByTrack(ctx context.Context, trackURI string) ([]sequence.Event, error) {
	return b.client.Sequence(ctx, trackURI)
}

// LoadGroups fetches the topology and builds runtime groups.
func (b *Backend) LoadGroups(ctx context.Context, opts ...fixture.Option) ([]*fixture.Group, error) {
	t, err := b.client.Topology(ctx)
	if err != nil {
		return nil, err
	}
	return convert.TopologyToRuntime(t, opts...)
}
