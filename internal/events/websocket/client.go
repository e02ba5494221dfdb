// Package websocket receives music events from the playback component over a
// WebSocket and hands them to the dispatcher.
package websocket

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/lightshow/fxrunner/internal/config"
	"github.com/lightshow/fxrunner/internal/dispatcher"
	"github.com/lightshow/fxrunner/pkg/events"
)

const (
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingPeriod   = (pongWait * 9) / 10
)

// Dispatcher routes decoded events.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Config holds WebSocket client configuration.
type Config struct {
	URL    string
	Secret string
}

// FromConfig converts the events.websocket section.
func FromConfig(c config.WebsocketConfig) Config {
	return Config{URL: c.URL, Secret: c.Secret}
}

// Client keeps a connection to the event stream, reconnecting with
// exponential backoff when it drops.
type Client struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger

	mu        sync.Mutex
	conn      *ws.Conn
	done      chan struct{}
	closed    bool
	received  uint64
	lastEvent time.Time

	initialBackoff time.Duration
	pingPeriod     time.Duration
}

// New creates a client. Call Start to connect.
func New(cfg Config, d Dispatcher, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:            cfg,
		dispatcher:     d,
		logger:         logger,
		done:           make(chan struct{}),
		initialBackoff: time.Second,
		pingPeriod:     pingPeriod,
	}
}

// Start connects to the server and starts the read and ping loops.
func (c *Client) Start() error {
	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.attach(conn)
	c.logger.Info("Connected to event stream", "url", c.cfg.URL)
	return nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *Client) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	if c.cfg.Secret != "" {
		q := u.Query()
		q.Set("secret", c.cfg.Secret)
		u.RawQuery = q.Encode()
	}

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

func (c *Client) attach(conn *ws.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	stop := make(chan struct{})
	go c.pingLoop(conn, stop)
	go c.readLoop(conn, stop)
}

// pingLoop keeps the connection alive until stop or shutdown.
func (c *Client) pingLoop(conn *ws.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.WriteControl(ws.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("WebSocket ping failed", "error", err)
				return
			}
		}
	}
}

// readLoop decodes envelopes and dispatches them until the connection fails.
func (c *Client) readLoop(conn *ws.Conn, stop chan struct{}) {
	defer close(stop)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
				return
			default:
			}
			c.logger.Warn("WebSocket read error", "error", err)
			go c.reconnect()
			return
		}
		c.handle(message)
	}
}

func (c *Client) handle(message []byte) {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil || env.Type == "" {
		c.logger.Debug("Ignoring malformed message", "raw", string(message))
		return
	}

	now := time.Now()
	c.mu.Lock()
	c.received++
	c.lastEvent = now
	c.mu.Unlock()

	_, err := c.dispatcher.Dispatch(dispatcher.Event{
		Command:   env.Type,
		Payload:   env.Payload,
		Timestamp: now,
	})
	switch {
	case errors.Is(err, dispatcher.ErrUnknownCommand):
		c.logger.Debug("Ignoring unknown event type", "type", env.Type)
	case err != nil:
		c.logger.Warn("Event rejected", "type", env.Type, "error", err)
	}
}

// reconnect attempts to re-establish the connection with exponential backoff.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	backoff := c.initialBackoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		c.logger.Info("Reconnecting to event stream", "attempt", attempt, "backoff", backoff)
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.mu.Unlock()

		c.attach(conn)
		c.logger.Info("Event stream reconnected", "attempt", attempt)
		return
	}

	c.logger.Error("Event stream reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Received returns the number of events received and the time of the last one.
func (c *Client) Received() (uint64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.received, c.lastEvent
}

// Close sends a WebSocket close frame and shuts down all goroutines.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
