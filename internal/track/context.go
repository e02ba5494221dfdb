package track

import (
	"log/slog"
	"sync"
	"time"
)

// NoTrack is reported while nothing is playing.
const NoTrack = "No track playing"

// Context holds the currently playing track and beat statistics
type Context struct {
	mu       sync.RWMutex
	uri      string
	start    time.Time
	beats    uint64
	lastBeat time.Time
}

// NewContext creates a new Context with nothing playing
func NewContext() *Context {
	return &Context{}
}

// SetTrack records a track change and resets the beat statistics.
func (c *Context) SetTrack(uri string, start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.uri = uri
	c.start = start
	c.beats = 0
	c.lastBeat = time.Time{}
}

// Clear marks playback as stopped.
func (c *Context) Clear() {
	c.SetTrack("", time.Time{})
}

// Beat counts a beat received at ts.
func (c *Context) Beat(ts time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beats++
	c.lastBeat = ts
}

// Track returns the current track uri and start time. The uri is empty when
// nothing plays.
func (c *Context) Track() (string, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.uri, c.start
}

// Beats returns the number of beats since the track started and the time of
// the last one.
func (c *Context) Beats() (uint64, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.beats, c.lastBeat
}

// Attrs describes the current track for log records.
func (c *Context) Attrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.uri == "" {
		return []slog.Attr{slog.String("track", NoTrack)}
	}
	return []slog.Attr{
		slog.String("track", c.uri),
		slog.Uint64("beats", c.beats),
	}
}
