// Package driver renders the universe at a fixed cadence and hands every frame
// to a FrameSink.
package driver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/logging"
)

const instrumentationName = "github.com/lightshow/fxrunner/internal/driver"

// DefaultInterval is 40 frames per second.
const DefaultInterval = 25 * time.Millisecond

// Ticker advances time-driven state once per frame.
type Ticker interface {
	Tick()
}

// FrameSink receives rendered frames. Send is called from the render loop
// and should return quickly.
type FrameSink interface {
	Send(ctx context.Context, frame fixture.Frame) error
}

// Dependencies holds everything the driver needs.
type Dependencies struct {
	// Tickers run in order before each frame is packed.
	Tickers  []Ticker
	Universe *fixture.Universe
	Sink     FrameSink
	Clock    clockwork.Clock
	Interval time.Duration

	// Lock is held while the universe is packed so that no effect writes
	// fixture state mid-frame.
	Lock sync.Locker

	LogManager *logging.SlogManager
}

// Driver is the render loop.
type Driver struct {
	deps Dependencies

	renderTime metric.Float64Histogram
	frames     metric.Int64Counter
	sinkErrors metric.Int64Counter

	mu       sync.Mutex
	running  bool
	rendered uint64
	last     fixture.Frame
}

// New creates a driver.
func New(deps Dependencies) (*Driver, error) {
	if deps.Universe == nil {
		return nil, errors.New("driver: universe is required")
	}
	if deps.Sink == nil {
		deps.Sink = Discard{}
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	if deps.Lock == nil {
		deps.Lock = &sync.Mutex{}
	}

	d := &Driver{deps: deps}

	m := otel.Meter(instrumentationName)
	var err error
	d.renderTime, err = m.Float64Histogram(
		"driver.render.duration",
		metric.WithDescription("Time spent ticking effects and packing one frame"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating render histogram: %w", err)
	}

	d.frames, err = m.Int64Counter(
		"driver.frames",
		metric.WithDescription("Frames handed to the sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frame counter: %w", err)
	}

	d.sinkErrors, err = m.Int64Counter(
		"driver.sink.errors",
		metric.WithDescription("Frames the sink rejected"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating sink error counter: %w", err)
	}

	return d, nil
}

func (d *Driver) logger() *slog.Logger {
	if d.deps.LogManager == nil {
		return slog.Default()
	}
	return d.deps.LogManager.Logger()
}

// Step renders and sends a single frame.
func (d *Driver) Step(ctx context.Context) error {
	start := d.deps.Clock.Now()

	for _, t := range d.deps.Tickers {
		t.Tick()
	}

	d.deps.Lock.Lock()
	frame := d.deps.Universe.Frame()
	d.deps.Lock.Unlock()

	d.renderTime.Record(ctx, float64(d.deps.Clock.Since(start))/float64(time.Millisecond))

	d.mu.Lock()
	d.rendered++
	d.last = frame
	d.mu.Unlock()

	if err := d.deps.Sink.Send(ctx, frame); err != nil {
		d.sinkErrors.Add(ctx, 1)
		return fmt.Errorf("sending frame: %w", err)
	}
	d.frames.Add(ctx, 1)
	return nil
}

// Run renders a frame every interval until ctx is done. Sink errors are
// logged and do not stop the loop.
func (d *Driver) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("driver already running")
	}
	d.running = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.running = false
		d.mu.Unlock()
	}()

	ticker := d.deps.Clock.NewTicker(d.deps.Interval)
	defer ticker.Stop()

	d.logger().Info("Render loop started", "interval", d.deps.Interval)
	for {
		select {
		case <-ctx.Done():
			d.logger().Info("Render loop stopped", "frames", d.Rendered())
			return nil
		case <-ticker.Chan():
			if err := d.Step(ctx); err != nil {
				d.logger().Warn("Frame dropped", "error", err)
			}
		}
	}
}

// Rendered returns the number of frames rendered so far.
func (d *Driver) Rendered() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rendered
}

// LastFrame returns the most recently rendered frame.
func (d *Driver) LastFrame() fixture.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.last
}

// IsRunning reports whether Run is active.
func (d *Driver) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
