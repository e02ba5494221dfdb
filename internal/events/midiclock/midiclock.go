// Package midiclock derives beat and stop events from a MIDI clock, so that a
// DJ mixer or drum machine can drive the show without the analysis component.
package midiclock

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"

	"github.com/lightshow/fxrunner/internal/dispatcher"
	"github.com/lightshow/fxrunner/pkg/events"
)

// PPQN is the number of MIDI clock pulses per quarter note.
const PPQN = 24

// DefaultBeatLength is assumed until two beats have been seen (120 BPM).
const DefaultBeatLength = 500 * time.Millisecond

// Dispatcher routes decoded events.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// Decoder counts clock pulses and turns every 24th into a beat. Start and
// Continue rearm the counter so the next pulse is a downbeat; Stop produces a
// stop event.
type Decoder struct {
	mu       sync.Mutex
	pulses   int
	lastBeat time.Time
	length   time.Duration
}

// Decode returns the event for msg received at ts, if any.
func (d *Decoder) Decode(msg midi.Message, ts time.Time) (dispatcher.Event, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case msg.Is(midi.TimingClockMsg):
		n := d.pulses
		d.pulses = (d.pulses + 1) % PPQN
		if n != 0 {
			return dispatcher.Event{}, false
		}
		return d.beat(ts), true

	case msg.Is(midi.StartMsg), msg.Is(midi.ContinueMsg):
		d.pulses = 0
		d.lastBeat = time.Time{}
		return dispatcher.Event{}, false

	case msg.Is(midi.StopMsg):
		d.pulses = 0
		d.lastBeat = time.Time{}
		return dispatcher.Event{Command: events.TypeStop, Timestamp: ts}, true
	}
	return dispatcher.Event{}, false
}

func (d *Decoder) beat(ts time.Time) dispatcher.Event {
	if !d.lastBeat.IsZero() {
		if l := ts.Sub(d.lastBeat); l > 0 {
			d.length = l
		}
	}
	if d.length <= 0 {
		d.length = DefaultBeatLength
	}
	d.lastBeat = ts

	payload, _ := json.Marshal(events.BeatEvent{
		Timestamp: ts,
		Beat: events.Beat{
			Duration:   d.length.Seconds(),
			Confidence: 1,
		},
	})
	return dispatcher.Event{Command: events.TypeBeat, Payload: payload, Timestamp: ts}
}

// BPM returns the tempo of the last measured beat, or 0 before the first one.
func (d *Decoder) BPM() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.length <= 0 {
		return 0
	}
	return float64(time.Minute) / float64(d.length)
}

// FindInPort returns the first input port whose name contains substr,
// ignoring case.
func FindInPort(substr string) (drivers.In, error) {
	lower := strings.ToLower(substr)
	for _, port := range midi.GetInPorts() {
		if strings.Contains(strings.ToLower(port.String()), lower) {
			return port, nil
		}
	}
	return nil, fmt.Errorf("no MIDI input port matching %q", substr)
}

// Listener feeds a MIDI input port through a Decoder into a dispatcher.
type Listener struct {
	Decoder Decoder

	dispatcher Dispatcher
	logger     *slog.Logger
	now        func() time.Time
	stop       func()
}

// NewListener creates a listener. Call Start to open a port.
func NewListener(d Dispatcher, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{dispatcher: d, logger: logger, now: time.Now}
}

// Handle decodes one message and dispatches the resulting event.
func (l *Listener) Handle(msg midi.Message) {
	e, ok := l.Decoder.Decode(msg, l.now())
	if !ok {
		return
	}
	if _, err := l.dispatcher.Dispatch(e); err != nil {
		l.logger.Warn("MIDI clock event rejected", "type", e.Command, "error", err)
	}
}

// Start listens on the first port matching portName. A MIDI driver must be
// registered by the binary.
func (l *Listener) Start(portName string) error {
	port, err := FindInPort(portName)
	if err != nil {
		return err
	}

	// clock pulses are filtered by the drivers unless time code is requested
	stop, err := midi.ListenTo(port, func(msg midi.Message, _ int32) {
		l.Handle(msg)
	}, midi.UseTimeCode())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", port, err)
	}
	l.stop = stop
	l.logger.Info("Listening for MIDI clock", "port", port.String())
	return nil
}

// Close stops listening.
func (l *Listener) Close() {
	if l.stop != nil {
		l.stop()
		l.stop = nil
	}
}
