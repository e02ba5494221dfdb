package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lightshow/fxrunner/internal/logging"
	"github.com/lightshow/fxrunner/internal/sequence"
	"github.com/lightshow/fxrunner/internal/track"
)

// DefaultInterval is used when no interval is configured.
const DefaultInterval = 10 * time.Second

// Snapshotter reports the scheduler state.
type Snapshotter interface {
	Snapshot() sequence.Status
}

// FrameCounter reports how many frames were rendered.
type FrameCounter interface {
	Rendered() uint64
}

// Connection reports whether an event source is connected.
type Connection interface {
	Connected() bool
}

// StatusWriter persists status snapshots, e.g. to InfluxDB.
type StatusWriter interface {
	Status(st sequence.Status, beats uint64, frames uint64)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Scheduler  Snapshotter
	Track      *track.Context
	Frames     FrameCounter
	Events     Connection
	Writer     StatusWriter
	LogManager *logging.SlogManager
	Clock      clockwork.Clock
	Interval   time.Duration

	// StatusPath, when set, is rewritten with the JSON status on every run.
	StatusPath string
}

// Status is the program status reported on every interval.
type Status struct {
	Time            time.Time       `json:"time"`
	Scheduler       sequence.Status `json:"scheduler"`
	Beats           uint64          `json:"beats"`
	LastBeat        time.Time       `json:"lastBeat"`
	Frames          uint64          `json:"frames"`
	EventsConnected bool            `json:"eventsConnected"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	doneChan  chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) (*Service, error) {
	if deps.Scheduler == nil {
		return nil, errors.New("monitor: scheduler is required")
	}
	if deps.Track == nil {
		deps.Track = track.NewContext()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{deps: deps}, nil
}

func (s *Service) logger() *slog.Logger {
	if s.deps.LogManager == nil {
		return slog.Default()
	}
	return s.deps.LogManager.Logger()
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetProgramStatus returns the current program status
func (s *Service) GetProgramStatus() Status {
	st := Status{
		Time:      s.deps.Clock.Now(),
		Scheduler: s.deps.Scheduler.Snapshot(),
	}
	st.Beats, st.LastBeat = s.deps.Track.Beats()
	if s.deps.Frames != nil {
		st.Frames = s.deps.Frames.Rendered()
	}
	if s.deps.Events != nil {
		st.EventsConnected = s.deps.Events.Connected()
	}
	return st
}

// Report takes one snapshot and sends it to the log, the status file and the
// status writer.
func (s *Service) Report() Status {
	st := s.GetProgramStatus()

	logger := s.logger()
	logger.Info("Status",
		"state", st.Scheduler.State.String(),
		"offset", st.Scheduler.Offset,
		"pending", len(st.Scheduler.Pending),
		"active", len(st.Scheduler.Active),
		"beats", st.Beats,
		"frames", st.Frames,
		"eventsConnected", st.EventsConnected)

	if s.deps.StatusPath != "" {
		if err := writeStatusFile(s.deps.StatusPath, st); err != nil {
			logger.Error("Error writing status file", "error", err)
		}
	}
	if s.deps.Writer != nil {
		s.deps.Writer.Status(st.Scheduler, st.Beats, st.Frames)
	}
	return st
}

func writeStatusFile(path string, st Status) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.doneChan = make(chan struct{})
	stop, done := s.stopChan, s.doneChan
	s.mu.Unlock()

	ticker := s.deps.Clock.NewTicker(s.deps.Interval)

	go func() {
		defer close(done)
		defer ticker.Stop()

		s.logger().Debug("Starting status monitor", "interval", s.deps.Interval)

		for {
			select {
			case <-stop:
				return
			case <-ticker.Chan():
				s.Report()
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.doneChan
	s.mu.Unlock()
	<-done
}
