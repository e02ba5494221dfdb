package effect

import (
	"math"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lightshow/fxrunner/internal/color"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/pkg/events"
)

const (
	defaultNrWaves   = 2
	defaultCycleTime = 2000

	// singleWaveCount is the wave count used for a single wave; 1.5 keeps the
	// whole crest visible while it travels along the chain.
	singleWaveCount = 1.5
)

// WaveProps configures Wave.
type WaveProps struct {
	Color color.RgbColor `json:"color" yaml:"color" validate:"required,rgbcolor"`
	// NrWaves is ignored when SingleWave is set.
	NrWaves int `json:"nrWaves" yaml:"nrWaves" validate:"min=1"`
	// CycleTime is the length of one cycle in milliseconds.
	CycleTime int `json:"cycleTime" yaml:"cycleTime" validate:"min=1"`
	// SingleWave runs the animation once instead of continuously.
	SingleWave bool `json:"singleWave" yaml:"singleWave"`
}

// DefaultWaveProps returns the properties used for omitted fields.
func DefaultWaveProps() WaveProps {
	return WaveProps{NrWaves: defaultNrWaves, CycleTime: defaultCycleTime}
}

// Wave runs a sine-shaped brightness wave along the channel chain of a group.
type Wave struct {
	clock      clockwork.Clock
	group      *fixture.Group
	props      WaveProps
	cycleStart time.Time
}

// NewWave creates the effect for g.
func NewWave(clock clockwork.Clock, g *fixture.Group, props WaveProps) *Wave {
	return &Wave{
		clock:      clock,
		group:      g,
		props:      props,
		cycleStart: clock.Now(),
	}
}

func (w *Wave) Group() *fixture.Group { return w.group }

// Beat is ignored; the wave is time driven.
func (w *Wave) Beat(events.BeatEvent) {}

// Progression returns the progress of the current cycle in [0, 1].
func (w *Wave) Progression(now time.Time) float64 {
	cycle := time.Duration(w.props.CycleTime) * time.Millisecond
	return math.Min(1, float64(now.Sub(w.cycleStart))/float64(cycle))
}

// RelativeProgression places a fixture on the wave. The first fixture of the
// chain moves through [-1, 1], the last one through nearly [0, 2].
func RelativeProgression(progression float64, index, count int) float64 {
	return float64(index)/float64(count) - 1 + 2*progression
}

// Brightness returns the sine brightness for a relative progression, before
// clamping. Single waves are dark outside [0, 1].
func (w *Wave) Brightness(relative float64) float64 {
	waves := float64(w.props.NrWaves)
	if w.props.SingleWave {
		waves = singleWaveCount
		if relative < 0 || relative > 1 {
			return 0
		}
	}
	return math.Sin(relative * waves * math.Pi)
}

// chain returns the color fixtures ordered by descending first channel, pars
// before RGB moving heads.
func (w *Wave) chain() []fixture.Fixture {
	pars := w.group.Pars()
	sort.SliceStable(pars, func(i, j int) bool { return pars[i].FirstChannel() > pars[j].FirstChannel() })
	heads := w.group.MovingHeadRgbs()
	sort.SliceStable(heads, func(i, j int) bool { return heads[i].FirstChannel() > heads[j].FirstChannel() })

	out := make([]fixture.Fixture, 0, len(pars)+len(heads))
	for _, p := range pars {
		out = append(out, p)
	}
	for _, h := range heads {
		out = append(out, h)
	}
	return out
}

func (w *Wave) Tick() {
	now := w.clock.Now()
	progression := w.Progression(now)
	if progression >= 1 && !w.props.SingleWave {
		w.cycleStart = now
	}

	chain := w.chain()
	for i, f := range chain {
		b := w.Brightness(RelativeProgression(progression, i, len(chain)))
		f.SetMasterDimmer(uint8(math.Round(math.Max(0, b) * 255)))
		f.SetColor(w.props.Color)
	}
}
