package effect

import (
	"math"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lightshow/fxrunner/internal/color"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/pkg/events"
)

// BeatFadeOutProps configures BeatFadeOut.
type BeatFadeOutProps struct {
	// Colors shown in round-robin over the pars.
	Colors []color.RgbColor `json:"colors" yaml:"colors" validate:"required,min=1,dive,rgbcolor"`
	// EnableFade fades the lights out over the beat instead of holding them.
	EnableFade bool `json:"enableFade" yaml:"enableFade"`
	// AddBlacks adds a dark slot to the color rotation.
	AddBlacks bool `json:"addBlacks" yaml:"addBlacks"`
}

// DefaultBeatFadeOutProps returns the properties used for omitted fields.
func DefaultBeatFadeOutProps() BeatFadeOutProps {
	return BeatFadeOutProps{EnableFade: true}
}

// BeatFadeOut rotates colors over the pars of a group on every beat and fades
// them out until the next one. Moving heads are kept dark.
type BeatFadeOut struct {
	clock clockwork.Clock
	group *fixture.Group
	props BeatFadeOutProps

	phase      int
	lastBeat   time.Time
	beatLength time.Duration
}

// NewBeatFadeOut creates the effect for g.
func NewBeatFadeOut(clock clockwork.Clock, g *fixture.Group, props BeatFadeOutProps) *BeatFadeOut {
	return &BeatFadeOut{
		clock:      clock,
		group:      g,
		props:      props,
		lastBeat:   clock.Now(),
		beatLength: time.Millisecond,
	}
}

func (e *BeatFadeOut) Group() *fixture.Group { return e.group }

func (e *BeatFadeOut) slots() int {
	n := len(e.props.Colors)
	if e.props.AddBlacks {
		n++
	}
	return n
}

// Beat advances the color phase and restarts the fade.
func (e *BeatFadeOut) Beat(ev events.BeatEvent) {
	e.lastBeat = e.clock.Now()
	e.beatLength = ev.Beat.Length()
	if e.beatLength <= 0 {
		e.beatLength = time.Millisecond
	}
	if n := e.slots(); n > 0 {
		e.phase = (e.phase + 1) % n
	}
}

// Fraction returns the current fade level in [0, 1].
func (e *BeatFadeOut) Fraction() float64 {
	if !e.props.EnableFade {
		return 1
	}
	elapsed := e.clock.Since(e.lastBeat)
	return math.Max(1-float64(elapsed)/float64(e.beatLength), 0)
}

func (e *BeatFadeOut) Tick() {
	n := e.slots()
	if n == 0 {
		return
	}
	dimmer := uint8(math.Round(255 * e.Fraction()))

	for i, p := range e.group.Pars() {
		index := (i + e.phase) % n
		if index == len(e.props.Colors) {
			p.SetMasterDimmer(0)
			continue
		}
		p.SetMasterDimmer(dimmer)
		p.SetColor(e.props.Colors[index])
	}

	for _, m := range e.group.MovingHeadWheels() {
		m.Blackout()
	}
	for _, m := range e.group.MovingHeadRgbs() {
		m.Blackout()
	}
}
