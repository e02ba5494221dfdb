package fixture

import (
	"github.com/lightshow/fxrunner/internal/color"
)

// RgbChannels holds the relative channel numbers of an RGB(W/A/UV) emitter set.
// Optional emitters use 0.
type RgbChannels struct {
	RedChannel   int `json:"redChannel" yaml:"redChannel"`
	GreenChannel int `json:"greenChannel" yaml:"greenChannel"`
	BlueChannel  int `json:"blueChannel" yaml:"blueChannel"`
	WhiteChannel int `json:"whiteChannel,omitempty" yaml:"whiteChannel,omitempty"`
	AmberChannel int `json:"amberChannel,omitempty" yaml:"amberChannel,omitempty"`
	UVChannel    int `json:"uvChannel,omitempty" yaml:"uvChannel,omitempty"`
}

func (c RgbChannels) list() []int {
	return []int{c.RedChannel, c.GreenChannel, c.BlueChannel, c.WhiteChannel, c.AmberChannel, c.UVChannel}
}

func (c RgbChannels) put(values []uint8, emitters [6]uint8) {
	for i, ch := range c.list() {
		put(values, ch, emitters[i])
	}
}

// ParConfig describes the channel layout of a par.
type ParConfig struct {
	ID               uint
	Name             string
	FirstChannel     int
	MasterDimChannel int
	StrobeChannel    int
	RgbChannels
}

type parValues struct {
	masterDim uint8
	strobe    uint8
	emitters  [6]uint8
}

func (v parValues) zero() bool {
	return v == parValues{}
}

// Par is a static RGB fixture.
type Par struct {
	base
	cfg     ParConfig
	current parValues
}

// NewPar validates the layout and creates a par.
func NewPar(cfg ParConfig, opts ...Option) (*Par, error) {
	channels := append([]int{cfg.MasterDimChannel, cfg.StrobeChannel}, cfg.RgbChannels.list()...)
	b, err := newBase(cfg.ID, cfg.Name, cfg.FirstChannel, channels, opts)
	if err != nil {
		return nil, err
	}
	return &Par{base: b, cfg: cfg}, nil
}

func (p *Par) Kind() Kind { return KindPar }

// SetColor shows c on the RGB emitters.
func (p *Par) SetColor(c color.RgbColor) {
	p.current.emitters = color.Resolve(color.KindRGB, c, nil).Channels
	p.touch()
}

// SetMasterDimmer sets the dimmer; unchanged levels are ignored.
func (p *Par) SetMasterDimmer(level uint8) {
	if p.current.masterDim == level {
		return
	}
	p.current.masterDim = level
	p.touch()
}

// Blackout zeroes every state value at once. Render stages such as strobe
// and overrides are left alone.
func (p *Par) Blackout() {
	if p.current.zero() {
		return
	}
	p.current = parValues{}
	p.touch()
}

// MasterDimmer returns the current dimmer value.
func (p *Par) MasterDimmer() uint8 {
	return p.current.masterDim
}

func (p *Par) Frame() []uint8 {
	if f := p.frozenFrame(); f != nil {
		return f
	}

	values := p.newFrame()
	put(values, p.cfg.MasterDimChannel, p.current.masterDim)
	put(values, p.cfg.StrobeChannel, p.current.strobe)
	p.cfg.RgbChannels.put(values, p.current.emitters)

	if p.strobe {
		p.cfg.RgbChannels.put(values, [6]uint8{})
		put(values, p.cfg.MasterDimChannel, 255)
		put(values, p.cfg.StrobeChannel, StrobeIntensity)
	}

	return p.finish(values)
}
