package fixture

import (
	"github.com/lightshow/fxrunner/internal/color"
)

// Movement holds the positioning channels of a moving head. Fine and speed
// channels are optional and use 0 when absent.
type Movement struct {
	PanChannel         int `json:"panChannel" yaml:"panChannel"`
	FinePanChannel     int `json:"finePanChannel,omitempty" yaml:"finePanChannel,omitempty"`
	TiltChannel        int `json:"tiltChannel" yaml:"tiltChannel"`
	FineTiltChannel    int `json:"fineTiltChannel,omitempty" yaml:"fineTiltChannel,omitempty"`
	MovingSpeedChannel int `json:"movingSpeedChannel,omitempty" yaml:"movingSpeedChannel,omitempty"`
}

func (m Movement) list() []int {
	return []int{m.PanChannel, m.FinePanChannel, m.TiltChannel, m.FineTiltChannel, m.MovingSpeedChannel}
}

type position struct {
	pan, finePan   uint8
	tilt, fineTilt uint8
	speed          uint8
}

func (m Movement) put(values []uint8, p position) {
	put(values, m.PanChannel, p.pan)
	put(values, m.FinePanChannel, p.finePan)
	put(values, m.TiltChannel, p.tilt)
	put(values, m.FineTiltChannel, p.fineTilt)
	put(values, m.MovingSpeedChannel, p.speed)
}

// movingHead is the shared state of both moving head variants.
type movingHead struct {
	base
	movement Movement
	pos      position
}

// SetPosition points the head. Pan and tilt are 16-bit; the low byte is only
// visible on fixtures with fine channels.
func (m *movingHead) SetPosition(pan, tilt uint16) {
	m.pos.pan, m.pos.finePan = uint8(pan>>8), uint8(pan)
	m.pos.tilt, m.pos.fineTilt = uint8(tilt>>8), uint8(tilt)
	m.touch()
}

// SetMovingSpeed sets the speed channel value.
func (m *movingHead) SetMovingSpeed(speed uint8) {
	m.pos.speed = speed
	m.touch()
}

// MovingHeadRgbConfig describes a moving head with RGB emitters.
type MovingHeadRgbConfig struct {
	ID               uint
	Name             string
	FirstChannel     int
	MasterDimChannel int
	StrobeChannel    int
	RgbChannels
	Movement
}

// MovingHeadRgb is a moving head that mixes color with RGB emitters.
type MovingHeadRgb struct {
	movingHead
	cfg       MovingHeadRgbConfig
	masterDim uint8
	emitters  [6]uint8
}

// NewMovingHeadRgb validates the layout and creates a moving head.
func NewMovingHeadRgb(cfg MovingHeadRgbConfig, opts ...Option) (*MovingHeadRgb, error) {
	channels := []int{cfg.MasterDimChannel, cfg.StrobeChannel}
	channels = append(channels, cfg.RgbChannels.list()...)
	channels = append(channels, cfg.Movement.list()...)
	b, err := newBase(cfg.ID, cfg.Name, cfg.FirstChannel, channels, opts)
	if err != nil {
		return nil, err
	}
	return &MovingHeadRgb{
		movingHead: movingHead{base: b, movement: cfg.Movement},
		cfg:        cfg,
	}, nil
}

func (m *MovingHeadRgb) Kind() Kind { return KindMovingHeadRgb }

func (m *MovingHeadRgb) SetColor(c color.RgbColor) {
	m.emitters = color.Resolve(color.KindRGB, c, nil).Channels
	m.touch()
}

func (m *MovingHeadRgb) SetMasterDimmer(level uint8) {
	if m.masterDim == level {
		return
	}
	m.masterDim = level
	m.touch()
}

// MasterDimmer returns the current dimmer value.
func (m *MovingHeadRgb) MasterDimmer() uint8 {
	return m.masterDim
}

func (m *MovingHeadRgb) Blackout() {
	if m.masterDim == 0 && m.emitters == [6]uint8{} && m.pos == (position{}) {
		return
	}
	m.masterDim = 0
	m.emitters = [6]uint8{}
	m.pos = position{}
	m.touch()
}

func (m *MovingHeadRgb) Frame() []uint8 {
	if f := m.frozenFrame(); f != nil {
		return f
	}

	values := m.newFrame()
	put(values, m.cfg.MasterDimChannel, m.masterDim)
	m.cfg.RgbChannels.put(values, m.emitters)
	m.movement.put(values, m.pos)

	if m.strobe {
		m.cfg.RgbChannels.put(values, [6]uint8{})
		m.movement.put(values, position{})
		put(values, m.cfg.MasterDimChannel, 255)
		put(values, m.cfg.StrobeChannel, StrobeIntensity)
	}

	return m.finish(values)
}

// MovingHeadWheelConfig describes a moving head with color and gobo wheels.
type MovingHeadWheelConfig struct {
	ID                uint
	Name              string
	FirstChannel      int
	MasterDimChannel  int
	StrobeChannel     int
	ColorWheelChannel int
	GoboWheelChannel  int
	GoboRotateChannel int
	Movement

	ColorWheelValues []color.WheelChannelValue
	GoboWheelValues  []color.WheelChannelValue
}

type wheelValues struct {
	masterDim  uint8
	strobe     uint8
	colorWheel uint8
	goboWheel  uint8
	goboRotate uint8
}

// MovingHeadWheel is a moving head that selects color from a physical wheel.
type MovingHeadWheel struct {
	movingHead
	cfg     MovingHeadWheelConfig
	current wheelValues
}

// NewMovingHeadWheel validates the layout and creates a moving head.
func NewMovingHeadWheel(cfg MovingHeadWheelConfig, opts ...Option) (*MovingHeadWheel, error) {
	channels := []int{cfg.MasterDimChannel, cfg.StrobeChannel, cfg.ColorWheelChannel, cfg.GoboWheelChannel, cfg.GoboRotateChannel}
	channels = append(channels, cfg.Movement.list()...)
	b, err := newBase(cfg.ID, cfg.Name, cfg.FirstChannel, channels, opts)
	if err != nil {
		return nil, err
	}
	return &MovingHeadWheel{
		movingHead: movingHead{base: b, movement: cfg.Movement},
		cfg:        cfg,
	}, nil
}

func (m *MovingHeadWheel) Kind() Kind { return KindMovingHeadWheel }

// SetColor selects the wheel slot closest to c; unmapped colors select slot 0.
func (m *MovingHeadWheel) SetColor(c color.RgbColor) {
	m.current.colorWheel = color.Resolve(color.KindWheel, c, m.cfg.ColorWheelValues).Wheel
	m.touch()
}

// SetGobo selects a gobo by name; unmapped names select slot 0.
func (m *MovingHeadWheel) SetGobo(name string) {
	m.current.goboWheel = color.SlotValue(m.cfg.GoboWheelValues, name)
	m.touch()
}

// SetGoboRotation sets the gobo rotation channel value.
func (m *MovingHeadWheel) SetGoboRotation(v uint8) {
	m.current.goboRotate = v
	m.touch()
}

func (m *MovingHeadWheel) SetMasterDimmer(level uint8) {
	if m.current.masterDim == level {
		return
	}
	m.current.masterDim = level
	m.touch()
}

// MasterDimmer returns the current dimmer value.
func (m *MovingHeadWheel) MasterDimmer() uint8 {
	return m.current.masterDim
}

// ColorWheel returns the current color wheel position.
func (m *MovingHeadWheel) ColorWheel() uint8 {
	return m.current.colorWheel
}

func (m *MovingHeadWheel) Blackout() {
	if m.current == (wheelValues{}) && m.pos == (position{}) {
		return
	}
	m.current = wheelValues{}
	m.pos = position{}
	m.touch()
}

func (m *MovingHeadWheel) Frame() []uint8 {
	if f := m.frozenFrame(); f != nil {
		return f
	}

	values := m.newFrame()
	put(values, m.cfg.MasterDimChannel, m.current.masterDim)
	put(values, m.cfg.StrobeChannel, m.current.strobe)
	put(values, m.cfg.ColorWheelChannel, m.current.colorWheel)
	put(values, m.cfg.GoboWheelChannel, m.current.goboWheel)
	put(values, m.cfg.GoboRotateChannel, m.current.goboRotate)
	m.movement.put(values, m.pos)

	if m.strobe {
		put(values, m.cfg.ColorWheelChannel, 0)
		put(values, m.cfg.GoboWheelChannel, 0)
		put(values, m.cfg.GoboRotateChannel, 0)
		m.movement.put(values, position{})
		put(values, m.cfg.MasterDimChannel, 255)
		put(values, m.cfg.StrobeChannel, StrobeIntensity)
	}

	return m.finish(values)
}
