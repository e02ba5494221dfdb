package color

// WheelChannelValue maps a semantic slot name (a wheel color or a gobo name) to
// the physical position value of a wheel channel.
type WheelChannelValue struct {
	Name  string `json:"name" yaml:"name"`
	Value uint8  `json:"value" yaml:"value"`
}

// FixtureKind selects the mapping strategy used by Resolve.
type FixtureKind int

const (
	KindRGB FixtureKind = iota
	KindWheel
)

// Native is the result of resolving a color for a fixture.
// RGB fixtures use Channels; wheel fixtures use Wheel.
type Native struct {
	Channels [6]uint8
	Wheel    uint8
}

// Resolve translates c into the native value(s) of a fixture of the given kind.
// Unknown colors and unmapped wheel slots resolve to 0 rather than failing.
func Resolve(kind FixtureKind, c RgbColor, wheel []WheelChannelValue) Native {
	switch kind {
	case KindWheel:
		return Native{Wheel: WheelValue(wheel, c)}
	default:
		return Native{Channels: c.RGB().Channels()}
	}
}

// WheelValue finds the wheel position for c by way of its alternative wheel color.
func WheelValue(values []WheelChannelValue, c RgbColor) uint8 {
	alt := c.Alternative()
	if alt == "" {
		return 0
	}
	return SlotValue(values, string(alt))
}

// SlotValue returns the value mapped to name, or 0 when there is none.
func SlotValue(values []WheelChannelValue, name string) uint8 {
	for _, v := range values {
		if v.Name == name {
			return v.Value
		}
	}
	return 0
}
