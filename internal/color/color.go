// Package color maps semantic colors onto the native channel values of a fixture:
// direct RGB(W/A/UV) intensities for RGB fixtures and wheel positions for color
// wheel fixtures.
package color

import "sort"

// RgbColor is a named color that every fixture can show in some form.
type RgbColor string

const (
	White         RgbColor = "white"
	WarmWhite     RgbColor = "warmwhite"
	BlindingWhite RgbColor = "blindingwhite"
	Red           RgbColor = "red"
	RoseRed       RgbColor = "rosered"
	Green         RgbColor = "green"
	Lime          RgbColor = "lime"
	SeaGreen      RgbColor = "seagreen"
	Blue          RgbColor = "blue"
	LightBlue     RgbColor = "lightblue"
	Cyan          RgbColor = "cyan"
	Magenta       RgbColor = "magenta"
	Purple        RgbColor = "purple"
	Pink          RgbColor = "pink"
	LightPink     RgbColor = "lightpink"
	Yellow        RgbColor = "yellow"
	Gold          RgbColor = "gold"
	Orange        RgbColor = "orange"
	Brown         RgbColor = "brown"
	UV            RgbColor = "uv"
)

// WheelColor is the name of a physical slot on a color wheel.
type WheelColor string

const (
	WheelWhite      WheelColor = "white"
	WheelRed        WheelColor = "red"
	WheelGreen      WheelColor = "green"
	WheelLightGreen WheelColor = "lightgreen"
	WheelBlue       WheelColor = "blue"
	WheelLightBlue  WheelColor = "lightblue"
	WheelCyan       WheelColor = "cyan"
	WheelMagenta    WheelColor = "magenta"
	WheelPurple     WheelColor = "purple"
	WheelPink       WheelColor = "pink"
	WheelRoseRed    WheelColor = "rosered"
	WheelYellow     WheelColor = "yellow"
	WheelOrange     WheelColor = "orange"
	WheelUV         WheelColor = "uv"
)

// RGB holds the intensity of every emitter a fixture may have. Values outside
// 0-255 are clamped when converted to channel values.
type RGB struct {
	Red   int `json:"red" yaml:"red"`
	Green int `json:"green" yaml:"green"`
	Blue  int `json:"blue" yaml:"blue"`
	White int `json:"white,omitempty" yaml:"white,omitempty"`
	Amber int `json:"amber,omitempty" yaml:"amber,omitempty"`
	UV    int `json:"uv,omitempty" yaml:"uv,omitempty"`
}

// Channels returns the clamped channel values in red, green, blue, white, amber,
// uv order.
func (c RGB) Channels() [6]uint8 {
	return [6]uint8{Clamp(c.Red), Clamp(c.Green), Clamp(c.Blue), Clamp(c.White), Clamp(c.Amber), Clamp(c.UV)}
}

// Clamp limits v to the range of a single DMX channel.
func Clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// Definition describes how a named color is produced.
type Definition struct {
	Definition  RGB
	Alternative WheelColor
}

var definitions = map[RgbColor]Definition{
	White:         {RGB{Red: 255, Green: 255, Blue: 255}, WheelWhite},
	WarmWhite:     {RGB{Red: 255, Green: 180, Blue: 90, Amber: 120}, WheelWhite},
	BlindingWhite: {RGB{Red: 255, Green: 255, Blue: 255, White: 255, Amber: 255}, WheelWhite},
	Red:           {RGB{Red: 255}, WheelRed},
	RoseRed:       {RGB{Red: 255, Blue: 60}, WheelRoseRed},
	Green:         {RGB{Green: 255}, WheelGreen},
	Lime:          {RGB{Red: 128, Green: 255}, WheelLightGreen},
	SeaGreen:      {RGB{Red: 46, Green: 139, Blue: 87}, WheelGreen},
	Blue:          {RGB{Blue: 255}, WheelBlue},
	LightBlue:     {RGB{Red: 70, Green: 150, Blue: 255}, WheelLightBlue},
	Cyan:          {RGB{Green: 255, Blue: 255}, WheelCyan},
	Magenta:       {RGB{Red: 255, Blue: 255}, WheelMagenta},
	Purple:        {RGB{Red: 128, Blue: 255}, WheelPurple},
	Pink:          {RGB{Red: 255, Green: 40, Blue: 150}, WheelPink},
	LightPink:     {RGB{Red: 255, Green: 120, Blue: 180}, WheelPink},
	Yellow:        {RGB{Red: 255, Green: 255}, WheelYellow},
	Gold:          {RGB{Red: 255, Green: 190, Amber: 80}, WheelYellow},
	Orange:        {RGB{Red: 255, Green: 100}, WheelOrange},
	Brown:         {RGB{Red: 140, Green: 60, Blue: 10}, WheelOrange},
	UV:            {RGB{Red: 60, Blue: 255, UV: 255}, WheelUV},
}

// Lookup returns the definition of a named color.
func Lookup(c RgbColor) (Definition, bool) {
	d, ok := definitions[c]
	return d, ok
}

// Valid reports whether c is a known color name.
func (c RgbColor) Valid() bool {
	_, ok := definitions[c]
	return ok
}

// RGB returns the emitter values of c, or all zeros for an unknown color.
func (c RgbColor) RGB() RGB {
	return definitions[c].Definition
}

// Alternative returns the closest wheel slot for c, or "" for an unknown color.
func (c RgbColor) Alternative() WheelColor {
	return definitions[c].Alternative
}

// Names returns every known color name in sorted order.
func Names() []RgbColor {
	names := make([]RgbColor, 0, len(definitions))
	for n := range definitions {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
