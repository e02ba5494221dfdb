// Package convert turns GORM models into the runtime fixture and sequence types.
package convert

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/lightshow/fxrunner/internal/color"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/model"
	"github.com/lightshow/fxrunner/internal/sequence"
	"gorm.io/datatypes"
)

var (
	ErrUnknownFixtureType = errors.New("unknown fixture type")
	ErrMissingDefinition  = errors.New("fixture definition not found")
)

// Library indexes fixture definitions by their database id.
type Library struct {
	Pars             map[uint]model.LightsPar
	MovingHeadRgbs   map[uint]model.LightsMovingHeadRgb
	MovingHeadWheels map[uint]model.LightsMovingHeadWheel
}

// NewLibrary builds a Library from definition slices.
func NewLibrary(pars []model.LightsPar, rgbs []model.LightsMovingHeadRgb, wheels []model.LightsMovingHeadWheel) Library {
	lib := Library{
		Pars:             make(map[uint]model.LightsPar, len(pars)),
		MovingHeadRgbs:   make(map[uint]model.LightsMovingHeadRgb, len(rgbs)),
		MovingHeadWheels: make(map[uint]model.LightsMovingHeadWheel, len(wheels)),
	}
	for _, p := range pars {
		lib.Pars[p.ID] = p
	}
	for _, m := range rgbs {
		lib.MovingHeadRgbs[m.ID] = m
	}
	for _, m := range wheels {
		lib.MovingHeadWheels[m.ID] = m
	}
	return lib
}

func rgbChannels(c model.RgbChannels) fixture.RgbChannels {
	return fixture.RgbChannels{
		RedChannel:   int(c.Red),
		GreenChannel: int(c.Green),
		BlueChannel:  int(c.Blue),
		WhiteChannel: int(c.White),
		AmberChannel: int(c.Amber),
		UVChannel:    int(c.UV),
	}
}

func movement(m model.Movement) fixture.Movement {
	return fixture.Movement{
		PanChannel:         int(m.Pan),
		FinePanChannel:     int(m.FinePan),
		TiltChannel:        int(m.Tilt),
		FineTiltChannel:    int(m.FineTilt),
		MovingSpeedChannel: int(m.MovingSpeed),
	}
}

func wheelValues(values []model.LightsWheelChannelValue) []color.WheelChannelValue {
	if len(values) == 0 {
		return nil
	}
	out := make([]color.WheelChannelValue, len(values))
	for i, v := range values {
		out[i] = color.WheelChannelValue{Name: v.Name, Value: v.Value}
	}
	return out
}

// ParToRuntime creates the par placed by link.
// The runtime fixture id is the link id, so one definition may appear in
// several groups as distinct fixtures.
func ParToRuntime(def model.LightsPar, link model.LightsGroupFixture, opts ...fixture.Option) (*fixture.Par, error) {
	return fixture.NewPar(fixture.ParConfig{
		ID:               link.ID,
		Name:             def.Name,
		FirstChannel:     int(link.FirstChannel),
		MasterDimChannel: int(def.MasterDimChannel),
		StrobeChannel:    int(def.StrobeChannel),
		RgbChannels:      rgbChannels(def.Channels),
	}, opts...)
}

// MovingHeadRgbToRuntime creates the RGB moving head placed by link.
func MovingHeadRgbToRuntime(def model.LightsMovingHeadRgb, link model.LightsGroupFixture, opts ...fixture.Option) (*fixture.MovingHeadRgb, error) {
	return fixture.NewMovingHeadRgb(fixture.MovingHeadRgbConfig{
		ID:               link.ID,
		Name:             def.Name,
		FirstChannel:     int(link.FirstChannel),
		MasterDimChannel: int(def.MasterDimChannel),
		StrobeChannel:    int(def.StrobeChannel),
		RgbChannels:      rgbChannels(def.Channels),
		Movement:         movement(def.Movement),
	}, opts...)
}

// MovingHeadWheelToRuntime creates the wheel moving head placed by link.
func MovingHeadWheelToRuntime(def model.LightsMovingHeadWheel, link model.LightsGroupFixture, opts ...fixture.Option) (*fixture.MovingHeadWheel, error) {
	return fixture.NewMovingHeadWheel(fixture.MovingHeadWheelConfig{
		ID:                link.ID,
		Name:              def.Name,
		FirstChannel:      int(link.FirstChannel),
		MasterDimChannel:  int(def.MasterDimChannel),
		StrobeChannel:     int(def.StrobeChannel),
		ColorWheelChannel: int(def.ColorWheelChannel),
		GoboWheelChannel:  int(def.GoboWheelChannel),
		GoboRotateChannel: int(def.GoboRotateChannel),
		Movement:          movement(def.Movement),
		ColorWheelValues:  wheelValues(def.ValuesFor(model.WheelColor)),
		GoboWheelValues:   wheelValues(def.ValuesFor(model.WheelGobo)),
	}, opts...)
}

// FixtureToRuntime resolves link against lib.
func FixtureToRuntime(lib Library, link model.LightsGroupFixture, opts ...fixture.Option) (fixture.Fixture, error) {
	switch link.FixtureType {
	case model.FixtureTypePar:
		def, ok := lib.Pars[link.FixtureID]
		if !ok {
			return nil, fmt.Errorf("par %d: %w", link.FixtureID, ErrMissingDefinition)
		}
		return ParToRuntime(def, link, opts...)
	case model.FixtureTypeMovingHeadRgb:
		def, ok := lib.MovingHeadRgbs[link.FixtureID]
		if !ok {
			return nil, fmt.Errorf("moving head rgb %d: %w", link.FixtureID, ErrMissingDefinition)
		}
		return MovingHeadRgbToRuntime(def, link, opts...)
	case model.FixtureTypeMovingHeadWheel:
		def, ok := lib.MovingHeadWheels[link.FixtureID]
		if !ok {
			return nil, fmt.Errorf("moving head wheel %d: %w", link.FixtureID, ErrMissingDefinition)
		}
		return MovingHeadWheelToRuntime(def, link, opts...)
	default:
		return nil, fmt.Errorf("%q: %w", link.FixtureType, ErrUnknownFixtureType)
	}
}

// GroupToRuntime builds a runtime group with fixtures in link id order.
func GroupToRuntime(g model.LightsGroup, lib Library, opts ...fixture.Option) (*fixture.Group, error) {
	links := append([]model.LightsGroupFixture(nil), g.Fixtures...)
	sort.Slice(links, func(i, j int) bool { return links[i].ID < links[j].ID })

	fixtures := make([]fixture.Fixture, 0, len(links))
	for _, link := range links {
		f, err := FixtureToRuntime(lib, link, opts...)
		if err != nil {
			return nil, fmt.Errorf("group %q: %w", g.Name, err)
		}
		fixtures = append(fixtures, f)
	}
	return fixture.NewGroup(g.ID, g.Name, fixtures...)
}

// EffectToEvent converts a predefined effect row into a sequence event.
func EffectToEvent(e model.LightsPredefinedEffect) sequence.Event {
	groupIDs := make([]uint, len(e.Groups))
	for i, g := range e.Groups {
		groupIDs[i] = g.ID
	}
	var props json.RawMessage
	if len(e.Props) > 0 {
		props = json.RawMessage(e.Props)
	}
	return sequence.Event{
		ID:         e.ID,
		Timestamp:  e.Timestamp,
		Duration:   e.Duration,
		EffectName: e.EffectName,
		Props:      props,
		GroupIDs:   groupIDs,
	}
}

// EffectsToEvents converts a slice of rows, preserving order.
func EffectsToEvents(rows []model.LightsPredefinedEffect) []sequence.Event {
	events := make([]sequence.Event, len(rows))
	for i, r := range rows {
		events[i] = EffectToEvent(r)
	}
	return events
}

// EventToEffect is the inverse of EffectToEvent, used when seeding a database.
// Groups carry only their ids.
func EventToEffect(trackURI string, ev sequence.Event) model.LightsPredefinedEffect {
	groups := make([]model.LightsGroup, len(ev.GroupIDs))
	for i, id := range ev.GroupIDs {
		groups[i].ID = id
	}
	row := model.LightsPredefinedEffect{
		TrackURI:   trackURI,
		Timestamp:  ev.Timestamp,
		Duration:   ev.Duration,
		EffectName: ev.EffectName,
		Props:      datatypes.JSON(ev.Props),
		Groups:     groups,
	}
	row.ID = ev.ID
	return row
}

// TopologyToRuntime builds every group of t, in group id order.
func TopologyToRuntime(t model.Topology, opts ...fixture.Option) ([]*fixture.Group, error) {
	lib := NewLibrary(t.Pars, t.MovingHeadRgbs, t.MovingHeadWheels)

	groups := append([]model.LightsGroup(nil), t.Groups...)
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })

	out := make([]*fixture.Group, 0, len(groups))
	for _, g := range groups {
		rg, err := GroupToRuntime(g, lib, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, rg)
	}
	return out, nil
}
