package model

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&LightsPar{},
	&LightsMovingHeadRgb{},
	&LightsMovingHeadWheel{},
	&LightsWheelChannelValue{},
	&LightsGroup{},
	&LightsGroupFixture{},
	&LightsPredefinedEffect{},
}

// FixtureType discriminates the fixture table a group link points at.
type FixtureType string

const (
	FixtureTypePar             FixtureType = "par"
	FixtureTypeMovingHeadRgb   FixtureType = "moving_head_rgb"
	FixtureTypeMovingHeadWheel FixtureType = "moving_head_wheel"
)

// Wheel names the physical wheel a channel value belongs to.
type Wheel string

const (
	WheelColor Wheel = "color"
	WheelGobo  Wheel = "gobo"
)

////////////////////////
// FIXTURE DEFINITIONS
////////////////////////

// RgbChannels are the relative emitter channels of a fixture. 0 means absent.
type RgbChannels struct {
	Red   uint8 `json:"redChannel"`
	Green uint8 `json:"greenChannel"`
	Blue  uint8 `json:"blueChannel"`
	White uint8 `json:"whiteChannel"`
	Amber uint8 `json:"amberChannel"`
	UV    uint8 `json:"uvChannel"`
}

// Movement holds the relative positioning channels of a moving head.
type Movement struct {
	Pan         uint8 `json:"panChannel"`
	FinePan     uint8 `json:"finePanChannel"`
	Tilt        uint8 `json:"tiltChannel"`
	FineTilt    uint8 `json:"fineTiltChannel"`
	MovingSpeed uint8 `json:"movingSpeedChannel"`
}

// LightsPar is a par fixture definition. The same definition may be linked
// into several groups at different first channels.
type LightsPar struct {
	gorm.Model
	Name             string      `json:"name" gorm:"size:127"`
	MasterDimChannel uint8       `json:"masterDimChannel"`
	StrobeChannel    uint8       `json:"strobeChannel"`
	Channels         RgbChannels `json:"channels" gorm:"embedded;embeddedPrefix:channel_"`
}

func (*LightsPar) TableName() string {
	return "lights_pars"
}

// LightsMovingHeadRgb is a moving head definition with RGB emitters.
type LightsMovingHeadRgb struct {
	gorm.Model
	Name             string      `json:"name" gorm:"size:127"`
	MasterDimChannel uint8       `json:"masterDimChannel"`
	StrobeChannel    uint8       `json:"strobeChannel"`
	Channels         RgbChannels `json:"channels" gorm:"embedded;embeddedPrefix:channel_"`
	Movement         Movement    `json:"movement" gorm:"embedded;embeddedPrefix:movement_"`
}

func (*LightsMovingHeadRgb) TableName() string {
	return "lights_moving_head_rgbs"
}

// LightsMovingHeadWheel is a moving head definition with color and gobo wheels.
type LightsMovingHeadWheel struct {
	gorm.Model
	Name              string                    `json:"name" gorm:"size:127"`
	MasterDimChannel  uint8                     `json:"masterDimChannel"`
	StrobeChannel     uint8                     `json:"strobeChannel"`
	ColorWheelChannel uint8                     `json:"colorWheelChannel"`
	GoboWheelChannel  uint8                     `json:"goboWheelChannel"`
	GoboRotateChannel uint8                     `json:"goboRotateChannel"`
	Movement          Movement                  `json:"movement" gorm:"embedded;embeddedPrefix:movement_"`
	WheelValues       []LightsWheelChannelValue `json:"wheelValues" gorm:"foreignKey:MovingHeadID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*LightsMovingHeadWheel) TableName() string {
	return "lights_moving_head_wheels"
}

// ValuesFor returns the channel values of one wheel.
func (m *LightsMovingHeadWheel) ValuesFor(w Wheel) []LightsWheelChannelValue {
	var out []LightsWheelChannelValue
	for _, v := range m.WheelValues {
		if v.Wheel == w {
			out = append(out, v)
		}
	}
	return out
}

// LightsWheelChannelValue maps a wheel slot name to its DMX value.
type LightsWheelChannelValue struct {
	gorm.Model
	MovingHeadID uint   `json:"movingHeadId" gorm:"index:idx_wheel_value_head"`
	Wheel        Wheel  `json:"wheel" gorm:"size:16"`
	Name         string `json:"name" gorm:"size:64"`
	Value        uint8  `json:"value"`
}

func (*LightsWheelChannelValue) TableName() string {
	return "lights_wheel_channel_values"
}

////////////////////////
// GROUPS
////////////////////////

// LightsGroup is a named set of fixtures addressed as one unit.
type LightsGroup struct {
	gorm.Model
	Name     string               `json:"name" gorm:"size:127;uniqueIndex"`
	Fixtures []LightsGroupFixture `json:"fixtures" gorm:"foreignKey:GroupID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;"`
}

func (*LightsGroup) TableName() string {
	return "lights_groups"
}

// LightsGroupFixture places a fixture definition in a group at a first channel.
// Each row becomes one runtime fixture.
type LightsGroupFixture struct {
	gorm.Model
	GroupID      uint        `json:"groupId" gorm:"index:idx_group_fixture_group"`
	FixtureType  FixtureType `json:"fixtureType" gorm:"size:32"`
	FixtureID    uint        `json:"fixtureId"`
	FirstChannel uint16      `json:"firstChannel"`
}

func (*LightsGroupFixture) TableName() string {
	return "lights_group_fixtures"
}

////////////////////////
// SEQUENCES
////////////////////////

// LightsPredefinedEffect is one entry of a track's predefined effect sequence.
type LightsPredefinedEffect struct {
	gorm.Model
	TrackURI   string         `json:"trackUri" gorm:"size:255;index:idx_predefined_effect_track"`
	Timestamp  int64          `json:"timestamp"` // ms from track start
	Duration   int64          `json:"duration"`  // ms
	EffectName string         `json:"effectName" gorm:"size:64"`
	Props      datatypes.JSON `json:"props"`
	Groups     []LightsGroup  `json:"groups" gorm:"many2many:lights_predefined_effect_groups;"`
}

func (*LightsPredefinedEffect) TableName() string {
	return "lights_predefined_effects"
}

// Topology is the complete fixture library and group layout of a venue.
type Topology struct {
	Pars             []LightsPar             `json:"pars"`
	MovingHeadRgbs   []LightsMovingHeadRgb   `json:"movingHeadRgbs"`
	MovingHeadWheels []LightsMovingHeadWheel `json:"movingHeadWheels"`
	Groups           []LightsGroup           `json:"groups"`
}
