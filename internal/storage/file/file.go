// Package file loads the topology and sequences from a YAML show file.
//
// The document looks like:
//
//	fixtures:
//	  pars:
//	    - id: 1
//	      name: Front par
//	      masterDimChannel: 1
//	      channels: {red: 2, green: 3, blue: 4}
//	groups:
//	  - id: 1
//	    name: Front
//	    fixtures:
//	      - {type: par, fixture: 1, firstChannel: 1}
//	sequences:
//	  spotify:track:abc:
//	    - {id: 1, timestamp: 0, duration: 4000, effect: Wave, groups: [1], props: {color: red}}
package file

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/internal/model"
	"github.com/lightshow/fxrunner/internal/sequence"
	"github.com/lightshow/fxrunner/internal/storage/memory"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type rgbRecord struct {
	Red   uint8 `yaml:"red"`
	Green uint8 `yaml:"green"`
	Blue  uint8 `yaml:"blue"`
	White uint8 `yaml:"white,omitempty"`
	Amber uint8 `yaml:"amber,omitempty"`
	UV    uint8 `yaml:"uv,omitempty"`
}

type movementRecord struct {
	Pan         uint8 `yaml:"pan"`
	FinePan     uint8 `yaml:"finePan,omitempty"`
	Tilt        uint8 `yaml:"tilt"`
	FineTilt    uint8 `yaml:"fineTilt,omitempty"`
	MovingSpeed uint8 `yaml:"movingSpeed,omitempty"`
}

type slotRecord struct {
	Name  string `yaml:"name"`
	Value uint8  `yaml:"value"`
}

type parRecord struct {
	ID               uint      `yaml:"id"`
	Name             string    `yaml:"name"`
	MasterDimChannel uint8     `yaml:"masterDimChannel"`
	StrobeChannel    uint8     `yaml:"strobeChannel,omitempty"`
	Channels         rgbRecord `yaml:"channels"`
}

type movingHeadRgbRecord struct {
	ID               uint           `yaml:"id"`
	Name             string         `yaml:"name"`
	MasterDimChannel uint8          `yaml:"masterDimChannel"`
	StrobeChannel    uint8          `yaml:"strobeChannel,omitempty"`
	Channels         rgbRecord      `yaml:"channels"`
	Movement         movementRecord `yaml:"movement"`
}

type movingHeadWheelRecord struct {
	ID                uint           `yaml:"id"`
	Name              string         `yaml:"name"`
	MasterDimChannel  uint8          `yaml:"masterDimChannel"`
	StrobeChannel     uint8          `yaml:"strobeChannel,omitempty"`
	ColorWheelChannel uint8          `yaml:"colorWheelChannel"`
	GoboWheelChannel  uint8          `yaml:"goboWheelChannel,omitempty"`
	GoboRotateChannel uint8          `yaml:"goboRotateChannel,omitempty"`
	Movement          movementRecord `yaml:"movement"`
	ColorWheel        []slotRecord   `yaml:"colorWheel"`
	GoboWheel         []slotRecord   `yaml:"goboWheel,omitempty"`
}

type fixturesRecord struct {
	Pars             []parRecord             `yaml:"pars"`
	MovingHeadRgbs   []movingHeadRgbRecord   `yaml:"movingHeadRgbs"`
	MovingHeadWheels []movingHeadWheelRecord `yaml:"movingHeadWheels"`
}

type placementRecord struct {
	Type         model.FixtureType `yaml:"type"`
	Fixture      uint              `yaml:"fixture"`
	FirstChannel uint16            `yaml:"firstChannel"`
}

type groupRecord struct {
	ID       uint              `yaml:"id"`
	Name     string            `yaml:"name"`
	Fixtures []placementRecord `yaml:"fixtures"`
}

type effectRecord struct {
	ID        uint           `yaml:"id"`
	Timestamp int64          `yaml:"timestamp"`
	Duration  int64          `yaml:"duration"`
	Effect    string         `yaml:"effect"`
	Groups    []uint         `yaml:"groups"`
	Props     map[string]any `yaml:"props,omitempty"`
}

// Document is the root of a show file.
type Document struct {
	Fixtures  fixturesRecord            `yaml:"fixtures"`
	Groups    []groupRecord             `yaml:"groups"`
	Sequences map[string][]effectRecord `yaml:"sequences"`
}

// Backend serves a parsed show file from memory.
type Backend struct {
	path  string
	store *memory.Backend
}

// New creates a backend for the file at path. The file is read by Init.
func New(path string) *Backend {
	return &Backend{path: path}
}

// Init reads and parses the show file.
func (b *Backend) Init() error {
	data, err := os.ReadFile(b.path)
	if err != nil {
		return fmt.Errorf("reading show file: %w", err)
	}
	doc, err := Parse(data)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", b.path, err)
	}

	top, effects, err := doc.Models()
	if err != nil {
		return fmt.Errorf("parsing %s: %w", b.path, err)
	}

	store := memory.New()
	store.SetTopology(top)
	store.AddEffects(effects...)
	b.store = store
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// FindByTrack returns the track's sequence ordered by timestamp then id.
func (b *Backend) FindByTrack(ctx context.Context, trackURI string) ([]sequence.Event, error) {
	if b.store == nil {
		return nil, fmt.Errorf("show file %s not loaded", b.path)
	}
	return b.store.FindByTrack(ctx, trackURI)
}

// LoadGroups builds runtime groups from the file's topology.
func (b *Backend) LoadGroups(ctx context.Context, opts ...fixture.Option) ([]*fixture.Group, error) {
	if b.store == nil {
		return nil, fmt.Errorf("show file %s not loaded", b.path)
	}
	return b.store.LoadGroups(ctx, opts...)
}

// Parse decodes a show file. Unknown keys are rejected; an empty file is an
// empty show.
func Parse(data []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &doc, nil
}

func withID(id uint) gorm.Model {
	return gorm.Model{ID: id}
}

func rgb(r rgbRecord) model.RgbChannels {
	return model.RgbChannels{Red: r.Red, Green: r.Green, Blue: r.Blue, White: r.White, Amber: r.Amber, UV: r.UV}
}

func movement(m movementRecord) model.Movement {
	return model.Movement{Pan: m.Pan, FinePan: m.FinePan, Tilt: m.Tilt, FineTilt: m.FineTilt, MovingSpeed: m.MovingSpeed}
}

// Models converts the document into database models so the file can be
// served like any other store or seeded into a database.
func (d *Document) Models() (model.Topology, []model.LightsPredefinedEffect, error) {
	var top model.Topology

	for _, p := range d.Fixtures.Pars {
		top.Pars = append(top.Pars, model.LightsPar{
			Model:            withID(p.ID),
			Name:             p.Name,
			MasterDimChannel: p.MasterDimChannel,
			StrobeChannel:    p.StrobeChannel,
			Channels:         rgb(p.Channels),
		})
	}
	for _, m := range d.Fixtures.MovingHeadRgbs {
		top.MovingHeadRgbs = append(top.MovingHeadRgbs, model.LightsMovingHeadRgb{
			Model:            withID(m.ID),
			Name:             m.Name,
			MasterDimChannel: m.MasterDimChannel,
			StrobeChannel:    m.StrobeChannel,
			Channels:         rgb(m.Channels),
			Movement:         movement(m.Movement),
		})
	}
	var slotID uint
	for _, m := range d.Fixtures.MovingHeadWheels {
		head := model.LightsMovingHeadWheel{
			Model:             withID(m.ID),
			Name:              m.Name,
			MasterDimChannel:  m.MasterDimChannel,
			StrobeChannel:     m.StrobeChannel,
			ColorWheelChannel: m.ColorWheelChannel,
			GoboWheelChannel:  m.GoboWheelChannel,
			GoboRotateChannel: m.GoboRotateChannel,
			Movement:          movement(m.Movement),
		}
		for _, wheel := range []struct {
			name  model.Wheel
			slots []slotRecord
		}{{model.WheelColor, m.ColorWheel}, {model.WheelGobo, m.GoboWheel}} {
			for _, s := range wheel.slots {
				slotID++
				head.WheelValues = append(head.WheelValues, model.LightsWheelChannelValue{
					Model:        withID(slotID),
					MovingHeadID: m.ID,
					Wheel:        wheel.name,
					Name:         s.Name,
					Value:        s.Value,
				})
			}
		}
		top.MovingHeadWheels = append(top.MovingHeadWheels, head)
	}

	var linkID uint
	for _, g := range d.Groups {
		group := model.LightsGroup{Model: withID(g.ID), Name: g.Name}
		for _, f := range g.Fixtures {
			linkID++
			group.Fixtures = append(group.Fixtures, model.LightsGroupFixture{
				Model:        withID(linkID),
				GroupID:      g.ID,
				FixtureType:  f.Type,
				FixtureID:    f.Fixture,
				FirstChannel: f.FirstChannel,
			})
		}
		top.Groups = append(top.Groups, group)
	}

	var effects []model.LightsPredefinedEffect
	for uri, records := range d.Sequences {
		for _, r := range records {
			var props datatypes.JSON
			if r.Props != nil {
				raw, err := json.Marshal(r.Props)
				if err != nil {
					return top, nil, fmt.Errorf("track %s effect %d props: %w", uri, r.ID, err)
				}
				props = raw
			}
			row := model.LightsPredefinedEffect{
				Model:      withID(r.ID),
				TrackURI:   uri,
				Timestamp:  r.Timestamp,
				Duration:   r.Duration,
				EffectName: r.Effect,
				Props:      props,
			}
			for _, id := range r.Groups {
				row.Groups = append(row.Groups, model.LightsGroup{Model: withID(id)})
			}
			effects = append(effects, row)
		}
	}

	return top, effects, nil
}
