// Package effect implements the stateful light animations driven by beats and
// ticks, and the registry that resolves stored effect names to builders.
package effect

import (
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/pkg/events"
)

// Effect is a stateful animation bound to a single group.
//
// Tick is called at a fixed cadence and must derive the fixture state from the
// elapsed wall-clock time only. Beat resynchronizes beat-locked effects and is
// ignored by time-driven ones.
type Effect interface {
	Beat(e events.BeatEvent)
	Tick()
	Group() *fixture.Group
}

// Builder creates an effect instance for a group.
type Builder func(g *fixture.Group) Effect

// Name identifies an effect variant in stored sequences.
type Name string

const (
	NameBeatFadeOut Name = "BeatFadeOut"
	NameWave        Name = "Wave"
)
