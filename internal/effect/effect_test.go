package effect

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lightshow/fxrunner/internal/color"
	"github.com/lightshow/fxrunner/internal/fixture"
	"github.com/lightshow/fxrunner/pkg/events"
)

// Compile-time interface checks
var (
	_ Effect = (*BeatFadeOut)(nil)
	_ Effect = (*Wave)(nil)
)

func newPar(t *testing.T, clock clockwork.Clock, id uint, first int) *fixture.Par {
	t.Helper()
	p, err := fixture.NewPar(fixture.ParConfig{
		ID:               id,
		Name:             "par",
		FirstChannel:     first,
		MasterDimChannel: 1,
		StrobeChannel:    5,
		RgbChannels:      fixture.RgbChannels{RedChannel: 2, GreenChannel: 3, BlueChannel: 4},
	}, fixture.WithClock(clock))
	require.NoError(t, err)
	return p
}

func newWheelHead(t *testing.T, clock clockwork.Clock, first int) *fixture.MovingHeadWheel {
	t.Helper()
	m, err := fixture.NewMovingHeadWheel(fixture.MovingHeadWheelConfig{
		ID:                100,
		Name:              "wheel",
		FirstChannel:      first,
		MasterDimChannel:  1,
		ColorWheelChannel: 2,
		Movement:          fixture.Movement{PanChannel: 3, TiltChannel: 4},
		ColorWheelValues:  []color.WheelChannelValue{{Name: string(color.WheelRed), Value: 20}},
	}, fixture.WithClock(clock))
	require.NoError(t, err)
	return m
}

func newParGroup(t *testing.T, clock clockwork.Clock, firsts ...int) (*fixture.Group, []*fixture.Par) {
	t.Helper()
	pars := make([]*fixture.Par, 0, len(firsts))
	fixtures := make([]fixture.Fixture, 0, len(firsts))
	for i, first := range firsts {
		p := newPar(t, clock, uint(i+1), first)
		pars = append(pars, p)
		fixtures = append(fixtures, p)
	}
	g, err := fixture.NewGroup(1, "test", fixtures...)
	require.NoError(t, err)
	return g, pars
}

func beat(seconds float64) events.BeatEvent {
	return events.BeatEvent{Beat: events.Beat{Duration: seconds, Confidence: 1}}
}

func TestBeatFadeOut_FadesOverBeat(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, pars := newParGroup(t, clock, 1)

	e := NewBeatFadeOut(clock, g, BeatFadeOutProps{Colors: []color.RgbColor{color.Red}, EnableFade: true})
	e.Beat(beat(0.5))

	e.Tick()
	assert.Equal(t, uint8(255), pars[0].MasterDimmer())

	clock.Advance(250 * time.Millisecond)
	assert.InDelta(t, 0.5, e.Fraction(), 1e-9)
	e.Tick()
	assert.Equal(t, uint8(128), pars[0].MasterDimmer())

	clock.Advance(250 * time.Millisecond)
	e.Tick()
	assert.Equal(t, uint8(0), pars[0].MasterDimmer())

	clock.Advance(time.Second)
	e.Tick()
	assert.Equal(t, 0.0, e.Fraction())
	assert.Equal(t, uint8(0), pars[0].MasterDimmer())
}

func TestBeatFadeOut_FadeDisabled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, pars := newParGroup(t, clock, 1)

	e := NewBeatFadeOut(clock, g, BeatFadeOutProps{Colors: []color.RgbColor{color.Blue}})
	e.Beat(beat(0.5))

	for _, step := range []time.Duration{0, 250 * time.Millisecond, 250 * time.Millisecond, 5 * time.Second} {
		clock.Advance(step)
		e.Tick()
		assert.Equal(t, uint8(255), pars[0].MasterDimmer())
	}
	assert.Equal(t, []uint8{255, 0, 0, 255, 0}, pars[0].Frame())
}

func TestBeatFadeOut_RoundRobin(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, pars := newParGroup(t, clock, 1, 10, 20)

	e := NewBeatFadeOut(clock, g, BeatFadeOutProps{
		Colors:    []color.RgbColor{color.Red, color.Green},
		AddBlacks: true,
	})

	// phase 0: red, green, black
	e.Tick()
	assert.Equal(t, []uint8{255, 255, 0, 0, 0}, pars[0].Frame())
	assert.Equal(t, []uint8{255, 0, 255, 0, 0}, pars[1].Frame())
	assert.Equal(t, uint8(0), pars[2].MasterDimmer())

	// phase 1: green, black, red
	e.Beat(beat(0.5))
	e.Tick()
	assert.Equal(t, []uint8{255, 0, 255, 0, 0}, pars[0].Frame())
	assert.Equal(t, uint8(0), pars[1].MasterDimmer())
	assert.Equal(t, []uint8{255, 255, 0, 0, 0}, pars[2].Frame())

	// two more beats wrap around to phase 0
	e.Beat(beat(0.5))
	e.Beat(beat(0.5))
	e.Tick()
	assert.Equal(t, []uint8{255, 255, 0, 0, 0}, pars[0].Frame())
}

func TestBeatFadeOut_BlacksOutMovingHeads(t *testing.T) {
	clock := clockwork.NewFakeClock()
	par := newPar(t, clock, 1, 1)
	head := newWheelHead(t, clock, 10)
	head.SetColor(color.Red)
	head.SetMasterDimmer(255)
	head.SetPosition(0x8000, 0x8000)

	g, err := fixture.NewGroup(1, "mixed", par, head)
	require.NoError(t, err)

	e := NewBeatFadeOut(clock, g, BeatFadeOutProps{Colors: []color.RgbColor{color.White}, EnableFade: true})
	e.Beat(beat(1))
	e.Tick()

	assert.Equal(t, make([]uint8, len(head.Frame())), head.Frame())
	assert.Equal(t, uint8(255), par.MasterDimmer())
}

func TestWave_SingleWaveBrightness(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, pars := newParGroup(t, clock, 1, 10, 20, 30)

	w := NewWave(clock, g, WaveProps{Color: color.White, NrWaves: 2, CycleTime: 1000, SingleWave: true})

	for _, rel := range []float64{-1, -0.5, -0.0001, 1.0001, 1.5, 2} {
		assert.Equal(t, 0.0, w.Brightness(rel), "relative %v", rel)
	}

	// halfway through: the chain is par 30, 20, 10, 1 with relatives 0, .25, .5, .75
	clock.Advance(500 * time.Millisecond)
	require.InDelta(t, 0.5, w.Progression(clock.Now()), 1e-9)
	w.Tick()

	assert.Equal(t, uint8(0), pars[3].MasterDimmer(), "sin(0)")
	assert.Greater(t, pars[2].MasterDimmer(), uint8(0))
	assert.Greater(t, pars[1].MasterDimmer(), uint8(0))
	assert.Equal(t, uint8(0), pars[0].MasterDimmer(), "negative half clamps to zero")

	// at the start every fixture is before the wave
	w2 := NewWave(clock, g, WaveProps{Color: color.White, NrWaves: 1, CycleTime: 1000, SingleWave: true})
	w2.Tick()
	for _, p := range pars {
		assert.Equal(t, uint8(0), p.MasterDimmer())
	}
}

func TestWave_SingleWaveDoesNotRestart(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, _ := newParGroup(t, clock, 1)
	w := NewWave(clock, g, WaveProps{Color: color.Red, NrWaves: 1, CycleTime: 1000, SingleWave: true})

	clock.Advance(3 * time.Second)
	w.Tick()
	assert.Equal(t, 1.0, w.Progression(clock.Now()))
}

func TestWave_RestartsCycle(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, _ := newParGroup(t, clock, 1)
	w := NewWave(clock, g, WaveProps{Color: color.Red, NrWaves: 2, CycleTime: 1000})

	clock.Advance(1200 * time.Millisecond)
	assert.Equal(t, 1.0, w.Progression(clock.Now()))
	w.Tick()
	assert.Equal(t, 0.0, w.Progression(clock.Now()))

	clock.Advance(250 * time.Millisecond)
	assert.InDelta(t, 0.25, w.Progression(clock.Now()), 1e-9)
}

func TestWave_ContinuousDimmerFromSine(t *testing.T) {
	clock := clockwork.NewFakeClock()
	g, pars := newParGroup(t, clock, 1, 10)
	w := NewWave(clock, g, WaveProps{Color: color.Red, NrWaves: 1, CycleTime: 1000})

	// chain: par 10 (index 0), par 1 (index 1)
	// progression .75: relatives .5 and 1.0
	clock.Advance(750 * time.Millisecond)
	w.Tick()
	assert.Equal(t, uint8(255), pars[1].MasterDimmer())
	assert.Equal(t, uint8(0), pars[0].MasterDimmer())
	assert.Equal(t, uint8(255), pars[1].Frame()[1])
}

func TestRelativeProgression(t *testing.T) {
	assert.Equal(t, -1.0, RelativeProgression(0, 0, 4))
	assert.Equal(t, 1.0, RelativeProgression(1, 0, 4))
	assert.Equal(t, 0.75, RelativeProgression(0.5, 3, 4))
}

func TestRegistry_Resolve(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(clock)
	g, _ := newParGroup(t, clock, 1)

	assert.Equal(t, []Name{NameBeatFadeOut, NameWave}, r.Names())
	assert.True(t, r.Has("Wave"))
	assert.False(t, r.Has("Sparkle"))

	build, err := r.Resolve("Wave", json.RawMessage(`{"color":"red"}`))
	require.NoError(t, err)
	e := build(g)
	require.IsType(t, &Wave{}, e)
	assert.Equal(t, g, e.Group())
	assert.Equal(t, WaveProps{Color: color.Red, NrWaves: 2, CycleTime: 2000}, e.(*Wave).props)

	build, err = r.Resolve("BeatFadeOut", json.RawMessage(`{"colors":["red","blue"],"addBlacks":true}`))
	require.NoError(t, err)
	bfo, ok := build(g).(*BeatFadeOut)
	require.True(t, ok)
	assert.True(t, bfo.props.EnableFade)
	assert.True(t, bfo.props.AddBlacks)
	assert.Equal(t, 3, bfo.slots())
}

func TestRegistry_Errors(t *testing.T) {
	r := NewRegistry(clockwork.NewFakeClock())

	_, err := r.Resolve("Sparkle", nil)
	assert.ErrorIs(t, err, ErrUnknownEffect)

	tests := []struct {
		name  string
		props string
	}{
		{name: "BeatFadeOut", props: `{}`},
		{name: "BeatFadeOut", props: `{"colors":[]}`},
		{name: "BeatFadeOut", props: `{"colors":["notacolor"]}`},
		{name: "BeatFadeOut", props: `{"colors":"red"}`},
		{name: "Wave", props: `{"color":"red","nrWaves":0}`},
		{name: "Wave", props: `{"color":"red","cycleTime":0}`},
		{name: "Wave", props: `{"color":"ultraviolet-ish"}`},
		{name: "Wave", props: `not json`},
	}
	for _, tt := range tests {
		t.Run(tt.name+" "+tt.props, func(t *testing.T) {
			_, err := r.Resolve(tt.name, json.RawMessage(tt.props))
			var decodeErr *DecodeError
			require.ErrorAs(t, err, &decodeErr)
			assert.Equal(t, Name(tt.name), decodeErr.Effect)
		})
	}
}
