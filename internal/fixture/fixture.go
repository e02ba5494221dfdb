// Package fixture models DMX lighting fixtures, the groups that own them and the
// universe frame they are packed into.
//
// Every fixture keeps a cache of its current channel values. Effects mutate that
// cache through SetColor/SetMasterDimmer/Blackout and Frame renders it through the
// override pipeline: frozen snapshot, base values, strobe, explicit overrides,
// reset override, freeze capture.
package fixture

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/lightshow/fxrunner/internal/color"
)

const (
	// UniverseSize is the number of channels in a DMX universe.
	UniverseSize = 512

	// MaxFixtureChannels bounds the relative channel numbers of a single fixture.
	MaxFixtureChannels = 32

	// StrobeIntensity is the strobe channel value forced while strobing.
	StrobeIntensity = 220

	// ResetOverrideTTL is how long a reset override stays in effect.
	ResetOverrideTTL = 5 * time.Second
)

var (
	ErrChannelOutOfRange = errors.New("channel out of range")
	ErrChannelOverlap    = errors.New("overlapping channels")
	ErrFixtureShared     = errors.New("fixture already belongs to a group")
)

// Kind identifies a fixture variant.
type Kind int

const (
	KindPar Kind = iota
	KindMovingHeadRgb
	KindMovingHeadWheel
)

func (k Kind) String() string {
	switch k {
	case KindPar:
		return "par"
	case KindMovingHeadRgb:
		return "moving_head_rgb"
	case KindMovingHeadWheel:
		return "moving_head_wheel"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Fixture is implemented by every fixture variant.
type Fixture interface {
	ID() uint
	Name() string
	Kind() Kind

	// FirstChannel is the 1-based DMX address of the fixture's channel 1.
	FirstChannel() int
	// Channels lists the relative (1-based) channels the fixture drives.
	Channels() []int

	SetColor(c color.RgbColor)
	SetMasterDimmer(level uint8)
	// Blackout zeroes the state values. Strobe, channel overrides, a pending
	// reset and a frozen snapshot are render stages and stay in place, so
	// Frame only renders all zero once those are off as well.
	Blackout()

	ApplyOverride(values map[int]uint8)
	ClearOverride()
	EnableStrobe()
	DisableStrobe()
	Freeze()
	Unfreeze()
	Reset(channel int, value uint8) error

	// Frame renders the fixture's relative channel values; index 0 is channel 1.
	Frame() []uint8
	UpdatedAt() time.Time
}

// Option configures a fixture at construction.
type Option func(*base)

// WithClock replaces the wall clock used for update timestamps and reset expiry.
func WithClock(c clockwork.Clock) Option {
	return func(b *base) {
		b.clock = c
	}
}

type resetOverride struct {
	channel int
	value   uint8
	at      time.Time
}

// base carries identity and the override state shared by all variants.
type base struct {
	id           uint
	name         string
	firstChannel int
	channels     []int
	span         int

	clock     clockwork.Clock
	updatedAt time.Time

	strobe   bool
	override map[int]uint8
	reset    *resetOverride
	freeze   bool
	frozen   []uint8
}

func newBase(id uint, name string, firstChannel int, channels []int, opts []Option) (base, error) {
	b := base{
		id:           id,
		name:         name,
		firstChannel: firstChannel,
		clock:        clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(&b)
	}

	seen := make(map[int]bool, len(channels))
	for _, ch := range channels {
		if ch == 0 {
			continue
		}
		if ch < 0 || ch > MaxFixtureChannels {
			return base{}, fmt.Errorf("fixture %q: channel %d: %w", name, ch, ErrChannelOutOfRange)
		}
		if seen[ch] {
			return base{}, fmt.Errorf("fixture %q: channel %d used twice: %w", name, ch, ErrChannelOverlap)
		}
		seen[ch] = true
		b.channels = append(b.channels, ch)
		if ch > b.span {
			b.span = ch
		}
	}
	if b.span == 0 {
		return base{}, fmt.Errorf("fixture %q has no channels: %w", name, ErrChannelOutOfRange)
	}
	if firstChannel < 1 || firstChannel+b.span-1 > UniverseSize {
		return base{}, fmt.Errorf("fixture %q: address %d-%d: %w",
			name, firstChannel, firstChannel+b.span-1, ErrChannelOutOfRange)
	}

	b.updatedAt = b.clock.Now()
	return b, nil
}

func (b *base) ID() uint             { return b.id }
func (b *base) Name() string         { return b.name }
func (b *base) FirstChannel() int    { return b.firstChannel }
func (b *base) UpdatedAt() time.Time { return b.updatedAt }

func (b *base) Channels() []int {
	out := make([]int, len(b.channels))
	copy(out, b.channels)
	return out
}

func (b *base) touch() {
	b.updatedAt = b.clock.Now()
}

// EnableStrobe makes every rendered frame a full-intensity strobe.
func (b *base) EnableStrobe() {
	b.strobe = true
	b.touch()
}

// DisableStrobe returns to rendering the current values.
func (b *base) DisableStrobe() {
	b.strobe = false
	b.touch()
}

// Strobing reports whether strobe mode is enabled.
func (b *base) Strobing() bool {
	return b.strobe
}

// ApplyOverride forces the given relative channels to fixed values on every
// rendered frame until ClearOverride is called.
func (b *base) ApplyOverride(values map[int]uint8) {
	b.override = make(map[int]uint8, len(values))
	for ch, v := range values {
		if ch < 1 || ch > b.span {
			continue
		}
		b.override[ch] = v
	}
	b.touch()
}

// ClearOverride removes all channel overrides.
func (b *base) ClearOverride() {
	b.override = nil
	b.touch()
}

// Freeze requests that the next rendered frame is captured and replayed until
// Unfreeze is called.
func (b *base) Freeze() {
	b.freeze = true
}

// Unfreeze drops the frozen snapshot.
func (b *base) Unfreeze() {
	b.freeze = false
	b.frozen = nil
	b.touch()
}

// Reset forces channel to value for ResetOverrideTTL, typically to trigger a
// fixture's built-in reset function.
func (b *base) Reset(channel int, value uint8) error {
	if channel < 1 || channel > b.span {
		return fmt.Errorf("fixture %q: reset channel %d: %w", b.name, channel, ErrChannelOutOfRange)
	}
	b.reset = &resetOverride{channel: channel, value: value, at: b.clock.Now()}
	b.touch()
	return nil
}

// frozenFrame returns a copy of the frozen snapshot, or nil when there is none.
func (b *base) frozenFrame() []uint8 {
	if len(b.frozen) == 0 {
		return nil
	}
	out := make([]uint8, len(b.frozen))
	copy(out, b.frozen)
	return out
}

func (b *base) newFrame() []uint8 {
	return make([]uint8, b.span)
}

// finish applies the explicit overrides, the reset override and the freeze
// capture to a frame computed from the current values.
func (b *base) finish(values []uint8) []uint8 {
	for ch, v := range b.override {
		values[ch-1] = v
	}

	if b.reset != nil {
		if b.clock.Since(b.reset.at) > ResetOverrideTTL {
			b.reset = nil
		} else {
			values[b.reset.channel-1] = b.reset.value
		}
	}

	if b.freeze {
		b.frozen = make([]uint8, len(values))
		copy(b.frozen, values)
	}

	return values
}

// put writes v to a relative channel; channel 0 means "not present".
func put(values []uint8, channel int, v uint8) {
	if channel > 0 {
		values[channel-1] = v
	}
}
