package effect

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/lightshow/fxrunner/internal/color"
	"github.com/lightshow/fxrunner/internal/fixture"
)

// ErrUnknownEffect is returned when a name is not registered.
var ErrUnknownEffect = errors.New("unknown effect")

// DecodeError reports effect properties that could not be decoded or validated.
type DecodeError struct {
	Effect Name
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s properties: %v", e.Effect, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Definition describes how to build one effect variant from typed properties.
type Definition[P any] struct {
	// Defaults returns the properties used for fields missing from the input.
	Defaults func() P
	// Build creates the effect for a group.
	Build func(clock clockwork.Clock, g *fixture.Group, props P) Effect
}

type factory func(raw json.RawMessage) (Builder, error)

// Registry is the set of known effect variants.
type Registry struct {
	clock    clockwork.Clock
	validate *validator.Validate

	mu        sync.RWMutex
	factories map[Name]factory
}

// NewRegistry creates a registry holding the built-in effects.
func NewRegistry(clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	v := validator.New()
	_ = v.RegisterValidation("rgbcolor", func(fl validator.FieldLevel) bool {
		return color.RgbColor(fl.Field().String()).Valid()
	})

	r := &Registry{
		clock:     clock,
		validate:  v,
		factories: make(map[Name]factory),
	}

	Register(r, NameBeatFadeOut, Definition[BeatFadeOutProps]{
		Defaults: DefaultBeatFadeOutProps,
		Build: func(c clockwork.Clock, g *fixture.Group, p BeatFadeOutProps) Effect {
			return NewBeatFadeOut(c, g, p)
		},
	})
	Register(r, NameWave, Definition[WaveProps]{
		Defaults: DefaultWaveProps,
		Build: func(c clockwork.Clock, g *fixture.Group, p WaveProps) Effect {
			return NewWave(c, g, p)
		},
	})

	return r
}

// Register adds an effect variant to r, replacing any previous one of that name.
func Register[P any](r *Registry, name Name, def Definition[P]) {
	f := func(raw json.RawMessage) (Builder, error) {
		props := def.Defaults()
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &props); err != nil {
				return nil, &DecodeError{Effect: name, Err: err}
			}
		}
		if err := r.validate.Struct(props); err != nil {
			return nil, &DecodeError{Effect: name, Err: err}
		}
		return func(g *fixture.Group) Effect {
			return def.Build(r.clock, g, props)
		}, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve decodes raw properties for the named effect and returns a builder.
// It returns ErrUnknownEffect for unregistered names and a *DecodeError for
// malformed or invalid properties.
func (r *Registry) Resolve(name string, raw json.RawMessage) (Builder, error) {
	r.mu.RLock()
	f, ok := r.factories[Name(name)]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, name)
	}
	return f(raw)
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[Name(name)]
	return ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]Name, 0, len(r.factories))
	for n := range r.factories {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
