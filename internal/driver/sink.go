package driver

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lightshow/fxrunner/internal/fixture"
)

// Discard drops every frame.
type Discard struct{}

func (Discard) Send(context.Context, fixture.Frame) error { return nil }

// ChangesOnly forwards a frame only when it differs from the previous one.
type ChangesOnly struct {
	Next FrameSink

	mu   sync.Mutex
	last *fixture.Frame
}

func (s *ChangesOnly) Send(ctx context.Context, frame fixture.Frame) error {
	s.mu.Lock()
	if s.last != nil && *s.last == frame {
		s.mu.Unlock()
		return nil
	}
	f := frame
	s.last = &f
	s.mu.Unlock()
	return s.Next.Send(ctx, frame)
}

// LogSink writes the non-zero channels of every frame at debug level.
type LogSink struct {
	Logger zerolog.Logger
}

func (s LogSink) Send(_ context.Context, frame fixture.Frame) error {
	if s.Logger.GetLevel() > zerolog.DebugLevel {
		return nil
	}
	channels := zerolog.Dict()
	lit := 0
	for i, v := range frame {
		if v != 0 {
			channels.Uint8(strconv.Itoa(i+1), v)
			lit++
		}
	}
	s.Logger.Debug().Int("lit", lit).Dict("channels", channels).Msg("frame")
	return nil
}
