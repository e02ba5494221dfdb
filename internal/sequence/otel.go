package sequence

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/lightshow/fxrunner/internal/sequence"

const (
	reasonUnknownEffect = "unknown_effect"
	reasonDecodeError   = "decode_error"
	reasonMissed        = "missed"
)

type metrics struct {
	activated metric.Int64Counter
	expired   metric.Int64Counter
	skipped   metric.Int64Counter
	blackouts metric.Int64Counter
	fetches   metric.Int64Counter
}

func newMetrics() (*metrics, error) {
	// Global provider; no-op until one is configured
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.activated, err = m.Int64Counter(
		"sequence.effects.activated",
		metric.WithDescription("Effects activated from predefined sequences"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating activated counter: %w", err)
	}

	out.expired, err = m.Int64Counter(
		"sequence.effects.expired",
		metric.WithDescription("Effects removed at the end of their window"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating expired counter: %w", err)
	}

	out.skipped, err = m.Int64Counter(
		"sequence.effects.skipped",
		metric.WithDescription("Sequence events that never activated"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating skipped counter: %w", err)
	}

	out.blackouts, err = m.Int64Counter(
		"sequence.groups.blackout",
		metric.WithDescription("Group blackouts issued by the scheduler"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating blackout counter: %w", err)
	}

	out.fetches, err = m.Int64Counter(
		"sequence.fetches",
		metric.WithDescription("Sequence fetches by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating fetch counter: %w", err)
	}

	return out, nil
}
