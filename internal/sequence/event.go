// Package sequence plays predefined effect sequences in sync with the current
// track: it activates effects when their window opens, expires them when it
// closes and tears everything down on track changes and stops.
package sequence

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Event is one entry of a predefined sequence. Timestamp and Duration are
// milliseconds relative to the track start.
type Event struct {
	ID         uint            `json:"id"`
	Timestamp  int64           `json:"timestamp"`
	Duration   int64           `json:"duration"`
	EffectName string          `json:"effectName"`
	Props      json.RawMessage `json:"props,omitempty"`
	GroupIDs   []uint          `json:"groupIds"`
}

// Start returns the offset at which the event activates.
func (e Event) Start() time.Duration {
	return time.Duration(e.Timestamp) * time.Millisecond
}

// End returns the offset at which the event expires.
func (e Event) End() time.Duration {
	return time.Duration(e.Timestamp+e.Duration) * time.Millisecond
}

func (e Event) String() string {
	return fmt.Sprintf("%s#%d@%dms", e.EffectName, e.ID, e.Timestamp)
}

// Fetcher looks up the predefined sequence of a track.
type Fetcher interface {
	FindByTrack(ctx context.Context, trackURI string) ([]Event, error)
}

// GroupByTimestamp buckets events by their timestamp, keeping input order
// inside each bucket.
func GroupByTimestamp(events []Event) map[int64][]Event {
	out := make(map[int64][]Event)
	for _, e := range events {
		out[e.Timestamp] = append(out[e.Timestamp], e)
	}
	return out
}

// Timestamps returns the distinct timestamps of a grouping in ascending order.
func Timestamps(groups map[int64][]Event) []int64 {
	out := make([]int64, 0, len(groups))
	for ts := range groups {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
