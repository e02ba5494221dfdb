// Package events holds the music events consumed by the lights runtime and the
// envelope used to stream them over a WebSocket.
package events

import (
	"encoding/json"
	"time"
)

// Message type constants matching the event streaming protocol.
const (
	TypeBeat        = "beat"
	TypeTrackChange = "track_change"
	TypeStop        = "stop"

	TypeSetEffects    = "set_effects"
	TypeRemoveEffects = "remove_effects"
	TypeRemoveGroup   = "remove_group"
)

// Beat describes a single detected beat. Times are in seconds, as produced by
// the music analysis component.
type Beat struct {
	Start      float64 `json:"start"`
	Duration   float64 `json:"duration"`
	Confidence float64 `json:"confidence"`
}

// Length returns the beat duration as a time.Duration.
func (b Beat) Length() time.Duration {
	return time.Duration(b.Duration * float64(time.Second))
}

// BeatEvent marks a detected rhythmic pulse.
type BeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Beat      Beat      `json:"beat"`
}

// TrackChangeEvent is emitted by the playback component when a new track starts.
type TrackChangeEvent struct {
	TrackURI  string    `json:"trackURI"`
	StartTime time.Time `json:"startTime"`
}

// StopEvent is emitted when playback stops or pauses.
type StopEvent struct{}

// EffectSpec names an effect and its JSON properties.
type EffectSpec struct {
	Name  string          `json:"name"`
	Props json.RawMessage `json:"props,omitempty"`
}

// SetEffectsCommand replaces the directly controlled effects of a group. The
// group is addressed by id, or by name when the id is zero.
type SetEffectsCommand struct {
	GroupID   uint         `json:"groupId,omitempty"`
	GroupName string       `json:"groupName,omitempty"`
	Effects   []EffectSpec `json:"effects"`
}

// RemoveEffectsCommand clears the directly controlled effects of a group.
type RemoveEffectsCommand struct {
	GroupID   uint   `json:"groupId,omitempty"`
	GroupName string `json:"groupName,omitempty"`
}

// RemoveGroupCommand takes a group out of the running topology.
type RemoveGroupCommand struct {
	GroupID uint `json:"groupId"`
}

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope marshals payload into an Envelope of the given type.
func NewEnvelope(msgType string, payload any) (Envelope, error) {
	if payload == nil {
		return Envelope{Type: msgType}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: msgType, Payload: data}, nil
}
