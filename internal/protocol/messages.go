// ABOUTME: Wire types for the spmp remote-control protocol
// ABOUTME: Defines the event union, handshake payloads and command framing
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the protocol revision this client speaks.
const ProtocolVersion = 1

// Client types reported in the handshake.
const (
	ClientTypeInteractive = "interactive"
	ClientTypeHeadless    = "headless"
)

// Song is one queue entry as reported by the server.
type Song struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
}

// RepeatMode is the queue repeat behavior.
type RepeatMode int

const (
	RepeatNone RepeatMode = iota
	RepeatOne
	RepeatAll
)

// String returns the repeat mode name.
func (m RepeatMode) String() string {
	switch m {
	case RepeatNone:
		return "none"
	case RepeatOne:
		return "one"
	case RepeatAll:
		return "all"
	default:
		return "unknown"
	}
}

// Event is one server-reported player state change. Exactly one variant
// type implements it per wire "type" value.
type Event interface {
	// Type returns the wire name of the event.
	Type() string
}

// SongChanged reports a transition to the song at Index.
type SongChanged struct {
	Song  Song
	Index int
}

// QueueInserted reports a song inserted at Index.
type QueueInserted struct {
	Song  Song
	Index int
}

// QueueRemoved reports removal of the song at Index.
type QueueRemoved struct {
	Index int
}

// PlaybackStateChanged reports a play/pause transition.
type PlaybackStateChanged struct {
	Playing bool
}

// PositionChanged re-anchors playback position to the server's value.
type PositionChanged struct {
	PositionMs int64
}

// DurationChanged reports the loaded duration of the current song.
type DurationChanged struct {
	DurationMs int64
}

// RepeatModeChanged reports a repeat mode switch.
type RepeatModeChanged struct {
	Mode RepeatMode
}

// ShuffleChanged reports a shuffle toggle.
type ShuffleChanged struct {
	Enabled bool
}

// VolumeChanged reports the server-side volume, 0.0-1.0.
type VolumeChanged struct {
	Level float64
}

// RadioStateChanged carries the opaque auto-queue continuation token.
type RadioStateChanged struct {
	State json.RawMessage
}

func (SongChanged) Type() string          { return "SongChanged" }
func (QueueInserted) Type() string        { return "QueueInserted" }
func (QueueRemoved) Type() string         { return "QueueRemoved" }
func (PlaybackStateChanged) Type() string { return "PlaybackStateChanged" }
func (PositionChanged) Type() string      { return "PositionChanged" }
func (DurationChanged) Type() string      { return "DurationChanged" }
func (RepeatModeChanged) Type() string    { return "RepeatModeChanged" }
func (ShuffleChanged) Type() string       { return "ShuffleChanged" }
func (VolumeChanged) Type() string        { return "VolumeChanged" }
func (RadioStateChanged) Type() string    { return "RadioStateChanged" }

// DecodeError reports a non-empty frame that could not be decoded.
type DecodeError struct {
	Frame []byte
	Cause error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed event frame %q: %v", truncate(e.Frame, 64), e.Cause)
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}

// eventEnvelope is the superset of all event fields on the wire.
type eventEnvelope struct {
	Type       string          `json:"type"`
	Song       *Song           `json:"song,omitempty"`
	Index      *int            `json:"index,omitempty"`
	Playing    *bool           `json:"playing,omitempty"`
	PositionMs *int64          `json:"position_ms,omitempty"`
	DurationMs *int64          `json:"duration_ms,omitempty"`
	Mode       *int            `json:"mode,omitempty"`
	Enabled    *bool           `json:"enabled,omitempty"`
	Level      *float64        `json:"level,omitempty"`
	State      json.RawMessage `json:"state,omitempty"`
}

// DecodeEvent parses one inbound frame into an event. A trailing NUL byte is
// tolerated and stripped. Empty frames (heartbeats) and unknown event types
// decode to (nil, nil) and should be skipped by the caller. A malformed
// non-empty frame yields a *DecodeError.
func DecodeEvent(frame []byte) (Event, error) {
	frame = bytes.TrimSuffix(frame, []byte{0})
	if len(bytes.TrimSpace(frame)) == 0 {
		return nil, nil
	}

	var env eventEnvelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, &DecodeError{Frame: frame, Cause: err}
	}

	missing := func(field string) (Event, error) {
		return nil, &DecodeError{Frame: frame, Cause: fmt.Errorf("%s event missing %q", env.Type, field)}
	}

	switch env.Type {
	case "SongChanged":
		if env.Song == nil {
			return missing("song")
		}
		if env.Index == nil {
			return missing("index")
		}
		return SongChanged{Song: *env.Song, Index: *env.Index}, nil

	case "QueueInserted":
		if env.Song == nil {
			return missing("song")
		}
		if env.Index == nil {
			return missing("index")
		}
		return QueueInserted{Song: *env.Song, Index: *env.Index}, nil

	case "QueueRemoved":
		if env.Index == nil {
			return missing("index")
		}
		return QueueRemoved{Index: *env.Index}, nil

	case "PlaybackStateChanged":
		if env.Playing == nil {
			return missing("playing")
		}
		return PlaybackStateChanged{Playing: *env.Playing}, nil

	case "PositionChanged":
		if env.PositionMs == nil {
			return missing("position_ms")
		}
		return PositionChanged{PositionMs: *env.PositionMs}, nil

	case "DurationChanged":
		if env.DurationMs == nil {
			return missing("duration_ms")
		}
		return DurationChanged{DurationMs: *env.DurationMs}, nil

	case "RepeatModeChanged":
		if env.Mode == nil {
			return missing("mode")
		}
		if *env.Mode < int(RepeatNone) || *env.Mode > int(RepeatAll) {
			return nil, &DecodeError{Frame: frame, Cause: fmt.Errorf("repeat mode %d out of range", *env.Mode)}
		}
		return RepeatModeChanged{Mode: RepeatMode(*env.Mode)}, nil

	case "ShuffleChanged":
		if env.Enabled == nil {
			return missing("enabled")
		}
		return ShuffleChanged{Enabled: *env.Enabled}, nil

	case "VolumeChanged":
		if env.Level == nil {
			return missing("level")
		}
		return VolumeChanged{Level: *env.Level}, nil

	case "RadioStateChanged":
		return RadioStateChanged{State: env.State}, nil

	default:
		// Unknown event types are skipped so old clients survive new servers.
		return nil, nil
	}
}
