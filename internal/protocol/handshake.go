// ABOUTME: Handshake payloads and outbound command framing
// ABOUTME: Covers the one-shot identify exchange and the per-tick command batch
package protocol

import (
	"encoding/json"
	"fmt"
)

// ClientHandshake is the first frame sent after connecting.
type ClientHandshake struct {
	ClientID        string `json:"client_id"`
	Name            string `json:"name"`
	Type            string `json:"type"` // ClientTypeInteractive or ClientTypeHeadless
	Language        string `json:"language"`
	ClientVersion   string `json:"client_version,omitempty"`
	ProtocolVersion int    `json:"protocol_version"`
}

// ServerHandshake is the server's single reply to a ClientHandshake.
type ServerHandshake struct {
	ServerName      string  `json:"server_name"`
	ProtocolVersion int     `json:"protocol_version"`
	VolumeLevel     float64 `json:"volume_level,omitempty"`
	RejectReason    *string `json:"reject_reason,omitempty"`
}

// Rejected reports whether the server explicitly refused the client.
func (h ServerHandshake) Rejected() bool { return h.RejectReason != nil }

// EncodeHandshake serializes the client handshake as a single frame.
func EncodeHandshake(h ClientHandshake) ([]byte, error) {
	data, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("encode handshake: %w", err)
	}
	return data, nil
}

// DecodeServerHandshake parses the handshake reply frame. A trailing NUL is
// tolerated the same way event frames tolerate one.
func DecodeServerHandshake(frame []byte) (ServerHandshake, error) {
	if len(frame) > 0 && frame[len(frame)-1] == 0 {
		frame = frame[:len(frame)-1]
	}
	var h ServerHandshake
	if err := json.Unmarshal(frame, &h); err != nil {
		return ServerHandshake{}, fmt.Errorf("decode server handshake: %w", err)
	}
	return h, nil
}

// Command is one outbound action with its loosely-typed parameters. Commands
// are opaque past this point: the queue orders them and the supervisor ships
// them, nothing interprets them client-side.
type Command struct {
	Action string
	Params []any
}

// EncodeCommandFrames serializes a drained batch as outbound frames: two
// frames per command (action name, then the JSON parameter list). An empty
// batch becomes a single empty heartbeat frame so the server still sees the
// client as live.
func EncodeCommandFrames(cmds []Command) ([][]byte, error) {
	if len(cmds) == 0 {
		return [][]byte{{}}, nil
	}

	frames := make([][]byte, 0, len(cmds)*2)
	for _, cmd := range cmds {
		params := cmd.Params
		if params == nil {
			params = []any{}
		}
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params for %q: %w", cmd.Action, err)
		}
		frames = append(frames, []byte(cmd.Action), data)
	}
	return frames, nil
}
