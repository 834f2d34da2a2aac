// ABOUTME: Tests for event decoding and command framing
// ABOUTME: Covers heartbeats, NUL suffixes, malformed frames and the batch format
package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEventVariants(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  Event
	}{
		{
			name:  "song changed",
			frame: `{"type":"SongChanged","song":{"id":"abc","title":"X","artist":"Y","duration_ms":180000},"index":2}`,
			want:  SongChanged{Song: Song{ID: "abc", Title: "X", Artist: "Y", DurationMs: 180000}, Index: 2},
		},
		{
			name:  "queue inserted",
			frame: `{"type":"QueueInserted","song":{"id":"s1","title":"T"},"index":0}`,
			want:  QueueInserted{Song: Song{ID: "s1", Title: "T"}, Index: 0},
		},
		{
			name:  "queue removed",
			frame: `{"type":"QueueRemoved","index":3}`,
			want:  QueueRemoved{Index: 3},
		},
		{
			name:  "playback state",
			frame: `{"type":"PlaybackStateChanged","playing":true}`,
			want:  PlaybackStateChanged{Playing: true},
		},
		{
			name:  "position",
			frame: `{"type":"PositionChanged","position_ms":42000}`,
			want:  PositionChanged{PositionMs: 42000},
		},
		{
			name:  "duration",
			frame: `{"type":"DurationChanged","duration_ms":180000}`,
			want:  DurationChanged{DurationMs: 180000},
		},
		{
			name:  "repeat mode",
			frame: `{"type":"RepeatModeChanged","mode":2}`,
			want:  RepeatModeChanged{Mode: RepeatAll},
		},
		{
			name:  "shuffle",
			frame: `{"type":"ShuffleChanged","enabled":true}`,
			want:  ShuffleChanged{Enabled: true},
		},
		{
			name:  "volume",
			frame: `{"type":"VolumeChanged","level":0.5}`,
			want:  VolumeChanged{Level: 0.5},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tc.frame))
			require.NoError(t, err)
			assert.Equal(t, tc.want, ev)
		})
	}
}

func TestDecodeEventRadioStateIsOpaque(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"RadioStateChanged","state":{"seed":"abc","pos":4}}`))
	require.NoError(t, err)

	radio, ok := ev.(RadioStateChanged)
	require.True(t, ok)
	assert.JSONEq(t, `{"seed":"abc","pos":4}`, string(radio.State))
}

func TestDecodeEventHeartbeat(t *testing.T) {
	for _, frame := range [][]byte{nil, {}, {0}, []byte(" ")} {
		ev, err := DecodeEvent(frame)
		require.NoError(t, err)
		assert.Nil(t, ev)
	}
}

func TestDecodeEventStripsTrailingNul(t *testing.T) {
	frame := append([]byte(`{"type":"PlaybackStateChanged","playing":false}`), 0)
	ev, err := DecodeEvent(frame)
	require.NoError(t, err)
	assert.Equal(t, PlaybackStateChanged{Playing: false}, ev)
}

func TestDecodeEventUnknownTypeSkipped(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"LyricsChanged","lyrics":"la la"}`))
	require.NoError(t, err)
	assert.Nil(t, ev)
}

func TestDecodeEventMalformed(t *testing.T) {
	tests := []string{
		`{not json`,
		`{"type":"SongChanged","index":1}`,               // missing song
		`{"type":"QueueRemoved"}`,                        // missing index
		`{"type":"PlaybackStateChanged"}`,                // missing playing
		`{"type":"RepeatModeChanged","mode":7}`,          // mode out of range
		`{"type":"VolumeChanged","level":"loud"}`,        // wrong param type
	}

	for _, frame := range tests {
		ev, err := DecodeEvent([]byte(frame))
		assert.Nil(t, ev, "frame %s", frame)
		var decodeErr *DecodeError
		require.ErrorAs(t, err, &decodeErr, "frame %s", frame)
	}
}

func TestEncodeCommandFramesEmptyBatchIsHeartbeat(t *testing.T) {
	frames, err := EncodeCommandFrames(nil)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Empty(t, frames[0])
}

func TestEncodeCommandFramesTwoFramesPerCommand(t *testing.T) {
	frames, err := EncodeCommandFrames([]Command{
		{Action: "seekTo", Params: []any{int64(42000)}},
		{Action: "play"},
	})
	require.NoError(t, err)
	require.Len(t, frames, 4)

	assert.Equal(t, "seekTo", string(frames[0]))
	assert.JSONEq(t, `[42000]`, string(frames[1]))
	assert.Equal(t, "play", string(frames[2]))
	assert.JSONEq(t, `[]`, string(frames[3]))
}

func TestHandshakeRoundTrip(t *testing.T) {
	frame, err := EncodeHandshake(ClientHandshake{
		ClientID:        "id-1",
		Name:            "living room",
		Type:            ClientTypeInteractive,
		Language:        "en-GB",
		ProtocolVersion: ProtocolVersion,
	})
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"living room"`)

	reply, err := DecodeServerHandshake([]byte(`{"server_name":"spms","protocol_version":1,"volume_level":0.8}`))
	require.NoError(t, err)
	assert.Equal(t, "spms", reply.ServerName)
	assert.False(t, reply.Rejected())
	assert.InDelta(t, 0.8, reply.VolumeLevel, 1e-9)
}

func TestServerHandshakeRejection(t *testing.T) {
	reply, err := DecodeServerHandshake([]byte(`{"server_name":"spms","protocol_version":9,"reject_reason":"incompatible protocol"}`))
	require.NoError(t, err)
	require.True(t, reply.Rejected())
	assert.Equal(t, "incompatible protocol", *reply.RejectReason)
}

func TestDecodeServerHandshakeMalformed(t *testing.T) {
	_, err := DecodeServerHandshake([]byte(`nope`))
	require.Error(t, err)
}
