// ABOUTME: In-memory mirror of the remote playback state
// ABOUTME: Single-writer event application plus anchor/offset position interpolation
package playerstate

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/TeaqariaWTF/spmp/internal/protocol"
	"github.com/sirupsen/logrus"
)

// NoCurrent is the current-index sentinel for "no current song".
const NoCurrent = -1

// DurationUnknown is the duration sentinel before the server reports one.
const DurationUnknown = int64(-1)

// State mirrors the server's playback state. The network loop is the single
// writer (via Apply); any number of readers may call the accessors
// concurrently. Each event is applied as one atomic update, so readers never
// observe a half-applied event.
type State struct {
	mu  sync.RWMutex
	now func() time.Time

	queue      []protocol.Song
	current    int
	playing    bool
	durationMs int64

	// While playing, anchor is the wall-clock instant playback of the
	// current song effectively started; while paused, offset holds the
	// elapsed time directly. Every play/pause transition recomputes the
	// pair so position reads stay branch-light.
	anchor time.Time
	offset time.Duration

	repeat  protocol.RepeatMode
	shuffle bool
	volume  float64
	radio   json.RawMessage

	listeners []func(protocol.Event)
}

// New returns an empty state mirror.
func New() *State {
	return &State{
		now:        time.Now,
		current:    NoCurrent,
		durationMs: DurationUnknown,
		volume:     1.0,
	}
}

// SetClock replaces the wall-clock source. Test hook.
func (s *State) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// OnEvent registers a callback invoked after each applied event. Callbacks
// run on the network loop goroutine and must not block.
func (s *State) OnEvent(fn func(protocol.Event)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Apply folds one decoded event into the mirror.
func (s *State) Apply(ev protocol.Event) {
	s.mu.Lock()
	switch e := ev.(type) {
	case protocol.SongChanged:
		s.applySongChanged(e)
	case protocol.QueueInserted:
		s.applyQueueInserted(e)
	case protocol.QueueRemoved:
		s.applyQueueRemoved(e)
	case protocol.PlaybackStateChanged:
		s.applyPlaybackState(e.Playing)
	case protocol.PositionChanged:
		s.reanchor(time.Duration(e.PositionMs) * time.Millisecond)
	case protocol.DurationChanged:
		s.durationMs = e.DurationMs
	case protocol.RepeatModeChanged:
		s.repeat = e.Mode
	case protocol.ShuffleChanged:
		s.shuffle = e.Enabled
	case protocol.VolumeChanged:
		s.volume = clamp01(e.Level)
	case protocol.RadioStateChanged:
		s.radio = append(json.RawMessage(nil), e.State...)
	}
	listeners := s.listeners
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

func (s *State) applySongChanged(e protocol.SongChanged) {
	if e.Index < 0 {
		s.current = NoCurrent
		return
	}

	// The server is authoritative about what is playing. If our queue
	// mirror is behind (mid-session join, missed inserts), pad it out so
	// the index stays in bounds until the next queue event resyncs it.
	for len(s.queue) <= e.Index {
		s.queue = append(s.queue, e.Song)
	}
	s.queue[e.Index] = e.Song

	s.current = e.Index
	if e.Song.DurationMs > 0 {
		s.durationMs = e.Song.DurationMs
	} else {
		s.durationMs = DurationUnknown
	}
	// New song starts at position zero until the server says otherwise.
	s.reanchor(0)
}

func (s *State) applyQueueInserted(e protocol.QueueInserted) {
	if e.Index < 0 || e.Index > len(s.queue) {
		logrus.Warnf("playerstate: dropping insert at out-of-range index %d (queue len %d)", e.Index, len(s.queue))
		return
	}
	s.queue = append(s.queue, protocol.Song{})
	copy(s.queue[e.Index+1:], s.queue[e.Index:])
	s.queue[e.Index] = e.Song

	if s.current != NoCurrent && e.Index <= s.current {
		s.current++
	}
}

func (s *State) applyQueueRemoved(e protocol.QueueRemoved) {
	if e.Index < 0 || e.Index >= len(s.queue) {
		logrus.Warnf("playerstate: dropping removal at out-of-range index %d (queue len %d)", e.Index, len(s.queue))
		return
	}
	s.queue = append(s.queue[:e.Index], s.queue[e.Index+1:]...)

	switch {
	case s.current == e.Index:
		// The playing flag is only ever changed by an explicit
		// PlaybackStateChanged from the server.
		s.current = NoCurrent
	case s.current > e.Index:
		s.current--
	}
}

func (s *State) applyPlaybackState(playing bool) {
	if playing == s.playing {
		// Idempotent: a repeated transition must not re-anchor.
		return
	}
	if playing {
		s.anchor = s.now().Add(-s.offset)
	} else {
		s.offset = s.now().Sub(s.anchor)
	}
	s.playing = playing
}

// reanchor resets the interpolation pair to the given elapsed position.
func (s *State) reanchor(elapsed time.Duration) {
	if s.playing {
		s.anchor = s.now().Add(-elapsed)
	} else {
		s.offset = elapsed
	}
}

// PositionMs interpolates the current playback position without any network
// traffic. Results are clamped to zero; a not-yet-applied transition can
// otherwise race a read into a negative value.
func (s *State) PositionMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var elapsed time.Duration
	if s.playing {
		elapsed = s.now().Sub(s.anchor)
	} else {
		elapsed = s.offset
	}
	if elapsed < 0 {
		elapsed = 0
	}
	return elapsed.Milliseconds()
}

// Queue returns a copy of the mirrored queue.
func (s *State) Queue() []protocol.Song {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]protocol.Song(nil), s.queue...)
}

// CurrentIndex returns the current queue index, or NoCurrent.
func (s *State) CurrentIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// CurrentSong returns the current song, if one exists.
func (s *State) CurrentSong() (protocol.Song, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == NoCurrent || s.current >= len(s.queue) {
		return protocol.Song{}, false
	}
	return s.queue[s.current], true
}

// Playing reports whether the server says playback is running.
func (s *State) Playing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.playing
}

// DurationMs returns the current song duration, or DurationUnknown.
func (s *State) DurationMs() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.durationMs
}

// RepeatMode returns the mirrored repeat mode.
func (s *State) RepeatMode() protocol.RepeatMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.repeat
}

// Shuffle reports whether shuffle is enabled.
func (s *State) Shuffle() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.shuffle
}

// Volume returns the mirrored volume in [0.0, 1.0].
func (s *State) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// RadioState returns a copy of the opaque radio continuation token.
func (s *State) RadioState() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append(json.RawMessage(nil), s.radio...)
}

// Snapshot is a point-in-time value copy of the mirror, safe to serialize.
type Snapshot struct {
	Queue        []protocol.Song     `json:"queue"`
	CurrentIndex int                 `json:"current_index"`
	Playing      bool                `json:"playing"`
	PositionMs   int64               `json:"position_ms"`
	DurationMs   int64               `json:"duration_ms"`
	RepeatMode   protocol.RepeatMode `json:"repeat_mode"`
	Shuffle      bool                `json:"shuffle"`
	Volume       float64             `json:"volume"`
	RadioState   json.RawMessage     `json:"radio_state,omitempty"`
}

// Snapshot captures the full mirrored state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var elapsed time.Duration
	if s.playing {
		elapsed = s.now().Sub(s.anchor)
	} else {
		elapsed = s.offset
	}
	if elapsed < 0 {
		elapsed = 0
	}

	return Snapshot{
		Queue:        append([]protocol.Song(nil), s.queue...),
		CurrentIndex: s.current,
		Playing:      s.playing,
		PositionMs:   elapsed.Milliseconds(),
		DurationMs:   s.durationMs,
		RepeatMode:   s.repeat,
		Shuffle:      s.shuffle,
		Volume:       s.volume,
		RadioState:   append(json.RawMessage(nil), s.radio...),
	}
}

// Restore seeds the mirror from a cached snapshot, always as paused: a
// restarted client cannot claim playback is running until the server says
// so on the next connect.
func (s *State) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append([]protocol.Song(nil), snap.Queue...)
	s.current = snap.CurrentIndex
	if s.current < NoCurrent || s.current >= len(s.queue) {
		s.current = NoCurrent
	}
	s.playing = false
	s.offset = time.Duration(snap.PositionMs) * time.Millisecond
	s.durationMs = snap.DurationMs
	s.repeat = snap.RepeatMode
	s.shuffle = snap.Shuffle
	s.volume = clamp01(snap.Volume)
	s.radio = append(json.RawMessage(nil), snap.RadioState...)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
