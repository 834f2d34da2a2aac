// ABOUTME: Tests for the mirrored player state
// ABOUTME: Uses a fake clock to verify anchor/offset position interpolation
package playerstate

import (
	"sync"
	"testing"
	"time"

	"github.com/TeaqariaWTF/spmp/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable wall clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestState() (*State, *fakeClock) {
	s := New()
	clock := newFakeClock()
	s.SetClock(clock.Now)
	return s, clock
}

func song(id string) protocol.Song {
	return protocol.Song{ID: id, Title: "song " + id}
}

func TestInitialState(t *testing.T) {
	s := New()

	assert.Equal(t, NoCurrent, s.CurrentIndex())
	assert.Equal(t, DurationUnknown, s.DurationMs())
	assert.False(t, s.Playing())
	assert.Empty(t, s.Queue())
	assert.Zero(t, s.PositionMs())
}

func TestPositionAdvancesWhilePlaying(t *testing.T) {
	s, clock := newTestState()

	s.Apply(protocol.PlaybackStateChanged{Playing: true})
	assert.Zero(t, s.PositionMs())

	clock.Advance(1500 * time.Millisecond)
	assert.Equal(t, int64(1500), s.PositionMs())

	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, int64(2000), s.PositionMs())
}

func TestPositionFrozenWhilePaused(t *testing.T) {
	s, clock := newTestState()

	s.Apply(protocol.PlaybackStateChanged{Playing: true})
	clock.Advance(3 * time.Second)
	s.Apply(protocol.PlaybackStateChanged{Playing: false})

	clock.Advance(time.Hour)
	assert.Equal(t, int64(3000), s.PositionMs())

	// Resuming continues from the stored offset.
	s.Apply(protocol.PlaybackStateChanged{Playing: true})
	clock.Advance(time.Second)
	assert.Equal(t, int64(4000), s.PositionMs())
}

func TestRepeatedPauseIsIdempotent(t *testing.T) {
	s, clock := newTestState()

	s.Apply(protocol.PlaybackStateChanged{Playing: true})
	clock.Advance(2 * time.Second)
	s.Apply(protocol.PlaybackStateChanged{Playing: false})

	clock.Advance(5 * time.Second)
	s.Apply(protocol.PlaybackStateChanged{Playing: false})

	assert.Equal(t, int64(2000), s.PositionMs())
	assert.False(t, s.Playing())
}

func TestPositionChangedReanchors(t *testing.T) {
	s, clock := newTestState()

	s.Apply(protocol.PlaybackStateChanged{Playing: true})
	clock.Advance(10 * time.Second)

	s.Apply(protocol.PositionChanged{PositionMs: 5000})
	assert.Equal(t, int64(5000), s.PositionMs())

	clock.Advance(time.Second)
	assert.Equal(t, int64(6000), s.PositionMs())
}

func TestPositionClampedToZero(t *testing.T) {
	s, clock := newTestState()

	// A paused re-anchor into the future must not read negative.
	s.Apply(protocol.PositionChanged{PositionMs: -250})
	assert.Zero(t, s.PositionMs())

	s.Apply(protocol.PlaybackStateChanged{Playing: true})
	clock.Advance(time.Second)
	assert.GreaterOrEqual(t, s.PositionMs(), int64(0))
}

func TestQueueInsertRemoveReplay(t *testing.T) {
	s, _ := newTestState()

	s.Apply(protocol.QueueInserted{Song: song("a"), Index: 0})
	s.Apply(protocol.QueueInserted{Song: song("b"), Index: 1})
	s.Apply(protocol.QueueInserted{Song: song("c"), Index: 1})
	require.Len(t, s.Queue(), 3)
	assert.Equal(t, "c", s.Queue()[1].ID)

	s.Apply(protocol.QueueRemoved{Index: 0})
	require.Len(t, s.Queue(), 2)
	assert.Equal(t, "c", s.Queue()[0].ID)

	// Index always within bounds or sentinel.
	idx := s.CurrentIndex()
	assert.True(t, idx == NoCurrent || (idx >= 0 && idx < len(s.Queue())))
}

func TestQueueEditsShiftCurrentIndex(t *testing.T) {
	s, _ := newTestState()

	s.Apply(protocol.QueueInserted{Song: song("a"), Index: 0})
	s.Apply(protocol.QueueInserted{Song: song("b"), Index: 1})
	s.Apply(protocol.SongChanged{Song: song("b"), Index: 1})
	require.Equal(t, 1, s.CurrentIndex())

	// Insert ahead of the current song: index follows the song.
	s.Apply(protocol.QueueInserted{Song: song("x"), Index: 0})
	assert.Equal(t, 2, s.CurrentIndex())
	cur, ok := s.CurrentSong()
	require.True(t, ok)
	assert.Equal(t, "b", cur.ID)

	// Remove ahead of the current song.
	s.Apply(protocol.QueueRemoved{Index: 0})
	assert.Equal(t, 1, s.CurrentIndex())
}

func TestRemovingCurrentClearsIndexButNotPlaying(t *testing.T) {
	s, _ := newTestState()

	s.Apply(protocol.QueueInserted{Song: song("a"), Index: 0})
	s.Apply(protocol.SongChanged{Song: song("a"), Index: 0})
	s.Apply(protocol.PlaybackStateChanged{Playing: true})

	s.Apply(protocol.QueueRemoved{Index: 0})

	assert.Equal(t, NoCurrent, s.CurrentIndex())
	// Only an explicit PlaybackStateChanged may flip the playing flag.
	assert.True(t, s.Playing())
}

func TestOutOfRangeQueueEventsDropped(t *testing.T) {
	s, _ := newTestState()

	s.Apply(protocol.QueueInserted{Song: song("a"), Index: 5})
	assert.Empty(t, s.Queue())

	s.Apply(protocol.QueueRemoved{Index: 0})
	assert.Empty(t, s.Queue())
}

func TestSongChangedPadsBehindMirror(t *testing.T) {
	s, _ := newTestState()

	// Mid-session join: the server names an index we have never seen.
	s.Apply(protocol.SongChanged{Song: protocol.Song{ID: "x", Title: "X", DurationMs: 9000}, Index: 2})

	assert.Equal(t, 2, s.CurrentIndex())
	assert.Len(t, s.Queue(), 3)
	assert.Equal(t, int64(9000), s.DurationMs())
}

func TestSongChangedResetsPosition(t *testing.T) {
	s, clock := newTestState()

	s.Apply(protocol.PlaybackStateChanged{Playing: true})
	clock.Advance(30 * time.Second)
	require.Equal(t, int64(30000), s.PositionMs())

	s.Apply(protocol.SongChanged{Song: song("next"), Index: 0})
	assert.Zero(t, s.PositionMs())

	clock.Advance(time.Second)
	assert.Equal(t, int64(1000), s.PositionMs())
}

func TestDurationUnknownUntilReported(t *testing.T) {
	s, _ := newTestState()

	s.Apply(protocol.SongChanged{Song: song("a"), Index: 0})
	assert.Equal(t, DurationUnknown, s.DurationMs())

	s.Apply(protocol.DurationChanged{DurationMs: 240000})
	assert.Equal(t, int64(240000), s.DurationMs())
}

func TestVolumeClamped(t *testing.T) {
	s, _ := newTestState()

	s.Apply(protocol.VolumeChanged{Level: 1.8})
	assert.Equal(t, 1.0, s.Volume())

	s.Apply(protocol.VolumeChanged{Level: -0.2})
	assert.Equal(t, 0.0, s.Volume())
}

func TestModeAndShuffleMirrored(t *testing.T) {
	s, _ := newTestState()

	s.Apply(protocol.RepeatModeChanged{Mode: protocol.RepeatOne})
	s.Apply(protocol.ShuffleChanged{Enabled: true})

	assert.Equal(t, protocol.RepeatOne, s.RepeatMode())
	assert.True(t, s.Shuffle())
}

func TestListenersNotifiedPerEvent(t *testing.T) {
	s, _ := newTestState()

	var got []string
	s.OnEvent(func(ev protocol.Event) {
		got = append(got, ev.Type())
	})

	s.Apply(protocol.QueueInserted{Song: song("a"), Index: 0})
	s.Apply(protocol.PlaybackStateChanged{Playing: true})

	assert.Equal(t, []string{"QueueInserted", "PlaybackStateChanged"}, got)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	s, clock := newTestState()

	s.Apply(protocol.QueueInserted{Song: song("a"), Index: 0})
	s.Apply(protocol.QueueInserted{Song: song("b"), Index: 1})
	s.Apply(protocol.SongChanged{Song: song("b"), Index: 1})
	s.Apply(protocol.PlaybackStateChanged{Playing: true})
	clock.Advance(7 * time.Second)
	s.Apply(protocol.VolumeChanged{Level: 0.4})
	s.Apply(protocol.RadioStateChanged{State: []byte(`{"seed":"b"}`)})

	snap := s.Snapshot()
	assert.Equal(t, int64(7000), snap.PositionMs)
	assert.True(t, snap.Playing)

	restored := New()
	restored.Restore(snap)

	// Restored state never claims to be playing until the server says so.
	assert.False(t, restored.Playing())
	assert.Equal(t, int64(7000), restored.PositionMs())
	assert.Equal(t, 1, restored.CurrentIndex())
	assert.Len(t, restored.Queue(), 2)
	assert.InDelta(t, 0.4, restored.Volume(), 1e-9)
	assert.JSONEq(t, `{"seed":"b"}`, string(restored.RadioState()))
}

func TestRestoreRejectsStaleIndex(t *testing.T) {
	s := New()
	s.Restore(Snapshot{Queue: []protocol.Song{song("a")}, CurrentIndex: 9})
	assert.Equal(t, NoCurrent, s.CurrentIndex())
}
