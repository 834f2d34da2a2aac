// ABOUTME: Command-issuing entry points exposed to the UI layer
// ABOUTME: Each is sugar over the outbound queue; delivery is best-effort per tick
package controller

import "github.com/TeaqariaWTF/spmp/internal/protocol"

// Play resumes playback.
func (c *Controller) Play() { c.queue.Enqueue("play") }

// Pause pauses playback.
func (c *Controller) Pause() { c.queue.Enqueue("pause") }

// TogglePlay flips the play/pause state server-side.
func (c *Controller) TogglePlay() { c.queue.Enqueue("playPause") }

// Next skips to the next song.
func (c *Controller) Next() { c.queue.Enqueue("seekToNext") }

// Previous returns to the previous song.
func (c *Controller) Previous() { c.queue.Enqueue("seekToPrevious") }

// SeekTo jumps within the current song.
func (c *Controller) SeekTo(positionMs int64) { c.queue.Enqueue("seekTo", positionMs) }

// SeekToSong jumps to the queue entry at index.
func (c *Controller) SeekToSong(index int) { c.queue.Enqueue("seekToSong", index) }

// SetVolume sets the server volume, 0.0-1.0.
func (c *Controller) SetVolume(level float64) { c.queue.Enqueue("setVolume", level) }

// SetRepeatMode sets the queue repeat behavior.
func (c *Controller) SetRepeatMode(mode protocol.RepeatMode) {
	c.queue.Enqueue("setRepeatMode", int(mode))
}

// SetShuffle enables or disables shuffle.
func (c *Controller) SetShuffle(enabled bool) { c.queue.Enqueue("setShuffle", enabled) }

// AddSong inserts a song id at index.
func (c *Controller) AddSong(songID string, index int) { c.queue.Enqueue("addSong", songID, index) }

// RemoveSong removes the queue entry at index.
func (c *Controller) RemoveSong(index int) { c.queue.Enqueue("removeSong", index) }

// MoveSong reorders the queue.
func (c *Controller) MoveSong(from, to int) { c.queue.Enqueue("moveSong", from, to) }

// StartRadio asks the server to auto-generate the queue from a seed song.
func (c *Controller) StartRadio(songID string) { c.queue.Enqueue("startRadio", songID) }
