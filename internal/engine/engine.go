// Package engine defines the media-playback engine contract.
//
// The engine is an external collaborator used as a black box: it accepts an
// ordered list of playable items and emits item-changed and end-of-queue
// events. Decoding and output are its problem, not ours.
package engine

import "time"

// Item is the playable description the engine needs for one queue entry.
type Item struct {
	ID       int64
	URI      string
	Title    string
	Artist   string
	Duration time.Duration
}

// Repeat mirrors the session's repeat mode for engines that do their own
// gapless scheduling. Auto-advance decisions stay with the session.
type Repeat int

const (
	RepeatNone Repeat = iota
	RepeatAll
	RepeatOne
)

// Interface defines the engine contract for dependency injection and testing.
type Interface interface {
	// Start replaces the engine's item list and begins playback at startIndex.
	Start(items []Item, startIndex int, shuffle bool, repeat Repeat) error
	Pause()
	Resume()
	SeekTo(position time.Duration)
	Stop()

	// Synchronous state queries
	CurrentIndex() int
	Position() time.Duration
	IsPlaying() bool

	// ItemChanged emits the new index when the engine moves to another item.
	ItemChanged() <-chan int
	// Ended emits when the current item finishes playing.
	Ended() <-chan struct{}
}

// Verify Mock implements Interface at compile time.
var _ Interface = (*Mock)(nil)
