package playback

import "time"

// StateChange is emitted when playback state changes.
type StateChange struct {
	Previous State
	Current  State
}

func (StateChange) EventName() string { return "playback.state" }

// TrackChange is emitted when playback moves to a different track.
//
// Emitted by:
//   - LoadQueue: for the starting track
//   - Next/Previous/JumpTo: when navigating
//   - end-of-item auto-advance
//
// NOT emitted by Pause/Stop - those are StateChange only. The app handles
// all track-related side effects (notification re-render, listening-history
// flush) in response to this event.
type TrackChange struct {
	Previous      *Track
	Current       *Track
	PreviousIndex int
	Index         int
}

func (TrackChange) EventName() string { return "playback.track" }

// LikeChange is emitted when the liked flag of the current track is toggled.
// Library-side persistence of likes is an external collaborator's job,
// triggered by this event.
type LikeChange struct {
	Track Track
	Liked bool
}

func (LikeChange) EventName() string { return "playback.like" }

// QueueChange is emitted when the queue contents change.
type QueueChange struct {
	Tracks []Track
	Index  int
}

func (QueueChange) EventName() string { return "playback.queue" }

// ModeChange is emitted when repeat or shuffle mode changes.
type ModeChange struct {
	RepeatMode RepeatMode
	Shuffle    bool
}

func (ModeChange) EventName() string { return "playback.mode" }

// PositionChange is emitted when a seek occurs.
type PositionChange struct {
	Position time.Duration
}

func (PositionChange) EventName() string { return "playback.position" }

// ErrorEvent is emitted when an engine operation fails.
type ErrorEvent struct {
	Operation string // e.g. "start", "seek"
	Err       error
}

func (ErrorEvent) EventName() string { return "playback.error" }
