package playback

import "time"

// Track represents one item in the play queue.
//
// Identity is the numeric ID. A track is immutable once queued except for
// the Liked flag, which ToggleLike flips on the current track.
type Track struct {
	ID       int64
	Title    string
	Artist   string
	MediaURI string
	CoverURI string
	Duration time.Duration
	Liked    bool
}

// cloneTrack returns a detached copy. Published events must never alias
// queue storage, which ToggleLike mutates in place.
func cloneTrack(t *Track) *Track {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
