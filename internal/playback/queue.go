package playback

// queue holds the ordered track list and the current position.
//
// Invariant: 0 <= currentIndex < len(tracks) whenever tracks is non-empty,
// and currentIndex == -1 iff tracks is empty. Navigation wraps in both
// directions; repeat-aware advance is a separate operation used only by the
// end-of-item path.
type queue struct {
	tracks       []Track
	currentIndex int
}

func newQueue() *queue {
	return &queue{currentIndex: -1}
}

// Current returns the current track, or nil if the queue is empty.
func (q *queue) Current() *Track {
	if q.currentIndex < 0 || q.currentIndex >= len(q.tracks) {
		return nil
	}
	return &q.tracks[q.currentIndex]
}

// CurrentIndex returns the index of the current track (-1 if none).
func (q *queue) CurrentIndex() int {
	return q.currentIndex
}

// Previous retreats with wraparound (index 0 wraps to the last track).
// Returns nil on an empty queue.
func (q *queue) Previous() *Track {
	if len(q.tracks) == 0 {
		return nil
	}
	q.currentIndex--
	if q.currentIndex < 0 {
		q.currentIndex = len(q.tracks) - 1
	}
	return q.Current()
}

// Advance moves forward according to the repeat mode at end of item.
// Returns the track to play next, or nil if playback should stop (end of
// queue with repeat none). With RepeatOne the index is unchanged.
func (q *queue) Advance(mode RepeatMode) *Track {
	if len(q.tracks) == 0 {
		return nil
	}
	switch {
	case mode == RepeatOne:
		return q.Current()
	case q.currentIndex < len(q.tracks)-1:
		q.currentIndex++
		return q.Current()
	case mode == RepeatAll:
		q.currentIndex = 0
		return q.Current()
	default:
		// End of queue, repeat none: stay on the last track.
		return nil
	}
}

// JumpTo sets the current index. Returns the track at that position, or nil
// if the index is out of bounds.
func (q *queue) JumpTo(index int) *Track {
	if index < 0 || index >= len(q.tracks) {
		return nil
	}
	q.currentIndex = index
	return q.Current()
}

// Add appends tracks without changing the current position.
func (q *queue) Add(tracks ...Track) {
	q.tracks = append(q.tracks, tracks...)
}

// Replace swaps the queue contents and moves to startIndex.
// Passing an empty list empties the queue.
func (q *queue) Replace(tracks []Track, startIndex int) {
	q.tracks = append([]Track(nil), tracks...)
	if len(q.tracks) == 0 {
		q.currentIndex = -1
		return
	}
	q.currentIndex = startIndex
}

// RemoveAt removes the track at index, adjusting the current position.
func (q *queue) RemoveAt(index int) bool {
	if index < 0 || index >= len(q.tracks) {
		return false
	}
	q.tracks = append(q.tracks[:index], q.tracks[index+1:]...)

	switch {
	case len(q.tracks) == 0:
		q.currentIndex = -1
	case q.currentIndex > index:
		q.currentIndex--
	case q.currentIndex == index && q.currentIndex >= len(q.tracks):
		q.currentIndex = len(q.tracks) - 1
	}
	return true
}

// Clear removes all tracks and resets the position.
func (q *queue) Clear() {
	q.tracks = nil
	q.currentIndex = -1
}

// Tracks returns a copy of all tracks in the queue.
func (q *queue) Tracks() []Track {
	return append([]Track(nil), q.tracks...)
}

// Len returns the number of tracks in the queue.
func (q *queue) Len() int {
	return len(q.tracks)
}

// IsEmpty returns true if the queue has no tracks.
func (q *queue) IsEmpty() bool {
	return len(q.tracks) == 0
}

// HasNext returns true if a Next call would move to a different track.
func (q *queue) HasNext() bool {
	return len(q.tracks) > 1
}
