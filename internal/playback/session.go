// Package playback owns the play queue and transport state. It is the
// single source of truth for "what is playing and how".
package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/vibra/internal/bus"
	"github.com/llehouerou/vibra/internal/engine"
)

var (
	// ErrInvalidIndex is returned when a start index is out of bounds for a
	// non-empty track list.
	ErrInvalidIndex = errors.New("invalid queue index")
)

// Snapshot is the durable copy of session state written for process-death
// recovery.
type Snapshot struct {
	Tracks       []Track
	CurrentIndex int
	Shuffle      bool
	RepeatMode   RepeatMode
	Position     time.Duration
}

// SnapshotStore persists session snapshots across process restarts.
type SnapshotStore interface {
	SaveSnapshot(Snapshot) error
	LoadSnapshot() (*Snapshot, error)
	ClearSnapshot() error
}

// Session owns queue, index, shuffle/repeat and like state. All mutations
// are serialized behind one mutex so concurrent transport commands apply one
// at a time and never observe an inconsistent intermediate state.
type Session struct {
	mu sync.Mutex

	engine engine.Interface
	store  SnapshotStore
	events *bus.Bus
	log    *log.Logger

	queue   *queue
	state   State
	shuffle bool
	repeat  RepeatMode

	// pendingPosition is where playback resumes after a restore.
	pendingPosition time.Duration

	// generation invalidates engine starts superseded by a newer command.
	generation uint64

	done   chan struct{}
	closed bool
}

// NewSession creates a playback session and starts consuming engine events.
func NewSession(eng engine.Interface, store SnapshotStore, events *bus.Bus, logger *log.Logger) *Session {
	s := &Session{
		engine: eng,
		store:  store,
		events: events,
		log:    logger.With("component", "playback"),
		queue:  newQueue(),
		state:  StateStopped,
		done:   make(chan struct{}),
	}
	go s.run()
	return s
}

// run pumps engine events into session state.
func (s *Session) run() {
	for {
		select {
		case idx := <-s.engine.ItemChanged():
			s.onEngineItemChanged(idx)
		case <-s.engine.Ended():
			s.onItemEnded()
		case <-s.done:
			return
		}
	}
}

// Close stops the engine event pump. It does not stop playback.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}

// LoadQueue replaces the queue and starts the engine at startIndex.
// Returns ErrInvalidIndex if startIndex is out of bounds for a non-empty
// list. An empty list clears the queue and stops playback.
func (s *Session) LoadQueue(tracks []Track, startIndex int, shuffle bool, repeat RepeatMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tracks) > 0 && (startIndex < 0 || startIndex >= len(tracks)) {
		return ErrInvalidIndex
	}

	prev := s.queue.Current()
	prevIndex := s.queue.CurrentIndex()

	s.queue.Replace(tracks, startIndex)
	s.shuffle = shuffle
	s.repeat = repeat
	s.pendingPosition = 0

	s.events.Publish(QueueChange{Tracks: s.queue.Tracks(), Index: s.queue.CurrentIndex()})
	s.events.Publish(ModeChange{RepeatMode: s.repeat, Shuffle: s.shuffle})

	if s.queue.IsEmpty() {
		s.generation++
		s.engine.Stop()
		s.setStateLocked(StateStopped)
		return nil
	}

	s.events.Publish(TrackChange{
		Previous:      cloneTrack(prev),
		Current:       cloneTrack(s.queue.Current()),
		PreviousIndex: prevIndex,
		Index:         s.queue.CurrentIndex(),
	})
	s.startCurrentLocked(0)
	return nil
}

// PlayPause toggles between playing and paused. No-op on an empty queue.
// From stopped (after a restore or end of queue) it starts the engine at the
// current track, resuming at the restored position if one is pending.
func (s *Session) PlayPause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.IsEmpty() {
		return
	}

	switch s.state {
	case StatePlaying:
		s.engine.Pause()
		s.setStateLocked(StatePaused)
	case StatePaused:
		s.engine.Resume()
		s.setStateLocked(StatePlaying)
	case StateStopped:
		pos := s.pendingPosition
		s.pendingPosition = 0
		s.startCurrentLocked(pos)
	}
}

// Next skips to the next track. At the last index it wraps to 0 with repeat
// all, and stops playback (index unchanged) otherwise. Manual skip ignores
// repeat one. No-op on an empty queue.
func (s *Session) Next() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.IsEmpty() {
		return
	}

	mode := s.repeat
	if mode == RepeatOne {
		mode = RepeatNone
	}

	prev := s.queue.Current()
	prevIndex := s.queue.CurrentIndex()
	next := s.queue.Advance(mode)
	if next == nil {
		// End of queue: stop, stay on the last track.
		s.engine.Pause()
		s.setStateLocked(StateStopped)
		return
	}

	s.events.Publish(TrackChange{
		Previous:      cloneTrack(prev),
		Current:       cloneTrack(next),
		PreviousIndex: prevIndex,
		Index:         s.queue.CurrentIndex(),
	})
	s.startCurrentLocked(0)
}

// Previous moves to the previous track, wrapping to the last track at
// index 0. No-op on an empty queue.
func (s *Session) Previous() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.queue.IsEmpty() {
		return
	}

	prev := s.queue.Current()
	prevIndex := s.queue.CurrentIndex()
	cur := s.queue.Previous()

	s.events.Publish(TrackChange{
		Previous:      cloneTrack(prev),
		Current:       cloneTrack(cur),
		PreviousIndex: prevIndex,
		Index:         s.queue.CurrentIndex(),
	})
	s.startCurrentLocked(0)
}

// JumpTo moves to the given queue index and plays it.
func (s *Session) JumpTo(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.queue.Current()
	prevIndex := s.queue.CurrentIndex()
	cur := s.queue.JumpTo(index)
	if cur == nil {
		return ErrInvalidIndex
	}

	s.events.Publish(TrackChange{
		Previous:      cloneTrack(prev),
		Current:       cloneTrack(cur),
		PreviousIndex: prevIndex,
		Index:         index,
	})
	s.startCurrentLocked(0)
	return nil
}

// ToggleLike flips the liked flag on the current track and emits a
// LikeChange event. Persisting the like in the library is the event
// consumer's responsibility.
func (s *Session) ToggleLike() {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.queue.Current()
	if cur == nil {
		return
	}
	cur.Liked = !cur.Liked
	s.events.Publish(LikeChange{Track: *cur, Liked: cur.Liked})
}

// ToggleShuffle flips shuffle mode and returns the new value.
func (s *Session) ToggleShuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.shuffle = !s.shuffle
	s.events.Publish(ModeChange{RepeatMode: s.repeat, Shuffle: s.shuffle})
	return s.shuffle
}

// SetShuffle sets shuffle mode explicitly.
func (s *Session) SetShuffle(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shuffle == enabled {
		return
	}
	s.shuffle = enabled
	s.events.Publish(ModeChange{RepeatMode: s.repeat, Shuffle: s.shuffle})
}

// CycleRepeat advances the repeat mode None -> All -> One -> None and
// returns the new mode.
func (s *Session) CycleRepeat() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.repeat = s.repeat.Cycle()
	s.events.Publish(ModeChange{RepeatMode: s.repeat, Shuffle: s.shuffle})
	return s.repeat
}

// SetRepeatMode sets the repeat mode explicitly.
func (s *Session) SetRepeatMode(mode RepeatMode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repeat == mode {
		return
	}
	s.repeat = mode
	s.events.Publish(ModeChange{RepeatMode: s.repeat, Shuffle: s.shuffle})
}

// Seek maps a fractional position in [0,1] onto the current track.
// Out-of-range input is clamped.
func (s *Session) Seek(fraction float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.queue.Current()
	if cur == nil {
		return
	}
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	pos := time.Duration(fraction * float64(cur.Duration))
	s.engine.SeekTo(pos)
	s.events.Publish(PositionChange{Position: pos})
}

// SeekTo seeks to an absolute position within the current track.
func (s *Session) SeekTo(position time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.queue.Current()
	if cur == nil {
		return
	}
	if position < 0 {
		position = 0
	}
	if cur.Duration > 0 && position > cur.Duration {
		position = cur.Duration
	}
	s.engine.SeekTo(position)
	s.events.Publish(PositionChange{Position: position})
}

// Enqueue appends a track without interrupting playback.
func (s *Session) Enqueue(t Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasEmpty := s.queue.IsEmpty()
	s.queue.Add(t)
	if wasEmpty {
		s.queue.JumpTo(0)
	}
	s.events.Publish(QueueChange{Tracks: s.queue.Tracks(), Index: s.queue.CurrentIndex()})
}

// RemoveAt removes the track at the given index.
func (s *Session) RemoveAt(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.queue.RemoveAt(index) {
		return false
	}
	s.events.Publish(QueueChange{Tracks: s.queue.Tracks(), Index: s.queue.CurrentIndex()})
	return true
}

// ClearQueue removes all tracks and stops playback.
func (s *Session) ClearQueue() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.queue.Clear()
	s.engine.Stop()
	s.setStateLocked(StateStopped)
	s.events.Publish(QueueChange{Tracks: nil, Index: -1})
}

// Stop halts playback, leaving the queue in place. This is the path the
// logout cascade uses.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.generation++
	s.engine.Stop()
	s.setStateLocked(StateStopped)
}

// onItemEnded advances according to the repeat mode when the engine reports
// the current item finished.
func (s *Session) onItemEnded() {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.queue.Current()
	prevIndex := s.queue.CurrentIndex()
	next := s.queue.Advance(s.repeat)
	if next == nil {
		// End of queue, repeat none: stop and leave state at the end.
		s.setStateLocked(StateStopped)
		return
	}

	if s.queue.CurrentIndex() != prevIndex {
		s.events.Publish(TrackChange{
			Previous:      cloneTrack(prev),
			Current:       cloneTrack(next),
			PreviousIndex: prevIndex,
			Index:         s.queue.CurrentIndex(),
		})
	} else {
		// Repeat one: same track restarts from the top.
		s.events.Publish(PositionChange{Position: 0})
	}
	s.startCurrentLocked(0)
}

// onEngineItemChanged syncs the queue position when the engine advanced on
// its own (e.g. gapless transition).
func (s *Session) onEngineItemChanged(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index == s.queue.CurrentIndex() {
		return
	}
	prev := s.queue.Current()
	prevIndex := s.queue.CurrentIndex()
	cur := s.queue.JumpTo(index)
	if cur == nil {
		return
	}
	s.events.Publish(TrackChange{
		Previous:      cloneTrack(prev),
		Current:       cloneTrack(cur),
		PreviousIndex: prevIndex,
		Index:         index,
	})
}

// Teardown persists a snapshot of the session, bounded by ctx. Best effort:
// on timeout the caller proceeds with process exit and the previous snapshot
// stays intact.
func (s *Session) Teardown(ctx context.Context) error {
	s.mu.Lock()
	pos := s.engine.Position()
	if s.state == StateStopped && s.pendingPosition > 0 {
		// A restored position the engine never saw must survive the next
		// restart too.
		pos = s.pendingPosition
	}
	snap := Snapshot{
		Tracks:       s.queue.Tracks(),
		CurrentIndex: s.queue.CurrentIndex(),
		Shuffle:      s.shuffle,
		RepeatMode:   s.repeat,
		Position:     pos,
	}
	s.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		done <- s.store.SaveSnapshot(snap)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.log.Warn("snapshot save timed out on teardown")
		return ctx.Err()
	}
}

// Restore reloads the last persisted queue, track and position without
// starting playback. Playback resumes only on an explicit PlayPause.
// A snapshot that fails to load or is internally inconsistent is discarded.
func (s *Session) Restore() error {
	snap, err := s.store.LoadSnapshot()
	if err != nil {
		s.log.Warn("discarding unreadable session snapshot", "err", err)
		return s.store.ClearSnapshot()
	}
	if snap == nil || len(snap.Tracks) == 0 {
		return nil
	}
	if snap.CurrentIndex < 0 || snap.CurrentIndex >= len(snap.Tracks) {
		s.log.Warn("discarding inconsistent session snapshot",
			"index", snap.CurrentIndex, "tracks", len(snap.Tracks))
		return s.store.ClearSnapshot()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue.Replace(snap.Tracks, snap.CurrentIndex)
	s.shuffle = snap.Shuffle
	s.repeat = snap.RepeatMode
	s.pendingPosition = snap.Position
	s.state = StateStopped

	s.events.Publish(QueueChange{Tracks: s.queue.Tracks(), Index: s.queue.CurrentIndex()})
	s.events.Publish(ModeChange{RepeatMode: s.repeat, Shuffle: s.shuffle})
	return nil
}

// startCurrentLocked starts the engine at the current queue position.
// The engine call runs off the command path; a generation counter discards
// results of starts superseded by a newer command.
func (s *Session) startCurrentLocked(position time.Duration) {
	s.generation++
	gen := s.generation
	items := make([]engine.Item, s.queue.Len())
	for i, t := range s.queue.Tracks() {
		items[i] = engine.Item{
			ID:       t.ID,
			URI:      t.MediaURI,
			Title:    t.Title,
			Artist:   t.Artist,
			Duration: t.Duration,
		}
	}
	index := s.queue.CurrentIndex()
	shuffle := s.shuffle
	repeat := engine.Repeat(s.repeat)

	s.setStateLocked(StatePlaying)

	go func() {
		err := s.engine.Start(items, index, shuffle, repeat)

		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation {
			// Superseded by a newer command; discard.
			return
		}
		if err != nil {
			// Queue and index stay as requested so the user can retry.
			s.setStateLocked(StateStopped)
			s.log.Error("engine start failed", "err", err)
			s.events.Publish(ErrorEvent{Operation: "start", Err: err})
			return
		}
		if position > 0 {
			s.engine.SeekTo(position)
		}
	}()
}

func (s *Session) setStateLocked(next State) {
	if s.state == next {
		return
	}
	prev := s.state
	s.state = next
	s.events.Publish(StateChange{Previous: prev, Current: next})
}

// State queries

// State returns the current playback state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsPlaying returns true while playback is running.
func (s *Session) IsPlaying() bool {
	return s.State() == StatePlaying
}

// Position returns the current playback position.
func (s *Session) Position() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped && s.pendingPosition > 0 {
		return s.pendingPosition
	}
	return s.engine.Position()
}

// CurrentTrack returns a copy of the current track, or nil if none.
func (s *Session) CurrentTrack() *Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.queue.Current()
	if cur == nil {
		return nil
	}
	t := *cur
	return &t
}

// CurrentIndex returns the current queue index (-1 if none).
func (s *Session) CurrentIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.CurrentIndex()
}

// Tracks returns a copy of the queue contents.
func (s *Session) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Tracks()
}

// Shuffle returns whether shuffle is enabled.
func (s *Session) Shuffle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuffle
}

// RepeatMode returns the current repeat mode.
func (s *Session) RepeatMode() RepeatMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.repeat
}

// QueueLen returns the number of queued tracks.
func (s *Session) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// QueueIsEmpty returns true if the queue has no tracks.
func (s *Session) QueueIsEmpty() bool {
	return s.QueueLen() == 0
}

// QueueHasNext returns true if skipping would reach a different track.
func (s *Session) QueueHasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.HasNext()
}
