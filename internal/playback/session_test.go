package playback

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/vibra/internal/bus"
	"github.com/llehouerou/vibra/internal/engine"
)

// memStore is an in-memory SnapshotStore.
type memStore struct {
	mu      sync.Mutex
	snap    *Snapshot
	loadErr error
	cleared bool
}

func (m *memStore) SaveSnapshot(s Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := s
	cp.Tracks = append([]Track(nil), s.Tracks...)
	m.snap = &cp
	return nil
}

func (m *memStore) LoadSnapshot() (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.snap, nil
}

func (m *memStore) ClearSnapshot() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = nil
	m.cleared = true
	return nil
}

func setupSession(t *testing.T) (*Session, *engine.Mock, *memStore, *bus.Bus) {
	t.Helper()

	eng := engine.NewMock()
	store := &memStore{}
	events := bus.New()
	s := NewSession(eng, store, events, log.New(io.Discard))

	t.Cleanup(func() {
		s.Close()
		events.Close()
	})
	return s, eng, store, events
}

func threeTracks() []Track {
	return []Track{
		{ID: 1, Title: "A", MediaURI: "https://cdn/a.mp3", Duration: 3 * time.Minute},
		{ID: 2, Title: "B", MediaURI: "https://cdn/b.mp3", Duration: 4 * time.Minute},
		{ID: 3, Title: "C", MediaURI: "https://cdn/c.mp3", Duration: 5 * time.Minute},
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

func TestLoadQueue_InvalidIndex(t *testing.T) {
	s, _, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 3, false, RepeatNone); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("LoadQueue(index 3) = %v, want ErrInvalidIndex", err)
	}
	if err := s.LoadQueue(threeTracks(), -1, false, RepeatNone); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("LoadQueue(index -1) = %v, want ErrInvalidIndex", err)
	}
}

func TestLoadQueue_StartsPlayback(t *testing.T) {
	s, eng, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 1, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}

	if s.State() != StatePlaying {
		t.Errorf("State = %v, want Playing", s.State())
	}
	if s.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex = %d, want 1", s.CurrentIndex())
	}
	waitFor(t, func() bool { return eng.StartCalls() == 1 }, "engine start")
}

func TestLoadQueue_EmptyClearsAndStops(t *testing.T) {
	s, _, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 0, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	if err := s.LoadQueue(nil, 0, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue(empty) failed: %v", err)
	}

	if s.State() != StateStopped {
		t.Errorf("State = %v, want Stopped", s.State())
	}
	if s.CurrentIndex() != -1 {
		t.Errorf("CurrentIndex = %d, want -1", s.CurrentIndex())
	}
}

func TestPrevious_AtFirstWrapsToLast(t *testing.T) {
	s, _, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 0, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	s.Previous()

	if s.CurrentIndex() != 2 {
		t.Errorf("CurrentIndex = %d, want 2", s.CurrentIndex())
	}
	if s.State() != StatePlaying {
		t.Errorf("State = %v, want Playing", s.State())
	}
}

func TestNext_AtLastWithRepeatAllWraps(t *testing.T) {
	s, _, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 2, false, RepeatAll); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	s.Next()

	if s.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex = %d, want 0", s.CurrentIndex())
	}
	if s.State() != StatePlaying {
		t.Errorf("State = %v, want Playing", s.State())
	}
}

func TestNext_AtLastWithRepeatNoneStops(t *testing.T) {
	s, _, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 2, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	s.Next()

	if s.State() != StateStopped {
		t.Errorf("State = %v, want Stopped", s.State())
	}
	if s.CurrentIndex() != 2 {
		t.Errorf("CurrentIndex = %d, want 2 (unchanged)", s.CurrentIndex())
	}
}

func TestNext_ManualSkipIgnoresRepeatOne(t *testing.T) {
	s, _, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 0, false, RepeatOne); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	s.Next()

	if s.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex = %d, want 1", s.CurrentIndex())
	}
}

func TestItemEnded_Advances(t *testing.T) {
	s, eng, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 0, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	waitFor(t, func() bool { return eng.StartCalls() == 1 }, "initial start")

	eng.EmitEnded()

	waitFor(t, func() bool { return s.CurrentIndex() == 1 }, "advance to next track")
	waitFor(t, func() bool { return eng.StartCalls() == 2 }, "restart on next track")
}

func TestItemEnded_RepeatOneRestartsSameTrack(t *testing.T) {
	s, eng, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 1, false, RepeatOne); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	waitFor(t, func() bool { return eng.StartCalls() == 1 }, "initial start")

	eng.EmitEnded()

	waitFor(t, func() bool { return eng.StartCalls() == 2 }, "restart of same track")
	if s.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex = %d, want 1 (unchanged)", s.CurrentIndex())
	}
}

func TestItemEnded_AtLastWithRepeatNoneStops(t *testing.T) {
	s, eng, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 2, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	waitFor(t, func() bool { return eng.StartCalls() == 1 }, "initial start")

	eng.EmitEnded()

	waitFor(t, func() bool { return s.State() == StateStopped }, "stop at end of queue")
	if s.CurrentIndex() != 2 {
		t.Errorf("CurrentIndex = %d, want 2", s.CurrentIndex())
	}
}

func TestStartFailure_KeepsQueueAndIndex(t *testing.T) {
	s, eng, _, events := setupSession(t)

	sub := events.Subscribe()
	defer sub.Close()

	eng.SetStartErr(errors.New("stream unavailable"))
	if err := s.LoadQueue(threeTracks(), 1, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}

	waitFor(t, func() bool { return s.State() == StateStopped }, "stop after engine failure")
	if s.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex = %d, want 1", s.CurrentIndex())
	}
	if s.QueueLen() != 3 {
		t.Errorf("QueueLen = %d, want 3", s.QueueLen())
	}

	// An ErrorEvent must surface on the bus.
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events:
			if _, ok := ev.(ErrorEvent); ok {
				return
			}
		case <-deadline:
			t.Fatal("no ErrorEvent published")
		}
	}
}

func TestTeardownRestore_RoundTripWithoutAutoplay(t *testing.T) {
	store := &memStore{}
	events1 := bus.New()
	eng1 := engine.NewMock()
	s1 := NewSession(eng1, store, events1, log.New(io.Discard))

	if err := s1.LoadQueue(threeTracks(), 1, true, RepeatAll); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	eng1.SetPosition(90 * time.Second)

	if err := s1.Teardown(context.Background()); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}
	s1.Close()
	events1.Close()

	// Fresh process: new engine, same store.
	s2, eng2, _, _ := setupSessionWithStore(t, store)

	if err := s2.Restore(); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	if s2.State() != StateStopped {
		t.Errorf("State after restore = %v, want Stopped", s2.State())
	}
	if s2.CurrentIndex() != 1 {
		t.Errorf("CurrentIndex = %d, want 1", s2.CurrentIndex())
	}
	if s2.QueueLen() != 3 {
		t.Errorf("QueueLen = %d, want 3", s2.QueueLen())
	}
	if !s2.Shuffle() {
		t.Error("Shuffle not restored")
	}
	if s2.RepeatMode() != RepeatAll {
		t.Errorf("RepeatMode = %v, want RepeatAll", s2.RepeatMode())
	}
	if got := s2.Position(); got != 90*time.Second {
		t.Errorf("Position = %v, want 90s", got)
	}
	if eng2.StartCalls() != 0 {
		t.Errorf("engine started %d times after restore, want 0", eng2.StartCalls())
	}

	// Playback resumes only on explicit request, at the restored position.
	s2.PlayPause()
	waitFor(t, func() bool { return eng2.StartCalls() == 1 }, "start on PlayPause")
	waitFor(t, func() bool { return eng2.Position() == 90*time.Second }, "seek to restored position")
}

func setupSessionWithStore(t *testing.T, store *memStore) (*Session, *engine.Mock, *memStore, *bus.Bus) {
	t.Helper()

	eng := engine.NewMock()
	events := bus.New()
	s := NewSession(eng, store, events, log.New(io.Discard))

	t.Cleanup(func() {
		s.Close()
		events.Close()
	})
	return s, eng, store, events
}

func TestTeardown_AfterRestoreKeepsPosition(t *testing.T) {
	store := &memStore{snap: &Snapshot{
		Tracks:       threeTracks(),
		CurrentIndex: 1,
		Position:     90 * time.Second,
	}}
	s, _, _, _ := setupSessionWithStore(t, store)

	if err := s.Restore(); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}

	// Shut down again without ever playing: the restored position must not
	// be flattened to the idle engine's zero.
	if err := s.Teardown(context.Background()); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if store.snap == nil {
		t.Fatal("no snapshot persisted")
	}
	if got := store.snap.Position; got != 90*time.Second {
		t.Errorf("persisted Position = %v, want 90s", got)
	}
	if store.snap.CurrentIndex != 1 {
		t.Errorf("persisted CurrentIndex = %d, want 1", store.snap.CurrentIndex)
	}
}

func TestTrackChange_CarriesDetachedCopy(t *testing.T) {
	s, _, _, events := setupSession(t)

	sub := events.Subscribe()
	defer sub.Close()

	if err := s.LoadQueue(threeTracks(), 0, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}

	var delivered *Track
	deadline := time.After(2 * time.Second)
	for delivered == nil {
		select {
		case ev := <-sub.Events:
			if tc, ok := ev.(TrackChange); ok {
				delivered = tc.Current
			}
		case <-deadline:
			t.Fatal("no TrackChange published")
		}
	}

	s.ToggleLike()

	if delivered.Liked {
		t.Error("delivered track mutated by a later ToggleLike")
	}
	if cur := s.CurrentTrack(); !cur.Liked {
		t.Error("session track not liked after ToggleLike")
	}
}

func TestRestore_DiscardsInconsistentSnapshot(t *testing.T) {
	store := &memStore{snap: &Snapshot{
		Tracks:       threeTracks(),
		CurrentIndex: 7,
	}}
	s, _, _, _ := setupSessionWithStore(t, store)

	if err := s.Restore(); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !store.cleared {
		t.Error("inconsistent snapshot should be cleared")
	}
	if s.QueueLen() != 0 {
		t.Errorf("QueueLen = %d, want 0", s.QueueLen())
	}
}

func TestRestore_DiscardsUnreadableSnapshot(t *testing.T) {
	store := &memStore{loadErr: errors.New("corrupt")}
	s, _, _, _ := setupSessionWithStore(t, store)

	if err := s.Restore(); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if !store.cleared {
		t.Error("unreadable snapshot should be cleared")
	}
}

func TestTeardown_BoundedByContext(t *testing.T) {
	s, _, _, _ := setupSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// The store write itself is instant here, so either outcome is valid;
	// what matters is that a dead context cannot hang the call.
	done := make(chan struct{})
	go func() {
		_ = s.Teardown(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Teardown blocked on cancelled context")
	}
}

func TestToggleLike_PublishesEvent(t *testing.T) {
	s, _, _, events := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 0, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}

	sub := events.Subscribe()
	defer sub.Close()

	s.ToggleLike()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub.Events:
			if like, ok := ev.(LikeChange); ok {
				if !like.Liked {
					t.Error("Liked = false, want true")
				}
				if like.Track.ID != 1 {
					t.Errorf("Track.ID = %d, want 1", like.Track.ID)
				}
				return
			}
		case <-deadline:
			t.Fatal("no LikeChange published")
		}
	}
}

func TestSeek_ClampsFraction(t *testing.T) {
	s, eng, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 0, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}

	s.Seek(1.5)
	if got := eng.Position(); got != 3*time.Minute {
		t.Errorf("Position = %v, want full duration", got)
	}

	s.Seek(-0.5)
	if got := eng.Position(); got != 0 {
		t.Errorf("Position = %v, want 0", got)
	}
}

func TestEnqueue_OnEmptyQueueSetsCurrentWithoutPlaying(t *testing.T) {
	s, eng, _, _ := setupSession(t)

	s.Enqueue(threeTracks()[0])

	if s.CurrentIndex() != 0 {
		t.Errorf("CurrentIndex = %d, want 0", s.CurrentIndex())
	}
	if s.State() != StateStopped {
		t.Errorf("State = %v, want Stopped", s.State())
	}
	if eng.StartCalls() != 0 {
		t.Errorf("engine started %d times, want 0", eng.StartCalls())
	}
}

func TestStop_KeepsQueue(t *testing.T) {
	s, _, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 1, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}
	s.Stop()

	if s.State() != StateStopped {
		t.Errorf("State = %v, want Stopped", s.State())
	}
	if s.QueueLen() != 3 {
		t.Errorf("QueueLen = %d, want 3", s.QueueLen())
	}
}

func TestScenario_ThreeTrackWalk(t *testing.T) {
	s, _, _, _ := setupSession(t)

	if err := s.LoadQueue(threeTracks(), 0, false, RepeatNone); err != nil {
		t.Fatalf("LoadQueue failed: %v", err)
	}

	s.Next()
	if s.CurrentIndex() != 1 {
		t.Fatalf("after first Next: index = %d, want 1", s.CurrentIndex())
	}
	s.Next()
	if s.CurrentIndex() != 2 {
		t.Fatalf("after second Next: index = %d, want 2", s.CurrentIndex())
	}

	// Third Next hits the end with repeat none: stop in place.
	s.Next()
	if s.State() != StateStopped {
		t.Errorf("State = %v, want Stopped", s.State())
	}
	if s.CurrentIndex() != 2 {
		t.Errorf("index = %d, want 2", s.CurrentIndex())
	}

	// Resume and walk backwards, wrapping at the front.
	s.PlayPause()
	if s.State() != StatePlaying {
		t.Errorf("State = %v, want Playing", s.State())
	}
	s.Previous()
	if s.CurrentIndex() != 1 {
		t.Errorf("after Previous: index = %d, want 1", s.CurrentIndex())
	}
	s.Previous()
	s.Previous()
	if s.CurrentIndex() != 2 {
		t.Errorf("after wrap: index = %d, want 2", s.CurrentIndex())
	}
}
