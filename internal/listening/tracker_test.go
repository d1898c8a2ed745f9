package listening

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/vibra/internal/lastfm"
	"github.com/llehouerou/vibra/internal/playback"
	"github.com/llehouerou/vibra/internal/state"
)

type fakeStore struct {
	mu      sync.Mutex
	records []state.ListenRecord
}

func (f *fakeStore) AddListen(r state.ListenRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, r)
	return nil
}

func (f *fakeStore) all() []state.ListenRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]state.ListenRecord(nil), f.records...)
}

type fakeScrobbler struct {
	mu         sync.Mutex
	nowPlaying []lastfm.ScrobbleTrack
	submitted  []lastfm.ScrobbleTrack
}

func (f *fakeScrobbler) NowPlaying(t lastfm.ScrobbleTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nowPlaying = append(f.nowPlaying, t)
}

func (f *fakeScrobbler) Submit(t lastfm.ScrobbleTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, t)
}

func (f *fakeScrobbler) RetryPending() (int, int) { return 0, 0 }

func (f *fakeScrobbler) submittedTracks() []lastfm.ScrobbleTrack {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]lastfm.ScrobbleTrack(nil), f.submitted...)
}

func setupTracker(t *testing.T) (*Tracker, *fakeStore, *fakeScrobbler, *time.Time) {
	t.Helper()

	store := &fakeStore{}
	scrob := &fakeScrobbler{}
	tr := New(store, scrob, log.New(io.Discard))

	now := time.Unix(1_700_000_000, 0)
	tr.now = func() time.Time { return now }
	return tr, store, scrob, &now
}

func trackA() playback.Track {
	return playback.Track{ID: 1, Title: "A", Artist: "X", Duration: 3 * time.Minute}
}

func trackB() playback.Track {
	return playback.Track{ID: 2, Title: "B", Artist: "Y", Duration: 4 * time.Minute}
}

func TestTracker_RecordsListenOnTrackChange(t *testing.T) {
	tr, store, scrob, now := setupTracker(t)

	a, b := trackA(), trackB()
	tr.handle(playback.StateChange{Previous: playback.StateStopped, Current: playback.StatePlaying})
	tr.handle(playback.TrackChange{Current: &a, Index: 0})

	*now = now.Add(2 * time.Minute)
	tr.handle(playback.TrackChange{Previous: &a, Current: &b, PreviousIndex: 0, Index: 1})

	records := store.all()
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	r := records[0]
	if r.TrackID != 1 || r.Title != "A" {
		t.Errorf("record = %+v, want track A", r)
	}
	if r.Listened != 2*time.Minute {
		t.Errorf("Listened = %v, want 2m", r.Listened)
	}
	if r.SessionID == "" {
		t.Error("SessionID is empty")
	}

	// 2 of 3 minutes heard: over the halfway mark, so it scrobbles.
	if got := scrob.submittedTracks(); len(got) != 1 || got[0].Track != "A" {
		t.Errorf("submitted = %+v, want one scrobble of A", got)
	}
}

func TestTracker_PauseSuspendsAccumulation(t *testing.T) {
	tr, store, _, now := setupTracker(t)

	a, b := trackA(), trackB()
	tr.handle(playback.StateChange{Previous: playback.StateStopped, Current: playback.StatePlaying})
	tr.handle(playback.TrackChange{Current: &a, Index: 0})

	*now = now.Add(time.Minute)
	tr.handle(playback.StateChange{Previous: playback.StatePlaying, Current: playback.StatePaused})

	// A long pause adds nothing.
	*now = now.Add(30 * time.Minute)
	tr.handle(playback.StateChange{Previous: playback.StatePaused, Current: playback.StatePlaying})

	*now = now.Add(30 * time.Second)
	tr.handle(playback.TrackChange{Previous: &a, Current: &b, PreviousIndex: 0, Index: 1})

	records := store.all()
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if got := records[0].Listened; got != 90*time.Second {
		t.Errorf("Listened = %v, want 90s", got)
	}
}

func TestTracker_ShortListenIsNotScrobbled(t *testing.T) {
	tr, store, scrob, now := setupTracker(t)

	a, b := trackA(), trackB()
	tr.handle(playback.StateChange{Previous: playback.StateStopped, Current: playback.StatePlaying})
	tr.handle(playback.TrackChange{Current: &a, Index: 0})

	// 20 seconds of a 3 minute track: recorded but not scrobbled.
	*now = now.Add(20 * time.Second)
	tr.handle(playback.TrackChange{Previous: &a, Current: &b, PreviousIndex: 0, Index: 1})

	if len(store.all()) != 1 {
		t.Fatalf("listen not recorded")
	}
	if got := scrob.submittedTracks(); len(got) != 0 {
		t.Errorf("submitted = %+v, want none", got)
	}
}

func TestTracker_ZeroAccumulationIsDropped(t *testing.T) {
	tr, store, _, _ := setupTracker(t)

	a, b := trackA(), trackB()
	// Track becomes current while paused and is skipped immediately.
	tr.handle(playback.TrackChange{Current: &a, Index: 0})
	tr.handle(playback.TrackChange{Previous: &a, Current: &b, PreviousIndex: 0, Index: 1})

	if got := store.all(); len(got) != 0 {
		t.Errorf("records = %+v, want none", got)
	}
}

func TestTracker_NowPlayingSentOnTrackChange(t *testing.T) {
	tr, _, scrob, _ := setupTracker(t)

	a := trackA()
	tr.handle(playback.TrackChange{Current: &a, Index: 0})

	scrob.mu.Lock()
	defer scrob.mu.Unlock()
	if len(scrob.nowPlaying) != 1 || scrob.nowPlaying[0].Track != "A" {
		t.Errorf("nowPlaying = %+v, want one update for A", scrob.nowPlaying)
	}
}

func TestQualifies(t *testing.T) {
	cases := []struct {
		name     string
		duration time.Duration
		listened time.Duration
		want     bool
	}{
		{"half of track", 3 * time.Minute, 90 * time.Second, true},
		{"just under half", 3 * time.Minute, 89 * time.Second, false},
		{"four minute cap", 20 * time.Minute, 4 * time.Minute, true},
		{"under cap and half", 20 * time.Minute, 3 * time.Minute, false},
		{"too short a track", 20 * time.Second, 20 * time.Second, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := qualifies(tc.duration, tc.listened); got != tc.want {
				t.Errorf("qualifies(%v, %v) = %v, want %v", tc.duration, tc.listened, got, tc.want)
			}
		})
	}
}
