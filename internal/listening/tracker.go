// Package listening records how long each track was actually heard and
// feeds completed sessions to the history store and the scrobbler.
package listening

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/llehouerou/vibra/internal/bus"
	"github.com/llehouerou/vibra/internal/lastfm"
	"github.com/llehouerou/vibra/internal/playback"
	"github.com/llehouerou/vibra/internal/state"
)

// Last.fm scrobbling rules: a track counts as listened once half of it, or
// four minutes, has played, and tracks shorter than 30 seconds never count.
const (
	scrobbleCap      = 4 * time.Minute
	minTrackDuration = 30 * time.Second
)

// retryInterval is how often queued scrobbles are resubmitted.
const retryInterval = 5 * time.Minute

// HistoryStore persists completed listening sessions.
type HistoryStore interface {
	AddListen(r state.ListenRecord) error
}

// Scrobbler receives completed listens. May be nil when Last.fm is not
// configured.
type Scrobbler interface {
	NowPlaying(track lastfm.ScrobbleTrack)
	Submit(track lastfm.ScrobbleTrack)
	RetryPending() (succeeded, failed int)
}

// session is one in-progress listen of a single track.
type session struct {
	id          string
	track       playback.Track
	startedAt   time.Time
	accumulated time.Duration
	resumedAt   time.Time // zero while paused
}

// Tracker subscribes to playback events and turns them into listening
// sessions. One session spans a track from the moment it becomes current
// until the next track change or stop; pauses suspend accumulation but do
// not end the session.
type Tracker struct {
	store     HistoryStore
	scrobbler Scrobbler
	log       *log.Logger

	mu      sync.Mutex
	current *session
	playing bool

	sub  *bus.Subscription
	done chan struct{}
	wg   sync.WaitGroup

	now func() time.Time
}

// New creates a tracker. scrobbler may be nil.
func New(store HistoryStore, scrobbler Scrobbler, logger *log.Logger) *Tracker {
	return &Tracker{
		store:     store,
		scrobbler: scrobbler,
		log:       logger.With("component", "listening"),
		now:       time.Now,
	}
}

// Start subscribes to the event bus and begins tracking.
func (t *Tracker) Start(events *bus.Bus) {
	t.sub = events.Subscribe()
	t.done = make(chan struct{})

	t.wg.Add(1)
	go t.run()
}

// Stop flushes the in-progress session and stops tracking.
func (t *Tracker) Stop() {
	if t.done == nil {
		return
	}
	close(t.done)
	t.sub.Close()
	t.wg.Wait()
	t.done = nil

	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked()
}

func (t *Tracker) run() {
	defer t.wg.Done()

	var retry *time.Ticker
	var retryC <-chan time.Time
	if t.scrobbler != nil {
		retry = time.NewTicker(retryInterval)
		retryC = retry.C
		defer retry.Stop()
	}

	for {
		select {
		case ev, ok := <-t.sub.Events:
			if !ok {
				return
			}
			t.handle(ev)
		case <-retryC:
			t.scrobbler.RetryPending()
		case <-t.done:
			return
		}
	}
}

func (t *Tracker) handle(ev bus.Event) {
	switch ev := ev.(type) {
	case playback.TrackChange:
		t.onTrackChange(ev)
	case playback.StateChange:
		t.onStateChange(ev)
	}
}

func (t *Tracker) onTrackChange(ev playback.TrackChange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.flushLocked()

	if ev.Current == nil {
		t.current = nil
		return
	}

	now := t.now()
	t.current = &session{
		id:        uuid.NewString(),
		track:     *ev.Current,
		startedAt: now,
	}
	if t.playing {
		t.current.resumedAt = now
	}

	if t.scrobbler != nil {
		t.scrobbler.NowPlaying(lastfm.ScrobbleTrack{
			Artist:    ev.Current.Artist,
			Track:     ev.Current.Title,
			Duration:  ev.Current.Duration,
			Timestamp: now,
		})
	}
}

func (t *Tracker) onStateChange(ev playback.StateChange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	playing := ev.Current == playback.StatePlaying
	if playing == t.playing {
		return
	}
	t.playing = playing

	if t.current == nil {
		return
	}
	if playing {
		t.current.resumedAt = t.now()
	} else {
		t.pauseLocked()
	}
}

// pauseLocked folds the running interval into accumulated time.
func (t *Tracker) pauseLocked() {
	if t.current == nil || t.current.resumedAt.IsZero() {
		return
	}
	t.current.accumulated += t.now().Sub(t.current.resumedAt)
	t.current.resumedAt = time.Time{}
}

// flushLocked ends the current session, persisting it and scrobbling if it
// qualifies.
func (t *Tracker) flushLocked() {
	if t.current == nil {
		return
	}
	t.pauseLocked()
	s := t.current
	t.current = nil

	if s.accumulated <= 0 {
		return
	}

	if err := t.store.AddListen(state.ListenRecord{
		SessionID: s.id,
		TrackID:   s.track.ID,
		Title:     s.track.Title,
		Artist:    s.track.Artist,
		StartedAt: s.startedAt,
		Listened:  s.accumulated,
	}); err != nil {
		t.log.Error("saving listen failed", "track", s.track.Title, "err", err)
	}

	if t.scrobbler != nil && qualifies(s.track.Duration, s.accumulated) {
		t.scrobbler.Submit(lastfm.ScrobbleTrack{
			Artist:    s.track.Artist,
			Track:     s.track.Title,
			Duration:  s.track.Duration,
			Timestamp: s.startedAt,
		})
	}
}

func qualifies(duration, listened time.Duration) bool {
	if duration < minTrackDuration {
		return false
	}
	return listened >= duration/2 || listened >= scrobbleCap
}
