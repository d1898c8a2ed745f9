package lastfm

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/vibra/internal/state"
)

// maxAttempts caps retries per pending scrobble before it is abandoned.
const maxAttempts = 10

// Store persists scrobbles that could not be submitted.
type Store interface {
	AddPendingScrobble(s state.PendingScrobble) error
	GetPendingScrobbles() ([]state.PendingScrobble, error)
	DeletePendingScrobble(id int64) error
	UpdatePendingScrobbleAttempt(id int64, errMsg string) error
}

// API is the slice of the Last.fm client the submitter uses.
type API interface {
	IsAuthenticated() bool
	Scrobble(track ScrobbleTrack) error
	UpdateNowPlaying(track ScrobbleTrack) error
}

// Submitter submits scrobbles and queues failures for retry.
type Submitter struct {
	client API
	store  Store
	log    *log.Logger
}

// NewSubmitter creates a submitter backed by the given client and store.
func NewSubmitter(client API, store Store, logger *log.Logger) *Submitter {
	return &Submitter{
		client: client,
		store:  store,
		log:    logger.With("component", "lastfm"),
	}
}

// Submit scrobbles a track, queueing it for retry on failure.
func (s *Submitter) Submit(track ScrobbleTrack) {
	if !s.client.IsAuthenticated() {
		return
	}

	if err := s.client.Scrobble(track); err != nil {
		s.log.Warn("scrobble failed, queueing for retry", "track", track.Track, "err", err)
		if err := s.store.AddPendingScrobble(state.PendingScrobble{
			Artist:       track.Artist,
			Title:        track.Track,
			DurationSecs: int(track.Duration.Seconds()),
			Timestamp:    track.Timestamp,
		}); err != nil {
			s.log.Error("queueing pending scrobble failed", "err", err)
		}
	}
}

// NowPlaying sends a best-effort now-playing update. Failures are logged
// and not retried.
func (s *Submitter) NowPlaying(track ScrobbleTrack) {
	if !s.client.IsAuthenticated() {
		return
	}
	if err := s.client.UpdateNowPlaying(track); err != nil {
		s.log.Debug("now playing update failed", "err", err)
	}
}

// RetryPending resubmits queued scrobbles, dropping those that succeed and
// recording the failure on those that don't. Returns how many succeeded and
// how many failed.
func (s *Submitter) RetryPending() (succeeded, failed int) {
	if !s.client.IsAuthenticated() {
		return 0, 0
	}

	pending, err := s.store.GetPendingScrobbles()
	if err != nil {
		s.log.Error("loading pending scrobbles failed", "err", err)
		return 0, 0
	}

	for i := range pending {
		p := &pending[i]
		if p.Attempts >= maxAttempts {
			continue
		}

		track := ScrobbleTrack{
			Artist:    p.Artist,
			Track:     p.Title,
			Duration:  time.Duration(p.DurationSecs) * time.Second,
			Timestamp: p.Timestamp,
		}

		if err := s.client.Scrobble(track); err != nil {
			failed++
			_ = s.store.UpdatePendingScrobbleAttempt(p.ID, err.Error())
		} else {
			succeeded++
			_ = s.store.DeletePendingScrobble(p.ID)
		}
	}

	if succeeded > 0 || failed > 0 {
		s.log.Debug("pending scrobble retry done", "succeeded", succeeded, "failed", failed)
	}
	return succeeded, failed
}
