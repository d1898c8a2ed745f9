package notify

import (
	"sync"

	"github.com/charmbracelet/log"

	"github.com/llehouerou/vibra/internal/bus"
	"github.com/llehouerou/vibra/internal/playback"
)

// likeAction is the key for the like button on playback notifications.
const likeAction = "like"

// Controls is the slice of the playback session the bridge drives when a
// notification action is clicked.
type Controls interface {
	ToggleLike()
}

// Bridge mirrors playback events into desktop notifications. It keeps a
// single notification alive, replacing it on track and state changes and
// closing it when playback stops. Clicks on the like button route back
// into the playback session.
type Bridge struct {
	notifier Notifier
	player   Controls
	log      *log.Logger

	mu     sync.Mutex
	lastID uint32
	track  *playback.Track
	paused bool
	liked  bool

	sub  *bus.Subscription
	done chan struct{}
	wg   sync.WaitGroup
}

// NewBridge creates a bridge using the given notifier and playback controls.
func NewBridge(notifier Notifier, player Controls, logger *log.Logger) *Bridge {
	return &Bridge{
		notifier: notifier,
		player:   player,
		log:      logger.With("component", "notify"),
	}
}

// Start subscribes to the event bus and begins mirroring events.
func (b *Bridge) Start(events *bus.Bus) {
	b.sub = events.Subscribe()
	b.done = make(chan struct{})

	b.wg.Add(1)
	go b.run()
}

// Stop dismisses the current notification and stops the bridge.
func (b *Bridge) Stop() {
	if b.done == nil {
		return
	}
	close(b.done)
	b.sub.Close()
	b.wg.Wait()
	b.done = nil

	b.dismiss()
}

func (b *Bridge) run() {
	defer b.wg.Done()

	for {
		select {
		case ev, ok := <-b.sub.Events:
			if !ok {
				return
			}
			b.handle(ev)
		case act := <-b.notifier.Actions():
			b.handleAction(act)
		case <-b.done:
			return
		}
	}
}

// handleAction routes a notification button click. Clicks on a stale
// notification (already replaced) are ignored.
func (b *Bridge) handleAction(act Action) {
	b.mu.Lock()
	current := act.ID != 0 && act.ID == b.lastID
	b.mu.Unlock()

	if act.Key == likeAction && current {
		b.player.ToggleLike()
	}
}

func (b *Bridge) handle(ev bus.Event) {
	switch ev := ev.(type) {
	case playback.TrackChange:
		b.mu.Lock()
		b.track = ev.Current
		if ev.Current != nil {
			b.liked = ev.Current.Liked
		}
		b.showLocked()
		b.mu.Unlock()

	case playback.StateChange:
		b.mu.Lock()
		switch ev.Current {
		case playback.StateStopped:
			b.track = nil
			b.mu.Unlock()
			b.dismiss()
			return
		case playback.StatePaused:
			b.paused = true
		case playback.StatePlaying:
			b.paused = false
		}
		b.showLocked()
		b.mu.Unlock()

	case playback.LikeChange:
		b.mu.Lock()
		if b.track != nil && b.track.ID == ev.Track.ID {
			b.liked = ev.Liked
			b.showLocked()
		}
		b.mu.Unlock()
	}
}

func (b *Bridge) showLocked() {
	if b.track == nil {
		return
	}

	title := b.track.Title
	if b.paused {
		title += " (paused)"
	}
	body := b.track.Artist
	likeLabel := "Like"
	if b.liked {
		body += " ♥"
		likeLabel = "Unlike"
	}

	id, err := b.notifier.Notify(Notification{
		Title:      title,
		Body:       body,
		Icon:       b.track.CoverURI,
		Timeout:    -1,
		ReplacesID: b.lastID,
		Urgency:    UrgencyLow,
		Actions:    []string{likeAction, likeLabel},
	})
	if err != nil {
		b.log.Debug("notification failed", "err", err)
		return
	}
	b.lastID = id
}

func (b *Bridge) dismiss() {
	b.mu.Lock()
	id := b.lastID
	b.lastID = 0
	b.mu.Unlock()

	if id != 0 {
		_ = b.notifier.Close(id)
	}
}
