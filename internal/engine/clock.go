package engine

import (
	"sync"
	"time"
)

// Verify Clock implements Interface at compile time.
var _ Interface = (*Clock)(nil)

// Clock advances playback against wall time. It is the engine the daemon
// runs when no native audio backend is linked in: position moves in real
// time and Ended fires when the current item's duration elapses. Items
// with zero duration never end on their own.
type Clock struct {
	mu sync.Mutex

	items []Item
	index int

	playing bool
	base    time.Duration // position accumulated before `since`
	since   time.Time     // zero while paused

	timer *time.Timer

	itemCh  chan int
	endedCh chan struct{}
}

// NewClock creates a wall-clock engine.
func NewClock() *Clock {
	return &Clock{
		index:   -1,
		itemCh:  make(chan int, 4),
		endedCh: make(chan struct{}, 4),
	}
}

func (c *Clock) Start(items []Item, startIndex int, _ bool, _ Repeat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	c.items = items
	c.index = startIndex
	c.playing = true
	c.base = 0
	c.since = time.Now()
	c.armTimerLocked()
	return nil
}

func (c *Clock) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.playing {
		return
	}
	c.base = c.positionLocked()
	c.since = time.Time{}
	c.playing = false
	c.stopTimerLocked()
}

func (c *Clock) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.playing || c.index < 0 {
		return
	}
	c.playing = true
	c.since = time.Now()
	c.armTimerLocked()
}

func (c *Clock) SeekTo(position time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.index < 0 {
		return
	}
	c.stopTimerLocked()
	c.base = position
	if c.playing {
		c.since = time.Now()
		c.armTimerLocked()
	}
}

func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.items = nil
	c.index = -1
	c.playing = false
	c.base = 0
	c.since = time.Time{}
}

func (c *Clock) CurrentIndex() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.index
}

func (c *Clock) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.positionLocked()
}

func (c *Clock) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Clock) ItemChanged() <-chan int { return c.itemCh }

func (c *Clock) Ended() <-chan struct{} { return c.endedCh }

func (c *Clock) positionLocked() time.Duration {
	if c.since.IsZero() {
		return c.base
	}
	return c.base + time.Since(c.since)
}

// armTimerLocked schedules the end-of-item firing for the remainder of the
// current item.
func (c *Clock) armTimerLocked() {
	if c.index < 0 || c.index >= len(c.items) {
		return
	}
	duration := c.items[c.index].Duration
	if duration <= 0 {
		return
	}
	remaining := duration - c.positionLocked()
	if remaining < 0 {
		remaining = 0
	}
	c.timer = time.AfterFunc(remaining, c.onItemEnd)
}

func (c *Clock) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Clock) onItemEnd() {
	c.mu.Lock()
	if c.index < 0 {
		c.mu.Unlock()
		return
	}
	c.base = c.items[c.index].Duration
	c.since = time.Time{}
	c.playing = false
	c.timer = nil
	c.mu.Unlock()

	select {
	case c.endedCh <- struct{}{}:
	default:
	}
}
