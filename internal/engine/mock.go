package engine

import (
	"sync"
	"time"
)

// Mock is a test double for the media engine.
type Mock struct {
	mu sync.Mutex

	items    []Item
	index    int
	playing  bool
	position time.Duration

	startErr   error
	startCalls int

	itemCh  chan int
	endedCh chan struct{}
}

// NewMock creates a new mock engine.
func NewMock() *Mock {
	return &Mock{
		index:   -1,
		itemCh:  make(chan int, 4),
		endedCh: make(chan struct{}, 4),
	}
}

func (m *Mock) Start(items []Item, startIndex int, _ bool, _ Repeat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startCalls++
	if m.startErr != nil {
		return m.startErr
	}
	m.items = items
	m.index = startIndex
	m.playing = true
	m.position = 0
	return nil
}

func (m *Mock) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
}

func (m *Mock) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.items) > 0 {
		m.playing = true
	}
}

func (m *Mock) SeekTo(position time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = position
}

func (m *Mock) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.position = 0
	m.index = -1
	m.items = nil
}

func (m *Mock) CurrentIndex() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

func (m *Mock) Position() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.position
}

func (m *Mock) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing
}

func (m *Mock) ItemChanged() <-chan int { return m.itemCh }

func (m *Mock) Ended() <-chan struct{} { return m.endedCh }

// Test helpers

// SetStartErr makes subsequent Start calls fail with err.
func (m *Mock) SetStartErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

// StartCalls returns how many times Start was called.
func (m *Mock) StartCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startCalls
}

// SetPosition sets the reported playback position.
func (m *Mock) SetPosition(p time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.position = p
}

// EmitEnded simulates the current item finishing.
func (m *Mock) EmitEnded() {
	m.endedCh <- struct{}{}
}

// EmitItemChanged simulates the engine moving to another item.
func (m *Mock) EmitItemChanged(index int) {
	m.mu.Lock()
	m.index = index
	m.mu.Unlock()
	m.itemCh <- index
}
