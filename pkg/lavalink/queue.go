package lavalink

import (
	"fmt"
	"math/rand"
	"sync"
)

// historyLimit caps the per-player history; the oldest entry is evicted once
// the cap is reached.
const historyLimit = 50

// Queue holds the pending tracks for one player plus a bounded history of
// finished ones. History is most-recent-first.
type Queue struct {
	mu      sync.RWMutex
	items   []*Track
	history []*Track
}

// NewQueue creates an empty queue
func NewQueue() *Queue {
	return &Queue{
		items:   make([]*Track, 0),
		history: make([]*Track, 0),
	}
}

// Add appends a track to the tail of the queue
func (q *Queue) Add(track *Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, track)
}

// AddFront inserts a track at the head of the queue
func (q *Queue) AddFront(track *Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append([]*Track{track}, q.items...)
}

// Next removes and returns the head of the queue, or nil when empty
func (q *Queue) Next() *Track {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}

	track := q.items[0]
	q.items = q.items[1:]
	return track
}

// Peek returns the head of the queue without removing it
func (q *Queue) Peek() *Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// List returns a copy of the pending tracks
func (q *Queue) List() []*Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Track, len(q.items))
	copy(result, q.items)
	return result
}

// Len returns the number of pending tracks
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.items)
}

// Remove removes the track at the specified index
func (q *Queue) Remove(index int) (*Track, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if index < 0 || index >= len(q.items) {
		return nil, fmt.Errorf("invalid queue index: %d", index)
	}

	removed := q.items[index]
	q.items = append(q.items[:index], q.items[index+1:]...)
	return removed, nil
}

// Clear drops every pending track
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = make([]*Track, 0)
}

// Shuffle permutes the pending tracks in place (Fisher-Yates)
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	rand.Shuffle(len(q.items), func(i, j int) {
		q.items[i], q.items[j] = q.items[j], q.items[i]
	})
}

// PushHistory inserts a finished track at the front of the history, evicting
// the oldest entry beyond the cap
func (q *Queue) PushHistory(track *Track) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.history = append([]*Track{track}, q.history...)
	if len(q.history) > historyLimit {
		q.history = q.history[:historyLimit]
	}
}

// History returns a copy of the history, most recent first
func (q *Queue) History() []*Track {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Track, len(q.history))
	copy(result, q.history)
	return result
}
