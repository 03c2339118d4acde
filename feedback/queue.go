// Package feedback holds the coaching notes collected during a session.
package feedback

import (
	"math"
	"sync"
	"time"
)

// Origin says which collaborator produced an event.
type Origin string

const (
	Speech  Origin = "speech"
	Gesture Origin = "gesture"
	EEG     Origin = "eeg"
)

type Event struct {
	ID                 uint64    `json:"id"`
	Text               string    `json:"text"`
	StutteringDetected bool      `json:"stuttering_detected"`
	Timestamp          time.Time `json:"timestamp"`
	Origin             Origin    `json:"origin"`
}

// Seconds converts a server timestamp in fractional Unix seconds.
func Seconds(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Queue is append-only. IDs come from a counter that survives Reset, so
// an ID is never handed out twice by the same queue.
type Queue struct {
	mu     sync.RWMutex
	events []Event
	nextID uint64
}

func NewQueue() *Queue {
	return &Queue{}
}

// Push assigns the next ID and appends e. A zero timestamp is replaced
// with the arrival time.
func (q *Queue) Push(e Event) Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.nextID++
	e.ID = q.nextID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Origin == "" {
		e.Origin = Speech
	}
	q.events = append(q.events, e)
	return e
}

// Events returns a copy in arrival order.
func (q *Queue) Events() []Event {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]Event(nil), q.events...)
}

// Newest returns a copy ordered newest first.
func (q *Queue) Newest() []Event {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]Event, len(q.events))
	for i, e := range q.events {
		out[len(out)-1-i] = e
	}
	return out
}

// Since returns the events with an ID greater than id, in arrival order.
func (q *Queue) Since(id uint64) []Event {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for i, e := range q.events {
		if e.ID > id {
			return append([]Event(nil), q.events[i:]...)
		}
	}
	return nil
}

// Reset empties the queue for a new session.
func (q *Queue) Reset() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.events = nil
}
