package service

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind identifies a session push event.
type EventKind string

const (
	EventKindSaved        EventKind = "saved"
	EventKindTimeWarning  EventKind = "time_warning"
	EventKindTimeCritical EventKind = "time_critical"
	EventKindViolation    EventKind = "violation_warning"
	EventKindAutoSubmit   EventKind = "auto_submit"
	EventKindSubmitted    EventKind = "submitted"
)

// SessionEvent is fanned out to every stream attached to an attempt.
type SessionEvent struct {
	Kind             EventKind `json:"kind"`
	QuestionID       string    `json:"question_id,omitempty"`
	Answered         int       `json:"answered,omitempty"`
	RemainingSeconds int       `json:"remaining_seconds,omitempty"`
	Signal           string    `json:"signal,omitempty"`
	Violations       int       `json:"violations,omitempty"`
	Limit            int       `json:"limit,omitempty"`
	Trigger          string    `json:"trigger,omitempty"`
}

// Broadcaster fans session events out to live subscribers, keyed by attempt.
// A slow subscriber drops events instead of blocking the controller's hooks.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]map[chan SessionEvent]struct{}
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[uuid.UUID]map[chan SessionEvent]struct{})}
}

// Subscribe attaches a buffered event channel to an attempt. The returned
// cancel func detaches and closes it.
func (b *Broadcaster) Subscribe(attemptID uuid.UUID) (<-chan SessionEvent, func()) {
	ch := make(chan SessionEvent, 16)

	b.mu.Lock()
	set, ok := b.subs[attemptID]
	if !ok {
		set = make(map[chan SessionEvent]struct{})
		b.subs[attemptID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[attemptID]; ok {
			if _, live := set[ch]; live {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, attemptID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber of the attempt.
func (b *Broadcaster) Publish(attemptID uuid.UUID, ev SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[attemptID] {
		select {
		case ch <- ev:
		default:
			// Subscriber buffer full, drop rather than stall the session.
		}
	}
}
