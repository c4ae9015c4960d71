// Package events provides the fire-and-forget lifecycle event broadcaster.
package events

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	EventTaskStarted        EventType = "task_started"
	EventTaskCompleted      EventType = "task_completed"
	EventTaskFailed         EventType = "task_failed"
	EventTaskBlocked        EventType = "task_blocked"
	EventTaskRequeued       EventType = "task_requeued"
	EventAgentStatusChanged EventType = "agent_status_changed"
	EventBlockerCreated     EventType = "blocker_created"
	EventBlockerResolved    EventType = "blocker_resolved"
	EventBlockerExpired     EventType = "blocker_expired"
	EventFlashSaveCompleted EventType = "flash_save_completed"
	EventSessionSaved       EventType = "session_saved"
	EventSessionDone        EventType = "session_done"
)

// Event is one lifecycle notification.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// Payload carries event-specific fields.
	Payload map[string]any
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// Broadcaster publishes lifecycle events. Publish is fire-and-forget:
// failures are logged but never block the caller.
type Broadcaster interface {
	Publish(eventType EventType, payload map[string]any)
}

// NopBroadcaster discards all events.
type NopBroadcaster struct{}

// Publish discards the event.
func (NopBroadcaster) Publish(EventType, map[string]any) {}

// ChannelBroadcaster fans events out to an in-process channel. When the
// buffer is full the event is dropped and counted rather than blocking the
// execution loop.
type ChannelBroadcaster struct {
	ch      chan Event
	dropped atomic.Uint64

	mu     sync.Mutex
	closed bool
}

// NewChannelBroadcaster creates a broadcaster with the given buffer size.
func NewChannelBroadcaster(buffer int) *ChannelBroadcaster {
	if buffer <= 0 {
		buffer = 100
	}
	return &ChannelBroadcaster{ch: make(chan Event, buffer)}
}

// Publish enqueues the event, dropping it if the buffer is full.
func (b *ChannelBroadcaster) Publish(eventType EventType, payload map[string]any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	event := Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	select {
	case b.ch <- event:
	default:
		n := b.dropped.Add(1)
		log.Printf("[events] dropped %s event (total dropped: %d)", eventType, n)
	}
}

// Events returns the channel consumers read from.
func (b *ChannelBroadcaster) Events() <-chan Event {
	return b.ch
}

// DroppedCount returns the number of events dropped due to a full buffer.
func (b *ChannelBroadcaster) DroppedCount() uint64 {
	return b.dropped.Load()
}

// Close stops the broadcaster. Publish becomes a no-op.
func (b *ChannelBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.closed {
		b.closed = true
		close(b.ch)
	}
}
