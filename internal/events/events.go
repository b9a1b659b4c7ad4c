package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventSyncStarted       = "sync_started"
	EventSyncCompleted     = "sync_completed"
	EventOperationSynced   = "operation_synced"
	EventOperationFailed   = "operation_failed"
	EventSessionExpired    = "session_expired"
	EventQueueBoundReached = "queue_bound_reached"
)

// OperationEventPayload is the snapshot published when a queued mutation is
// confirmed or permanently rejected.
type OperationEventPayload struct {
	OperationID string `json:"operation_id"`
	Type        string `json:"type"`
	BusinessID  string `json:"business_id,omitempty"`
	StatusCode  int    `json:"status_code,omitempty"`
	Reason      string `json:"reason,omitempty"`
	Attempts    int    `json:"attempts"`
}

// SyncEventPayload summarizes a finished sync pass.
type SyncEventPayload struct {
	Synced    int        `json:"synced"`
	Retained  int        `json:"retained"`
	Failed    int        `json:"failed"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// QueueBoundPayload reports the pending queue exceeding its soft bound.
type QueueBoundPayload struct {
	PendingCount int `json:"pending_count"`
	MaxPending   int `json:"max_pending"`
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}
