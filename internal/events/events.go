package events

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventDocumentAdopted     = "document_adopted"
	EventDocumentPropagated  = "document_propagated"
	EventWriteCommitted      = "write_committed"
	EventWriteFailed         = "write_failed"
	EventWriteQueued         = "write_queued"
	EventCacheCleared        = "cache_cleared"
	EventConnectivityOnline  = "connectivity_online"
	EventConnectivityOffline = "connectivity_offline"
)

// SyncEventPayload describes what happened to the synchronized document.
type SyncEventPayload struct {
	Collection    string `json:"collection"`
	DocID         string `json:"doc_id"`
	TaskID        string `json:"task_id,omitempty"`
	LastUpdatedAt int64  `json:"last_updated_at,omitempty"`
	QueueLength   int    `json:"queue_length"`
	Error         string `json:"error,omitempty"`
}

// ConnectivityPayload describes a connectivity transition.
type ConnectivityPayload struct {
	Online bool      `json:"online"`
	At     time.Time `json:"at"`
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
	wildcard    []EventHandler
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

// SubscribeAll registers a handler invoked for every event type.
func (b *EventBus) SubscribeAll(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.wildcard = append(b.wildcard, handler)
}

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	handlers = append(handlers, b.wildcard...)
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
