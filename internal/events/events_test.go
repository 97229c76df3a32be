package events

import (
	"encoding/json"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	handler := func(event *Event) error {
		received = event
		callCount++
		return nil
	}

	bus.Subscribe(EventWriteCommitted, handler)

	payload := SyncEventPayload{Collection: "profiles", DocID: "u1", TaskID: "t1", LastUpdatedAt: 100}
	if err := bus.PublishJSON(EventWriteCommitted, payload); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}

	if received.Type != EventWriteCommitted {
		t.Errorf("expected type %s, got %s", EventWriteCommitted, received.Type)
	}
	if received.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded SyncEventPayload
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}

	if decoded != payload {
		t.Errorf("expected %+v, got %+v", payload, decoded)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2, all int

	bus.Subscribe("event", func(_ *Event) error { count1++; return nil })
	bus.Subscribe("event", func(_ *Event) error { count2++; return nil })
	bus.SubscribeAll(func(_ *Event) error { all++; return nil })

	bus.Publish(&Event{Type: "event"})
	bus.Publish(&Event{Type: "other"})

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
	if all != 2 {
		t.Errorf("expected wildcard handler to see 2 events, got %d", all)
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	bus.Publish(&Event{Type: "unknown"})
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}
}

func TestEventBusNilReceiver(t *testing.T) {
	var bus *EventBus
	if err := bus.PublishJSON(EventCacheCleared, SyncEventPayload{}); err != nil {
		t.Errorf("nil bus must be a no-op, got %v", err)
	}
}

func TestPublishJSONUnsupportedPayload(t *testing.T) {
	bus := NewEventBus()
	if err := bus.PublishJSON("bad", make(chan int)); err == nil {
		t.Errorf("expected marshal error")
	}
}
