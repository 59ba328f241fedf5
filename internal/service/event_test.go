package service

import (
	"testing"
	"time"
)

func TestEventBusPublishSubscribe(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	ch := bus.Subscribe(EventTypeCameraAdded)

	bus.Publish(Event{
		Type:   EventTypeCameraAdded,
		Source: "camera-manager",
		Data:   map[string]interface{}{"camera_id": "cam-1"},
	})

	select {
	case ev := <-ch:
		if ev.Type != EventTypeCameraAdded {
			t.Errorf("unexpected event type %s", ev.Type)
		}
		if ev.Data["camera_id"] != "cam-1" {
			t.Errorf("unexpected event data: %v", ev.Data)
		}
		if ev.Timestamp.IsZero() {
			t.Error("publish should stamp the event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestEventBusNonBlockingPublish(t *testing.T) {
	bus := NewEventBus(1)
	defer bus.Close()

	_ = bus.Subscribe(EventTypeDetectionResult)

	// Buffer holds one event; further publishes must not block.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Publish(Event{Type: EventTypeDetectionResult})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}

func TestEventBusTypeIsolation(t *testing.T) {
	bus := NewEventBus(4)
	defer bus.Close()

	entryCh := bus.Subscribe(EventTypeCrossingEntry)
	bus.Publish(Event{Type: EventTypeCrossingExit})

	select {
	case <-entryCh:
		t.Fatal("subscriber received an event of another type")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventBusClose(t *testing.T) {
	bus := NewEventBus(4)
	ch := bus.Subscribe(EventTypeCameraRemoved)

	bus.Close()
	bus.Close() // idempotent

	if _, ok := <-ch; ok {
		t.Error("subscriber channel should be closed")
	}

	// Publishing after close must not panic.
	bus.Publish(Event{Type: EventTypeCameraRemoved})
}
