package service

import (
	"sync"
	"time"
)

// EventType identifies the kind of event published on the bus
type EventType string

const (
	EventTypeCameraAdded     EventType = "camera.added"
	EventTypeCameraRemoved   EventType = "camera.removed"
	EventTypeDetectionResult EventType = "detection.result"
	EventTypeCrossingEntry   EventType = "crossing.entry"
	EventTypeCrossingExit    EventType = "crossing.exit"
)

// Event is a message published on the event bus
type Event struct {
	Type      EventType
	Source    string
	Timestamp time.Time
	Data      map[string]interface{}
}

// EventBus is an in-process pub/sub bus. Publish never blocks; slow
// subscribers lose events rather than stalling producers.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	closed      bool
}

// NewEventBus creates a new event bus
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = 16
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a channel to receive events of the given type
func (b *EventBus) Subscribe(eventType EventType) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)
	return ch
}

// Publish delivers an event to all subscribers of its type without
// blocking. If a subscriber's buffer is full the event is dropped for
// that subscriber.
func (b *EventBus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes the bus and all subscriber channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, chans := range b.subscribers {
		for _, ch := range chans {
			close(ch)
		}
	}
	b.subscribers = make(map[EventType][]chan Event)
}
