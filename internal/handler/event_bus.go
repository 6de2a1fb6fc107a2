// internal/handler/event_bus.go
package handler

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"tascam-bridge/internal/model"
)

// Event is the published form of every decoded or synthesized protocol
// message: the raw frame plus its classification.
type Event struct {
	Message   string          `json:"message"` // raw protocol string
	Key       model.StatusKey `json:"key"`
	Value     string          `json:"value"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventBus fans every protocol message out to a dynamic set of listeners
// in arrival order. Listeners register and unregister at will; a slow
// listener gets events dropped rather than stalling the engine.
type EventBus struct {
	subscribers map[string]chan Event
	events      chan Event
	mutex       sync.RWMutex
	logger      *zap.Logger
	done        chan struct{}
	closeOnce   sync.Once
}

// NewEventBus creates a new event bus
func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subscribers: make(map[string]chan Event),
		events:      make(chan Event, 1000),
		logger:      logger.With(zap.String("component", "event-bus")),
		done:        make(chan struct{}),
	}
}

// Start runs the distribution loop until Close
func (eb *EventBus) Start() {
	for {
		select {
		case <-eb.done:
			return
		case event := <-eb.events:
			eb.distribute(event)
		}
	}
}

// Close stops distribution and disconnects all subscribers
func (eb *EventBus) Close() {
	eb.closeOnce.Do(func() {
		close(eb.done)

		eb.mutex.Lock()
		defer eb.mutex.Unlock()
		for id, ch := range eb.subscribers {
			close(ch)
			delete(eb.subscribers, id)
		}
	})
}

// Publish implements the engine's event sink boundary. Non-blocking: if the
// bus buffer is full the message is dropped and logged.
func (eb *EventBus) Publish(msg model.Message) {
	event := Event{
		Message:   msg.Raw,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
	}

	select {
	case eb.events <- event:
	default:
		eb.logger.Warn("Event bus full, dropping event",
			zap.String("message", event.Message),
		)
	}
}

// Subscribe registers a listener and returns its id and channel. The
// channel is closed on Unsubscribe or bus Close.
func (eb *EventBus) Subscribe() (string, <-chan Event) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	id := uuid.New().String()
	ch := make(chan Event, 100)
	eb.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a listener
func (eb *EventBus) Unsubscribe(id string) {
	eb.mutex.Lock()
	defer eb.mutex.Unlock()

	if ch, ok := eb.subscribers[id]; ok {
		delete(eb.subscribers, id)
		close(ch)
	}
}

// SubscriberCount returns the number of registered listeners
func (eb *EventBus) SubscriberCount() int {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()
	return len(eb.subscribers)
}

// distribute delivers an event to every subscriber, skipping slow ones
func (eb *EventBus) distribute(event Event) {
	eb.mutex.RLock()
	defer eb.mutex.RUnlock()

	for _, subscriber := range eb.subscribers {
		select {
		case subscriber <- event:
		default:
			// Subscriber is slow, skip
		}
	}
}
