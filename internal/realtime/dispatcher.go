// Package realtime fans out change events to subscribers of a topic.
package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

const (
	// EventMessageInserted announces a newly stored chat message.
	EventMessageInserted = "message-inserted"
	// EventHeartbeat keeps idle streams open.
	EventHeartbeat = "heartbeat"

	defaultBufferSize = 16
)

// Event is one change notification for a topic (a conversation id).
type Event struct {
	Topic     string          `json:"topic"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Origin    string          `json:"origin,omitempty"`
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(event Event)
}

// Subscriber opens topic streams.
type Subscriber interface {
	Subscribe(ctx context.Context, topic string) (<-chan Event, func())
}

// Dispatcher delivers events to in-process subscribers. Slow subscribers drop events
// instead of blocking the publisher.
type Dispatcher struct {
	mu          sync.RWMutex
	subscribers map[string]map[int64]*subscriber
	nextID      int64
	bufferSize  int
}

type subscriber struct {
	id     int64
	stream chan Event
	done   chan struct{}
	once   sync.Once
}

// NewDispatcher constructs an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		subscribers: make(map[string]map[int64]*subscriber),
		bufferSize:  defaultBufferSize,
	}
}

// Subscribe registers a stream for topic. The stream is closed by the returned cleanup
// function or when ctx ends, whichever comes first.
func (d *Dispatcher) Subscribe(ctx context.Context, topic string) (<-chan Event, func()) {
	if topic == "" {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}
	sub := &subscriber{
		id:     d.nextSequence(),
		stream: make(chan Event, d.bufferSize),
		done:   make(chan struct{}),
	}
	d.register(topic, sub)
	cleanup := func() {
		d.unregister(topic, sub)
	}
	go func() {
		select {
		case <-ctx.Done():
			cleanup()
		case <-sub.done:
		}
	}()
	return sub.stream, cleanup
}

// Publish delivers event to the current subscribers of its topic.
func (d *Dispatcher) Publish(event Event) {
	if event.Topic == "" || event.Type == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, sub := range d.subscribers[event.Topic] {
		select {
		case sub.stream <- event:
		default:
		}
	}
}

// SubscriberCount reports the number of open streams for topic.
func (d *Dispatcher) SubscriberCount(topic string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[topic])
}

func (d *Dispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Dispatcher) register(topic string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[topic]; !ok {
		d.subscribers[topic] = make(map[int64]*subscriber)
	}
	d.subscribers[topic][sub.id] = sub
}

// unregister removes sub and closes its stream. Publish holds the read lock while
// sending, so closing under the write lock never races a send.
func (d *Dispatcher) unregister(topic string, sub *subscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[topic]
	if subscribers != nil {
		delete(subscribers, sub.id)
		if len(subscribers) == 0 {
			delete(d.subscribers, topic)
		}
	}
	sub.once.Do(func() {
		close(sub.stream)
		close(sub.done)
	})
}
