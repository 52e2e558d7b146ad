// Package events carries diagnostic events out of the snapshot readers.
//
// Readers record events through a Sink. The default sink drops everything;
// the server fans events out to the zap logger, the in-process Bus and,
// when configured, the JSONL AuditLogger.
package events

import (
	"sync"
	"time"
)

// EventType represents the type of diagnostic event.
type EventType string

const (
	EventTasksMissing   EventType = "tasks_missing"
	EventTasksMalformed EventType = "tasks_malformed"
	EventTasksReadError EventType = "tasks_read_error"
	EventLogMissing     EventType = "log_missing"
	EventLogRotated     EventType = "log_rotated"
	EventLogReadRetry   EventType = "log_read_retry"
	EventLogReadError   EventType = "log_read_error"
	EventFileChanged    EventType = "file_changed"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Path      string
	Err       error
	Data      map[string]interface{}
}

// Sink receives diagnostic events. Implementations must not block the caller.
type Sink interface {
	Record(Event)
}

// NopSink discards events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Record(e Event) { f(e) }

type teeSink []Sink

func (t teeSink) Record(e Event) {
	for _, s := range t {
		s.Record(e)
	}
}

// Tee returns a sink recording to every non-nil sink in order.
func Tee(sinks ...Sink) Sink {
	var out teeSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return NopSink{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Stamp fills in the timestamp of e if unset.
func Stamp(e Event) Event {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	return e
}

// Subscriber is a function that receives events.
type Subscriber func(Event)

// Bus is a non-blocking event bus using Publish/Subscribe pattern.
// Events are delivered asynchronously via buffered channels.
// If a subscriber's channel is full, the event is dropped silently.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
}

// NewBus creates a new event bus with the specified buffer size per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers a subscriber for a specific event type.
// The subscriber function is called asynchronously in a goroutine.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					_ = recover()
				}()
				fn(event)
			}()
		}
	}()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subscribers[eventType]
		for i, subCh := range subs {
			if subCh == ch {
				b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
				close(ch)
				break
			}
		}
	}
}

// Publish sends an event to all subscribers of its type without blocking.
// If a subscriber's channel is full, the event is dropped for that subscriber.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	event = Stamp(event)
	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Record implements Sink.
func (b *Bus) Record(e Event) {
	b.Publish(e)
}

// Close closes all subscriber channels and clears subscriptions.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
}
