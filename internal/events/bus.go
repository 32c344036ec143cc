package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event types published on the bus.
const (
	ConnectivityChanged = "connectivity-changed"
	SyncComplete        = "sync-complete"
	MirrorComplete      = "mirror-complete"
)

// Event is a notification delivered to bus subscribers.
type Event struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ConnectivityChange is the payload of ConnectivityChanged.
type ConnectivityChange struct {
	Online bool `json:"online"`
}

// SyncResult is the payload of SyncComplete.
type SyncResult struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// MirrorResult is the payload of MirrorComplete.
type MirrorResult struct {
	Fetched  int `json:"fetched"`
	Inserted int `json:"inserted"`
	Updated  int `json:"updated"`
}

type subscriber struct {
	ch    chan Event
	types map[string]bool
}

func (s *subscriber) wants(eventType string) bool {
	return len(s.types) == 0 || s.types[eventType]
}

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	logger *Logger
}

// NewBus creates an empty bus.
func NewBus(logger *Logger) *Bus {
	return &Bus{
		subs:   make(map[*subscriber]struct{}),
		logger: logger.WithField("component", "bus"),
	}
}

// Subscribe registers for the given event types, or all types when none are
// given. The returned function unsubscribes and closes the channel; it is
// safe to call more than once.
func (b *Bus) Subscribe(buffer int, types ...string) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}

	sub := &subscriber{
		ch:    make(chan Event, buffer),
		types: make(map[string]bool, len(types)),
	}
	for _, t := range types {
		sub.types[t] = true
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, sub)
			b.mu.Unlock()
			close(sub.ch)
		})
	}

	return sub.ch, unsubscribe
}

// Publish delivers an event of the given type to every interested
// subscriber.
func (b *Bus) Publish(eventType string, data interface{}) Event {
	event := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subs {
		if !sub.wants(eventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.WithField("event", eventType).Warn("Subscriber buffer full, event dropped")
		}
	}

	return event
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
