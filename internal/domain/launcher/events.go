package launcher

import (
	"sync"

	"github.com/google/uuid"
)

// EventKind distinguishes the two public lifecycle events.
type EventKind string

const (
	EventStarted    EventKind = "started"
	EventTerminated EventKind = "terminated"
)

// Event is a lifecycle notification published to subscribers.
type Event struct {
	Kind  EventKind `json:"event"`
	AppID string    `json:"app_id"`
}

// subscriberBuffer bounds how far a slow subscriber may lag before events
// are dropped for it. Delivery is best-effort: a stuck consumer must not
// stall lifecycle processing.
const subscriberBuffer = 16

// broker fans lifecycle events out to registered subscribers. There is no
// replay: a subscriber only sees events published after it joined.
type broker struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

func newBroker() *broker {
	return &broker{
		subs: make(map[string]chan Event),
	}
}

// subscribe registers a new listener and returns its handle and channel.
func (b *broker) subscribe() (string, <-chan Event) {
	id := uuid.New().String()
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	return id, ch
}

// unsubscribe removes a listener and closes its channel.
func (b *broker) unsubscribe(id string) {
	b.mu.Lock()
	ch, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if ok {
		close(ch)
	}
}

// publish delivers an event to every current subscriber without blocking.
func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up, drop the event for it.
		}
	}
}

// close shuts down all subscriber channels.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
