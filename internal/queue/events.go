package queue

import "sync"

// EventType identifies what changed.
type EventType int

const (
	EventQueueChanged    EventType = iota // Tracks added, removed or reordered
	EventTrackChanged                     // A different track was loaded
	EventPlaybackChanged                  // Paused, resumed, stopped, seeked or volume changed
)

// String returns a human-readable representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventQueueChanged:
		return "queue_changed"
	case EventTrackChanged:
		return "track_changed"
	case EventPlaybackChanged:
		return "playback_changed"
	default:
		return "unknown"
	}
}

// Event is published on the Bus after a queue mutation.
type Event struct {
	Type     EventType
	Track    *Track // Current track at publish time, nil when the queue is empty
	Position int
	Len      int
}

const subscriberBuffer = 16

// Bus fans events out to subscribers. Publishing never blocks: a
// subscriber that falls behind misses events.
type Bus struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe returns a channel of events and a function that unsubscribes
// and closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber with room in its buffer.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
