package events

import (
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the relay
const (
	TypeNotificationReceived = "notification.received"
	TypeRecordStatusChanged  = "record.status_changed"
)

// Event is a small in-memory signal. Data is JSON-serializable.
type Event struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
	Data any       `json:"data"`
}

// NotificationReceived is the payload of TypeNotificationReceived
type NotificationReceived struct {
	RecordID  string `json:"record_id"`
	SourceApp string `json:"source_app"`
	Title     string `json:"title"`
}

// StatusChange is the payload of TypeRecordStatusChanged
type StatusChange struct {
	RecordID string  `json:"record_id"`
	Status   string  `json:"status"`
	Error    *string `json:"error"`
}

// Bus fans events out to subscribers. Publish never blocks; a subscriber
// whose buffer is full misses the event.
type Bus interface {
	Publish(e Event)
	Subscribe(buffer int) (ch <-chan Event, unsubscribe func())
}

func NewBus() Bus {
	return &memBus{subs: map[uint64]chan Event{}}
}

type memBus struct {
	mu   sync.RWMutex
	subs map[uint64]chan Event
	seq  atomic.Uint64
}

func (b *memBus) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

func (b *memBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			// Holding the write lock excludes in-progress Publish calls, so
			// the close never races a send.
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
	return ch, unsubscribe
}
