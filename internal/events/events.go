package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Kind identifies an event.
type Kind string

const (
	KindQueueEnqueued  Kind = "queue.enqueued"
	KindQueueClaimed   Kind = "queue.claimed"
	KindQueueCompleted Kind = "queue.completed"
	KindQueueFailed    Kind = "queue.failed"
	KindScanCompleted  Kind = "scheduler.scan_completed"
	KindTaskTransition Kind = "task.transition"
)

// Event is one lifecycle notification. Fields not relevant to Kind are zero.
type Event struct {
	Kind        Kind      `json:"kind"`
	At          time.Time `json:"at"`
	ItemID      int64     `json:"itemId,omitempty"`
	RepoName    string    `json:"repoName,omitempty"`
	FeatureSlug string    `json:"featureSlug,omitempty"`
	TaskID      string    `json:"taskId,omitempty"`
	From        string    `json:"from,omitempty"`
	To          string    `json:"to,omitempty"`
	Count       int       `json:"count,omitempty"`
	Message     string    `json:"message,omitempty"`
}

// Publisher accepts events. Implementations must not block.
type Publisher interface {
	Publish(Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

// OrDiscard returns p, or Discard when p is nil.
func OrDiscard(p Publisher) Publisher {
	if p == nil {
		return Discard
	}
	return p
}

// Bus delivers each published event to every current subscriber. A
// subscriber whose buffer is full misses the event; Dropped counts misses.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]chan Event
	next    uint64
	buffer  int
	closed  bool
	dropped atomic.Int64
}

// NewBus creates a bus whose subscriber channels hold buffer events.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[uint64]chan Event), buffer: buffer}
}

// Publish stamps the event time when unset and fans it out.
func (b *Bus) Publish(evt Event) {
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
			b.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of events that is closed when ctx ends, the
// returned cancel function is called, or the bus is closed.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func()) {
	ch := make(chan Event, b.buffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() { b.remove(id) })
	}
	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}
	return ch, cancel
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Dropped reports how many deliveries were skipped because a subscriber was full.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Close closes every subscriber channel. Later publishes are ignored.
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
