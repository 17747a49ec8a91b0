/**
 * @description
 * In-process fan-out of settlement events. Each subscriber gets its own bounded
 * buffer; a slow subscriber loses events instead of stalling the settlement path.
 *
 * @dependencies
 * - log/slog: structured logging of drops.
 * - github.com/google/uuid: subscriber ids.
 * - internal/domain: event union and wire envelope.
 */

package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pamilerinsimon03/WemaTrust/internal/domain"
)

// DefaultBufferSize is used when a non-positive buffer size is configured.
const DefaultBufferSize = 256

// Sink is anything that accepts events. Implementations must not block.
type Sink interface {
	Emit(event domain.Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(event domain.Event)

func (f SinkFunc) Emit(event domain.Event) { f(event) }

// Bus assigns a sequence number to every event and delivers it to all matching subscribers.
type Bus struct {
	mu          sync.Mutex
	seq         uint64
	bufferSize  int
	subscribers map[string]*Subscription
	logger      *slog.Logger
	now         func() time.Time
}

// NewBus creates an event bus whose subscribers buffer up to bufferSize envelopes.
func NewBus(bufferSize int, logger *slog.Logger) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		bufferSize:  bufferSize,
		subscribers: make(map[string]*Subscription),
		logger:      logger,
		now:         time.Now,
	}
}

// Subscription is a live attachment to the bus.
type Subscription struct {
	ID      string
	bus     *Bus
	ch      chan domain.Envelope
	kinds   map[domain.EventKind]struct{}
	dropped atomic.Uint64
	closed  bool
}

// C returns the channel envelopes are delivered on. It is closed on Close.
func (s *Subscription) C() <-chan domain.Envelope { return s.ch }

// Dropped reports how many envelopes were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close detaches the subscription. Safe to call more than once.
func (s *Subscription) Close() { s.bus.Unsubscribe(s.ID) }

func (s *Subscription) wants(kind domain.EventKind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

// Subscribe attaches a new subscriber. With no kinds it receives every event.
func (b *Bus) Subscribe(kinds ...domain.EventKind) *Subscription {
	sub := &Subscription{
		ID:  uuid.NewString(),
		bus: b,
		ch:  make(chan domain.Envelope, b.bufferSize),
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[domain.EventKind]struct{}, len(kinds))
		for _, k := range kinds {
			sub.kinds[k] = struct{}{}
		}
	}

	b.mu.Lock()
	b.subscribers[sub.ID] = sub
	b.mu.Unlock()
	return sub
}

// Unsubscribe detaches and closes the subscriber with the given id.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subscribers[id]
	if !ok {
		return
	}
	delete(b.subscribers, id)
	if !sub.closed {
		sub.closed = true
		close(sub.ch)
	}
}

// Emit wraps the event in an envelope and offers it to every subscriber without blocking.
// Delivery happens under the bus lock so every subscriber observes emission order.
func (b *Bus) Emit(event domain.Event) {
	if event == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	env := domain.Envelope{
		Seq:        b.seq,
		Type:       event.Kind(),
		Data:       event,
		OccurredAt: b.now().UTC(),
	}
	for _, sub := range b.subscribers {
		if !sub.wants(env.Type) {
			continue
		}
		select {
		case sub.ch <- env:
		default:
			n := sub.dropped.Add(1)
			if n == 1 || n%100 == 0 {
				b.logger.Warn("event subscriber buffer full, dropping", "subscriber", sub.ID, "type", env.Type, "dropped", n)
			}
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Seq returns the sequence number of the last emitted event.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Close detaches every subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscribers {
		delete(b.subscribers, id)
		if !sub.closed {
			sub.closed = true
			close(sub.ch)
		}
	}
}
