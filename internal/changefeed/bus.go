package changefeed

import (
	"sync"

	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/logging"
	"github.com/nick-amizich/zmf-production-dashboard-sub003/pkg/metrics"
)

// DefaultSubscriberBuffer is the per-subscriber queue length
const DefaultSubscriberBuffer = 256

// Bus fans change events out to in-process subscribers. Each subscriber sees
// events in publish order. A subscriber whose queue is full is dropped.
type Bus struct {
	mu      sync.Mutex
	subs    map[Entity]map[uint64]*Subscription
	nextID  uint64
	buffer  int
	closed  bool
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// Subscription is one observer of a single entity channel
type Subscription struct {
	id     uint64
	entity Entity
	ch     chan ChangeEvent
	bus    *Bus
	once   sync.Once
}

// NewBus creates a bus; buffer <= 0 uses DefaultSubscriberBuffer
func NewBus(buffer int, m *metrics.Metrics, logger *logging.Logger) *Bus {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Bus{
		subs:    make(map[Entity]map[uint64]*Subscription),
		buffer:  buffer,
		metrics: m,
		logger:  logger.WithComponent("changefeed"),
	}
}

// Subscribe registers an observer for one entity channel
func (b *Bus) Subscribe(entity Entity) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		id:     b.nextID,
		entity: entity,
		ch:     make(chan ChangeEvent, b.buffer),
		bus:    b,
	}
	if b.closed {
		sub.closeChannel()
		return sub
	}
	if b.subs[entity] == nil {
		b.subs[entity] = make(map[uint64]*Subscription)
	}
	b.subs[entity][sub.id] = sub
	return sub
}

// Publish delivers the event to every subscriber of its entity without blocking
func (b *Bus) Publish(event ChangeEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for id, sub := range b.subs[event.Entity] {
		select {
		case sub.ch <- event:
		default:
			delete(b.subs[event.Entity], id)
			sub.closeChannel()
			if b.metrics != nil {
				b.metrics.RecordChangefeedDrop(string(event.Entity))
			}
			b.logger.Warn("Dropped slow changefeed subscriber", "entity", event.Entity, "subscriber", id)
		}
	}
}

// SubscriberCount returns the live subscribers of an entity
func (b *Bus) SubscriberCount(entity Entity) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[entity])
}

// Close ends every subscription
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.closeChannel()
		}
	}
	b.subs = make(map[Entity]map[uint64]*Subscription)
}

// Events is closed when the subscription ends or is dropped
func (s *Subscription) Events() <-chan ChangeEvent {
	return s.ch
}

// Entity returns the channel this subscription observes
func (s *Subscription) Entity() Entity {
	return s.entity
}

// Close unsubscribes
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if subs := s.bus.subs[s.entity]; subs != nil {
		delete(subs, s.id)
	}
	s.closeChannel()
}

func (s *Subscription) closeChannel() {
	s.once.Do(func() { close(s.ch) })
}
