// Package broadcast fans seat status changes out to live viewers of a
// schedule's seat map. Delivery is best effort: a subscriber whose buffer is
// full misses the event and is expected to re-fetch the seat status.
package broadcast

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"smarter-store/internal/data/entity"
	"smarter-store/pkg/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventType string

const (
	EventOccupied  EventType = "occupied"
	EventReleased  EventType = "released"
	EventConfirmed EventType = "confirmed"
)

// Event is one seat status delta for a schedule.
type Event struct {
	Type       EventType         `json:"type"`
	ScheduleID uuid.UUID         `json:"schedule_id"`
	Seats      []entity.Position `json:"seats"`
	At         time.Time         `json:"at"`
}

// Message is what a subscription yields: an Event or a keep-alive tick.
type Message struct {
	Event     *Event
	KeepAlive bool
}

// Subscription is one live viewer bound to a schedule.
type Subscription struct {
	id         uint64
	scheduleID uuid.UUID
	ch         chan Message
	done       chan struct{}
	once       sync.Once
	hub        *Hub
	dropped    atomic.Uint64
}

// C yields messages until the subscription is closed.
func (s *Subscription) C() <-chan Message { return s.ch }

// Done is closed once the subscription has been reaped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

func (s *Subscription) ScheduleID() uuid.UUID { return s.scheduleID }

// Dropped counts events this subscriber missed because its buffer was full.
func (s *Subscription) Dropped() uint64 { return s.dropped.Load() }

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

type Hub struct {
	mu     sync.Mutex
	subs   map[uuid.UUID]map[uint64]*Subscription
	nextID uint64
	closed bool

	buffer    int
	keepAlive time.Duration
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewHub(buffer int, keepAlive time.Duration, m *metrics.Metrics, log *zap.Logger) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:      make(map[uuid.UUID]map[uint64]*Subscription),
		buffer:    buffer,
		keepAlive: keepAlive,
		metrics:   m,
		log:       log.With(zap.String("component", "broadcast")),
	}
}

// Subscribe registers a subscription for scheduleID. It is reaped when ctx
// is done or Close is called.
func (h *Hub) Subscribe(ctx context.Context, scheduleID uuid.UUID) *Subscription {
	h.mu.Lock()
	h.nextID++
	sub := &Subscription{
		id:         h.nextID,
		scheduleID: scheduleID,
		ch:         make(chan Message, h.buffer),
		done:       make(chan struct{}),
		hub:        h,
	}
	if h.closed {
		h.mu.Unlock()
		sub.finish()
		return sub
	}
	if h.subs[scheduleID] == nil {
		h.subs[scheduleID] = make(map[uint64]*Subscription)
	}
	h.subs[scheduleID][sub.id] = sub
	h.mu.Unlock()

	h.metrics.Subscribers.Inc()
	h.log.Debug("Subscriber joined",
		zap.String("schedule_id", scheduleID.String()),
		zap.Uint64("subscription", sub.id),
	)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	set, ok := h.subs[sub.scheduleID]
	_, registered := set[sub.id]
	if ok && registered {
		delete(set, sub.id)
		if len(set) == 0 {
			delete(h.subs, sub.scheduleID)
		}
	}
	h.mu.Unlock()

	if registered {
		h.metrics.Subscribers.Dec()
		h.log.Debug("Subscriber left",
			zap.String("schedule_id", sub.scheduleID.String()),
			zap.Uint64("subscription", sub.id),
			zap.Uint64("dropped", sub.Dropped()),
		)
	}
	sub.finish()
}

// finish closes the channels once. Callers must have unregistered sub first so
// no publisher can still be sending to it.
func (s *Subscription) finish() {
	s.once.Do(func() {
		close(s.done)
		close(s.ch)
	})
}

// Publish delivers event to every subscriber of its schedule without
// blocking. Sends happen under the hub lock, so each subscriber sees events
// of a schedule in publish order.
func (h *Hub) Publish(ctx context.Context, event Event) {
	if len(event.Seats) == 0 {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.metrics.EventsPublished.WithLabelValues(string(event.Type)).Inc()

	for _, sub := range h.subs[event.ScheduleID] {
		select {
		case sub.ch <- Message{Event: &event}:
		default:
			sub.dropped.Add(1)
			h.metrics.EventsDropped.Inc()
		}
	}
}

// Run sends a keep-alive to every subscription on a fixed cadence until ctx
// is done, then closes all subscriptions.
func (h *Hub) Run(ctx context.Context) error {
	if h.keepAlive <= 0 {
		<-ctx.Done()
		h.Close()
		return nil
	}

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.Close()
			return nil
		case <-ticker.C:
			h.KeepAlive()
		}
	}
}

// KeepAlive queues a keep-alive on every subscription that has room.
func (h *Hub) KeepAlive() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, set := range h.subs {
		for _, sub := range set {
			select {
			case sub.ch <- Message{KeepAlive: true}:
			default:
			}
		}
	}
}

// Close reaps every subscription. Later subscriptions are closed immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*Subscription
	for _, set := range h.subs {
		for _, sub := range set {
			all = append(all, sub)
		}
	}
	h.mu.Unlock()

	for _, sub := range all {
		sub.Close()
	}
}

// SubscriberCount returns the number of live subscriptions for scheduleID.
func (h *Hub) SubscriberCount(scheduleID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[scheduleID])
}
