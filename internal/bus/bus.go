// Package bus is the in-process publish/subscribe queue for market
// events. Delivery is best-effort: the queue is bounded and emission
// never blocks — when the queue is full the event is dropped so that the
// simulation can never stall waiting on event delivery.
package bus

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/efreitasn/tradesandbox/internal/domain"
)

// DefaultQueueSize bounds the event queue when no capacity is given.
const DefaultQueueSize = 1024

// Handler consumes a dispatched event. Handlers run synchronously during
// Process; a handler that panics is recovered and logged without
// affecting other handlers or the remainder of the queue.
type Handler func(domain.Event)

// Bus is a bounded, drain-on-demand event queue with per-type
// subscribers. Emit and Process are designed for the sandbox's
// single-driver tick loop: Process is called once per tick and drains
// everything queued up to that point.
type Bus struct {
	mu          sync.RWMutex
	queue       chan domain.Event
	subscribers map[domain.EventType]map[string]Handler
	logger      *slog.Logger
}

// New creates a Bus with the given queue capacity. A capacity of zero or
// less falls back to DefaultQueueSize.
func New(capacity int, logger *slog.Logger) *Bus {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		queue:       make(chan domain.Event, capacity),
		subscribers: make(map[domain.EventType]map[string]Handler),
		logger:      logger,
	}
}

// Emit enqueues an event without blocking. If the queue is full the event
// is silently dropped; this is the documented backpressure policy.
func (b *Bus) Emit(e domain.Event) {
	select {
	case b.queue <- e:
	default:
		b.logger.Debug("event queue full, dropping event", slog.String("type", string(e.Type)))
	}
}

// Subscribe registers a handler for an event type and returns an opaque
// subscription id for later removal. Multiple subscribers per type are
// supported; dispatch order among them is unspecified.
func (b *Bus) Subscribe(eventType domain.EventType, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[eventType]
	if !ok {
		subs = make(map[string]Handler)
		b.subscribers[eventType] = subs
	}
	id := uuid.New().String()
	subs[id] = handler
	return id
}

// Unsubscribe removes a handler by subscription id, searching all event
// types. It returns whether the subscription was found.
func (b *Bus) Unsubscribe(subscriptionID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, subs := range b.subscribers {
		if _, ok := subs[subscriptionID]; ok {
			delete(subs, subscriptionID)
			return true
		}
	}
	return false
}

// Process drains every event queued as of the call, dispatching each to
// all current subscribers of its type. It is invoked once per simulation
// tick from the single simulation goroutine and is not re-entrant.
func (b *Bus) Process() {
	for {
		select {
		case e := <-b.queue:
			b.dispatch(e)
		default:
			return
		}
	}
}

func (b *Bus) dispatch(e domain.Event) {
	b.mu.RLock()
	subs := b.subscribers[e.Type]
	handlers := make([]Handler, 0, len(subs))
	for _, h := range subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.safeCall(h, e)
	}
}

// safeCall isolates subscriber faults: one panicking handler must not
// block other handlers or the remainder of the queue.
func (b *Bus) safeCall(h Handler, e domain.Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panic",
				slog.String("type", string(e.Type)),
				slog.Any("panic", r))
		}
	}()
	h(e)
}

// Reset clears all subscribers and drains the queue without dispatching.
func (b *Bus) Reset() {
	b.mu.Lock()
	b.subscribers = make(map[domain.EventType]map[string]Handler)
	b.mu.Unlock()

	for {
		select {
		case <-b.queue:
		default:
			return
		}
	}
}

// Pending returns the number of queued, undispatched events.
func (b *Bus) Pending() int {
	return len(b.queue)
}
