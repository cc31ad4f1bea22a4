package storage

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNilHandler is returned when a consumer tries to subscribe a
// nil handler to a change feed.
var ErrNilHandler = errors.New("handler must not be nil")

type event struct {
	area    string
	changes map[string]Change
}

// Hub implements the subscriber side of the backend contract's
// change feed. Drivers call Publish after each committed write; Hub
// takes care of subscriber ordering, cancellation and asynchronous
// delivery. Events are delivered on a single background goroutine in
// publish order, to subscribers in subscription order.
type Hub struct {
	logger *zap.Logger

	mu          sync.Mutex
	order       []string
	subscribers map[string]EventHandler
	closed      bool

	events chan event
	done   chan struct{}
}

// NewHub creates a Hub and starts its delivery goroutine.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.L()
	}

	hub := &Hub{
		logger:      logger,
		subscribers: make(map[string]EventHandler),
		events:      make(chan event, 64),
		done:        make(chan struct{}),
	}

	go hub.deliver()

	return hub
}

// Subscribe registers a handler with this hub. It returns ErrClosed
// if the hub was already closed.
func (hub *Hub) Subscribe(handler EventHandler) (Subscription, error) {
	if handler == nil {
		return nil, ErrNilHandler
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if hub.closed {
		return nil, ErrClosed
	}

	id := uuid.New().String()
	hub.order = append(hub.order, id)
	hub.subscribers[id] = handler

	return &hubSubscription{hub: hub, id: id}, nil
}

// Publish enqueues one event for delivery. It must be called after
// the write it describes has committed. Publish never blocks on
// subscriber callbacks, only on the delivery queue itself.
func (hub *Hub) Publish(area string, changes map[string]Change) {
	if len(changes) == 0 {
		return
	}

	select {
	case hub.events <- event{area: area, changes: changes}:
	case <-hub.done:
	}
}

// Close stops delivery and drops all subscribers. Events queued but
// not yet delivered are discarded.
func (hub *Hub) Close() {
	hub.mu.Lock()

	if hub.closed {
		hub.mu.Unlock()
		return
	}

	hub.closed = true
	hub.order = nil
	hub.subscribers = make(map[string]EventHandler)

	hub.mu.Unlock()

	close(hub.done)
}

func (hub *Hub) deliver() {
	for {
		select {
		case <-hub.done:
			return
		case e := <-hub.events:
			hub.dispatch(e)
		}
	}
}

func (hub *Hub) dispatch(e event) {
	hub.mu.Lock()

	handlers := make([]EventHandler, 0, len(hub.order))

	for _, id := range hub.order {
		handlers = append(handlers, hub.subscribers[id])
	}

	hub.mu.Unlock()

	for _, handler := range handlers {
		hub.invoke(handler, e)
	}
}

// invoke isolates one handler call so that a panicking subscriber
// cannot take down the delivery goroutine or starve its siblings.
func (hub *Hub) invoke(handler EventHandler, e event) {
	defer func() {
		if r := recover(); r != nil {
			hub.logger.Error("event handler panicked", zap.String("area", e.area), zap.Any("panic", r))
		}
	}()

	handler(e.area, e.changes)
}

var _ Subscription = (*hubSubscription)(nil)

type hubSubscription struct {
	hub *Hub
	id  string
}

// Cancel implements Subscription.Cancel
func (subscription *hubSubscription) Cancel() {
	hub := subscription.hub

	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, ok := hub.subscribers[subscription.id]; !ok {
		return
	}

	delete(hub.subscribers, subscription.id)

	for i, id := range hub.order {
		if id == subscription.id {
			hub.order = append(hub.order[:i], hub.order[i+1:]...)
			break
		}
	}
}
