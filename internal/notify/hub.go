package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

const defaultBuffer = 16

// Subscription receives events for a single account until cancelled.
type Subscription struct {
	AccountID uuid.UUID
	C         <-chan Event

	ch   chan Event
	hub  *Hub
	once sync.Once
}

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

// Hub is the registry from account id to live subscriptions.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uuid.UUID]map[*Subscription]struct{}
	buffer int
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[uuid.UUID]map[*Subscription]struct{}),
		buffer: defaultBuffer,
	}
}

func (h *Hub) Subscribe(accountID uuid.UUID) *Subscription {
	ch := make(chan Event, h.buffer)
	sub := &Subscription{AccountID: accountID, C: ch, ch: ch, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs[accountID] == nil {
		h.subs[accountID] = make(map[*Subscription]struct{})
	}
	h.subs[accountID][sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[sub.AccountID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(h.subs, sub.AccountID)
	}
	close(sub.ch)
}

// Deliver routes the event to subscribers of its account id and reports how
// many received it. A full subscriber buffer drops the event.
func (h *Hub) Deliver(event Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[event.AccountID] {
		select {
		case sub.ch <- event:
			delivered++
		default:
		}
	}
	return delivered
}

// Publish implements Publisher for single-instance deployments.
func (h *Hub) Publish(_ context.Context, event Event) error {
	h.Deliver(event)
	return nil
}

func (h *Hub) SubscriberCount(accountID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[accountID])
}
