// Package stream fans portal events out to connected websocket clients.
package stream

import (
	"encoding/json"
	"sync"
	"time"
)

const (
	EventReady                = "ready"
	EventPaymentCreated       = "payment.created"
	EventPaymentStatusChanged = "payment.status_changed"
	EventPaymentDeleted       = "payment.deleted"
)

type Event struct {
	Type string          `json:"type"`
	At   string          `json:"at"`
	Data json.RawMessage `json:"data,omitempty"`
}

func NewEvent(eventType string, data interface{}) Event {
	evt := Event{Type: eventType, At: time.Now().UTC().Format(time.RFC3339Nano)}
	if data != nil {
		evt.Data, _ = json.Marshal(data)
	}
	return evt
}

// PaymentChange is the payload carried by the payment.* events.
type PaymentChange struct {
	PaymentID string `json:"paymentId"`
	UserID    string `json:"userId"`
	Status    string `json:"status,omitempty"`
}

// Hub is the in-process broadcast channel between payment handlers and the
// employee dashboard's websocket connections.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan Event]bool
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]bool)}
}

// Subscribe registers a new listener. The buffer absorbs bursts while the
// websocket write is in flight.
func (h *Hub) Subscribe(buffer int) chan Event {
	if buffer <= 0 {
		buffer = 32
	}
	ch := make(chan Event, buffer)
	h.mu.Lock()
	h.subs[ch] = true
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes the listener's channel. Calling it twice
// for the same channel is safe.
func (h *Hub) Unsubscribe(ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.subs[ch] {
		return
	}
	delete(h.subs, ch)
	close(ch)
}

// Publish hands the event to every listener without blocking: a listener
// whose buffer is full misses this event instead of stalling the handler
// that produced it.
func (h *Hub) Publish(evt Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- evt:
		default:
		}
	}
}

// Subscribers reports the current listener count, exported as a gauge.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
