// Package notification provides the notification manager for broadcasting loop state changes.
package notification

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Kind classifies a change notification.
type Kind int

const (
	KindReset    Kind = iota // Store was discarded for a new (or no) track
	KindHydrated             // Store was populated from a load result
	KindMutated              // Store was changed by a user action
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindReset:
		return "reset"
	case KindHydrated:
		return "hydrated"
	case KindMutated:
		return "mutated"
	default:
		return "unknown"
	}
}

// Notification describes one change to the loop store.
type Notification struct {
	SequenceNo uint64
	Kind       Kind
	TrackID    string
}

// Stream represents a notification stream for a subscriber.
type Stream interface {
	Send(*Notification) error
}

// StreamFunc adapts a function to the Stream interface.
type StreamFunc func(*Notification) error

// Send calls f(n).
func (f StreamFunc) Send(n *Notification) error {
	return f(n)
}

// subscription represents a subscriber's subscription.
type subscription struct {
	id     string
	stream Stream
}

// Manager manages notification subscriptions and broadcasting.
// Subscribers are called synchronously, in subscription order.
type Manager struct {
	mu            sync.RWMutex
	subscriptions []*subscription
	sequenceNo    uint64
	sequenceNoMu  sync.Mutex
}

// NewManager creates a new notification manager.
func NewManager() *Manager {
	return &Manager{}
}

// Subscribe adds a new subscription and returns the subscription ID.
func (m *Manager) Subscribe(stream Stream) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := uuid.New().String()
	m.subscriptions = append(m.subscriptions, &subscription{
		id:     id,
		stream: stream,
	})
	return id
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (m *Manager) NextSequenceNo() uint64 {
	m.sequenceNoMu.Lock()
	defer m.sequenceNoMu.Unlock()
	m.sequenceNo++
	return m.sequenceNo
}

// Unsubscribe removes a subscription.
func (m *Manager) Unsubscribe(subscriptionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subscriptions {
		if sub.id == subscriptionID {
			m.subscriptions = append(m.subscriptions[:i:i], m.subscriptions[i+1:]...)
			return
		}
	}
}

// Broadcast stamps the notification with the next sequence number and sends it
// to every subscriber. A failing subscriber does not stop delivery to the rest;
// the failures are combined into the returned error.
func (m *Manager) Broadcast(notification *Notification) error {
	notification.SequenceNo = m.NextSequenceNo()

	m.mu.RLock()
	// Copy subscriptions so a subscriber may unsubscribe from its own callback.
	subs := make([]*subscription, len(m.subscriptions))
	copy(subs, m.subscriptions)
	m.mu.RUnlock()

	var result error
	for _, sub := range subs {
		if err := sub.stream.Send(notification); err != nil {
			result = errors.CombineErrors(result, errors.Wrapf(err, "subscriber %s", sub.id))
		}
	}
	return result
}

// Close removes all subscriptions. Later broadcasts reach no one.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = nil
}
