package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

const subscriberBuffer = 16

type subscriber struct {
	id string
	ch chan Notification
}

type subscriptionKey struct {
	resourceType string
	resourceID   string
}

// Broker fans notifications out to in-process subscribers. Each subscriber
// watches one resource; delivery is non-blocking and drops notifications a
// slow subscriber cannot keep up with.
type Broker struct {
	logger *logrus.Logger

	mu     sync.Mutex
	nextID int
	subs   map[subscriptionKey]map[int]*subscriber
	closed bool
}

// NewBroker creates a Broker.
func NewBroker(logger *logrus.Logger) *Broker {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Broker{
		logger: logger,
		subs:   map[subscriptionKey]map[int]*subscriber{},
	}
}

// Subscribe registers interest in one resource. The returned cancel
// function MUST be called when the subscriber is done; it closes the
// channel and releases the registration.
func (b *Broker) Subscribe(resourceType, resourceID string) (<-chan Notification, func()) {
	key := subscriptionKey{resourceType: resourceType, resourceID: resourceID}
	sub := &subscriber{ch: make(chan Notification, subscriberBuffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.nextID++
	token := b.nextID
	if b.subs[key] == nil {
		b.subs[key] = map[int]*subscriber{}
	}
	b.subs[key][token] = sub
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			if set, ok := b.subs[key]; ok {
				delete(set, token)
				if len(set) == 0 {
					delete(b.subs, key)
				}
			}
			alreadyClosed := b.closed
			b.mu.Unlock()
			if !alreadyClosed {
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish implements Sink. Delivery never blocks: a subscriber with a full
// buffer misses the notification.
func (b *Broker) Publish(ctx context.Context, n Notification) error {
	key := subscriptionKey{resourceType: n.ResourceType, resourceID: n.ResourceID}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	targets := make([]*subscriber, 0, len(b.subs[key]))
	for _, sub := range b.subs[key] {
		targets = append(targets, sub)
	}
	b.mu.Unlock()

	for _, sub := range targets {
		select {
		case sub.ch <- n:
		default:
			b.logger.WithFields(logrus.Fields{
				"resource_type": n.ResourceType,
				"resource_id":   n.ResourceID,
				"operation":     n.Operation,
			}).Warn("dropping notification for slow subscriber")
		}
	}
	return nil
}

// Close shuts the broker down and closes all subscriber channels.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, set := range b.subs {
		for _, sub := range set {
			close(sub.ch)
		}
	}
	b.subs = map[subscriptionKey]map[int]*subscriber{}
}
