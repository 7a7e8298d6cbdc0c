package resource

import (
	"context"
	"sync"
	"time"

	"github.com/dataroomhq/dataroom/pkg/events"
	"github.com/dataroomhq/dataroom/pkg/identity"
)

// Subscribe opens a change-notification stream for one resource. Read
// access is checked against the resource's current state before the
// subscription is handed out. The returned cancel function must be called
// when the subscriber is done.
func (e *Engine) Subscribe(ctx context.Context, resourceType, id string, actor *identity.Actor) (ch <-chan events.Notification, cancel func(), err error) {
	started := time.Now()
	defer func() { e.observe(resourceType, "subscribe", started, err) }()

	def, err := e.definition(resourceType)
	if err != nil {
		return nil, nil, err
	}
	doc, err := e.store.GetByID(ctx, def.Name, id, nil)
	if err != nil {
		return nil, nil, err
	}
	if err = e.requireRead(def, actor, doc); err != nil {
		return nil, nil, err
	}

	ch, unsubscribe := e.broker.Subscribe(def.Name, id)
	if e.metrics != nil {
		e.metrics.ActiveSubscribers.WithLabelValues(def.Name).Inc()
	}
	var once sync.Once
	cancel = func() {
		once.Do(func() {
			unsubscribe()
			if e.metrics != nil {
				e.metrics.ActiveSubscribers.WithLabelValues(def.Name).Dec()
			}
		})
	}
	return ch, cancel, nil
}
