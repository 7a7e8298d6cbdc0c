package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dataroomhq/dataroom/pkg/async"
	"github.com/dataroomhq/dataroom/pkg/events"
)

const (
	headerEvent     = "X-Dataroom-Event"
	headerDelivery  = "X-Dataroom-Delivery"
	headerSignature = "X-Dataroom-Signature"
)

// DispatcherConfig tunes the dispatcher. Zero values get sensible defaults.
type DispatcherConfig struct {
	Workers       int
	Retry         RetryConfig
	RetryInterval time.Duration
	// RatePerMinute bounds deliveries per subscription.
	RatePerMinute int
	Client        *http.Client
	Logger        *logrus.Entry
}

// Dispatcher fans change notifications out to registered subscriptions. It
// implements events.Sink and is placed alongside the in-process broker.
type Dispatcher struct {
	manager    *Manager
	client     *http.Client
	deliveries *DeliveryStore
	limiter    *RateLimiter
	policy     *RetryPolicy
	pool       *async.WorkerPool
	interval   time.Duration
	logger     *logrus.Entry
}

// NewDispatcher creates a dispatcher delivering on a bounded worker pool.
func NewDispatcher(ctx context.Context, manager *Manager, cfg DispatcherConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 100
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 30 * time.Second
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	logger = logger.WithField("component", "webhooks")

	return &Dispatcher{
		manager:    manager,
		client:     cfg.Client,
		deliveries: NewDeliveryStore(1000),
		limiter:    NewRateLimiter(cfg.RatePerMinute, time.Minute),
		policy:     NewRetryPolicy(cfg.Retry),
		pool:       async.NewWorkerPool(ctx, cfg.Workers, "webhook delivery", 30*time.Second, logger),
		interval:   cfg.RetryInterval,
		logger:     logger,
	}
}

// Deliveries exposes the delivery log for the admin API.
func (d *Dispatcher) Deliveries() *DeliveryStore {
	return d.deliveries
}

// Publish implements events.Sink. Matching subscriptions are queued for
// delivery; the caller never waits on the network.
func (d *Dispatcher) Publish(ctx context.Context, n events.Notification) error {
	subs, err := d.manager.Active(ctx)
	if err != nil {
		return fmt.Errorf("failed to load webhook subscriptions: %w", err)
	}

	var payload []byte
	for _, sub := range subs {
		if !sub.Matches(n) {
			continue
		}
		if payload == nil {
			payload, err = json.Marshal(n)
			if err != nil {
				return fmt.Errorf("failed to marshal notification: %w", err)
			}
		}

		delivery := &Delivery{
			ID:             uuid.NewString(),
			SubscriptionID: sub.ID,
			ResourceType:   n.ResourceType,
			ResourceID:     n.ResourceID,
			Operation:      string(n.Operation),
			URL:            sub.URL,
			Status:         DeliveryPending,
			Payload:        payload,
			CreatedAt:      time.Now().UTC(),
		}
		d.deliveries.Add(delivery)

		sub := sub
		if err := d.pool.Submit(func(ctx context.Context) error {
			d.attempt(ctx, sub, delivery)
			return nil
		}); err != nil {
			d.logger.WithError(err).Warn("dropping webhook delivery, pool unavailable")
		}
	}
	return nil
}

// Run retries failed deliveries until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.processRetries(ctx)
		}
	}
}

// Close drains the delivery workers.
func (d *Dispatcher) Close() error {
	return d.pool.Shutdown(10 * time.Second)
}

func (d *Dispatcher) processRetries(ctx context.Context) {
	for _, delivery := range d.deliveries.DueRetries(time.Now()) {
		sub, err := d.manager.Get(ctx, delivery.SubscriptionID)
		if err != nil || !sub.Active {
			delivery.Status = DeliveryFailed
			delivery.Error = "subscription removed or inactive"
			now := time.Now().UTC()
			delivery.CompletedAt = &now
			d.deliveries.Update(delivery)
			continue
		}

		delivery := delivery
		if err := d.pool.Submit(func(ctx context.Context) error {
			d.attempt(ctx, sub, delivery)
			return nil
		}); err != nil {
			return
		}
	}
}

func (d *Dispatcher) attempt(ctx context.Context, sub *Subscription, delivery *Delivery) {
	delivery.Attempts++
	started := time.Now()

	err := d.send(ctx, sub, delivery)
	delivery.Duration = time.Since(started)

	if err == nil {
		delivery.Status = DeliverySuccess
		delivery.Error = ""
		now := time.Now().UTC()
		delivery.CompletedAt = &now
		d.deliveries.Update(delivery)
		return
	}

	delivery.Error = err.Error()
	if d.policy.ShouldRetry(delivery.Attempts) {
		delivery.Status = DeliveryRetrying
		next := d.policy.NextRetryTime(delivery.Attempts)
		delivery.NextRetryAt = &next
	} else {
		delivery.Status = DeliveryFailed
		now := time.Now().UTC()
		delivery.CompletedAt = &now
		d.logger.WithFields(logrus.Fields{
			"subscription": sub.ID,
			"url":          sub.URL,
			"attempts":     delivery.Attempts,
		}).Warn("webhook delivery abandoned")
	}
	d.deliveries.Update(delivery)
}

func (d *Dispatcher) send(ctx context.Context, sub *Subscription, delivery *Delivery) error {
	if !d.limiter.Allow(sub.ID) {
		return fmt.Errorf("rate limit exceeded for subscription %s", sub.ID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.URL, bytes.NewReader(delivery.Payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerEvent, delivery.Operation)
	req.Header.Set(headerDelivery, delivery.ID)
	if sub.Secret != "" {
		req.Header.Set(headerSignature, Sign(delivery.Payload, sub.Secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	delivery.StatusCode = resp.StatusCode
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
