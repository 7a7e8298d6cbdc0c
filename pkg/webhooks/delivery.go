package webhooks

import (
	"sort"
	"sync"
	"time"
)

// DeliveryStatus is the lifecycle state of one delivery.
type DeliveryStatus string

const (
	DeliveryPending  DeliveryStatus = "pending"
	DeliverySuccess  DeliveryStatus = "success"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryRetrying DeliveryStatus = "retrying"
)

// Delivery records one notification sent to one subscription.
type Delivery struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscriptionId"`
	ResourceType   string         `json:"resourceType"`
	ResourceID     string         `json:"resourceId"`
	Operation      string         `json:"operation"`
	URL            string         `json:"url"`
	Status         DeliveryStatus `json:"status"`
	StatusCode     int            `json:"statusCode,omitempty"`
	Error          string         `json:"error,omitempty"`
	Attempts       int            `json:"attempts"`
	Payload        []byte         `json:"-"`
	NextRetryAt    *time.Time     `json:"nextRetryAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	Duration       time.Duration  `json:"duration,omitempty"`
}

// DeliveryStore keeps recent deliveries in memory, bounded by maxEntries.
type DeliveryStore struct {
	mu         sync.RWMutex
	deliveries map[string]*Delivery
	maxEntries int
}

// NewDeliveryStore creates a bounded delivery log.
func NewDeliveryStore(maxEntries int) *DeliveryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &DeliveryStore{
		deliveries: make(map[string]*Delivery),
		maxEntries: maxEntries,
	}
}

// Add records a delivery, evicting the oldest entries when full. The store
// keeps its own copy so callers may keep mutating theirs.
func (s *DeliveryStore) Add(d *Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.deliveries) >= s.maxEntries {
		s.evictOldest()
	}
	clone := *d
	s.deliveries[d.ID] = &clone
}

// Update replaces a delivery record.
func (s *DeliveryStore) Update(d *Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *d
	s.deliveries[d.ID] = &clone
}

// BySubscription returns copies of a subscription's deliveries, newest first.
func (s *DeliveryStore) BySubscription(subscriptionID string, limit int) []*Delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Delivery
	for _, d := range s.deliveries {
		if d.SubscriptionID == subscriptionID {
			clone := *d
			result = append(result, &clone)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

// DueRetries returns copies of deliveries whose retry time has passed.
func (s *DeliveryStore) DueRetries(now time.Time) []*Delivery {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Delivery
	for _, d := range s.deliveries {
		if d.Status == DeliveryRetrying && d.NextRetryAt != nil && d.NextRetryAt.Before(now) {
			clone := *d
			result = append(result, &clone)
		}
	}
	return result
}

// Stats summarizes a subscription's delivery history.
type Stats struct {
	SubscriptionID string  `json:"subscriptionId"`
	Total          int     `json:"total"`
	Successful     int     `json:"successful"`
	Failed         int     `json:"failed"`
	Retrying       int     `json:"retrying"`
	SuccessRate    float64 `json:"successRate"`
}

// StatsFor computes delivery statistics for a subscription.
func (s *DeliveryStore) StatsFor(subscriptionID string) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{SubscriptionID: subscriptionID}
	for _, d := range s.deliveries {
		if d.SubscriptionID != subscriptionID {
			continue
		}
		stats.Total++
		switch d.Status {
		case DeliverySuccess:
			stats.Successful++
		case DeliveryFailed:
			stats.Failed++
		case DeliveryRetrying:
			stats.Retrying++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total)
	}
	return stats
}

// evictOldest removes a tenth of the entries, oldest first. Caller holds the
// write lock.
func (s *DeliveryStore) evictOldest() {
	all := make([]*Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		all = append(all, d)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	evict := len(all) / 10
	if evict == 0 {
		evict = 1
	}
	for i := 0; i < evict && i < len(all); i++ {
		delete(s.deliveries, all[i].ID)
	}
}
