package webhooks

import (
	"sync"
	"time"
)

// RateLimiter bounds deliveries per subscription with one token bucket each.
type RateLimiter struct {
	mu           sync.Mutex
	buckets      map[string]*tokenBucket
	maxTokens    int
	refillPeriod time.Duration
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewRateLimiter allows maxRequests per period for each subscription.
func NewRateLimiter(maxRequests int, period time.Duration) *RateLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	return &RateLimiter{
		buckets:      make(map[string]*tokenBucket),
		maxTokens:    maxRequests,
		refillPeriod: period,
	}
}

// Allow reports whether a delivery to the subscription may proceed now.
func (rl *RateLimiter) Allow(subscriptionID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets[subscriptionID]
	if !ok {
		bucket = &tokenBucket{tokens: rl.maxTokens, lastRefill: time.Now()}
		rl.buckets[subscriptionID] = bucket
	}

	rl.refill(bucket)
	if bucket.tokens > 0 {
		bucket.tokens--
		return true
	}
	return false
}

// Remaining returns the tokens currently available for a subscription.
func (rl *RateLimiter) Remaining(subscriptionID string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	bucket, ok := rl.buckets[subscriptionID]
	if !ok {
		return rl.maxTokens
	}
	rl.refill(bucket)
	return bucket.tokens
}

// Reset clears a subscription's bucket.
func (rl *RateLimiter) Reset(subscriptionID string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.buckets, subscriptionID)
}

// refill tops the bucket up for every full period elapsed. Caller holds the
// lock.
func (rl *RateLimiter) refill(bucket *tokenBucket) {
	elapsed := time.Since(bucket.lastRefill)
	if elapsed < rl.refillPeriod {
		return
	}
	periods := int(elapsed / rl.refillPeriod)
	bucket.tokens += periods * rl.maxTokens
	if bucket.tokens > rl.maxTokens {
		bucket.tokens = rl.maxTokens
	}
	bucket.lastRefill = bucket.lastRefill.Add(time.Duration(periods) * rl.refillPeriod)
}
