// Package webhooks delivers change notifications to external HTTP endpoints.
//
// Subscriptions are persisted in the document store and filter on resource
// type and operation. Deliveries are signed with HMAC-SHA256 when the
// subscription carries a secret, rate limited per subscription, and retried
// with exponential backoff on failure.
package webhooks
