// Package async provides panic-safe goroutine helpers and a bounded worker
// pool for background work such as webhook deliveries.
package async
