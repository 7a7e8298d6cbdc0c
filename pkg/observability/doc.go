// Package observability provides Prometheus metrics and health checks for
// the dataroom service.
//
// # Prometheus Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveOperation("loan", "create", started, err)
//
// HTTP instrumentation:
//
//	router.Use(observability.HTTPMetricsMiddleware(metrics))
//
// # Health Checks
//
// Configure health checker:
//
//	checker := observability.NewHealthChecker(db, redisClient)
//	status := checker.Check(ctx)
package observability
