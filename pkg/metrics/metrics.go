// Package metrics documents the Prometheus metrics exposed by the CRM
// digest client. All metrics are defined in their respective packages
// (client, cache, ratelimit) to maintain modularity and avoid circular
// dependencies; this package provides the registry reference and a
// single place to look them up.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the default Prometheus registry used by the digest
// client. All metrics are automatically registered via promauto in
// their respective packages.
var Registry = prometheus.DefaultRegisterer

// Metrics Documentation
//
// Request Metrics (pkg/client):
//   - crm_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - crm_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - crm_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - crm_legacy_fallbacks_total{endpoint} (Counter): Fallbacks to legacy endpoint variants
//
// Retry Metrics (pkg/client):
//   - crm_retries_total{error_class} (Counter): Retry attempts by error class
//   - crm_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - crm_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Cache Metrics (pkg/cache):
//   - crm_cache_hits_total{layer="redis"} (Counter): Metadata cache hits by layer
//   - crm_cache_misses_total (Counter): Metadata cache misses
//   - crm_cache_errors_total{operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - crm_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - crm_rate_limit_blocks_total (Counter): Requests blocked on exhausted budget
//   - crm_rate_limit_throttles_total (Counter): Requests throttled on low budget
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(crm_cache_hits_total[5m])) /
//   (sum(rate(crm_cache_hits_total[5m])) + sum(rate(crm_cache_misses_total[5m])))
//
//   # Request Error Rate
//   rate(crm_errors_total[5m])
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(crm_request_duration_seconds_bucket[5m]))
//
//   # Legacy Endpoint Dependency
//   rate(crm_legacy_fallbacks_total[1h])
