// Package metrics exposes the Prometheus registry of the storefront edge.
// Metrics are defined next to the code that records them (cache, client, ratelimit,
// migration, storefront) and registered via promauto, so this package only serves them and
// documents the catalog.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registerer every storefront metric is registered with.
var Registry = prometheus.DefaultRegisterer

// Gatherer is the gatherer backing Handler.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - storefront_cache_hits_total{layer="redis"} (Counter): Shared cache hits
//   - storefront_cache_misses_total (Counter): Shared cache misses
//   - storefront_cache_errors_total{operation} (Counter): Cache operation errors
//   - storefront_cache_invalidations_total (Counter): Tags invalidated
//   - storefront_cache_invalidated_entries_total (Counter): Entries removed by tag invalidation
//
// Upstream Metrics (pkg/client):
//   - storefront_upstream_requests_total{operation, status} (Counter): GraphQL requests
//   - storefront_upstream_request_duration_seconds{operation} (Histogram): Request duration
//   - storefront_upstream_errors_total{class} (Counter): Errors by class
//     (client, server, rate_limit, network, graphql)
//   - storefront_upstream_retries_total{error_class} (Counter): Retry attempts
//   - storefront_upstream_retry_backoff_seconds{error_class} (Histogram): Backoff duration
//   - storefront_upstream_retry_exhausted_total{error_class} (Counter): Exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - storefront_upstream_requests_left (Gauge): Requests left in the upstream window
//   - storefront_rate_limit_blocks_total (Counter): Requests blocked at critical budget
//   - storefront_rate_limit_throttles_total (Counter): Requests delayed at warning budget
//
// Migration Metrics (pkg/migration):
//   - storefront_cart_migrations_total{operation, state} (Counter): Migrations and resumes
//     by terminal state (rebound, noop, failed)
//   - storefront_cart_migration_duration_seconds (Histogram): Migration duration
//   - storefront_cart_migration_skipped_items_total{reason} (Counter): Lines left behind
//
// Edge Metrics (pkg/storefront):
//   - storefront_region_switches_total{region, migration_state} (Counter): Region switches
//   - storefront_http_request_duration_seconds{route, method, status} (Histogram)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(storefront_cache_hits_total[5m])) /
//   (sum(rate(storefront_cache_hits_total[5m])) + sum(rate(storefront_cache_misses_total[5m])))
//
//   # Failed Migration Ratio
//   sum(rate(storefront_cart_migrations_total{state="failed"}[15m])) /
//   sum(rate(storefront_cart_migrations_total[15m]))
//
//   # Upstream Budget Status
//   storefront_upstream_requests_left < 20
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(storefront_upstream_request_duration_seconds_bucket[5m]))
