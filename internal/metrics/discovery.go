package metrics

import "github.com/prometheus/client_golang/prometheus"

// Namespace prefixes every scout metric.
const Namespace = "scout"

// Discovery Prometheus metrics.
var (
	DiscoveryQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "discovery_queries_total",
			Help:      "Total number of discovery queries",
		},
		[]string{"kind", "mode", "status"},
	)

	DiscoveryQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "discovery_query_duration_seconds",
			Help:      "Discovery query duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"kind"},
	)

	DiscoveryFetchedRows = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "discovery_fetched_rows",
			Help:      "Rows read from the backing store per discovery query",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
		[]string{"kind"},
	)

	CursorResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "cursor_resets_total",
			Help:      "Cursors discarded as stale or malformed",
		},
		[]string{"kind"},
	)

	PrivilegeDowngradesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "privilege_downgrades_total",
			Help:      "Privileged include toggles ignored for non-elevated requesters",
		},
		[]string{"kind", "flag"},
	)

	StoreOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Backing store operation duration in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
		[]string{"driver", "op", "status"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "store_breaker_state",
			Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"name"},
	)
)

var discoveryMetricsRegistered bool

// RegisterDiscoveryMetrics registers discovery and store metrics. Must be called once from main.
func RegisterDiscoveryMetrics() {
	if discoveryMetricsRegistered {
		return
	}
	prometheus.MustRegister(DiscoveryQueriesTotal)
	prometheus.MustRegister(DiscoveryQueryDuration)
	prometheus.MustRegister(DiscoveryFetchedRows)
	prometheus.MustRegister(CursorResetsTotal)
	prometheus.MustRegister(PrivilegeDowngradesTotal)
	prometheus.MustRegister(StoreOperationDuration)
	prometheus.MustRegister(BreakerState)
	discoveryMetricsRegistered = true
}
