package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PromRegistry holds the Prometheus collectors; it is separate from the
// default registerer so tests can build servers repeatedly.
var PromRegistry = prometheus.NewRegistry()

var (
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsdata_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whatsdata_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"method", "route"},
	)

	storeOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsdata_store_operations_total",
			Help: "Blob store operations by kind of collection and outcome",
		},
		[]string{"op", "kind", "outcome"},
	)

	storeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "whatsdata_store_operation_duration_seconds",
			Help:    "Blob store operation latency",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"op"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsdata_stats_cache_lookups_total",
			Help: "Statistics cache lookups by result",
		},
		[]string{"result"},
	)

	watchSubscribers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "whatsdata_watch_subscribers",
		Help: "Connected change feed subscribers",
	})

	chatFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "whatsdata_waha_fetches_total",
			Help: "Scheduled WAHA chat fetches by outcome",
		},
		[]string{"outcome"},
	)

	chatFetchedMessages = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "whatsdata_waha_fetched_messages_total",
		Help: "Messages saved by the WAHA fetcher",
	})
)

func init() {
	PromRegistry.MustRegister(
		httpRequests, httpDuration,
		storeOps, storeDuration,
		cacheLookups, watchSubscribers,
		chatFetches, chatFetchedMessages,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// PrometheusHandler serves the collectors in the Prometheus text format
func PrometheusHandler() http.Handler {
	return promhttp.HandlerFor(PromRegistry, promhttp.HandlerOpts{})
}

// ObserveHTTP records a finished request in both registries
func ObserveHTTP(method, route string, status int, d time.Duration) {
	code := strconv.Itoa(status)
	labels := map[string]string{"method": method, "route": route, "status": code}

	IncrementCounter("http_requests_total", labels, "Total HTTP requests")
	RecordTimer("http_request_duration", d, map[string]string{"method": method, "route": route}, "HTTP request duration")

	httpRequests.WithLabelValues(method, route, code).Inc()
	httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveStore records a blob store operation in both registries
func ObserveStore(op, kind, outcome string, d time.Duration) {
	IncrementCounter("store_operations_total", map[string]string{"op": op, "kind": kind, "outcome": outcome}, "Blob store operations")
	storeOps.WithLabelValues(op, kind, outcome).Inc()
	if d > 0 {
		RecordTimer("store_operation_duration", d, map[string]string{"op": op}, "Blob store operation duration")
		storeDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// ObserveCache records a stats cache hit or miss
func ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	IncrementCounter("stats_cache_lookups_total", map[string]string{"result": result}, "Stats cache lookups")
	cacheLookups.WithLabelValues(result).Inc()
}

// SetWatchSubscribers publishes the number of live change feed connections
func SetWatchSubscribers(n int) {
	SetGauge("watch_subscribers", float64(n), nil, "Connected change feed subscribers")
	watchSubscribers.Set(float64(n))
}

// ObserveChatFetch records one WAHA chat fetch and the messages it saved
func ObserveChatFetch(outcome string, messages int) {
	IncrementCounter("waha_fetches_total", map[string]string{"outcome": outcome}, "Scheduled WAHA chat fetches")
	chatFetches.WithLabelValues(outcome).Inc()
	if messages > 0 {
		AddToCounter("waha_fetched_messages_total", float64(messages), nil, "Messages saved by the WAHA fetcher")
		chatFetchedMessages.Add(float64(messages))
	}
}
