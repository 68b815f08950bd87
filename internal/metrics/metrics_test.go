package metrics

import (
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_IncrementCounter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("requests", nil, "Requests")
	registry.IncrementCounter("requests", map[string]string{"status": "200"}, "Requests")
	registry.IncrementCounter("requests", map[string]string{"status": "200"}, "Requests")

	assert.Equal(t, 1.0, registry.CounterValue("requests", nil))
	assert.Equal(t, 2.0, registry.CounterValue("requests", map[string]string{"status": "200"}))
	assert.Equal(t, 0.0, registry.CounterValue("requests", map[string]string{"status": "500"}))
}

func TestRegistry_LabelOrderDoesNotMatter(t *testing.T) {
	registry := NewRegistry()

	registry.IncrementCounter("ops", map[string]string{"op": "read", "kind": "contacts"}, "")
	registry.IncrementCounter("ops", map[string]string{"kind": "contacts", "op": "read"}, "")

	assert.Equal(t, 2.0, registry.CounterValue("ops", map[string]string{"op": "read", "kind": "contacts"}))
	counters := registry.GetAllMetrics()["counters"].(map[string]Metric)
	assert.Len(t, counters, 1)
	_, ok := counters["ops_kind:contacts_op:read"]
	assert.True(t, ok)
}

func TestRegistry_RecordTimer(t *testing.T) {
	registry := NewRegistry()

	for i := 1; i <= 20; i++ {
		registry.RecordTimer("latency", time.Duration(i)*time.Millisecond, nil, "")
	}

	timers := registry.GetAllMetrics()["timers"].(map[string]TimerMetric)
	timer := timers["latency"]
	assert.Equal(t, int64(20), timer.Count)
	assert.InDelta(t, 1.0, timer.Min, 0.001)
	assert.InDelta(t, 20.0, timer.Max, 0.001)
	assert.InDelta(t, 10.5, timer.Average, 0.001)
	assert.InDelta(t, 20.0, timer.P95, 0.001)
	assert.Nil(t, timer.samples, "snapshots do not expose samples")
}

func TestRegistry_SetGauge(t *testing.T) {
	registry := NewRegistry()
	registry.SetGauge("subscribers", 3, nil, "")
	registry.SetGauge("subscribers", 1, nil, "")

	gauges := registry.GetAllMetrics()["gauges"].(map[string]Metric)
	assert.Equal(t, 1.0, gauges["subscribers"].Value)
}

func TestRegistry_ConcurrentUpdates(t *testing.T) {
	registry := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			registry.IncrementCounter("hits", nil, "")
			registry.RecordTimer("t", time.Millisecond, nil, "")
		}()
	}
	wg.Wait()

	assert.Equal(t, 50.0, registry.CounterValue("hits", nil))
}

func TestPercentile(t *testing.T) {
	assert.Equal(t, 0.0, percentile(nil, 0.95))
	assert.Equal(t, 5.0, percentile([]float64{5, 1, 3, 2, 4}, 0.99))
	assert.Equal(t, 3.0, percentile([]float64{5, 1, 3, 2, 4}, 0.5))
}

func TestPrometheusHandler(t *testing.T) {
	ObserveHTTP("GET", "/v1/contacts", 200, 3*time.Millisecond)
	ObserveStore("read", "contacts", "ok", time.Millisecond)
	ObserveCache(true)
	SetWatchSubscribers(2)

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics/prometheus", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `whatsdata_http_requests_total{method="GET",route="/v1/contacts",status="200"}`)
	assert.Contains(t, text, `whatsdata_store_operations_total{kind="contacts",op="read",outcome="ok"}`)
	assert.Contains(t, text, `whatsdata_stats_cache_lookups_total{result="hit"}`)
	assert.Contains(t, text, "whatsdata_watch_subscribers 2")

	assert.GreaterOrEqual(t, GetRegistry().CounterValue("http_requests_total",
		map[string]string{"method": "GET", "route": "/v1/contacts", "status": "200"}), 1.0)
}
