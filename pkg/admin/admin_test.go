package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)

	HandleHealth(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, "should return 200 OK")
}

func TestHandleMetricsAndStatusz(t *testing.T) {
	m := NewMetrics()

	// Seed some counters.
	m.TotalRequests = 7
	m.Hits = 4
	m.Misses = 2
	m.UpstreamErrors = 1
	m.ObserveDuration("HIT", 0.003)
	m.ObserveDuration("MISS", 0.2)

	st := StatusView{
		Addr:          "127.0.0.1:8080",
		ActiveWorkers: 3,
		MaxClients:    400,
		CacheEntries:  2,
		CacheBytes:    1024,
		CacheCapacity: 2048,
	}

	// /metrics
	rr := httptest.NewRecorder()
	HandleMetrics(rr, m, st)
	require.Equal(t, http.StatusOK, rr.Code, "metrics should return 200")

	body := rr.Body.String()
	assert.Contains(t, body, "proxy_requests_total 7", "should include total requests counter")
	assert.Contains(t, body, "proxy_cache_hits_total 4", "should include hits counter")
	assert.Contains(t, body, "proxy_cache_misses_total 2", "should include misses counter")
	assert.Contains(t, body, "proxy_active_workers 3", "should include worker gauge")
	assert.Contains(t, body, "proxy_cache_bytes 1024", "should include cache bytes gauge")
	assert.Contains(t, body, `proxy_request_duration_seconds_bucket{outcome="HIT"`, "should include HIT histogram")
	assert.Contains(t, body, `proxy_request_duration_seconds_count{outcome="MISS"} 1`, "should count MISS samples")
	// Basic formatting sanity
	assert.True(t, strings.Contains(body, "\n"), "prometheus format should be multiline")

	// /statusz
	rr2 := httptest.NewRecorder()
	HandleStatusz(rr2, m, st)
	require.Equal(t, http.StatusOK, rr2.Code, "statusz should return 200")

	html := rr2.Body.String()
	assert.Contains(t, html, "Active workers: 3 / 400", "statusz should show gate occupancy")
	assert.Contains(t, html, "2 entries", "statusz should show cache entries")
	assert.Contains(t, html, "<table", "statusz should render an HTML table")
	assert.Contains(t, html, "upstream errors", "statusz should list counters")
}

func TestInflightTracking(t *testing.T) {
	m := NewMetrics()

	m.InflightAdd("conn-a")
	m.InflightAdd("conn-b")
	assert.Equal(t, 2, m.Inflight, "gauge should count both requests")
	require.Len(t, m.InflightList, 2)

	m.InflightRemove("conn-b")
	assert.Equal(t, 1, m.Inflight)
	assert.Contains(t, m.InflightList, "conn-a", "remaining request should stay listed")

	// /statusz names the remaining request and its age.
	rr := httptest.NewRecorder()
	HandleStatusz(rr, m, StatusView{MaxClients: 400})
	html := rr.Body.String()
	assert.Contains(t, html, "In-flight: 1", "statusz should show the inflight count")
	assert.Contains(t, html, "conn-a", "statusz should list the request id")
	assert.Contains(t, html, "Age(s)", "statusz should render the age table")

	// /metrics exports the gauge.
	rr2 := httptest.NewRecorder()
	HandleMetrics(rr2, m, StatusView{})
	assert.Contains(t, rr2.Body.String(), "proxy_inflight_requests 1", "metrics should export the gauge")

	m.InflightRemove("conn-a")
	m.InflightRemove("conn-a") // double remove must not underflow
	assert.Equal(t, 0, m.Inflight)
	assert.Empty(t, m.InflightList)
}

func TestObserveDurationBuckets(t *testing.T) {
	m := NewMetrics()

	m.ObserveDuration("HIT", 0.001) // first bucket
	m.ObserveDuration("HIT", 0.3)   // 0.5 bucket
	m.ObserveDuration("HIT", 99)    // beyond the last bucket

	require.Len(t, m.HistCounts["HIT"], len(HistogramBuckets))
	assert.Equal(t, uint64(1), m.HistCounts["HIT"][0], "0.001s lands in the first bucket")
	assert.Equal(t, uint64(3), m.HistTotal["HIT"])
	assert.InDelta(t, 99.301, m.HistSum["HIT"], 0.0001)
	assert.Equal(t, uint64(1), m.HistCounts["HIT"][len(HistogramBuckets)-1], "overflow lands in the last bucket")
}

func TestHandleVarzAndRequests(t *testing.T) {
	rr := httptest.NewRecorder()
	HandleVarz(rr, map[string]interface{}{"addr": ":8080"})
	require.Equal(t, http.StatusOK, rr.Code)

	var cfg map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cfg))
	assert.Equal(t, ":8080", cfg["addr"])

	rr2 := httptest.NewRecorder()
	HandleRequests(rr2, []map[string]string{{"outcome": "HIT"}})
	require.Equal(t, http.StatusOK, rr2.Code)
	assert.Contains(t, rr2.Body.String(), `"outcome":"HIT"`)
}
