// Package admin implements small HTTP admin endpoints used by binaries.
// It includes counters, inflight gauges, a simple histogram facility for
// request durations and renderers for the /healthz, /metrics, /statusz,
// /varz and /requests endpoints.
package admin

import (
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// HistogramBuckets defines the latency buckets (seconds) used when observing request durations.
var HistogramBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// Metrics is a minimal metrics container consumed by the /metrics handler.
// It satisfies the proxy's Metrics interface.
type Metrics struct {
	sync.Mutex

	TotalRequests  uint64 `json:"total_requests"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	BadRequests    uint64 `json:"bad_requests"`
	NotImplemented uint64 `json:"not_implemented"`
	UpstreamErrors uint64 `json:"upstream_errors"`
	CacheRejected  uint64 `json:"cache_rejected"`
	Disconnects    uint64 `json:"disconnects"`

	// In-flight gauge + map of id->start time for /statusz
	Inflight     int                  `json:"inflight"`
	InflightList map[string]time.Time `json:"inflight_list"`

	// Histograms: map outcome -> counts per bucket
	HistCounts map[string][]uint64 `json:"hist_counts"`
	HistSum    map[string]float64  `json:"hist_sum"`
	HistTotal  map[string]uint64   `json:"hist_total"`
}

// NewMetrics constructs a Metrics instance with initialized histogram maps.
func NewMetrics() *Metrics {
	return &Metrics{
		InflightList: make(map[string]time.Time),
		HistCounts:   make(map[string][]uint64),
		HistSum:      make(map[string]float64),
		HistTotal:    make(map[string]uint64),
	}
}

// InflightAdd records an inflight request with id.
func (m *Metrics) InflightAdd(id string) {
	m.Lock()
	defer m.Unlock()
	m.Inflight++
	m.InflightList[id] = time.Now()
}

// InflightRemove removes an inflight request id.
func (m *Metrics) InflightRemove(id string) {
	m.Lock()
	defer m.Unlock()
	if m.Inflight > 0 {
		m.Inflight--
	}
	delete(m.InflightList, id)
}

// Increment helpers
func (m *Metrics) IncTotalRequests()  { m.Lock(); m.TotalRequests++; m.Unlock() }
func (m *Metrics) IncHit()            { m.Lock(); m.Hits++; m.Unlock() }
func (m *Metrics) IncMiss()           { m.Lock(); m.Misses++; m.Unlock() }
func (m *Metrics) IncBadRequest()     { m.Lock(); m.BadRequests++; m.Unlock() }
func (m *Metrics) IncNotImplemented() { m.Lock(); m.NotImplemented++; m.Unlock() }
func (m *Metrics) IncUpstreamErrors() { m.Lock(); m.UpstreamErrors++; m.Unlock() }
func (m *Metrics) IncCacheRejected()  { m.Lock(); m.CacheRejected++; m.Unlock() }
func (m *Metrics) IncDisconnects()    { m.Lock(); m.Disconnects++; m.Unlock() }

// ObserveDuration records a request duration (in seconds) under a named outcome.
func (m *Metrics) ObserveDuration(outcome string, seconds float64) {
	m.Lock()
	defer m.Unlock()
	// ensure buckets exist for this outcome
	if _, ok := m.HistCounts[outcome]; !ok {
		m.HistCounts[outcome] = make([]uint64, len(HistogramBuckets))
		m.HistSum[outcome] = 0
		m.HistTotal[outcome] = 0
	}
	m.HistSum[outcome] += seconds
	m.HistTotal[outcome]++
	for i, b := range HistogramBuckets {
		if seconds <= b {
			m.HistCounts[outcome][i]++
			return
		}
	}
	// larger than last bucket: increment last index
	if len(m.HistCounts[outcome]) > 0 {
		m.HistCounts[outcome][len(m.HistCounts[outcome])-1]++
	}
}

// StatusView is the live server state rendered by /statusz and exported as
// gauges by /metrics. The caller snapshots it from the proxy server.
type StatusView struct {
	Addr          string `json:"addr"`
	ActiveWorkers int    `json:"active_workers"`
	MaxClients    int    `json:"max_clients"`
	CacheEntries  int    `json:"cache_entries"`
	CacheBytes    int64  `json:"cache_bytes"`
	CacheCapacity int64  `json:"cache_capacity_bytes"`
}

// Admin handlers

// HandleHealth is a simple healthz handler.
func HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// HandleVarz writes config (provided) as JSON.
func HandleVarz(w http.ResponseWriter, cfg interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(cfg)
}

// HandleRequests writes the captured request records as JSON.
func HandleRequests(w http.ResponseWriter, records interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(records)
}

// HandleStatusz renders a small HTML page showing worker and cache occupancy
// plus the in-flight requests with their ages.
func HandleStatusz(w http.ResponseWriter, m *Metrics, st StatusView) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte("<html><body><h1>Status</h1>"))
	_, _ = w.Write([]byte("<p>Listening on " + html.EscapeString(st.Addr) + "</p>"))
	_, _ = w.Write([]byte("<p>Active workers: " + strconv.Itoa(st.ActiveWorkers) + " / " + strconv.Itoa(st.MaxClients) + "</p>"))
	_, _ = w.Write([]byte("<p>Cache: " + strconv.Itoa(st.CacheEntries) + " entries, " +
		strconv.FormatInt(st.CacheBytes, 10) + " / " + strconv.FormatInt(st.CacheCapacity, 10) + " bytes</p>"))

	m.Lock()
	inflight := m.Inflight
	listed := make(map[string]time.Time, len(m.InflightList))
	for id, started := range m.InflightList {
		listed[id] = started
	}
	rows := []struct {
		name  string
		value uint64
	}{
		{"requests", m.TotalRequests},
		{"hits", m.Hits},
		{"misses", m.Misses},
		{"bad requests", m.BadRequests},
		{"not implemented", m.NotImplemented},
		{"upstream errors", m.UpstreamErrors},
		{"cache rejected", m.CacheRejected},
		{"disconnects", m.Disconnects},
	}
	m.Unlock()

	_, _ = w.Write([]byte("<p>In-flight: " + strconv.Itoa(inflight) + "</p>"))
	_, _ = w.Write([]byte("<table border='1'><tr><th>Request</th><th>Start</th><th>Age(s)</th></tr>"))
	now := time.Now()
	for id, started := range listed {
		age := now.Sub(started).Seconds()
		_, _ = w.Write([]byte("<tr><td>" + html.EscapeString(id) + "</td><td>" + started.Format(time.RFC3339) + "</td><td>" + strconv.FormatFloat(age, 'f', 3, 64) + "</td></tr>"))
	}
	_, _ = w.Write([]byte("</table>"))

	_, _ = w.Write([]byte("<table border='1'><tr><th>Counter</th><th>Value</th></tr>"))
	for _, r := range rows {
		_, _ = w.Write([]byte("<tr><td>" + r.name + "</td><td>" + strconv.FormatUint(r.value, 10) + "</td></tr>"))
	}
	_, _ = w.Write([]byte("</table></body></html>"))
}

// HandleMetrics writes Prometheus-compatible output including counters,
// server gauges and duration histograms.
func HandleMetrics(w http.ResponseWriter, m *Metrics, st StatusView) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	m.Lock()
	// counters
	write := func(name, help string, v uint64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s counter\n", name)
		_, _ = fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
	write("proxy_requests_total", "Total requests processed", m.TotalRequests)
	write("proxy_cache_hits_total", "Served from cache", m.Hits)
	write("proxy_cache_misses_total", "Fetched from origin", m.Misses)
	write("proxy_bad_requests_total", "Malformed or oversized requests", m.BadRequests)
	write("proxy_not_implemented_total", "Requests with unsupported methods", m.NotImplemented)
	write("proxy_upstream_errors_total", "Errors resolving, connecting to or reading origins", m.UpstreamErrors)
	write("proxy_cache_rejected_total", "Responses too large to cache", m.CacheRejected)
	write("proxy_client_disconnects_total", "Clients gone before sending a request", m.Disconnects)

	// gauges
	gauge := func(name, help string, v int64) {
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		_, _ = fmt.Fprintf(w, "# TYPE %s gauge\n", name)
		_, _ = fmt.Fprintf(w, "%s %d\n\n", name, v)
	}
	gauge("proxy_inflight_requests", "In-flight requests", int64(m.Inflight))
	gauge("proxy_active_workers", "Connections currently being served", int64(st.ActiveWorkers))
	gauge("proxy_max_clients", "Admission slots", int64(st.MaxClients))
	gauge("proxy_cache_entries", "Resident cache entries", int64(st.CacheEntries))
	gauge("proxy_cache_bytes", "Bytes charged against cache capacity", st.CacheBytes)
	gauge("proxy_cache_capacity_bytes", "Cache capacity", st.CacheCapacity)

	// histograms
	_, _ = fmt.Fprintf(w, "# HELP proxy_request_duration_seconds Request duration by outcome\n")
	_, _ = fmt.Fprintf(w, "# TYPE proxy_request_duration_seconds histogram\n")
	for outcome, counts := range m.HistCounts {
		cum := uint64(0)
		for i, b := range HistogramBuckets {
			if i < len(counts) {
				cum += counts[i]
			}
			_, _ = fmt.Fprintf(w, "proxy_request_duration_seconds_bucket{outcome=\"%s\",le=\"%g\"} %d\n", outcome, b, cum)
		}
		// +Inf bucket
		total := m.HistTotal[outcome]
		_, _ = fmt.Fprintf(w, "proxy_request_duration_seconds_bucket{outcome=\"%s\",le=\"+Inf\"} %d\n", outcome, total)
		_, _ = fmt.Fprintf(w, "proxy_request_duration_seconds_sum{outcome=\"%s\"} %g\n", outcome, m.HistSum[outcome])
		_, _ = fmt.Fprintf(w, "proxy_request_duration_seconds_count{outcome=\"%s\"} %d\n\n", outcome, total)
	}
	m.Unlock()
}
