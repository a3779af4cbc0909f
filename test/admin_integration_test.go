//go:build integration

package test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jnovack/proxy-cache/internal/helpers"
	"github.com/jnovack/proxy-cache/pkg/admin"
	"github.com/jnovack/proxy-cache/pkg/proxy"
)

// newAdminServer wires the admin router the same way cmd/proxy-cache does.
func newAdminServer(t *testing.T, s *proxy.Server, m *admin.Metrics) *httptest.Server {
	t.Helper()
	view := func() admin.StatusView {
		st := s.Status()
		return admin.StatusView{
			Addr:          st.Addr,
			ActiveWorkers: st.ActiveWorkers,
			MaxClients:    st.MaxClients,
			CacheEntries:  st.Cache.Entries,
			CacheBytes:    st.Cache.Bytes,
			CacheCapacity: st.Cache.Capacity,
		}
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", admin.HandleHealth).Methods("GET")
	r.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		admin.HandleMetrics(w, m, view())
	}).Methods("GET")
	r.HandleFunc("/statusz", func(w http.ResponseWriter, _ *http.Request) {
		admin.HandleStatusz(w, m, view())
	}).Methods("GET")
	r.HandleFunc("/requests", func(w http.ResponseWriter, _ *http.Request) {
		admin.HandleRequests(w, s.Capture.List())
	}).Methods("GET")
	r.HandleFunc("/requests", func(w http.ResponseWriter, _ *http.Request) {
		s.Capture.Clear()
		w.WriteHeader(http.StatusNoContent)
	}).Methods("DELETE")

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err, "GET %s", url)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err, "read %s body", url)
	return resp.StatusCode, string(b)
}

func TestAdminSurface(t *testing.T) {
	origin := helpers.NewOrigin(t, "admin-body")
	m := admin.NewMetrics()
	s := startProxy(t, proxy.Config{Metrics: m})
	adminSrv := newAdminServer(t, s, m)

	// drive one miss and one hit through the proxy
	fetchOnce(t, s.Addr().String(), origin.Addr(), "/x")
	fetchOnce(t, s.Addr().String(), origin.Addr(), "/x")

	code, _ := get(t, adminSrv.URL+"/healthz")
	require.Equal(t, http.StatusOK, code)

	code, metricsBody := get(t, adminSrv.URL+"/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, metricsBody, "proxy_requests_total 2")
	assert.Contains(t, metricsBody, "proxy_cache_hits_total 1")
	assert.Contains(t, metricsBody, "proxy_cache_misses_total 1")
	assert.Contains(t, metricsBody, "proxy_cache_entries 1")

	code, statusBody := get(t, adminSrv.URL+"/statusz")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, statusBody, "1 entries")
	assert.Contains(t, statusBody, s.Addr().String())

	// records land asynchronously before /requests can see them
	require.Eventually(t, func() bool {
		return len(s.Capture.List()) == 2
	}, 2*time.Second, 10*time.Millisecond, "expected 2 captured records")

	code, reqBody := get(t, adminSrv.URL+"/requests")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, reqBody, `"MISS"`)
	assert.Contains(t, reqBody, `"HIT"`)

	// DELETE clears the ring
	req, err := http.NewRequest(http.MethodDelete, adminSrv.URL+"/requests", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Empty(t, s.Capture.List())

	// the router rejects methods the endpoints do not declare
	req, err = http.NewRequest(http.MethodDelete, adminSrv.URL+"/metrics", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
