// Command proxy-cache runs the caching forward HTTP proxy and its admin
// endpoints.
package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/jnovack/flag"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/proxy-cache/pkg/admin"
	"github.com/jnovack/proxy-cache/pkg/logging"
	"github.com/jnovack/proxy-cache/pkg/proxy"
	"github.com/jnovack/proxy-cache/pkg/signals"
)

var (
	flagAddr           = flag.String("addr", ":8080", "proxy listen address")
	flagAdminAddr      = flag.String("admin-addr", ":8081", "admin HTTP listen address")
	flagMaxClients     = flag.Int("max-clients", 400, "max concurrently served connections")
	flagCacheCapacity  = flag.Int64("cache-capacity", 200<<20, "cache capacity in bytes")
	flagCacheMaxEntry  = flag.Int64("cache-max-entry", 10<<20, "largest cacheable entry in bytes")
	flagMaxHeaderBytes = flag.Int("max-header-bytes", 64<<10, "largest accepted request head in bytes")
	flagDialTimeout    = flag.Duration("dial-timeout", 15*time.Second, "origin resolve and connect timeout")
	flagIOTimeout      = flag.Duration("io-timeout", 120*time.Second, "client and origin I/O deadline")
	flagLogLevel       = flag.String("log-level", "info", "log level")
	flagCapture        = flag.Int("capture", 1000, "recent request records kept for /requests")
)

func statusView(s *proxy.Server) admin.StatusView {
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

func main() {
	flag.Parse()
	logging.Setup(*flagLogLevel)

	metrics := admin.NewMetrics()

	srv := proxy.New(proxy.Config{
		Addr:               *flagAddr,
		MaxClients:         *flagMaxClients,
		CacheCapacityBytes: *flagCacheCapacity,
		CacheMaxEntryBytes: *flagCacheMaxEntry,
		MaxHeaderBytes:     *flagMaxHeaderBytes,
		DialTimeout:        *flagDialTimeout,
		IOTimeout:          *flagIOTimeout,
		CaptureSize:        *flagCapture,
		Metrics:            metrics,
	})
	if err := srv.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start proxy server")
	}

	// Admin endpoints
	adminRouter := mux.NewRouter()
	adminRouter.HandleFunc("/healthz", admin.HandleHealth).Methods("GET")
	adminRouter.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		admin.HandleMetrics(w, metrics, statusView(srv))
	}).Methods("GET")
	adminRouter.HandleFunc("/statusz", func(w http.ResponseWriter, _ *http.Request) {
		admin.HandleStatusz(w, metrics, statusView(srv))
	}).Methods("GET")
	adminRouter.HandleFunc("/varz", func(w http.ResponseWriter, _ *http.Request) {
		admin.HandleVarz(w, map[string]any{
			"addr":             *flagAddr,
			"admin-addr":       *flagAdminAddr,
			"max-clients":      *flagMaxClients,
			"cache-capacity":   *flagCacheCapacity,
			"cache-max-entry":  *flagCacheMaxEntry,
			"max-header-bytes": *flagMaxHeaderBytes,
			"dial-timeout":     flagDialTimeout.String(),
			"io-timeout":       flagIOTimeout.String(),
			"capture":          *flagCapture,
		})
	}).Methods("GET")
	adminRouter.HandleFunc("/requests", func(w http.ResponseWriter, _ *http.Request) {
		admin.HandleRequests(w, srv.Capture.List())
	}).Methods("GET")
	adminRouter.HandleFunc("/requests", func(w http.ResponseWriter, _ *http.Request) {
		srv.Capture.Clear()
		w.WriteHeader(http.StatusNoContent)
	}).Methods("DELETE")

	adminSrv := &http.Server{Addr: *flagAdminAddr, Handler: adminRouter}
	go func() {
		log.Info().Str("addr", *flagAdminAddr).Msg("admin HTTP starting")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin HTTP failed")
		}
	}()

	stopCh := make(chan struct{})
	ctx := signals.Setup(stopCh)

	<-ctx.Done()
	log.Info().Msg("shutdown requested")

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shCtx)
	_ = srv.Close()
	log.Info().Msg("proxy-cache stopped")
}
