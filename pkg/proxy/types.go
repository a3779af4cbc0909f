// pkg/proxy/types.go
package proxy

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jnovack/proxy-cache/pkg/cache"
)

// Outcome labels used in metrics, logs and request records.
const (
	OutcomeHit            = "HIT"
	OutcomeMiss           = "MISS"
	OutcomeBadRequest     = "BAD_REQUEST"
	OutcomeNotImplemented = "NOT_IMPLEMENTED"
	OutcomeUpstreamError  = "UPSTREAM_ERROR"
	OutcomeDisconnect     = "DISCONNECT"
)

// Defaults applied by Config.withDefaults.
const (
	DefaultAddr           = ":8080"
	DefaultMaxClients     = 400
	DefaultMaxHeaderBytes = 64 << 10
	DefaultDialTimeout    = 15 * time.Second
	DefaultIOTimeout      = 120 * time.Second
	DefaultCaptureSize    = 1000
)

// readChunkSize is the unit for client header reads and upstream response reads.
const readChunkSize = 4096

// RequestRecord represents one handled request, captured for in-memory
// inspection or later persistence.
type RequestRecord struct {
	Time        time.Time `json:"time"`
	URL         string    `json:"url"`
	Method      string    `json:"method"`
	Host        string    `json:"host"`
	Path        string    `json:"path"`
	Outcome     string    `json:"outcome"` // HIT, MISS, BAD_REQUEST, NOT_IMPLEMENTED, UPSTREAM_ERROR, DISCONNECT
	LatencySecs float64   `json:"latency_secs"`
	Size        int64     `json:"size_bytes"`
	Status      int       `json:"status"`
	Cached      bool      `json:"cached"`
}

type ConnectionIDKey struct{}
type RequestIDKey struct{}

// RequestObserver receives RequestRecords. Observers are invoked
// asynchronously by NotifyObserver and should still be fast.
type RequestObserver func(RequestRecord)

// Metrics is the minimal interface of counters, inflight tracking and
// histograms the worker reports into. The concrete admin/metrics
// implementation provides these methods.
type Metrics interface {
	IncTotalRequests()
	IncHit()
	IncMiss()
	IncBadRequest()
	IncNotImplemented()
	IncUpstreamErrors()
	IncCacheRejected()
	IncDisconnects()
	InflightAdd(id string)
	InflightRemove(id string)
	ObserveDuration(string, float64)
}

// Config holds the proxy server's behavior knobs. Zero fields fall back to
// the package defaults (and the cache package's defaults for the store).
type Config struct {
	Addr               string
	MaxClients         int
	CacheCapacityBytes int64
	CacheMaxEntryBytes int64
	MaxHeaderBytes     int
	DialTimeout        time.Duration
	IOTimeout          time.Duration
	CaptureSize        int

	Metrics         Metrics
	RequestObserver RequestObserver
}

func (c Config) withDefaults() Config {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.MaxClients <= 0 {
		c.MaxClients = DefaultMaxClients
	}
	if c.CacheCapacityBytes <= 0 {
		c.CacheCapacityBytes = cache.DefaultCapacityBytes
	}
	if c.CacheMaxEntryBytes <= 0 {
		c.CacheMaxEntryBytes = cache.DefaultMaxEntryBytes
	}
	if c.MaxHeaderBytes <= 0 {
		c.MaxHeaderBytes = DefaultMaxHeaderBytes
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = DefaultIOTimeout
	}
	if c.CaptureSize <= 0 {
		c.CaptureSize = DefaultCaptureSize
	}
	return c
}

// NotifyObserver invokes an observer asynchronously. A panicking observer
// must not reach the worker goroutine.
func NotifyObserver(obs RequestObserver, rec RequestRecord) {
	if obs == nil {
		return
	}
	go func(r RequestRecord) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("panic", err).
					Str("record_url", r.URL).
					Str("record_method", r.Method).
					Str("record_outcome", r.Outcome).
					Msg("observer panicked")
			}
		}()
		obs(r)
	}(rec)
}
