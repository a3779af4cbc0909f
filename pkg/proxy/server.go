// Package proxy implements a forward HTTP proxy that serves GET requests
// from a bounded in-memory LRU cache, forwarding misses to origin servers
// over one-shot Connection: close upstream connections. Concurrency is
// bounded by an admission gate; the raw request bytes are the cache key.
package proxy

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/proxy-cache/pkg/admission"
	"github.com/jnovack/proxy-cache/pkg/cache"
)

// Server accepts proxy connections and runs one worker goroutine per
// connection, bounded by the admission gate.
type Server struct {
	cfg   Config
	cache *cache.Store
	gate  *admission.Gate

	ln           net.Listener
	done         chan struct{}
	shutdownOnce sync.Once

	Capture *RecentRequests
}

// New builds a Server from cfg; zero fields fall back to defaults.
func New(cfg Config) *Server {
	cfg = cfg.withDefaults()
	return &Server{
		cfg:   cfg,
		cache: cache.New(cfg.CacheCapacityBytes, cfg.CacheMaxEntryBytes),
		gate:  admission.New(cfg.MaxClients),
	}
}

// Start begins listening and serving until Close is called or the listener fails.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	s.done = make(chan struct{})

	// ensure a capture ring exists and chain it onto any existing observer
	if s.Capture == nil {
		s.Capture = NewRecentRequests(s.cfg.CaptureSize)
	}
	prev := s.cfg.RequestObserver
	if prev == nil {
		s.cfg.RequestObserver = s.Capture.Add
	} else {
		s.cfg.RequestObserver = func(r RequestRecord) {
			prev(r)
			s.Capture.Add(r)
		}
	}

	go s.acceptLoop()
	log.Info().
		Str("addr", s.ln.Addr().String()).
		Int("max_clients", s.gate.Capacity()).
		Msg("proxy server started")
	return nil
}

// Close stops the listener and signals the accept loop to stop. In-flight
// workers run to their terminal states.
func (s *Server) Close() error {
	s.shutdownOnce.Do(func() {
		if s.ln != nil {
			_ = s.ln.Close()
		}
		if s.done != nil {
			close(s.done)
		}
	})
	return nil
}

// Addr reports the bound listener address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Status is a point-in-time view of the server for the admin surface.
type Status struct {
	Addr          string      `json:"addr"`
	ActiveWorkers int         `json:"active_workers"`
	MaxClients    int         `json:"max_clients"`
	Cache         cache.Stats `json:"cache"`
}

// Status reports gate occupancy and cache occupancy.
func (s *Server) Status() Status {
	st := Status{
		ActiveWorkers: s.gate.InUse(),
		MaxClients:    s.gate.Capacity(),
		Cache:         s.cache.Stats(),
	}
	if s.ln != nil {
		st.Addr = s.ln.Addr().String()
	}
	return st
}

func (s *Server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			select {
			case <-s.done:
				log.Debug().Err(err).Msg("listener closed, exiting accept loop")
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				log.Debug().Err(err).Msg("listener closed, exiting accept loop")
				return
			}
			log.Warn().Err(err).Msg("accept error, retrying")
			time.Sleep(50 * time.Millisecond)
			continue
		}
		go s.handleConn(conn)
	}
}

// handleConn owns one client connection: admission slot, I/O deadline,
// connection-scoped logger, then the worker. The socket is closed and the
// slot released on every path, in that order.
func (s *Server) handleConn(conn net.Conn) {
	s.gate.Acquire()
	defer s.gate.Release()
	defer conn.Close()

	connID := uuid.Must(uuid.NewV7())
	logger := log.With().Str("connection_id", connID.String()).Logger()
	ctx := context.WithValue(logger.WithContext(context.Background()), ConnectionIDKey{}, connID)

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.InflightAdd(connID.String())
		defer s.cfg.Metrics.InflightRemove(connID.String())
	}

	_ = conn.SetDeadline(time.Now().Add(s.cfg.IOTimeout))

	log.Ctx(ctx).Debug().Str("remote", conn.RemoteAddr().String()).Msg("connection admitted")
	s.serveConn(ctx, conn)
}
