// pkg/proxy/conn.go
package proxy

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/proxy-cache/pkg/httpwire"
)

// serveConn runs the per-connection state machine: read the raw request
// head, replay from cache on a hit, otherwise parse and forward. At most one
// response is written per connection; clean disconnects and mid-relay
// failures write nothing further.
func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	start := time.Now()

	reqID := uuid.Must(uuid.NewV7())
	ctx = context.WithValue(ctx, RequestIDKey{}, reqID)
	logger := log.Ctx(ctx).With().Str("request_id", reqID.String()).Logger()
	ctx = logger.WithContext(ctx)

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncTotalRequests()
	}

	raw, err := readRawRequest(conn, s.cfg.MaxHeaderBytes)
	if err != nil {
		if errors.Is(err, io.EOF) {
			if s.cfg.Metrics != nil {
				s.cfg.Metrics.IncDisconnects()
				s.cfg.Metrics.ObserveDuration(OutcomeDisconnect, time.Since(start).Seconds())
			}
			NotifyObserver(s.cfg.RequestObserver, RequestRecord{
				Time:        time.Now(),
				Outcome:     OutcomeDisconnect,
				LatencySecs: time.Since(start).Seconds(),
			})
			log.Ctx(ctx).Debug().Msg("client disconnected before sending a request")
			return
		}

		// oversized, truncated or unreadable request head
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncBadRequest()
			s.cfg.Metrics.ObserveDuration(OutcomeBadRequest, time.Since(start).Seconds())
		}
		if _, werr := conn.Write(httpwire.ErrorPage(http.StatusBadRequest)); werr != nil {
			log.Ctx(ctx).Debug().Err(werr).Msg("error page write failed")
		}
		NotifyObserver(s.cfg.RequestObserver, RequestRecord{
			Time:        time.Now(),
			Outcome:     OutcomeBadRequest,
			LatencySecs: time.Since(start).Seconds(),
			Status:      http.StatusBadRequest,
		})
		log.Ctx(ctx).Debug().Err(err).Msg("failed to read request head")
		return
	}

	if payload, ok := s.cache.Get(string(raw)); ok {
		method, target := requestLineFields(raw)
		n, werr := conn.Write(payload)
		if werr != nil {
			log.Ctx(ctx).Debug().Err(werr).Msg("cache replay write failed")
		}
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncHit()
			s.cfg.Metrics.ObserveDuration(OutcomeHit, time.Since(start).Seconds())
		}
		NotifyObserver(s.cfg.RequestObserver, RequestRecord{
			Time:        time.Now(),
			URL:         target,
			Method:      method,
			Outcome:     OutcomeHit,
			LatencySecs: time.Since(start).Seconds(),
			Size:        int64(n),
			Status:      responseStatus(payload),
			Cached:      true,
		})
		log.Ctx(ctx).Info().
			Str("url", target).
			Str("outcome", OutcomeHit).
			Dur("latency", time.Since(start)).
			Msg("served")
		return
	}

	req, perr := httpwire.ParseRequest(raw)
	if perr != nil {
		method, target := requestLineFields(raw)
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncBadRequest()
			s.cfg.Metrics.ObserveDuration(OutcomeBadRequest, time.Since(start).Seconds())
		}
		if _, werr := conn.Write(httpwire.ErrorPage(http.StatusBadRequest)); werr != nil {
			log.Ctx(ctx).Debug().Err(werr).Msg("error page write failed")
		}
		NotifyObserver(s.cfg.RequestObserver, RequestRecord{
			Time:        time.Now(),
			URL:         target,
			Method:      method,
			Outcome:     OutcomeBadRequest,
			LatencySecs: time.Since(start).Seconds(),
			Status:      http.StatusBadRequest,
		})
		log.Ctx(ctx).Debug().Err(perr).Msg("unparseable request")
		return
	}

	if req.Method != http.MethodGet {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncNotImplemented()
			s.cfg.Metrics.ObserveDuration(OutcomeNotImplemented, time.Since(start).Seconds())
		}
		if _, werr := conn.Write(httpwire.ErrorPage(http.StatusNotImplemented)); werr != nil {
			log.Ctx(ctx).Debug().Err(werr).Msg("error page write failed")
		}
		NotifyObserver(s.cfg.RequestObserver, RequestRecord{
			Time:        time.Now(),
			URL:         req.URL(),
			Method:      req.Method,
			Host:        req.Host,
			Path:        req.Path,
			Outcome:     OutcomeNotImplemented,
			LatencySecs: time.Since(start).Seconds(),
			Status:      http.StatusNotImplemented,
		})
		log.Ctx(ctx).Info().
			Str("method", req.Method).
			Str("url", req.URL()).
			Str("outcome", OutcomeNotImplemented).
			Msg("method not implemented")
		return
	}

	res, ferr := s.forwardOrigin(ctx, conn, req, raw)
	if ferr != nil {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncUpstreamErrors()
			s.cfg.Metrics.ObserveDuration(OutcomeUpstreamError, time.Since(start).Seconds())
		}
		status := 0
		if !res.relayed {
			status = http.StatusInternalServerError
			if _, werr := conn.Write(httpwire.ErrorPage(status)); werr != nil {
				log.Ctx(ctx).Debug().Err(werr).Msg("error page write failed")
			}
		}
		NotifyObserver(s.cfg.RequestObserver, RequestRecord{
			Time:        time.Now(),
			URL:         req.URL(),
			Method:      req.Method,
			Host:        req.Host,
			Path:        req.Path,
			Outcome:     OutcomeUpstreamError,
			LatencySecs: time.Since(start).Seconds(),
			Size:        res.clientBytes,
			Status:      status,
		})
		log.Ctx(ctx).Error().
			Err(ferr).
			Str("url", req.URL()).
			Bool("relayed", res.relayed).
			Msg("origin fetch failed")
		return
	}

	if s.cfg.Metrics != nil {
		s.cfg.Metrics.IncMiss()
		s.cfg.Metrics.ObserveDuration(OutcomeMiss, time.Since(start).Seconds())
	}
	NotifyObserver(s.cfg.RequestObserver, RequestRecord{
		Time:        time.Now(),
		URL:         req.URL(),
		Method:      req.Method,
		Host:        req.Host,
		Path:        req.Path,
		Outcome:     OutcomeMiss,
		LatencySecs: time.Since(start).Seconds(),
		Size:        res.clientBytes,
		Status:      res.status,
		Cached:      res.cached,
	})
	log.Ctx(ctx).Info().
		Str("url", req.URL()).
		Str("outcome", OutcomeMiss).
		Bool("cached", res.cached).
		Dur("latency", time.Since(start)).
		Msg("served")
}

// readRawRequest accumulates client bytes until the blank line ending the
// headers and returns the request head including the terminator. It fails
// with ErrHeaderTooLarge past maxBytes and io.ErrUnexpectedEOF when the
// client stops mid-request; a disconnect before any bytes is io.EOF.
func readRawRequest(conn io.Reader, maxBytes int) ([]byte, error) {
	var acc bytes.Buffer
	buf := make([]byte, readChunkSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			acc.Write(buf[:n])
			if idx := bytes.Index(acc.Bytes(), []byte("\r\n\r\n")); idx >= 0 {
				head := make([]byte, idx+4)
				copy(head, acc.Bytes())
				return head, nil
			}
			if acc.Len() > maxBytes {
				return nil, errors.WithMessagef(ErrHeaderTooLarge, "%d bytes accumulated", acc.Len())
			}
		}
		if err != nil {
			if err == io.EOF {
				if acc.Len() == 0 {
					return nil, io.EOF
				}
				return nil, errors.WithMessage(io.ErrUnexpectedEOF, "connection closed mid-request")
			}
			return nil, err
		}
	}
}

// requestLineFields returns the method and target tokens of the raw request
// line, for logs and records on paths that never parse the request.
func requestLineFields(raw []byte) (method, target string) {
	line := raw
	if idx := bytes.IndexByte(line, '\r'); idx >= 0 {
		line = line[:idx]
	}
	parts := strings.SplitN(string(line), " ", 3)
	if len(parts) > 0 {
		method = parts[0]
	}
	if len(parts) > 1 {
		target = parts[1]
	}
	return method, target
}
