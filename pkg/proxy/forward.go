// pkg/proxy/forward.go
package proxy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/proxy-cache/pkg/httpwire"
)

// forwardResult reports what the relay accomplished before returning.
type forwardResult struct {
	relayed     bool  // response bytes reached (or were attempted toward) the client
	clientBytes int64 // response bytes delivered to the client
	status      int   // upstream status code, 0 when unreadable
	cached      bool  // buffered response admitted to the cache
}

// forwardOrigin fetches req from its origin: rebuild the outbound request,
// send it, stream the response to client chunk by chunk while buffering it,
// and on a clean upstream EOF offer the buffer to the cache under rawKey.
// The upstream connection is closed on every path. A non-nil error with
// res.relayed == false means the client has received nothing and may still
// be sent an error page; once relaying started the connection is past
// salvage and the caller must just close it.
func (s *Server) forwardOrigin(ctx context.Context, client io.Writer, req *httpwire.Request, rawKey []byte) (forwardResult, error) {
	var res forwardResult

	upstream, err := dialOrigin(ctx, req.Host, req.TargetPort(), s.cfg.DialTimeout)
	if err != nil {
		return res, err
	}
	defer upstream.Close()
	_ = upstream.SetDeadline(time.Now().Add(s.cfg.IOTimeout))

	if _, err := upstream.Write(buildOriginRequest(req)); err != nil {
		return res, errors.WithMessagef(ErrUpstreamIO, "send request to %s: %v", req.HostHeader(), err)
	}

	var body bytes.Buffer
	buf := make([]byte, readChunkSize)
	for {
		n, rerr := upstream.Read(buf)
		if n > 0 {
			res.relayed = true
			wn, werr := client.Write(buf[:n])
			res.clientBytes += int64(wn)
			if werr != nil {
				return res, errors.WithMessagef(ErrClientWrite, "relay to client: %v", werr)
			}
			body.Write(buf[:n])
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return res, errors.WithMessagef(ErrUpstreamIO, "read response from %s: %v", req.HostHeader(), rerr)
		}
	}

	res.status = responseStatus(body.Bytes())
	res.cached = s.cache.Put(string(rawKey), body.Bytes())
	if !res.cached {
		if s.cfg.Metrics != nil {
			s.cfg.Metrics.IncCacheRejected()
		}
		log.Ctx(ctx).Debug().
			Str("url", req.URL()).
			Int("size", body.Len()).
			Msg("response too large to cache")
	}
	return res, nil
}

// buildOriginRequest rebuilds the wire request for the origin: the parsed
// request line, the client headers minus Connection and Host, then the
// proxy-owned Host and Connection: close.
func buildOriginRequest(req *httpwire.Request) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s %s\r\n", req.Method, req.Path, req.Version)
	for _, h := range req.Headers {
		if strings.EqualFold(h.Name, "Connection") || strings.EqualFold(h.Name, "Host") {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	fmt.Fprintf(&b, "Host: %s\r\n", req.HostHeader())
	b.WriteString("Connection: close\r\n\r\n")
	return b.Bytes()
}

// responseStatus extracts the status code from raw response bytes, 0 when it
// cannot be read.
func responseStatus(raw []byte) int {
	line := raw
	if idx := bytes.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	parts := bytes.SplitN(line, []byte(" "), 3)
	if len(parts) < 2 {
		return 0
	}
	code, err := strconv.Atoi(string(bytes.TrimSpace(parts[1])))
	if err != nil {
		return 0
	}
	return code
}
