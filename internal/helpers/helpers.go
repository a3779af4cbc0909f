package helpers

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

// --- Minimal metrics stub to satisfy proxy.Metrics ---

type NopMetrics struct{}

func (NopMetrics) IncTotalRequests()                   {}
func (NopMetrics) IncHit()                             {}
func (NopMetrics) IncMiss()                            {}
func (NopMetrics) IncBadRequest()                      {}
func (NopMetrics) IncNotImplemented()                  {}
func (NopMetrics) IncUpstreamErrors()                  {}
func (NopMetrics) IncCacheRejected()                   {}
func (NopMetrics) IncDisconnects()                     {}
func (NopMetrics) InflightAdd(_ string)                {}
func (NopMetrics) InflightRemove(_ string)             {}
func (NopMetrics) ObserveDuration(_ string, _ float64) {}

// Origin is a bare TCP HTTP origin for proxy tests. It serves a fixed
// response to every connection and counts how many connections it accepted.
type Origin struct {
	ln    net.Listener
	conns int64
}

// NewOrigin starts an origin answering every request with a 200 carrying body.
func NewOrigin(t *testing.T, body string) *Origin {
	t.Helper()
	response := fmt.Sprintf(
		"HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(body), body)
	return NewRawOrigin(t, response)
}

// NewRawOrigin starts an origin that reads one request head, writes exactly
// response, and closes.
func NewRawOrigin(t *testing.T, response string) *Origin {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "listen origin")
	t.Cleanup(func() { _ = ln.Close() })

	o := &Origin{ln: ln}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			atomic.AddInt64(&o.conns, 1)
			go func(c net.Conn) {
				defer c.Close()
				br := bufio.NewReader(c)
				for {
					line, err := br.ReadString('\n')
					if err != nil || line == "\r\n" {
						break
					}
				}
				_, _ = io.WriteString(c, response)
			}(conn)
		}
	}()
	return o
}

// Addr returns the origin's host:port.
func (o *Origin) Addr() string { return o.ln.Addr().String() }

// Connections reports how many connections the origin has accepted so far.
func (o *Origin) Connections() int64 { return atomic.LoadInt64(&o.conns) }

// SendProxyRequest writes an absolute-form HTTP/1.1 request for originAddr
// over w, the way proxy clients address origins.
func SendProxyRequest(t *testing.T, w io.Writer, method, originAddr, path string) {
	t.Helper()
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req := fmt.Sprintf("%s http://%s%s HTTP/1.1\r\nHost: %s\r\nConnection: close\r\n\r\n",
		method, originAddr, path, originAddr)
	_, err := io.WriteString(w, req)
	require.NoError(t, err, "write HTTP request")
}

// ReadHTTPResponse parses an HTTP/1.1 response from r.
func ReadHTTPResponse(t *testing.T, r *bufio.Reader) *http.Response {
	t.Helper()
	resp, err := http.ReadResponse(r, nil)
	require.NoError(t, err, "read HTTP response")
	return resp
}
