// Package httpwire parses raw HTTP/1.x requests off the wire and renders
// minimal HTTP responses. Parsing preserves header order and never rewrites
// the bytes it was given; callers that key on the raw request depend on that.
package httpwire

import (
	"net"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// ErrMalformedRequest reports bytes that do not form a valid HTTP/1.x request.
var ErrMalformedRequest = errors.New("malformed http request")

// Header is a single name/value pair in wire order.
type Header struct {
	Name  string
	Value string
}

// Request is a parsed HTTP/1.x proxy request. Host and Port come from an
// absolute-form target when present, otherwise from the Host header. Port is
// empty when the client named none.
type Request struct {
	Method  string
	Host    string
	Port    string
	Path    string
	Version string
	Headers []Header
}

// ParseRequest parses raw request bytes (request line through the blank line
// ending the headers). Both absolute-form targets (GET http://h/p HTTP/1.1)
// and origin-form targets with a Host header are accepted. Only HTTP/1.0 and
// HTTP/1.1 are valid versions. All failures wrap ErrMalformedRequest.
func ParseRequest(raw []byte) (*Request, error) {
	lines := strings.Split(string(raw), "\r\n")

	method, target, version, err := parseRequestLine(lines[0])
	if err != nil {
		return nil, err
	}
	req := &Request{Method: method, Version: version}

	for _, line := range lines[1:] {
		if line == "" {
			break
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, errors.Wrap(ErrMalformedRequest, "folded header line")
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return nil, errors.Wrapf(ErrMalformedRequest, "header line %q", line)
		}
		req.Headers = append(req.Headers, Header{Name: name, Value: strings.TrimSpace(value)})
	}

	if err := req.resolveTarget(target); err != nil {
		return nil, err
	}
	return req, nil
}

func parseRequestLine(line string) (method, target, version string, err error) {
	parts := strings.Split(line, " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return "", "", "", errors.Wrapf(ErrMalformedRequest, "request line %q", line)
	}
	if parts[2] != "HTTP/1.0" && parts[2] != "HTTP/1.1" {
		return "", "", "", errors.Wrapf(ErrMalformedRequest, "unsupported version %q", parts[2])
	}
	return parts[0], parts[1], parts[2], nil
}

// resolveTarget fills Host, Port and Path from the request target, falling
// back to the Host header for origin-form targets.
func (r *Request) resolveTarget(target string) error {
	if strings.HasPrefix(target, "/") {
		r.Path = target
	} else {
		u, err := url.Parse(target)
		if err != nil || u.Scheme != "http" || u.Host == "" {
			return errors.Wrapf(ErrMalformedRequest, "request target %q", target)
		}
		r.Host = u.Hostname()
		r.Port = u.Port()
		r.Path = u.RequestURI()
	}

	if r.Host == "" {
		value, ok := r.HeaderValue("Host")
		if !ok || value == "" {
			return errors.Wrap(ErrMalformedRequest, "no host in request target or Host header")
		}
		r.Host, r.Port = splitHostPort(value)
		if r.Host == "" {
			return errors.Wrapf(ErrMalformedRequest, "Host header %q", value)
		}
	}
	return nil
}

// splitHostPort splits "host", "host:port" or "[v6]:port". The port is empty
// when absent.
func splitHostPort(hostport string) (host, port string) {
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		return h, p
	}
	return strings.Trim(hostport, "[]"), ""
}

// HeaderValue returns the first value for name, matched case-insensitively.
func (r *Request) HeaderValue(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// TargetPort is the port to dial: the explicit request port, or 80.
func (r *Request) TargetPort() string {
	if r.Port != "" {
		return r.Port
	}
	return "80"
}

// HostHeader is the Host value for the upstream request: bare host on the
// default port, host:port otherwise.
func (r *Request) HostHeader() string {
	if r.Port != "" && r.Port != "80" {
		return net.JoinHostPort(r.Host, r.Port)
	}
	return r.Host
}

// URL reconstructs the absolute target for logs and request records.
func (r *Request) URL() string {
	return "http://" + r.HostHeader() + r.Path
}
