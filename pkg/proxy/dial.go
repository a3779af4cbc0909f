// pkg/proxy/dial.go
package proxy

import (
	"context"
	"net"
	"time"

	"github.com/pkg/errors"
)

// dialOrigin resolves host and opens a TCP connection to its first address.
// Resolution and connect failures stay distinguishable through ErrDNSFailure
// and ErrConnectFailure. One attempt, no retries; timeout bounds each step.
func dialOrigin(ctx context.Context, host, port string, timeout time.Duration) (net.Conn, error) {
	resolveCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addrs, err := net.DefaultResolver.LookupIPAddr(resolveCtx, host)
	if err != nil {
		return nil, errors.WithMessagef(ErrDNSFailure, "resolve %q: %v", host, err)
	}
	if len(addrs) == 0 {
		return nil, errors.WithMessagef(ErrDNSFailure, "resolve %q: no addresses", host)
	}

	target := net.JoinHostPort(addrs[0].IP.String(), port)
	conn, err := net.DialTimeout("tcp", target, timeout)
	if err != nil {
		return nil, errors.WithMessagef(ErrConnectFailure, "connect %s: %v", target, err)
	}
	return conn, nil
}
