// pkg/proxy/errors.go
package proxy

import "github.com/pkg/errors"

// Sentinels classifying why a request could not be served. Callers match
// with errors.Is; wrapped messages carry the host and the underlying cause.
var (
	// ErrDNSFailure reports a failed origin host resolution.
	ErrDNSFailure = errors.New("origin dns lookup failed")
	// ErrConnectFailure reports a failed TCP connect to a resolved origin.
	ErrConnectFailure = errors.New("origin connect failed")
	// ErrUpstreamIO reports a send or receive failure on an established
	// origin connection.
	ErrUpstreamIO = errors.New("origin i/o failed")
	// ErrClientWrite reports a failed relay write to the client.
	ErrClientWrite = errors.New("client write failed")
	// ErrHeaderTooLarge reports a request head exceeding the configured cap.
	ErrHeaderTooLarge = errors.New("request headers exceed limit")
)
