package httpwire

import (
	"bytes"
	"fmt"
	"net/http"
	"time"
)

const serverName = "proxy-cache"

// pageDetails carries the one-line explanation rendered in each error body.
var pageDetails = map[int]string{
	http.StatusBadRequest:              "Your browser sent a request that this proxy could not understand.",
	http.StatusForbidden:               "You don't have permission to access this resource.",
	http.StatusNotFound:                "The requested resource was not found.",
	http.StatusInternalServerError:     "The proxy failed to fulfill the request.",
	http.StatusNotImplemented:          "The request method is not supported by this proxy.",
	http.StatusHTTPVersionNotSupported: "The HTTP version used in the request is not supported.",
}

// ErrorPage renders a complete HTTP/1.1 error response: status line, minimal
// headers (Content-Length, Content-Type, Connection: close, Date, Server)
// and a small HTML body.
func ErrorPage(status int) []byte {
	reason := http.StatusText(status)
	detail, ok := pageDetails[status]
	if !ok {
		detail = reason
	}
	body := fmt.Sprintf(
		"<html><head><title>%d %s</title></head><body><h1>%d %s</h1><p>%s</p></body></html>",
		status, reason, status, reason, detail,
	)

	var b bytes.Buffer
	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", status, reason)
	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(body))
	b.WriteString("Content-Type: text/html\r\n")
	b.WriteString("Connection: close\r\n")
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(http.TimeFormat))
	fmt.Fprintf(&b, "Server: %s\r\n", serverName)
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.Bytes()
}
