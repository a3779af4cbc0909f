package httpwire

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"testing"
)

func TestErrorPageWireFormat(t *testing.T) {
	for _, status := range []int{400, 403, 404, 500, 501, 505} {
		page := string(ErrorPage(status))

		wantLine := "HTTP/1.1 " + strconv.Itoa(status) + " " + http.StatusText(status) + "\r\n"
		if !strings.HasPrefix(page, wantLine) {
			t.Fatalf("status %d: bad status line, got %q", status, page[:len(wantLine)])
		}

		head, body, ok := strings.Cut(page, "\r\n\r\n")
		if !ok {
			t.Fatalf("status %d: missing header terminator", status)
		}
		if !strings.Contains(head, "Connection: close\r\n") {
			t.Fatalf("status %d: missing Connection: close", status)
		}
		if !strings.Contains(head, "Date: ") {
			t.Fatalf("status %d: missing Date header", status)
		}
		if !strings.Contains(head, "Content-Length: "+strconv.Itoa(len(body))) {
			t.Fatalf("status %d: Content-Length does not match body (%d bytes)", status, len(body))
		}
		if !strings.Contains(body, strconv.Itoa(status)) {
			t.Fatalf("status %d: body should name the status code", status)
		}
	}
}

func TestErrorPageParsesAsHTTPResponse(t *testing.T) {
	page := ErrorPage(501)

	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(page)), nil)
	if err != nil {
		t.Fatalf("error page is not a valid HTTP response: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 501 {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if resp.ContentLength != int64(len(body)) {
		t.Fatalf("content length %d does not match body %d", resp.ContentLength, len(body))
	}
}

func TestErrorPageUnknownStatusFallsBack(t *testing.T) {
	page := string(ErrorPage(418))
	if !strings.HasPrefix(page, "HTTP/1.1 418 ") {
		t.Fatalf("unexpected status line: %q", page)
	}
}
