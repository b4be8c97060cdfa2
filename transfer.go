package spdy

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// SPDY/3.1 prohibits these fields on the wire; spec section 6: "Hop-by-hop
// headers MUST be removed (Connection, Keep-Alive, Proxy-Connection,
// Transfer-Encoding, Host replaced by :host)". Must be in canonicalized
// form to match against a canonicalized http.Header.
var hopByHopHeaderFields = []string{
	"Connection",
	"Host",
	"Keep-Alive",
	"Proxy-Connection",
	"Transfer-Encoding",
}

// stripHopByHop deletes the fields SPDY forbids from h in place.
func stripHopByHop(h http.Header) {
	for _, f := range hopByHopHeaderFields {
		h.Del(f)
	}
}

// copyHeader copies every field of src into dst, appending to any
// values already present (mirrors net/http's own header-copy idiom).
func copyHeader(dst, src http.Header) {
	for k, vv := range src {
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}

// badStringError is returned for a malformed status line or
// Content-Length value, mirroring net/http's internal error shape.
type badStringError struct {
	what string
	str  string
}

func (e *badStringError) Error() string { return fmt.Sprintf("%s %q", e.what, e.str) }

// parseContentLength trims whitespace from cl and returns -1 if no
// value is set, or the value if it's >= 0.
func parseContentLength(cl string) (int64, error) {
	cl = strings.TrimSpace(cl)
	if cl == "" {
		return -1, nil
	}
	n, err := strconv.ParseInt(cl, 10, 64)
	if err != nil || n < 0 {
		return 0, &badStringError{"bad Content-Length", cl}
	}
	return n, nil
}

// noBodyExpected reports whether requestMethod never carries a
// response body, per RFC 2616 section 4.4.
func noBodyExpected(requestMethod string) bool {
	return requestMethod == "HEAD"
}

// fixLength determines the expected response body length using RFC
// 2616 section 4.4, the same rule kr-spdy's fixLength applied to both
// ReadRequest and ReadResponse; only the response side survives here
// since reading a request is a server-role operation the spec's
// Non-goals exclude.
func fixLength(status int, requestMethod string, h http.Header) (int64, error) {
	if noBodyExpected(requestMethod) {
		return 0, nil
	}
	if status/100 == 1 {
		return 0, nil
	}
	switch status {
	case 204, 304:
		return 0, nil
	}
	cl := strings.TrimSpace(h.Get("Content-Length"))
	if cl != "" {
		n, err := parseContentLength(cl)
		if err != nil {
			return -1, err
		}
		return n, nil
	}
	h.Del("Content-Length")
	return -1, nil
}
