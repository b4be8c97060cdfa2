package spdy

import (
	"errors"
	"net/http"
	"strings"

	"github.com/twitter-archive/spdy/frame"
)

// ErrMissingPath is returned by RequestHeader when the request URL has
// no path to put in the required :path pseudo-header.
var ErrMissingPath = errors.New("spdy: request has no path")

// RequestHeader canonicalizes r into the frame.Header a SYN_STREAM
// carries: the five required pseudo-headers spec section 3 names
// (":method", ":scheme", ":path", ":host", ":version"), lowercased
// field names, and every hop-by-hop field stripped. Grounded on
// kr-spdy's header-canonicalization half of request.go/transfer.go
// (which mixed outgoing-request canonicalization with a server-only
// ReadRequest this package has no use for); spec section 6 requires
// this check to fail locally before a SYN_STREAM is ever sent, rather
// than waiting for the peer to reject it.
func RequestHeader(r *http.Request) (frame.Header, error) {
	host := r.Host
	if host == "" {
		host = r.URL.Host
	}
	if host == "" {
		return nil, errors.New("spdy: request has no host")
	}
	path := r.URL.Path
	if r.URL.RawQuery != "" {
		path += "?" + r.URL.RawQuery
	}
	if path == "" {
		return nil, ErrMissingPath
	}
	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "https"
	}
	proto := r.Proto
	if proto == "" {
		proto = "HTTP/1.1"
	}
	method := r.Method
	if method == "" {
		method = "GET"
	}

	plain := make(http.Header, len(r.Header)+5)
	copyHeader(plain, r.Header)
	stripHopByHop(plain)

	h := make(frame.Header, len(plain)+5)
	for k, vv := range plain {
		lk := strings.ToLower(k)
		h[lk] = append(h[lk], vv...)
	}
	h[":method"] = []string{method}
	h[":scheme"] = []string{scheme}
	h[":path"] = []string{path}
	h[":host"] = []string{host}
	h[":version"] = []string{proto}
	return h, nil
}
