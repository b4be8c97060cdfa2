package spdy

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/twitter-archive/spdy/frame"
)

// ReadResponse builds an *http.Response from a SYN_REPLY's decoded
// header set. body, if non-nil, becomes resp.Body; a nil body is
// replaced with one that reads as empty, matching kr-spdy's
// ReadResponse/eofReader fallback for a reply with no DATA to follow.
// Grounded on kr-spdy's response.go, adjusted for this package's own
// frame.Header type and a three-argument signature that actually
// matches what conn.go calls it with (kr-spdy's own conn.go and
// response.go disagreed on arity).
func ReadResponse(h frame.Header, body io.ReadCloser, req *http.Request) (*http.Response, error) {
	resp := new(http.Response)
	resp.Header = make(http.Header)
	for k, vv := range h {
		if strings.HasPrefix(k, ":") {
			continue
		}
		for _, v := range vv {
			resp.Header.Add(k, v)
		}
	}

	status := first(h, ":status")
	if status == "" {
		return nil, &badStringError{"missing :status", ""}
	}
	resp.Status = status
	f := strings.SplitN(status, " ", 2)
	code, err := strconv.Atoi(f[0])
	if err != nil {
		return nil, &badStringError{"malformed HTTP status code", status}
	}
	resp.StatusCode = code
	if len(f) == 2 {
		resp.Status = f[0] + " " + f[1]
	}

	proto := first(h, ":version")
	if proto == "" {
		proto = "HTTP/1.1"
	}
	resp.Proto = proto
	var ok bool
	resp.ProtoMajor, resp.ProtoMinor, ok = http.ParseHTTPVersion(proto)
	if !ok {
		return nil, &badStringError{"malformed HTTP version", proto}
	}

	method := ""
	if req != nil {
		method = req.Method
	}
	cl, err := fixLength(resp.StatusCode, method, resp.Header)
	if err != nil {
		return nil, err
	}
	// A reply to HEAD has no body, but its Content-Length still describes
	// the resource, so it is reported the way net/http reports it.
	if method == "HEAD" {
		if cl, err = parseContentLength(resp.Header.Get("Content-Length")); err != nil {
			return nil, err
		}
	}
	resp.ContentLength = cl
	resp.Close = true

	if body == nil {
		body = http.NoBody
	}
	resp.Body = body
	resp.Request = req
	return resp, nil
}

// first returns the first value of h's pseudo-header k, or "".
func first(h frame.Header, k string) string {
	if vv := h[k]; len(vv) > 0 {
		return vv[0]
	}
	return ""
}
