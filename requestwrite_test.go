package spdy

import (
	"io/ioutil"
	"net/http"
	"net/url"
	"reflect"
	"testing"

	"github.com/kr/pretty"

	"github.com/twitter-archive/spdy/frame"
)

type reqHeaderTest struct {
	Req        http.Request
	WantHeader frame.Header
	WantErr    error
}

var reqHeaderTests = []reqHeaderTest{
	// GET, no body: every header name canonicalized to lowercase, the
	// five pseudo-headers present, hop-by-hop fields stripped.
	{
		Req: http.Request{
			Method: "GET",
			URL: &url.URL{
				Scheme: "https",
				Host:   "www.techcrunch.com",
				Path:   "/",
			},
			Proto: "HTTP/1.1",
			Header: http.Header{
				"Accept":           {"text/html"},
				"Keep-Alive":       {"300"},
				"Proxy-Connection": {"keep-alive"},
				"Connection":       {"keep-alive"},
			},
			Host: "www.techcrunch.com",
		},
		WantHeader: frame.Header{
			":scheme":  {"https"},
			":method":  {"GET"},
			":path":    {"/"},
			":version": {"HTTP/1.1"},
			":host":    {"www.techcrunch.com"},
			"accept":   {"text/html"},
		},
	},

	// query string is folded into :path, matching the single combined
	// pseudo-header SPDY/3 carries (no separate :query field).
	{
		Req: http.Request{
			Method: "GET",
			URL: &url.URL{
				Scheme:   "http",
				Host:     "www.google.com",
				Path:     "/search",
				RawQuery: "q=spdy",
			},
			Host: "www.google.com",
		},
		WantHeader: frame.Header{
			":scheme":  {"http"},
			":method":  {"GET"},
			":path":    {"/search?q=spdy"},
			":version": {"HTTP/1.1"},
			":host":    {"www.google.com"},
		},
	},

	// POST with Content-Length.
	{
		Req: http.Request{
			Method: "POST",
			URL: &url.URL{
				Scheme: "https",
				Host:   "www.google.com",
				Path:   "/search",
			},
			Host:          "www.google.com",
			ContentLength: 6,
			Header: http.Header{
				"Content-Length": {"6"},
			},
		},
		WantHeader: frame.Header{
			":scheme":         {"https"},
			":method":         {"POST"},
			":path":           {"/search"},
			":version":        {"HTTP/1.1"},
			":host":           {"www.google.com"},
			"content-length": {"6"},
		},
	},

	// defaults: empty method becomes GET, empty proto becomes
	// HTTP/1.1, empty scheme becomes https.
	{
		Req: http.Request{
			URL:  &url.URL{Host: "www.google.com", Path: "/search"},
			Host: "www.google.com",
		},
		WantHeader: frame.Header{
			":scheme":  {"https"},
			":method":  {"GET"},
			":path":    {"/search"},
			":version": {"HTTP/1.1"},
			":host":    {"www.google.com"},
		},
	},

	// multi-value header fields are preserved as separate values (the
	// NUL-join only happens at the wire-encoding layer, frame.Header
	// itself stays a plain map[string][]string).
	{
		Req: http.Request{
			Method: "GET",
			URL:    &url.URL{Scheme: "https", Host: "example.com", Path: "/"},
			Host:   "example.com",
			Header: http.Header{
				"X-Custom": {"a", "b"},
			},
		},
		WantHeader: frame.Header{
			":scheme":  {"https"},
			":method":  {"GET"},
			":path":    {"/"},
			":version": {"HTTP/1.1"},
			":host":    {"example.com"},
			"x-custom": {"a", "b"},
		},
	},

	// no host anywhere: local error before any frame is built.
	{
		Req: http.Request{
			Method: "GET",
			URL:    &url.URL{Path: "/"},
		},
		WantErr: errorString("spdy: request has no host"),
	},

	// no path: local error.
	{
		Req: http.Request{
			Method: "GET",
			URL:    &url.URL{Host: "example.com"},
			Host:   "example.com",
		},
		WantErr: ErrMissingPath,
	},
}

// errorString lets a test table compare error messages without
// depending on errors.New identity.
type errorString string

func (e errorString) Error() string { return string(e) }

func TestRequestHeader(t *testing.T) {
	for i, tt := range reqHeaderTests {
		req := tt.Req
		got, err := RequestHeader(&req)
		if tt.WantErr != nil {
			if err == nil || err.Error() != tt.WantErr.Error() {
				t.Errorf("#%d: err = %v, want %v", i, err, tt.WantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("#%d: unexpected err: %v", i, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.WantHeader) {
			t.Errorf("#%d", i)
			t.Log(pretty.Sprintf("got  = %# v", got))
			t.Log(pretty.Sprintf("want = %# v", tt.WantHeader))
		}
	}
}

func TestRequestHeaderStripsHopByHop(t *testing.T) {
	req, err := http.NewRequest("GET", "https://example.com/a", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Transfer-Encoding", "chunked")
	req.Body = ioutil.NopCloser(nil)
	req.Body = nil

	h, err := RequestHeader(req)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range []string{"connection", "transfer-encoding"} {
		if _, ok := h[f]; ok {
			t.Errorf("hop-by-hop field %q leaked into header block", f)
		}
	}
}
