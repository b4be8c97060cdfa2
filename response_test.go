package spdy

import (
	"bytes"
	"io"
	"io/ioutil"
	"net/http"
	"reflect"
	"testing"

	"github.com/kr/pretty"

	"github.com/twitter-archive/spdy/frame"
)

type respTest struct {
	RawHeader frame.Header
	Body      string
	Resp      http.Response
	WantBody  string
}

func dummyReq(method string) *http.Request {
	return &http.Request{Method: method}
}

var respTests = []respTest{
	// no Content-Length: body length is unknown ahead of time, as for
	// a SPDY reply whose DATA frames just run until FLAG_FIN.
	{
		RawHeader: frame.Header{
			":version": {"HTTP/1.1"},
			":status":  {"200 OK"},
		},
		Body: "Body here\n",
		Resp: http.Response{
			Status:        "200 OK",
			StatusCode:    200,
			Proto:         "HTTP/1.1",
			ProtoMajor:    1,
			ProtoMinor:    1,
			Request:       dummyReq("GET"),
			Header:        http.Header{},
			Close:         true,
			ContentLength: -1,
		},
		WantBody: "Body here\n",
	},

	// 204 No Content: fixLength forces ContentLength to 0 regardless of
	// what DATA, if any, follows.
	{
		RawHeader: frame.Header{
			":version": {"HTTP/1.1"},
			":status":  {"204 No Content"},
		},
		Body: "",
		Resp: http.Response{
			Status:        "204 No Content",
			StatusCode:    204,
			Proto:         "HTTP/1.1",
			ProtoMajor:    1,
			ProtoMinor:    1,
			Request:       dummyReq("GET"),
			Header:        http.Header{},
			Close:         true,
			ContentLength: 0,
		},
		WantBody: "",
	},

	// explicit Content-Length.
	{
		RawHeader: frame.Header{
			":version":       {"HTTP/1.0"},
			":status":        {"200 OK"},
			"content-length": {"10"},
		},
		Body: "Body here\n",
		Resp: http.Response{
			Status:     "200 OK",
			StatusCode: 200,
			Proto:      "HTTP/1.0",
			ProtoMajor: 1,
			ProtoMinor: 0,
			Request:    dummyReq("GET"),
			Header: http.Header{
				"Content-Length": {"10"},
			},
			Close:         true,
			ContentLength: 10,
		},
		WantBody: "Body here\n",
	},

	// Content-Length in response to a HEAD request.
	{
		RawHeader: frame.Header{
			":version":       {"HTTP/1.1"},
			":status":        {"200 OK"},
			"content-length": {"256"},
		},
		Body: "",
		Resp: http.Response{
			Status:     "200 OK",
			StatusCode: 200,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Request:    dummyReq("HEAD"),
			Header: http.Header{
				"Content-Length": {"256"},
			},
			Close:         true,
			ContentLength: 256,
		},
		WantBody: "",
	},

	// Status line without a Reason-Phrase, but trailing space.
	{
		RawHeader: frame.Header{
			":version": {"HTTP/1.0"},
			":status":  {"303 "},
		},
		Resp: http.Response{
			Status:        "303 ",
			StatusCode:    303,
			Proto:         "HTTP/1.0",
			ProtoMajor:    1,
			ProtoMinor:    0,
			Request:       dummyReq("GET"),
			Header:        http.Header{},
			Close:         true,
			ContentLength: -1,
		},
	},

	// Status line without a Reason-Phrase and no trailing space.
	{
		RawHeader: frame.Header{
			":version": {"HTTP/1.0"},
			":status":  {"303"},
		},
		Resp: http.Response{
			Status:        "303",
			StatusCode:    303,
			Proto:         "HTTP/1.0",
			ProtoMajor:    1,
			ProtoMinor:    0,
			Request:       dummyReq("GET"),
			Header:        http.Header{},
			Close:         true,
			ContentLength: -1,
		},
	},

	// multipart/byteranges isn't special-cased.
	{
		RawHeader: frame.Header{
			":version":     {"HTTP/1.1"},
			":status":      {"206 Partial Content"},
			"content-type": {"multipart/byteranges; boundary=18a75608c8f47cef"},
		},
		Body: "some body",
		Resp: http.Response{
			Status:     "206 Partial Content",
			StatusCode: 206,
			Proto:      "HTTP/1.1",
			ProtoMajor: 1,
			ProtoMinor: 1,
			Request:    dummyReq("GET"),
			Header: http.Header{
				"Content-Type": {"multipart/byteranges; boundary=18a75608c8f47cef"},
			},
			Close:         true,
			ContentLength: -1,
		},
		WantBody: "some body",
	},
}

func TestReadResponse(t *testing.T) {
	for i, tt := range respTests {
		var body io.ReadCloser
		if tt.Body != "" {
			body = ioutil.NopCloser(bytes.NewBufferString(tt.Body))
		}
		resp, err := ReadResponse(tt.RawHeader, body, tt.Resp.Request)
		if err != nil {
			t.Errorf("#%d: %v", i, err)
			continue
		}
		rbody := resp.Body
		resp.Body = nil
		if !reflect.DeepEqual(resp, &tt.Resp) {
			t.Errorf("#%d", i)
			t.Log(pretty.Sprintf("got  = %# v", resp))
			t.Log(pretty.Sprintf("want = %# v", &tt.Resp))
		}
		var bout bytes.Buffer
		if rbody != nil {
			if _, err := io.Copy(&bout, rbody); err != nil {
				t.Errorf("#%d: %v", i, err)
				continue
			}
			rbody.Close()
		}
		if got := bout.String(); got != tt.WantBody {
			t.Errorf("#%d: body = %q want %q", i, got, tt.WantBody)
		}
	}
}

var invalidResponseHeaders = []frame.Header{
	// bad version string
	{
		":version": {"SPDY"},
		":status":  {"200 OK"},
	},

	// missing :status
	{
		":version": {"HTTP/1.1"},
	},

	// bad status
	{
		":version": {"HTTP/1.1"},
		":status":  {"a"},
	},

	// bad content-length
	{
		":version":       {"HTTP/1.1"},
		":status":        {"200 OK"},
		"content-length": {"a"},
	},
}

func TestReadResponseError(t *testing.T) {
	for i, tt := range invalidResponseHeaders {
		resp, err := ReadResponse(tt, nil, dummyReq("GET"))
		if err == nil {
			t.Errorf("#%d: expected error", i)
		}
		if resp != nil {
			t.Errorf("#%d: resp = %v want nil", i, resp)
		}
	}
}
