package spdy

import (
	"bytes"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/twitter-archive/spdy/frame"
	"github.com/twitter-archive/spdy/session"
)

// fakePeer drives the far end of a Conn's Transport directly in terms
// of frames, the same harness session_test.go uses one package down.
type fakePeer struct {
	conn     net.Conn
	dec      *frame.Decoder
	enc      *frame.Encoder
	framesCh chan frame.Frame
	errCh    chan error
}

func newFakePeer(t *testing.T, conn net.Conn) *fakePeer {
	t.Helper()
	p := &fakePeer{conn: conn, dec: frame.NewDecoder(), framesCh: make(chan frame.Frame, 16), errCh: make(chan error, 1)}
	enc, err := frame.NewEncoder(6, func(b []byte, tag interface{}) error {
		_, err := conn.Write(b)
		return err
	})
	if err != nil {
		t.Fatalf("newFakePeer: %v", err)
	}
	p.enc = enc
	go p.readLoop()
	return p
}

func (p *fakePeer) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := p.conn.Read(buf)
		if n > 0 {
			frames, _, derr := p.dec.Decode(buf[:n])
			for _, f := range frames {
				p.framesCh <- f
			}
			if derr != nil {
				p.errCh <- derr
				return
			}
		}
		if err != nil {
			p.errCh <- err
			return
		}
	}
}

func (p *fakePeer) next(t *testing.T) frame.Frame {
	t.Helper()
	select {
	case f := <-p.framesCh:
		return f
	case err := <-p.errCh:
		t.Fatalf("fakePeer: read error waiting for a frame: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("fakePeer: timed out waiting for a frame")
	}
	return nil
}

func TestConnRoundTripGet(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	peer := newFakePeer(t, c2)

	conn := &Conn{Conn: c1, Origin: session.NewOrigin("https", "example.com", 443)}

	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	req, err := http.NewRequest("GET", "https://example.com/index.html", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	go func() {
		resp, err := conn.RoundTrip(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	peer.next(t) // handshake WINDOW_UPDATE

	f := peer.next(t)
	syn, ok := f.(*frame.SynStreamFrame)
	if !ok {
		t.Fatalf("got %T, want *SynStreamFrame", f)
	}
	if syn.CFHeader.Flags&frame.ControlFlagFin == 0 {
		t.Fatalf("bodyless GET's SynStream missing FIN")
	}
	if got := syn.Headers.Get(":method"); got != "GET" {
		t.Fatalf(":method = %q, want GET", got)
	}
	if got := syn.Headers.Get(":path"); got != "/index.html" {
		t.Fatalf(":path = %q, want /index.html", got)
	}

	if _, err := peer.enc.EncodeSynReply(&frame.SynReplyFrame{
		StreamId: syn.StreamId,
		Headers:  frame.Header{":status": {"200"}, ":version": {"HTTP/1.1"}},
	}, nil); err != nil {
		t.Fatalf("peer EncodeSynReply: %v", err)
	}
	if _, err := peer.enc.EncodeData(&frame.DataFrame{
		StreamId: syn.StreamId,
		Flags:    frame.DataFlagFin,
		Data:     []byte("hello"),
	}, nil); err != nil {
		t.Fatalf("peer EncodeData: %v", err)
	}

	select {
	case resp := <-respCh:
		if resp.StatusCode != 200 {
			t.Fatalf("StatusCode = %d, want 200", resp.StatusCode)
		}
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("ReadAll: %v", err)
		}
		if string(body) != "hello" {
			t.Fatalf("body = %q, want %q", body, "hello")
		}
		resp.Body.Close()
	case err := <-errCh:
		t.Fatalf("RoundTrip: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("RoundTrip never returned")
	}
}

func TestConnRoundTripPostWithBody(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	peer := newFakePeer(t, c2)

	conn := &Conn{Conn: c1, Origin: session.NewOrigin("https", "example.com", 443)}

	req, err := http.NewRequest("POST", "https://example.com/submit", bytes.NewBufferString("payload"))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.ContentLength = int64(len("payload"))

	respCh := make(chan *http.Response, 1)
	errCh := make(chan error, 1)
	go func() {
		resp, err := conn.RoundTrip(req)
		if err != nil {
			errCh <- err
			return
		}
		respCh <- resp
	}()

	peer.next(t) // handshake

	f := peer.next(t)
	syn, ok := f.(*frame.SynStreamFrame)
	if !ok {
		t.Fatalf("got %T, want *SynStreamFrame", f)
	}
	if syn.CFHeader.Flags&frame.ControlFlagFin != 0 {
		t.Fatalf("POST-with-body SynStream carries FIN, should wait for DATA")
	}

	// The body drains across DATA frames (payload bytes, then an empty
	// frame carrying FIN once the reader hits EOF); collect until FIN.
	var body bytes.Buffer
	fin := false
	for !fin {
		data, ok := peer.next(t).(*frame.DataFrame)
		if !ok {
			t.Fatalf("unexpected non-DATA frame while draining request body")
		}
		body.Write(data.Data)
		fin = data.Flags&frame.DataFlagFin != 0
	}
	if body.String() != "payload" {
		t.Fatalf("request body = %q, want %q", body.String(), "payload")
	}

	if _, err := peer.enc.EncodeSynReply(&frame.SynReplyFrame{
		StreamId: syn.StreamId,
		Headers:  frame.Header{":status": {"204"}, ":version": {"HTTP/1.1"}},
	}, nil); err != nil {
		t.Fatalf("peer EncodeSynReply: %v", err)
	}
	if _, err := peer.enc.EncodeData(&frame.DataFrame{
		StreamId: syn.StreamId,
		Flags:    frame.DataFlagFin,
	}, nil); err != nil {
		t.Fatalf("peer EncodeData: %v", err)
	}

	select {
	case resp := <-respCh:
		if resp.StatusCode != 204 {
			t.Fatalf("StatusCode = %d, want 204", resp.StatusCode)
		}
	case err := <-errCh:
		t.Fatalf("RoundTrip: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("RoundTrip never returned")
	}
}

func TestConnRoundTripBodyCloseCancelsStream(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c2.Close()
	peer := newFakePeer(t, c2)

	conn := &Conn{Conn: c1, Origin: session.NewOrigin("https", "example.com", 443)}

	req, err := http.NewRequest("GET", "https://example.com/stream.mp4", nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}

	respCh := make(chan *http.Response, 1)
	go func() {
		resp, err := conn.RoundTrip(req)
		if err == nil {
			respCh <- resp
		}
	}()

	peer.next(t) // handshake
	syn := peer.next(t).(*frame.SynStreamFrame)

	if _, err := peer.enc.EncodeSynReply(&frame.SynReplyFrame{
		StreamId: syn.StreamId,
		Headers:  frame.Header{":status": {"200"}, ":version": {"HTTP/1.1"}},
	}, nil); err != nil {
		t.Fatalf("peer EncodeSynReply: %v", err)
	}

	var resp *http.Response
	select {
	case resp = <-respCh:
	case <-time.After(2 * time.Second):
		t.Fatalf("RoundTrip never returned")
	}
	resp.Body.Close()

	f := peer.next(t)
	rst, ok := f.(*frame.RstStreamFrame)
	if !ok || rst.StreamId != syn.StreamId || rst.Status != frame.Cancel {
		t.Fatalf("got %+v, want RST_STREAM CANCEL for stream %d", f, syn.StreamId)
	}
}

var _ io.ReadCloser = (*responseBody)(nil)
