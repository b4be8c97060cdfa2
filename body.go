package spdy

import (
	"io"
	"sync"
)

// responseBody adapts a Stream's push-style OnData/OnClose delegate
// events -- which arrive on the Session's single dispatch goroutine,
// spec section 5's "no blocking calls on the Session context" -- onto
// a blocking io.ReadCloser, so http.Response.Body can be consumed the
// ordinary pull-based way a net/http caller expects.
//
// Adapted from kr-spdy's spdyframing.buffer, a fixed-capacity
// io.ReadWriteCloser used there to let a blocking Stream.Read drain
// inbound DATA. That type's Write blocked once full, which would
// violate spec section 5 here (OnData must never block the dispatch
// goroutine), so this version queues whole chunks instead of copying
// into a fixed backing array; what bounds its size is the stream's own
// receive window (spec section 4.E), not a buffer capacity: the stream
// grants WINDOW_UPDATEs only for bytes the reader has consumed, so a
// peer that honours flow control cannot send more than ReceiveWindow
// bytes ahead of the reader. The session does not itself reject DATA
// that goes past the window.
type responseBody struct {
	mu     sync.Mutex
	cond   *sync.Cond
	chunks [][]byte
	pos    int
	done   bool
	err    error
	onRead func(n int)
	cancel func()
}

func newResponseBody(onRead func(n int), cancel func()) *responseBody {
	b := &responseBody{onRead: onRead, cancel: cancel}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// onData is the stream.Delegate.OnData half of this bridge: it must
// never block, since it runs on the Session's dispatch goroutine.
func (b *responseBody) onData(p []byte, last bool) {
	b.mu.Lock()
	if len(p) > 0 {
		cp := make([]byte, len(p))
		copy(cp, p)
		b.chunks = append(b.chunks, cp)
	}
	if last {
		b.done = true
	}
	b.cond.Broadcast()
	b.mu.Unlock()
}

// onClose is the stream.Delegate.OnClose half: err is nil for a clean
// FIN, non-nil for an RST or session-level failure that ends the
// stream before all DATA was seen.
func (b *responseBody) onClose(err error) {
	b.mu.Lock()
	if !b.done {
		b.done = true
		b.err = err
	}
	b.cond.Broadcast()
	b.mu.Unlock()
}

func (b *responseBody) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.chunks) == 0 {
		if b.done {
			if b.err != nil {
				return 0, b.err
			}
			return 0, io.EOF
		}
		b.cond.Wait()
	}
	chunk := b.chunks[0]
	n := copy(p, chunk[b.pos:])
	b.pos += n
	if b.pos == len(chunk) {
		b.chunks = b.chunks[1:]
		b.pos = 0
	}
	if b.onRead != nil {
		b.onRead(n)
	}
	return n, nil
}

// Close cancels the underlying stream if it is still open; reading a
// Response.Body to completion is the ordinary way a stream finishes,
// but net/http callers are free to Close early (e.g. client.Do callers
// that only want the headers), and spec section 5 requires that to
// reach the Session as an RST_STREAM CANCEL rather than simply being
// ignored.
func (b *responseBody) Close() error {
	b.mu.Lock()
	done := b.done
	b.mu.Unlock()
	if !done && b.cancel != nil {
		b.cancel()
	}
	return nil
}

var _ io.ReadCloser = (*responseBody)(nil)
