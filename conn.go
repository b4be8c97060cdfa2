package spdy

import (
	"context"
	"io"
	"net/http"
	"sync"

	"github.com/twitter-archive/spdy/frame"
	"github.com/twitter-archive/spdy/session"
	"github.com/twitter-archive/spdy/settingsstore"
	"github.com/twitter-archive/spdy/stream"
)

// Conn is a SPDY client connection over a single already-open
// net.Conn (or *tls.Conn). It implements http.RoundTripper, issuing
// every request on its one underlying Session. Grounded on kr-spdy's
// Conn, whose RoundTrip lazily started a spdyframing.Session on first
// use over c.Conn; this version starts a session.Session instead and
// maps each request onto Session.Submit rather than a blocking
// io.Writer/io.Reader Stream, since spec 4.E's Stream contract is
// delegate-shaped, not stream-shaped.
type Conn struct {
	// Conn is the already-connected transport byte stream (TLS
	// handshake and NPN/ALPN negotiation, if any, are the caller's
	// responsibility: spec section 1 treats both as out-of-scope
	// collaborators).
	Conn session.Transport

	// Origin identifies this connection for the settings store and
	// session bookkeeping. If zero, it is derived from the first
	// request's URL.
	Origin session.Origin

	// Config tunes the underlying Session. The zero value uses
	// session.DefaultConfig().
	Config session.Config

	once     sync.Once
	sess     *session.Session
	startErr error
}

func (c *Conn) start(r *http.Request) {
	cfg := c.Config
	if cfg.InitialStreamWindow == 0 {
		cfg = session.DefaultConfig()
	}
	origin := c.Origin
	if origin == (session.Origin{}) {
		if o, err := session.ParseOrigin(r.URL); err == nil {
			origin = o
		}
	}
	sess, err := session.New(c.Conn, origin, cfg, settingsstore.New(), nil)
	if err != nil {
		c.startErr = err
		return
	}
	c.sess = sess
	go sess.Run()
}

// RoundTrip implements http.RoundTripper, submitting r as a new Stream
// on this Conn's single Session and blocking until the response
// headers (SYN_REPLY) arrive.
func (c *Conn) RoundTrip(r *http.Request) (*http.Response, error) {
	c.once.Do(func() { c.start(r) })
	if c.startErr != nil {
		return nil, c.startErr
	}
	sess := c.sess
	return submitAndWait(r, func(h frame.Header, b stream.Body, p uint8, d stream.Delegate) (*stream.Stream, error) {
		return sess.Submit(h, b, p, d)
	}, sess.CancelStream, sess.ConsumeStream)
}

// submitFunc and the two follow-up hooks let submitAndWait drive
// either a single fixed Session (Conn) or a session.Pool (Transport)
// identically: build the SYN_STREAM header, submit with a delegate
// that bridges push events onto a blocking http.Response, and wait for
// the reply.
type submitFunc func(frame.Header, stream.Body, uint8, stream.Delegate) (*stream.Stream, error)
type cancelFunc func(frame.StreamId)
type consumeFunc func(frame.StreamId, uint32)

func submitAndWait(r *http.Request, submit submitFunc, cancel cancelFunc, consume consumeFunc) (*http.Response, error) {
	headers, err := RequestHeader(r)
	if err != nil {
		return nil, err
	}

	body := bodySourceFor(r)
	d := newRoundTripDelegate(cancel, consume)
	st, err := submit(headers, body, priorityFor(r), d)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	d.streamId = st.Id
	d.mu.Unlock()

	select {
	case h := <-d.replyCh:
		resp, err := ReadResponse(h, d.asBody(), r)
		if err != nil {
			cancel(st.Id)
			return nil, err
		}
		return resp, nil
	case err := <-d.closeCh:
		return nil, err
	}
}

// bodySourceFor adapts r.Body into a stream.Body for Session.Submit. A
// nil Body becomes an empty BytesBody so the scheduler never mistakes
// it for pending work and the SYN_STREAM carries FLAG_FIN immediately.
func bodySourceFor(r *http.Request) stream.Body {
	if r.Body == nil || r.Body == http.NoBody {
		return stream.NewBytesBody(nil)
	}
	return stream.NewReaderBody(r.Body)
}

// priorityFor derives a SPDY priority (0 highest, 7 lowest) from the
// request's context, falling back to 3 (mid) when none is set. The
// standard library has no notion of request priority, so this reads a
// context value keyed by priorityContextKey, set via WithPriority.
func priorityFor(r *http.Request) uint8 {
	if p, ok := r.Context().Value(priorityContextKey{}).(uint8); ok {
		if p > 7 {
			return 7
		}
		return p
	}
	return 3
}

type priorityContextKey struct{}

// WithPriority returns a copy of ctx carrying a SPDY priority (spec
// 4.F: 0 highest, 7 lowest) for RoundTrip to read via priorityFor. The
// standard library's context has no built-in notion of request
// priority, so this is the collaborator a caller uses to set one.
func WithPriority(ctx context.Context, priority uint8) context.Context {
	return context.WithValue(ctx, priorityContextKey{}, priority)
}

// roundTripDelegate is the stream.Delegate RoundTrip submits: it
// surfaces the first SYN_REPLY on replyCh, bridges subsequent DATA onto
// a responseBody, and reports a refusal or reset that arrives before
// any reply on closeCh. Cancellation runs through sess.CancelStream so
// the RST_STREAM always goes through the Session's single dispatch-loop
// writer (spec section 5). Only a stream that already has an id can be
// cancelled: submit returns only once the id is assigned, and a request
// still waiting in the Session's pending-submit queue is not removed
// from it.
//
// rbody is built eagerly, before submit is even called, rather than
// lazily inside asBody: OnData/OnClose run on the Session's dispatch
// goroutine and can fire the instant the SYN_STREAM is sent (an
// immediate-FIN reply, or DATA racing ahead of the caller's own
// goroutine), which is before submitAndWait gets around to calling
// asBody. A lazily-built rbody would drop that first OnData/OnClose on
// the floor and leave the eventually-constructed body blocked in Read
// forever; building it upfront means there is never a window where a
// delegate event has nowhere to go.
type roundTripDelegate struct {
	cancel  cancelFunc
	consume consumeFunc

	mu       sync.Mutex
	streamId frame.StreamId
	replied  bool

	replyCh   chan frame.Header
	headersCh chan frame.Header
	closeCh   chan error
	rbody     *responseBody
}

func newRoundTripDelegate(cancel cancelFunc, consume consumeFunc) *roundTripDelegate {
	d := &roundTripDelegate{
		cancel:    cancel,
		consume:   consume,
		replyCh:   make(chan frame.Header, 1),
		headersCh: make(chan frame.Header, 1),
		closeCh:   make(chan error, 1),
	}
	d.rbody = newResponseBody(func(n int) {
		d.consume(d.id(), uint32(n))
	}, func() {
		d.cancel(d.id())
	})
	return d
}

func (d *roundTripDelegate) id() frame.StreamId {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streamId
}

func (d *roundTripDelegate) asBody() io.ReadCloser {
	return d.rbody
}

func (d *roundTripDelegate) OnReply(h frame.Header) {
	d.mu.Lock()
	d.replied = true
	d.mu.Unlock()
	d.replyCh <- h
}

func (d *roundTripDelegate) OnHeaders(h frame.Header) {
	select {
	case d.headersCh <- h:
	default:
	}
}

func (d *roundTripDelegate) OnData(p []byte, last bool) {
	d.rbody.onData(p, last)
}

func (d *roundTripDelegate) OnClose(err error, meta stream.Metadata) {
	d.mu.Lock()
	replied := d.replied
	d.mu.Unlock()
	if !replied {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		select {
		case d.closeCh <- err:
		default:
		}
		return
	}
	d.rbody.onClose(err)
}
