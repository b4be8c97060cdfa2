package session

import (
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/twitter-archive/spdy/frame"
	"github.com/twitter-archive/spdy/settingsstore"
	"github.com/twitter-archive/spdy/stream"
)

// Reachability hints a Pool's session-reuse preference: a session is
// only reused for a request whose reachability matches the one it was
// dialed under. Grounded on SPDYSessionManager's reachability-aware
// reuse, referenced by original_source/SPDY/SPDYSessionPool.h.
type Reachability int

const (
	ReachabilityUnknown Reachability = iota
	ReachabilityWiFi
	ReachabilityCellular
)

// Dialer opens a new Transport for an Origin. Supplied by the caller
// so Pool stays free of any particular net/tls dialing policy; spec
// 6's "connect(host, port, timeout)" collaborator method is satisfied
// by whatever *net.Conn/*tls.Conn construction the Dialer performs.
type Dialer func(o Origin, reach Reachability) (Transport, error)

type pooledSession struct {
	sess     *Session
	reach    Reachability
	pending  bool
	runDone  chan struct{}
}

// Pool is the per-origin Session pool, component H. Grounded on
// original_source/SPDY/SPDYSessionPool.h's pendingCount/nextSession
// shape; the teacher has no pooling layer at all (kr-spdy's Transport
// dials one Session per RoundTrip).
type Pool struct {
	mu      sync.Mutex
	dial    Dialer
	cfg     Config
	store   *settingsstore.Store
	pushFn  PushHandler
	byOrigin map[Origin][]*pooledSession
}

// NewPool constructs a Pool. store is shared by every Session the pool
// creates, so persisted SETTINGS carry across sessions of the same
// origin.
func NewPool(dial Dialer, cfg Config, store *settingsstore.Store, pushFn PushHandler) *Pool {
	return &Pool{
		dial:     dial,
		cfg:      cfg,
		store:    store,
		pushFn:   pushFn,
		byOrigin: make(map[Origin][]*pooledSession),
	}
}

// PendingCount reports sessions for origin whose pending flag is set,
// mirroring SPDYSessionPool.h's pendingCount. create sets the flag only
// between adding a dialed session to the pool and starting its Run
// goroutine; a dial still in progress (TCP connect and TLS handshake)
// is not in the pool yet and is not counted.
func (p *Pool) PendingCount(o Origin) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ps := range p.byOrigin[o] {
		if ps.pending {
			n++
		}
	}
	return n
}

// CancelStream issues RST_STREAM CANCEL for id on whichever of
// origin's sessions owns it (a caller holding only the Origin/id pair,
// as net/http's Request.Cancel/Context model requires, has no direct
// Session reference to call Session.CancelStream on); CancelStream on
// a Session that doesn't have id is a no-op, so broadcasting to every
// session currently open for the origin is safe.
func (p *Pool) CancelStream(o Origin, id frame.StreamId) {
	p.mu.Lock()
	sessions := append([]*pooledSession(nil), p.byOrigin[o]...)
	p.mu.Unlock()
	for _, ps := range sessions {
		if !ps.pending {
			ps.sess.CancelStream(id)
		}
	}
}

// ConsumeStream acknowledges n bytes of DATA consumed by the caller of
// stream id's Delegate, on whichever of origin's sessions owns it. See
// CancelStream for why this is origin-scoped rather than a direct
// Session method call.
func (p *Pool) ConsumeStream(o Origin, id frame.StreamId, n uint32) {
	p.mu.Lock()
	sessions := append([]*pooledSession(nil), p.byOrigin[o]...)
	p.mu.Unlock()
	for _, ps := range sessions {
		if !ps.pending {
			ps.sess.ConsumeStream(id, n)
		}
	}
}

// Submit routes headers/body to a Session for origin, creating or
// reusing one, and re-queues on a fresh session when the chosen one
// refuses the stream outright or with REFUSED_STREAM/GOAWAY before any
// response bytes arrived, up to cfg.MaxRetry times; past that it
// surfaces the error to the caller. A refusal surfaces
// asynchronously through the stream's own OnClose, not as a Submit
// error, so retrying is done by a wrapping delegate rather than a
// plain retry loop around Submit itself.
func (p *Pool) Submit(o Origin, reach Reachability, headers frame.Header, body stream.Body, priority uint8, delegate stream.Delegate) (*stream.Stream, error) {
	rd := &retryDelegate{
		pool: p, origin: o, reach: reach,
		headers: headers, body: body, priority: priority,
		real:     delegate,
		maxRetry: p.cfg.MaxRetry,
		// Min/Max of 10ms/200ms: a retry only follows a REFUSED_STREAM
		// or GOAWAY, i.e. the peer already told us to back off, so this
		// paces re-dials without the long ceilings a dial-timeout
		// backoff would need.
		backoff: backoff.Backoff{Min: 10 * time.Millisecond, Max: 200 * time.Millisecond, Factor: 2, Jitter: true},
	}
	return rd.submit()
}

// retryDelegate wraps the caller's stream.Delegate so Pool can retry a
// refused submission transparently: it forwards every event once the
// stream has shown any forward progress (a reply, headers, or data),
// and otherwise intercepts a refusal OnClose to re-submit on a new
// session instead of forwarding it.
type retryDelegate struct {
	pool     *Pool
	origin   Origin
	reach    Reachability
	headers  frame.Header
	body     stream.Body
	priority uint8
	real     stream.Delegate
	maxRetry int
	backoff  backoff.Backoff

	mu       sync.Mutex
	attempt  int
	progress bool
}

func (d *retryDelegate) submit() (*stream.Stream, error) {
	sess, err := d.pool.next(d.origin, d.reach)
	if err != nil {
		return nil, err
	}
	return sess.Submit(d.headers, d.body, d.priority, d)
}

func (d *retryDelegate) OnReply(h frame.Header) {
	d.mu.Lock()
	d.progress = true
	d.mu.Unlock()
	d.real.OnReply(h)
}

func (d *retryDelegate) OnHeaders(h frame.Header) {
	d.mu.Lock()
	d.progress = true
	d.mu.Unlock()
	d.real.OnHeaders(h)
}

func (d *retryDelegate) OnData(p []byte, last bool) {
	d.mu.Lock()
	d.progress = true
	d.mu.Unlock()
	d.real.OnData(p, last)
}

func (d *retryDelegate) OnClose(err error, meta stream.Metadata) {
	d.mu.Lock()
	progress := d.progress
	retryable := !progress && d.attempt < d.maxRetry && isRefusal(err)
	if retryable {
		d.attempt++
	}
	attempt := d.attempt
	d.mu.Unlock()

	if retryable {
		time.Sleep(d.backoff.Duration())
		if _, err2 := d.submit(); err2 == nil {
			return
		}
		if d.pool.cfg.Logger != nil {
			d.pool.cfg.Logger.Debug("spdy: pool: retry dial failed", "origin", d.origin.String(), "attempt", attempt)
		}
	}
	d.real.OnClose(err, meta)
}

// isRefusal reports whether err is the kind of stream-level rejection
// worth retrying on another session: REFUSED_STREAM, or a
// GOAWAY-triggered reset past the peer's last-good-id.
func isRefusal(err error) bool {
	se, ok := err.(*stream.Error)
	if !ok {
		return false
	}
	return se.Status == frame.RefusedStream
}

// next picks an established, non-going-away session whose reachability
// matches, or creates one if the pool has room.
func (p *Pool) next(o Origin, reach Reachability) (*Session, error) {
	p.mu.Lock()
	for _, ps := range p.byOrigin[o] {
		if ps.pending || ps.reach != reach {
			continue
		}
		if ps.sess.GoingAway() {
			continue
		}
		p.mu.Unlock()
		return ps.sess, nil
	}
	total := len(p.byOrigin[o])
	if total >= p.poolSize() {
		p.mu.Unlock()
		// Pool is saturated with sessions of a different reachability
		// or still pending; there's no wait queue here, so the most
		// recently created session is reused as a
		// fallback rather than blocking the caller indefinitely.
		return p.fallback(o)
	}
	p.mu.Unlock()
	return p.create(o, reach)
}

func (p *Pool) fallback(o Origin) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sessions := p.byOrigin[o]
	for i := len(sessions) - 1; i >= 0; i-- {
		if !sessions[i].pending {
			return sessions[i].sess, nil
		}
	}
	return nil, errors.Errorf("spdy: pool: no established session for %s", o)
}

func (p *Pool) poolSize() int {
	if p.cfg.PoolSize <= 0 {
		return 1
	}
	return p.cfg.PoolSize
}

func (p *Pool) create(o Origin, reach Reachability) (*Session, error) {
	conn, err := p.dial(o, reach)
	if err != nil {
		return nil, errors.Wrapf(err, "spdy: pool: dial %s", o)
	}
	sess, err := New(conn, o, p.cfg, p.store, p.pushFn)
	if err != nil {
		conn.Close()
		return nil, errors.Wrapf(err, "spdy: pool: establish session for %s", o)
	}
	ps := &pooledSession{sess: sess, reach: reach, pending: true, runDone: make(chan struct{})}
	p.mu.Lock()
	p.byOrigin[o] = append(p.byOrigin[o], ps)
	p.mu.Unlock()

	go func() {
		defer close(ps.runDone)
		err := sess.Run()
		p.remove(o, ps)
		if err != nil && p.cfg.Logger != nil {
			p.cfg.Logger.Debug("spdy: pool: session ended", "origin", o.String(), "err", err)
		}
	}()

	p.mu.Lock()
	ps.pending = false
	p.mu.Unlock()
	return sess, nil
}

func (p *Pool) remove(o Origin, target *pooledSession) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sessions := p.byOrigin[o]
	for i, ps := range sessions {
		if ps == target {
			p.byOrigin[o] = append(sessions[:i], sessions[i+1:]...)
			return
		}
	}
}

// Close tears down every session the pool currently holds, for every
// origin; each Session.Close cancels its own live streams in turn.
func (p *Pool) Close() {
	p.mu.Lock()
	all := make([]*pooledSession, 0)
	for _, sessions := range p.byOrigin {
		all = append(all, sessions...)
	}
	p.mu.Unlock()
	for _, ps := range all {
		ps.sess.Close()
	}
}
