// Package session implements one logical SPDY/3.1 connection and the
// per-origin pool of connections a caller submits requests through.
//
// Grounded on kr-spdy's spdyframing.Session: a reader goroutine feeding
// typed frames to a single select loop that also serves writes and
// submissions, so each Session runs on a single logical execution
// context with at most one encoder and one decoder active per
// direction. Widened with priority scheduling, full SETTINGS/ping/GOAWAY
// handling (kr-spdy only implements SETTINGS), and the stream/flowcontrol
// packages in place of kr-spdy's inline fields.
package session

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/inconshreveable/log15"
	"github.com/twitter-archive/spdy/flowcontrol"
	"github.com/twitter-archive/spdy/frame"
	"github.com/twitter-archive/spdy/settingsstore"
	"github.com/twitter-archive/spdy/stream"
)

// errClosed is returned to callers racing a session teardown; it plays
// the same sentinel role as kr-spdy's own errClosed.
var errClosed = errors.New("spdy: session closed")

// errPingTimeout is the cause wrapped in a TransportError when a
// liveness PING goes unanswered past cfg.PingTimeout.
var errPingTimeout = errors.New("spdy: ping timed out")

// Transport is what Session requires of the socket it does not own.
// Spec 6 describes this as an explicit async collaborator interface
// (connect/start_tls/write-with-tag/read-emits-event/close plus
// will_disconnect/did_disconnect/secured_with_trust events); every
// example in the pack instead talks to the wire through a plain
// net.Conn-shaped io.ReadWriteCloser; the tag-correlated write spec
// 4.C asks for is carried by frame.WriteFunc instead of a distinct
// transport method. Any net.Conn (plain or *tls.Conn) satisfies this.
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// PushHandler is invoked once per valid server-pushed stream (spec
// 4.G: "create a Stream in Reserved, deliver to a push callback").
type PushHandler func(*stream.Stream)

// Session is one logical SPDY/3.1 connection.
type Session struct {
	conn     Transport
	origin   Origin
	cfg      Config
	store    *settingsstore.Store
	pushFn   PushHandler
	logger   interface {
		Debug(msg string, ctx ...interface{})
		Info(msg string, ctx ...interface{})
		Warn(msg string, ctx ...interface{})
		Error(msg string, ctx ...interface{})
	}

	enc *frame.Encoder
	dec *frame.Decoder

	streams *stream.Set

	sessionSendWindow    *flowcontrol.Window
	sessionReceiveWindow *flowcontrol.Window

	readCh    chan frame.Frame
	readErrCh chan error
	submitCh  chan *submitRequest
	actionCh  chan func()
	wakeCh    chan struct{}
	closeCh   chan struct{}

	mu                  sync.Mutex
	nextStreamId        frame.StreamId
	lastPushId          frame.StreamId
	maxStreamIdEverUsed frame.StreamId
	nextPingId          uint32
	pendingPings        map[uint32]time.Time
	goingAway           bool
	closed              bool
	remoteMaxConcurrent uint32
	pendingSubmits      []*submitRequest
	stopped             chan struct{}
	doneErr             error
}

type submitRequest struct {
	headers  frame.Header
	body     stream.Body
	priority uint8
	delegate stream.Delegate
	resultCh chan submitResult
}

type submitResult struct {
	stream *stream.Stream
	err    error
}

// New constructs a Session over conn for origin. It does not start the
// session's goroutines; call Run for that. Opening the socket is the
// caller's job and happens synchronously, before New is called.
func New(conn Transport, origin Origin, cfg Config, store *settingsstore.Store, pushFn PushHandler) (*Session, error) {
	if _, err := frame.NewHeaderCompressor(cfg.HeaderCompressionLevel); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log15.New("pkg", "spdy")
		logger.SetHandler(log15.DiscardHandler())
	}
	s := &Session{
		conn:                 conn,
		origin:               origin,
		cfg:                  cfg,
		store:                store,
		pushFn:               pushFn,
		logger:               logger,
		dec:                  frame.NewDecoder(),
		streams:              stream.NewSet(),
		sessionSendWindow:    flowcontrol.New(65536),
		sessionReceiveWindow: flowcontrol.New(65536),
		readCh:               make(chan frame.Frame, 16),
		readErrCh:            make(chan error, 1),
		submitCh:             make(chan *submitRequest),
		actionCh:             make(chan func()),
		wakeCh:               make(chan struct{}, 1),
		closeCh:              make(chan struct{}),
		nextStreamId:         1,
		nextPingId:           1,
		pendingPings:         make(map[uint32]time.Time),
		stopped:              make(chan struct{}),
	}
	s.enc = mustEncoderWithWrite(cfg.HeaderCompressionLevel, s.writeBytes)
	return s, nil
}

func mustEncoderWithWrite(level int, write frame.WriteFunc) *frame.Encoder {
	enc, err := frame.NewEncoder(level, write)
	if err != nil {
		// HeaderCompressor construction only fails if zlib itself is
		// broken; Config.HeaderCompressionLevel is clamped by
		// NewHeaderCompressor, so this is unreachable in practice.
		panic(err)
	}
	return enc
}

func (s *Session) writeBytes(p []byte, tag interface{}) error {
	_, err := s.conn.Write(p)
	return err
}

// Run drives the session: it sends the initial SETTINGS/WINDOW_UPDATE
// handshake, starts the reader goroutine, and runs the single-threaded
// dispatch loop until the session closes. It
// blocks until the session is done and returns the terminal error, if
// any (nil on a clean GOAWAY/Close shutdown).
func (s *Session) Run() error {
	if err := s.sendHandshake(); err != nil {
		return err
	}
	go s.readLoop()
	return s.dispatchLoop()
}

func (s *Session) sendHandshake() error {
	var fivs []frame.SettingsFlagIdValue
	haveId := make(map[frame.SettingsId]bool)
	if s.cfg.InitialStreamWindow != 65536 {
		fivs = append(fivs, frame.SettingsFlagIdValue{Id: frame.SettingsInitialWindowSize, Value: s.cfg.InitialStreamWindow})
		haveId[frame.SettingsInitialWindowSize] = true
	}
	if s.cfg.MaxConcurrentStreams != 0 {
		fivs = append(fivs, frame.SettingsFlagIdValue{Id: frame.SettingsMaxConcurrentStreams, Value: s.cfg.MaxConcurrentStreams})
		haveId[frame.SettingsMaxConcurrentStreams] = true
	}
	// A persisted entry sharing an id with one already added above would
	// produce a SETTINGS frame with a duplicate (non-strictly-increasing)
	// id once frame.Encoder sorts it, which every SPDY/3.1 decoder,
	// including this package's own, rejects outright; the explicit,
	// just-computed value for this session wins over whatever was
	// persisted from an earlier one.
	for _, fiv := range s.store.Get(s.origin.String()) {
		if !haveId[fiv.Id] {
			fivs = append(fivs, fiv)
			haveId[fiv.Id] = true
		}
	}
	if len(fivs) > 0 {
		if _, err := s.enc.EncodeSettings(&frame.SettingsFrame{FlagIdValues: fivs}, nil); err != nil {
			return err
		}
	}
	if s.cfg.InitialSessionWindow > 65536 {
		delta := s.cfg.InitialSessionWindow - 65536
		if err := s.sessionReceiveWindow.Adjust(int64(delta)); err != nil {
			return err
		}
		if _, err := s.enc.EncodeWindowUpdate(&frame.WindowUpdateFrame{StreamId: 0, DeltaWindowSize: delta}, nil); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			frames, _, derr := s.dec.Decode(buf[:n])
			for _, f := range frames {
				select {
				case s.readCh <- f:
				case <-s.stopped:
					return
				}
			}
			if derr != nil {
				s.readErrCh <- derr
				return
			}
		}
		if err != nil {
			s.readErrCh <- err
			return
		}
	}
}

// dispatchLoop is the single cooperative execution context spec
// section 5 describes: every frame, submission, and scheduling wakeup
// is serialized through this select.
func (s *Session) dispatchLoop() error {
	defer close(s.stopped)
	defer s.teardown()

	var pingCh <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		pingCh = ticker.C
	}

	for {
		select {
		case f := <-s.readCh:
			if err := s.handleFrame(f); err != nil {
				if se, ok := err.(*Error); ok {
					s.mu.Lock()
					lastGood := s.maxStreamIdEverUsed
					s.mu.Unlock()
					s.enc.EncodeGoAway(&frame.GoAwayFrame{LastGoodStreamId: lastGood, Status: se.Status}, nil)
				}
				s.doneErr = err
				return s.doneErr
			}
			s.runScheduler()
		case req := <-s.submitCh:
			s.handleSubmit(req)
			s.runScheduler()
		case fn := <-s.actionCh:
			fn()
			s.runScheduler()
		case <-pingCh:
			if err := s.checkPingHealth(); err != nil {
				s.doneErr = err
				return err
			}
		case <-s.wakeCh:
			s.runScheduler()
		case err := <-s.readErrCh:
			if err == io.EOF {
				err = nil
			}
			s.doneErr = err
			return err
		case <-s.closeCh:
			return nil
		}
	}
}

func (s *Session) wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *Session) teardown() {
	s.conn.Close()
	cause := s.doneErr
	if cause == nil {
		cause = errClosed
	}
	s.streams.Each(func(st *stream.Stream) {
		st.Abort(&TransportError{Cause: cause})
	})
}

// Submit enqueues a new request as a Stream and blocks until it has
// been assigned (or rejected outright). The Stream then delivers
// response events to delegate asynchronously.
func (s *Session) Submit(headers frame.Header, body stream.Body, priority uint8, delegate stream.Delegate) (*stream.Stream, error) {
	req := &submitRequest{headers: headers, body: body, priority: priority, delegate: delegate, resultCh: make(chan submitResult, 1)}
	select {
	case s.submitCh <- req:
	case <-s.stopped:
		return nil, errClosed
	}
	res := <-req.resultCh
	return res.stream, res.err
}

func (s *Session) handleSubmit(req *submitRequest) {
	s.mu.Lock()
	if s.goingAway || s.closed {
		s.mu.Unlock()
		req.resultCh <- submitResult{err: errClosed}
		return
	}
	if s.remoteMaxConcurrent > 0 && uint32(s.streams.LocalCount()) >= s.remoteMaxConcurrent {
		// Open Question (DESIGN.md): queue rather than fail when
		// MAX_CONCURRENT_STREAMS is saturated.
		s.pendingSubmits = append(s.pendingSubmits, req)
		s.mu.Unlock()
		return
	}
	id := s.nextStreamId
	s.nextStreamId += 2
	if id > s.maxStreamIdEverUsed {
		s.maxStreamIdEverUsed = id
	}
	s.mu.Unlock()

	st := stream.New(id, req.priority, s.cfg.InitialStreamWindow, s.cfg.InitialStreamWindow, req.headers, req.body, req.delegate)
	fin := req.body == nil || !req.body.HasDataAvailable()
	var flags frame.ControlFlags
	if fin {
		flags = frame.ControlFlagFin
	}
	st.Open(fin)
	s.streams.Add(st, true)
	_, err := s.enc.EncodeSynStream(&frame.SynStreamFrame{
		CFHeader: frame.ControlFrameHeader{Flags: flags},
		StreamId: id,
		Priority: req.priority,
		Headers:  req.headers,
	}, id)
	if err != nil {
		s.streams.Remove(id, true)
		req.resultCh <- submitResult{err: err}
		return
	}
	req.resultCh <- submitResult{stream: st}
}

func (s *Session) admitPending() {
	s.mu.Lock()
	if len(s.pendingSubmits) == 0 || (s.remoteMaxConcurrent > 0 && uint32(s.streams.LocalCount()) >= s.remoteMaxConcurrent) {
		s.mu.Unlock()
		return
	}
	req := s.pendingSubmits[0]
	s.pendingSubmits = s.pendingSubmits[1:]
	s.mu.Unlock()
	s.handleSubmit(req)
}

func (s *Session) handleFrame(f frame.Frame) error {
	switch fr := f.(type) {
	case *frame.DataFrame:
		return s.handleData(fr)
	case *frame.SynStreamFrame:
		return s.handleSynStream(fr)
	case *frame.SynReplyFrame:
		return s.handleSynReply(fr)
	case *frame.RstStreamFrame:
		s.handleRstStream(fr)
	case *frame.SettingsFrame:
		s.handleSettings(fr)
	case *frame.PingFrame:
		s.handlePing(fr)
	case *frame.GoAwayFrame:
		s.handleGoAway(fr)
	case *frame.HeadersFrame:
		return s.handleHeaders(fr)
	case *frame.WindowUpdateFrame:
		s.handleWindowUpdate(fr)
	}
	return nil
}

func (s *Session) handleData(f *frame.DataFrame) error {
	st, ok := s.streams.Get(f.StreamId)
	if !ok {
		s.mu.Lock()
		known := f.StreamId <= s.maxStreamIdEverUsed
		s.mu.Unlock()
		if known {
			return nil
		}
		return &Error{Status: frame.GoAwayProtocolError}
	}
	if err := s.sessionReceiveWindow.Adjust(-int64(len(f.Data))); err != nil {
		return &Error{Status: frame.GoAwayProtocolError, Cause: err}
	}
	fin := f.Flags&frame.DataFlagFin != 0
	if err := st.ReceiveData(f.Data, fin); err != nil {
		s.resetAndRemove(f.StreamId, err)
		return nil
	}
	if st.IsClosed() {
		s.removeStream(f.StreamId)
	}
	return nil
}

func (s *Session) handleSynStream(f *frame.SynStreamFrame) error {
	if f.StreamId%2 != 0 {
		return &Error{Status: frame.GoAwayProtocolError}
	}
	s.mu.Lock()
	valid := f.StreamId > s.lastPushId
	s.mu.Unlock()
	if !valid {
		s.writeRst(f.StreamId, frame.ProtocolError)
		return nil
	}
	assoc, hasAssoc := s.streams.Get(f.AssociatedToStreamId)
	if !hasAssoc {
		s.writeRst(f.StreamId, frame.ProtocolError)
		return nil
	}
	// "Open or half-closed" is from the peer's (server's) point of view;
	// the client-local mirror of the server's half-closed(remote) is
	// this stream's own HalfClosedLocal (client has sent its full
	// request, server hasn't finished replying yet) -- the common case
	// for a push triggered by a GET with no body. HalfClosedRemote here
	// would mean the server already finished its reply, too late to push.
	if st := assoc.State(); st != stream.Open && st != stream.HalfClosedLocal {
		s.writeRst(f.StreamId, frame.ProtocolError)
		return nil
	}
	if f.Headers.Get(":host") == "" || f.Headers.Get(":scheme") == "" || f.Headers.Get(":path") == "" {
		s.writeRst(f.StreamId, frame.ProtocolError)
		return nil
	}
	s.mu.Lock()
	s.lastPushId = f.StreamId
	if f.StreamId > s.maxStreamIdEverUsed {
		s.maxStreamIdEverUsed = f.StreamId
	}
	s.mu.Unlock()

	if s.pushFn == nil {
		s.writeRst(f.StreamId, frame.RefusedStream)
		return nil
	}
	st := stream.New(f.StreamId, 0, s.cfg.InitialStreamWindow, s.cfg.InitialStreamWindow, f.Headers, nil, &discardDelegate{})
	st.Associated = f.AssociatedToStreamId
	st.OpenReserved()
	s.streams.Add(st, false)
	s.pushFn(st)
	return nil
}

func (s *Session) handleSynReply(f *frame.SynReplyFrame) error {
	st, ok := s.streams.Get(f.StreamId)
	if !ok {
		return nil
	}
	fin := f.CFHeader.Flags&frame.ControlFlagFin != 0
	if err := st.ReceiveReply(f.Headers, fin); err != nil {
		s.resetAndRemove(f.StreamId, err)
	} else if st.IsClosed() {
		s.removeStream(f.StreamId)
	}
	return nil
}

func (s *Session) handleHeaders(f *frame.HeadersFrame) error {
	st, ok := s.streams.Get(f.StreamId)
	if !ok {
		return nil
	}
	fin := f.CFHeader.Flags&frame.ControlFlagFin != 0
	if err := st.ReceiveHeaders(f.Headers, fin); err != nil {
		s.resetAndRemove(f.StreamId, err)
	} else if st.IsClosed() {
		s.removeStream(f.StreamId)
	}
	return nil
}

func (s *Session) handleRstStream(f *frame.RstStreamFrame) {
	st, ok := s.streams.Get(f.StreamId)
	if !ok {
		return
	}
	st.ReceiveRst(f.Status)
	s.removeStream(f.StreamId)
}

func (s *Session) handleSettings(f *frame.SettingsFrame) {
	for _, fiv := range f.FlagIdValues {
		if fiv.Id == frame.SettingsInitialWindowSize {
			old := s.cfg.InitialStreamWindow
			if fiv.Value <= uint32(flowcontrol.MaxWindowSize) {
				delta := int64(fiv.Value) - int64(old)
				s.cfg.InitialStreamWindow = fiv.Value
				s.streams.Each(func(st *stream.Stream) {
					st.AdjustSendWindow(delta)
				})
			}
		}
		if fiv.Id == frame.SettingsMaxConcurrentStreams {
			s.mu.Lock()
			s.remoteMaxConcurrent = fiv.Value
			s.mu.Unlock()
		}
	}
	if f.ClearSettings() {
		s.store.Clear(s.origin.String())
	}
	s.store.Persist(s.origin.String(), f.FlagIdValues)
}

func (s *Session) handlePing(f *frame.PingFrame) {
	if f.Id%2 == 0 {
		s.enc.EncodePing(&frame.PingFrame{Id: f.Id}, nil)
		return
	}
	s.mu.Lock()
	sent, ok := s.pendingPings[f.Id]
	if ok {
		delete(s.pendingPings, f.Id)
	}
	s.mu.Unlock()
	if ok {
		rtt := time.Since(sent)
		s.logger.Debug("spdy: ping rtt", "origin", s.origin.String(), "rtt", rtt)
	}
}

// checkPingHealth is the ping-interval ticker's tick handler (spec
// 4.G: "Ping health: if configured, emit a PING periodically and close
// the Session with a timeout error if no echo within a bound"). At
// most one locally-initiated ping is ever outstanding at a time (spec
// 5's resource bound): if one is already in flight and still within
// cfg.PingTimeout, this tick is a no-op; if it has overrun the
// timeout, the session fails; otherwise a fresh ping is sent.
func (s *Session) checkPingHealth() error {
	s.mu.Lock()
	now := time.Now()
	for id, sent := range s.pendingPings {
		if id%2 != 1 {
			continue
		}
		if s.cfg.PingTimeout > 0 && now.Sub(sent) > s.cfg.PingTimeout {
			s.mu.Unlock()
			return &TransportError{Cause: errPingTimeout}
		}
		s.mu.Unlock()
		return nil
	}
	id := s.nextPingId
	s.nextPingId += 2
	s.pendingPings[id] = now
	s.mu.Unlock()
	_, err := s.enc.EncodePing(&frame.PingFrame{Id: id}, nil)
	return err
}

func (s *Session) handleGoAway(f *frame.GoAwayFrame) {
	s.mu.Lock()
	s.goingAway = true
	s.mu.Unlock()
	s.streams.Each(func(st *stream.Stream) {
		if st.Id > f.LastGoodStreamId && st.Id%2 != 0 {
			s.resetAndRemove(st.Id, &stream.Error{StreamId: st.Id, Status: frame.RefusedStream})
		}
	})
}

func (s *Session) handleWindowUpdate(f *frame.WindowUpdateFrame) {
	if f.StreamId == 0 {
		s.sessionSendWindow.Adjust(int64(f.DeltaWindowSize))
		return
	}
	st, ok := s.streams.Get(f.StreamId)
	if !ok {
		return
	}
	st.AdjustSendWindow(int64(f.DeltaWindowSize))
}

func (s *Session) writeRst(id frame.StreamId, status frame.RstStreamStatus) {
	s.enc.EncodeRstStream(&frame.RstStreamFrame{StreamId: id, Status: status}, id)
}

func (s *Session) resetAndRemove(id frame.StreamId, err error) {
	status := frame.ProtocolError
	if se, ok := err.(*stream.Error); ok {
		status = se.Status
	}
	s.writeRst(id, status)
	if st, ok := s.streams.Get(id); ok {
		st.Abort(err)
	}
	s.removeStream(id)
}

func (s *Session) removeStream(id frame.StreamId) {
	local := id%2 != 0
	s.streams.Remove(id, local)
	s.admitPending()
}

// runScheduler is the sending scheduler: it writes every stream's
// available data, respecting both windows, in priority order,
// round-robin within a priority class, until nothing more can be sent.
func (s *Session) runScheduler() {
	for {
		avail := s.sessionSendWindow.Size()
		if avail <= 0 {
			return
		}
		st := s.streams.NextWritable()
		if st == nil {
			return
		}
		max := int64(s.cfg.MaxDataPayload)
		if swin := st.SendWindow.Size(); swin < max {
			max = swin
		}
		if avail < max {
			max = avail
		}
		if max <= 0 {
			return
		}
		data, last, err := st.Body.Read(int(max))
		if err != nil {
			s.resetAndRemove(st.Id, &stream.Error{StreamId: st.Id, Status: frame.InternalError})
			continue
		}
		if len(data) == 0 && !last {
			return
		}
		n := int64(len(data))
		s.sessionSendWindow.Adjust(-n)
		st.SendWindow.Adjust(-n)
		st.MarkTxBytes(n)
		fin := last && !st.Body.HasDataAvailable()
		var flags frame.DataFlags
		if fin {
			flags = frame.DataFlagFin
		}
		s.enc.EncodeData(&frame.DataFrame{StreamId: st.Id, Flags: flags, Data: data}, st.Id)
		if fin {
			st.MarkLocalClosed()
			if st.IsClosed() {
				s.removeStream(st.Id)
			}
		}
	}
}

// CancelStream issues RST_STREAM CANCEL for id and removes it from the
// stream set, per spec section 5's "a caller may cancel a stream at
// any time". Like Ping and Close, the actual encode happens on the
// dispatch loop's own goroutine so it never races the scheduler's
// writes to the same encoder. Canceling an id this Session no longer
// knows about (already closed, or never opened) is a no-op.
func (s *Session) CancelStream(id frame.StreamId) {
	s.runAction(func() {
		st, ok := s.streams.Get(id)
		if !ok {
			return
		}
		rst := st.Cancel()
		s.enc.EncodeRstStream(rst, id)
		s.removeStream(id)
	})
}

// ConsumeStream records that the caller of stream id's Delegate has
// consumed n bytes of previously delivered DATA, and emits whatever
// WINDOW_UPDATE(s) that consumption now permits: spec section 4.E
// ("once the caller has consumed bytes, a WINDOW_UPDATE with the
// consumed delta is emitted... below a lower bound the stream must
// send a WINDOW_UPDATE to refill") for the stream's own window, and
// spec section 3's identical refill rule for the session window, which
// every DATA frame drains regardless of which stream it belongs to.
func (s *Session) ConsumeStream(id frame.StreamId, n uint32) {
	if n == 0 {
		return
	}
	s.runAction(func() {
		if st, ok := s.streams.Get(id); ok {
			if delta, shouldUpdate := st.ConsumeReceived(n); shouldUpdate {
				s.enc.EncodeWindowUpdate(&frame.WindowUpdateFrame{StreamId: id, DeltaWindowSize: delta}, id)
			}
		}
		lowerBound := int64(s.cfg.InitialSessionWindow) / 2
		before := s.sessionReceiveWindow.Size()
		s.sessionReceiveWindow.Adjust(int64(n))
		if before < lowerBound {
			s.enc.EncodeWindowUpdate(&frame.WindowUpdateFrame{StreamId: 0, DeltaWindowSize: n}, 0)
		}
	})
}

// Ping sends a PING and records its send time for RTT tracking. The
// actual frame write happens on the dispatch
// loop's goroutine via actionCh: the encoder and its zlib compressor
// are not safe for concurrent use, so every outbound frame, including
// one triggered by a caller calling Ping from its own goroutine, has to
// go through the single writer the loop already serializes Submit and
// frame-handling writes through.
func (s *Session) Ping() {
	s.mu.Lock()
	id := s.nextPingId
	s.nextPingId += 2
	s.pendingPings[id] = time.Now()
	s.mu.Unlock()

	s.runAction(func() {
		s.enc.EncodePing(&frame.PingFrame{Id: id}, nil)
	})
}

// runAction hands fn to the dispatch loop for execution, or drops it
// silently if the session has already stopped.
func (s *Session) runAction(fn func()) {
	select {
	case s.actionCh <- fn:
	case <-s.stopped:
	}
}

// Close is idempotent: it sends GOAWAY, waits up to cfg.CloseTimeout
// for in-flight streams to finish, and then tears the session down.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	lastGood := s.maxStreamIdEverUsed
	s.mu.Unlock()

	s.runAction(func() {
		s.enc.EncodeGoAway(&frame.GoAwayFrame{LastGoodStreamId: lastGood, Status: frame.GoAwayOK}, nil)
	})
	deadline := time.After(s.cfg.CloseTimeout)
wait:
	for s.streams.Len() > 0 {
		select {
		case <-s.stopped:
			break wait
		case <-deadline:
			break wait
		case <-time.After(10 * time.Millisecond):
		}
	}
	select {
	case s.closeCh <- struct{}{}:
	case <-s.stopped:
	}
	select {
	case <-s.stopped:
	case <-time.After(s.cfg.CloseTimeout):
	}
	return nil
}

// GoingAway reports whether this session has received or sent GOAWAY
// and should not be given new streams.
func (s *Session) GoingAway() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.goingAway || s.closed
}

// discardDelegate is the delegate of every server-pushed stream
// handleSynStream accepts, which it only does when a PushHandler is
// registered (without one the push is refused). It drops every event,
// and a Stream's delegate cannot be replaced afterwards, so a pushed
// stream's later HEADERS, DATA and close events reach no caller.
type discardDelegate struct{}

func (discardDelegate) OnReply(frame.Header)                {}
func (discardDelegate) OnHeaders(frame.Header)               {}
func (discardDelegate) OnData(p []byte, last bool)           {}
func (discardDelegate) OnClose(err error, meta stream.Metadata) {}
