// Package stream implements the per-exchange SPDY/3.1 stream state
// machine (spec 4.E) and the bounded collection of live streams a
// Session schedules writes across (spec 4.F).
//
// Grounded on the teacher's spdyframing.Stream (id, header accumulation,
// a sync.Cond-gated send window, rclose/wclose half-close bookkeeping),
// widened with the explicit state field chendo-spdy's stream.go carries
// and the delegate-callback shape original_source/SPDY/SPDYStream.h
// uses in place of kr-spdy's io.Reader/io.Writer Stream.
package stream

import (
	"sync"
	"time"

	"github.com/twitter-archive/spdy/flowcontrol"
	"github.com/twitter-archive/spdy/frame"
)

// State is one node of the stream state machine (spec 4.E).
type State int

const (
	Idle State = iota
	Open
	HalfClosedLocal
	HalfClosedRemote
	Reserved
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Open:
		return "open"
	case HalfClosedLocal:
		return "half-closed-local"
	case HalfClosedRemote:
		return "half-closed-remote"
	case Reserved:
		return "reserved"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Metadata accumulates the timings and counters delivered to the
// caller when a stream finishes (spec 3: "metadata (timings, byte
// counters, flags -- delivered at completion)"). Cellular and the two
// duration fields are supplemented from original_source/SPDY/SPDYMetadata.h,
// which the distilled spec omits. Nothing in this module sets Cellular
// or ConnectedMs, and BlockedMs grows only through MarkBlocked and
// MarkUnblocked, which session.Session does not call; session.Pool
// keeps each session's reachability itself and does not read Metadata.
type Metadata struct {
	TxBytes              int64
	RxBytes              int64
	Cellular             bool
	ConnectedMs          int64 // time from socket creation to TLS established
	BlockedMs            int64 // time this stream spent write-blocked on flow control
	StreamId             frame.StreamId
	RequestCanonicalHost string
}

// Delegate receives the events a Stream raises as frames arrive for
// it. Modeled on original_source/SPDY/SPDYStream.h's delegate protocol
// rather than kr-spdy's blocking Read/Write Stream, since spec 4.E's
// contract ("Response headers, body bytes, and terminal events flow
// back to the caller through the Stream's delegate contract") is
// explicitly callback-shaped.
type Delegate interface {
	OnReply(headers frame.Header)
	OnHeaders(headers frame.Header)
	OnData(p []byte, last bool)
	OnClose(err error, meta Metadata)
}

// Stream is one request/response exchange (spec section 3, "Stream").
type Stream struct {
	Id         frame.StreamId
	Priority   uint8
	Associated frame.StreamId // 0 unless server-pushed
	ReqHeaders frame.Header
	Body       Body

	SendWindow    *flowcontrol.Window
	ReceiveWindow *flowcontrol.Window

	delegate Delegate

	mu                  sync.Mutex
	state               State
	receivedReply       bool
	respHeaders         frame.Header
	unackedReceiveBytes uint32
	initialReceiveWindow uint32
	meta                Metadata
	blockedSince        time.Time
}

// New creates a Stream in Idle state. initialSendWindow and
// initialReceiveWindow seed its flow-control windows (spec 3: "the
// initial stream window applies symmetrically").
func New(id frame.StreamId, priority uint8, initialSendWindow, initialReceiveWindow uint32, reqHeaders frame.Header, body Body, delegate Delegate) *Stream {
	return &Stream{
		Id:                   id,
		Priority:             priority,
		ReqHeaders:           reqHeaders,
		Body:                 body,
		SendWindow:           flowcontrol.New(initialSendWindow),
		ReceiveWindow:        flowcontrol.New(initialReceiveWindow),
		initialReceiveWindow: initialReceiveWindow,
		delegate:             delegate,
		state:                Idle,
		respHeaders:          make(frame.Header),
		meta:                 Metadata{StreamId: id, RequestCanonicalHost: canonicalHost(reqHeaders)},
	}
}

// canonicalHost pulls :host out of a stream's own request headers so
// Metadata can report which origin a finished stream actually served,
// without the caller having to thread it through separately.
func canonicalHost(h frame.Header) string {
	if vv := h[":host"]; len(vv) > 0 {
		return vv[0]
	}
	return ""
}

// State returns the stream's current state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Open transitions a freshly assigned Idle stream to Open, or directly
// to HalfClosedLocal if the outbound SYN_STREAM carries FIN (an empty
// request body).
func (s *Stream) Open(fin bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Idle {
		return
	}
	if fin {
		s.state = HalfClosedLocal
	} else {
		s.state = Open
	}
}

// OpenReserved marks a server-pushed stream Reserved (spec 4.E:
// "Reserved for server-pushed streams (client-receivable, never
// client-sendable)").
func (s *Stream) OpenReserved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Reserved
}

// MarkLocalClosed records that this side has sent FIN, advancing Open
// to HalfClosedLocal or HalfClosedRemote to Closed. Unlike
// MarkRemoteClosed, this is driven from session.Session's scheduler
// rather than from inside this package, so it finishes the stream
// itself when the transition closes it fully, instead of leaving that
// to the caller.
func (s *Stream) MarkLocalClosed() {
	s.mu.Lock()
	s.advanceLocked(true, false)
	s.mu.Unlock()
	if s.IsClosed() {
		s.finish(nil)
	}
}

// MarkRemoteClosed records that the peer has sent FIN, advancing Open
// to HalfClosedRemote or HalfClosedLocal to Closed.
func (s *Stream) MarkRemoteClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advanceLocked(false, true)
}

func (s *Stream) advanceLocked(local, remote bool) {
	switch s.state {
	case Idle, Open:
		switch {
		case local && remote:
			s.state = Closed
		case local:
			s.state = HalfClosedLocal
		case remote:
			s.state = HalfClosedRemote
		}
	case HalfClosedLocal:
		if remote {
			s.state = Closed
		}
	case HalfClosedRemote:
		if local {
			s.state = Closed
		}
	case Reserved:
		if remote {
			s.state = Closed
		} else if local {
			s.state = HalfClosedLocal
		}
	}
}

// IsClosed reports whether both directions are closed.
func (s *Stream) IsClosed() bool {
	return s.State() == Closed
}

// ReceiveReply handles an inbound SYN_REPLY (spec 4.E: "Receiving
// SYN_REPLY in state Idle/Open/HalfClosedLocal sets received-reply...
// Receiving a second SYN_REPLY is a stream-level PROTOCOL_ERROR (RST
// with STREAM_IN_USE)").
func (s *Stream) ReceiveReply(h frame.Header, fin bool) error {
	s.mu.Lock()
	if s.receivedReply {
		s.mu.Unlock()
		return &Error{StreamId: s.Id, Status: frame.StreamInUse}
	}
	if s.state == HalfClosedRemote || s.state == Closed {
		s.mu.Unlock()
		return &Error{StreamId: s.Id, Status: frame.StreamAlreadyClosed}
	}
	s.receivedReply = true
	s.respHeaders = h
	s.mu.Unlock()

	s.delegate.OnReply(h)
	if fin {
		s.MarkRemoteClosed()
		if s.IsClosed() {
			s.finish(nil)
		}
	}
	return nil
}

// ReceiveHeaders appends a HEADERS frame's fields to the accumulated
// response header set (spec 4.G: "HEADERS -> append to Stream's
// response header set").
func (s *Stream) ReceiveHeaders(h frame.Header, fin bool) error {
	s.mu.Lock()
	for name, values := range h {
		for _, v := range values {
			s.respHeaders.Add(name, v)
		}
	}
	s.mu.Unlock()

	s.delegate.OnHeaders(h)
	if fin {
		s.MarkRemoteClosed()
		if s.IsClosed() {
			s.finish(nil)
		}
	}
	return nil
}

// ReceiveData handles an inbound DATA frame's payload (spec 4.G: "DATA
// -> ... decrement session receive window and stream receive window;
// deliver bytes to the Stream; if FIN, mark remote-closed").
func (s *Stream) ReceiveData(p []byte, fin bool) error {
	s.mu.Lock()
	if !s.receivedReply {
		s.mu.Unlock()
		return &Error{StreamId: s.Id, Status: frame.ProtocolError}
	}
	if s.state == HalfClosedRemote || s.state == Closed {
		s.mu.Unlock()
		return &Error{StreamId: s.Id, Status: frame.StreamAlreadyClosed}
	}
	s.meta.RxBytes += int64(len(p))
	s.mu.Unlock()

	if err := s.ReceiveWindow.Adjust(-int64(len(p))); err != nil {
		return &Error{StreamId: s.Id, Status: frame.FlowControlError}
	}
	s.delegate.OnData(p, fin)
	if fin {
		s.MarkRemoteClosed()
		if s.IsClosed() {
			s.finish(nil)
		}
	}
	return nil
}

// ConsumeReceived records that the caller has consumed n bytes
// previously delivered via OnData, and reports the WINDOW_UPDATE delta
// the stream owes the peer, if any (spec 4.E: "once the caller has
// consumed bytes, a WINDOW_UPDATE with the consumed delta is emitted.
// Below a lower bound (default: initial/2), the stream must send a
// WINDOW_UPDATE to refill").
func (s *Stream) ConsumeReceived(n uint32) (delta uint32, shouldUpdate bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unackedReceiveBytes += n
	s.ReceiveWindow.Adjust(int64(n))
	lowerBound := int64(s.initialReceiveWindow) / 2
	if s.ReceiveWindow.Size() < lowerBound || s.unackedReceiveBytes >= s.initialReceiveWindow/2 {
		delta = s.unackedReceiveBytes
		s.unackedReceiveBytes = 0
		return delta, delta > 0
	}
	return 0, false
}

// AdjustSendWindow applies a retroactive SETTINGS INITIAL_WINDOW_SIZE
// change or a WINDOW_UPDATE increment to the send side (spec 3: "a peer
// SETTINGS change to INITIAL_WINDOW_SIZE retroactively adjusts
// send_window by (new - old) for every existing stream").
func (s *Stream) AdjustSendWindow(delta int64) error {
	return s.SendWindow.Adjust(delta)
}

// MarkTxBytes records bytes sent in a DATA frame, for Metadata.
func (s *Stream) MarkTxBytes(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.meta.TxBytes += n
}

// MarkBlocked and MarkUnblocked track BlockedMs for Metadata.
func (s *Stream) MarkBlocked(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.blockedSince.IsZero() {
		s.blockedSince = now
	}
}

func (s *Stream) MarkUnblocked(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.blockedSince.IsZero() {
		s.meta.BlockedMs += now.Sub(s.blockedSince).Milliseconds()
		s.blockedSince = time.Time{}
	}
}

// ReceiveRst handles an inbound RST_STREAM: the stream is closed
// immediately, surfacing status as a stream error (spec 4.G: "RST_STREAM
// -> route to Stream; transitions to Closed with the given status code
// surfaced as a stream error").
func (s *Stream) ReceiveRst(status frame.RstStreamStatus) {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	s.SendWindow.Close(&Error{StreamId: s.Id, Status: status})
	s.finish(&Error{StreamId: s.Id, Status: status})
}

// Cancel closes the stream locally, as if by the caller's request
// (spec 4.E: "calling cancel() on an open stream emits RST_STREAM
// CANCEL and transitions to Closed").
func (s *Stream) Cancel() *frame.RstStreamFrame {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	s.SendWindow.Close(&Error{StreamId: s.Id, Status: frame.Cancel})
	s.finish(&Error{StreamId: s.Id, Status: frame.Cancel})
	return &frame.RstStreamFrame{StreamId: s.Id, Status: frame.Cancel}
}

// Abort closes the stream due to a fatal transport or session error,
// surfacing err to the caller (spec 4.E: "A fatal read/write error
// closes with the originating error surfaced to the caller").
func (s *Stream) Abort(err error) {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()
	s.SendWindow.Close(err)
	s.finish(err)
}

func (s *Stream) finish(err error) {
	s.mu.Lock()
	meta := s.meta
	s.mu.Unlock()
	if s.Body != nil {
		s.Body.Close()
	}
	s.delegate.OnClose(err, meta)
}

// IsWritable reports whether the stream still has outbound data and an
// open send window, i.e. whether session.Session's scheduler should
// consider it (spec 4.F).
func (s *Stream) IsWritable() bool {
	st := s.State()
	if st != Open && st != HalfClosedRemote {
		return false
	}
	if s.Body == nil {
		return false
	}
	return s.Body.HasDataAvailable() && s.SendWindow.Writable()
}
