package stream

import (
	"testing"

	"github.com/twitter-archive/spdy/frame"
)

type recordingDelegate struct {
	replies [][]frame.Header
	data    [][]byte
	lastFin bool
	closed  bool
	closeErr error
}

func (d *recordingDelegate) OnReply(h frame.Header)  { d.replies = append(d.replies, []frame.Header{h}) }
func (d *recordingDelegate) OnHeaders(h frame.Header) {}
func (d *recordingDelegate) OnData(p []byte, last bool) {
	cp := append([]byte(nil), p...)
	d.data = append(d.data, cp)
	d.lastFin = last
}
func (d *recordingDelegate) OnClose(err error, meta Metadata) {
	d.closed = true
	d.closeErr = err
}

func newTestStream(id frame.StreamId, priority uint8) (*Stream, *recordingDelegate) {
	del := &recordingDelegate{}
	body := NewBytesBody([]byte("hello"))
	s := New(id, priority, 65536, 65536, frame.Header{":method": {"GET"}}, body, del)
	return s, del
}

func TestStreamOpenTransitions(t *testing.T) {
	s, _ := newTestStream(1, 0)
	if s.State() != Idle {
		t.Fatalf("initial state = %v, want Idle", s.State())
	}
	s.Open(false)
	if s.State() != Open {
		t.Fatalf("state after Open(false) = %v, want Open", s.State())
	}
}

func TestStreamOpenWithFin(t *testing.T) {
	s, _ := newTestStream(1, 0)
	s.Open(true)
	if s.State() != HalfClosedLocal {
		t.Fatalf("state after Open(true) = %v, want HalfClosedLocal", s.State())
	}
}

func TestReceiveReplySetsReceivedReplyAndNotifies(t *testing.T) {
	s, del := newTestStream(1, 0)
	s.Open(true)
	h := frame.Header{":status": {"200"}}
	if err := s.ReceiveReply(h, false); err != nil {
		t.Fatalf("ReceiveReply: %v", err)
	}
	if len(del.replies) != 1 {
		t.Fatalf("OnReply called %d times, want 1", len(del.replies))
	}
	if s.State() != HalfClosedLocal {
		t.Fatalf("state after reply (no fin) = %v, want HalfClosedLocal", s.State())
	}
}

func TestReceiveReplyTwiceIsStreamInUse(t *testing.T) {
	s, _ := newTestStream(1, 0)
	s.Open(false)
	if err := s.ReceiveReply(frame.Header{}, false); err != nil {
		t.Fatalf("first ReceiveReply: %v", err)
	}
	err := s.ReceiveReply(frame.Header{}, false)
	se, ok := err.(*Error)
	if !ok || se.Status != frame.StreamInUse {
		t.Fatalf("second ReceiveReply: got %v, want StreamInUse Error", err)
	}
}

func TestReceiveDataBeforeReplyIsProtocolError(t *testing.T) {
	s, _ := newTestStream(1, 0)
	s.Open(false)
	err := s.ReceiveData([]byte("x"), false)
	se, ok := err.(*Error)
	if !ok || se.Status != frame.ProtocolError {
		t.Fatalf("ReceiveData before reply: got %v, want ProtocolError Error", err)
	}
}

func TestReceiveDataClosesStreamOnFin(t *testing.T) {
	s, del := newTestStream(1, 0)
	s.Open(true)
	if err := s.ReceiveReply(frame.Header{}, false); err != nil {
		t.Fatalf("ReceiveReply: %v", err)
	}
	if err := s.ReceiveData([]byte("payload"), true); err != nil {
		t.Fatalf("ReceiveData: %v", err)
	}
	if !del.lastFin {
		t.Fatalf("OnData last flag = false, want true")
	}
	if !s.IsClosed() {
		t.Fatalf("stream not closed after fin on both sides")
	}
	if !del.closed {
		t.Fatalf("OnClose not called")
	}
}

func TestCancelEmitsRstAndCloses(t *testing.T) {
	s, del := newTestStream(1, 0)
	s.Open(false)
	f := s.Cancel()
	if f.Status != frame.Cancel {
		t.Fatalf("Cancel frame status = %v, want Cancel", f.Status)
	}
	if !s.IsClosed() {
		t.Fatalf("stream not Closed after Cancel")
	}
	if !del.closed {
		t.Fatalf("OnClose not called after Cancel")
	}
}

func TestIsWritableRequiresOpenBodyAndWindow(t *testing.T) {
	s, _ := newTestStream(1, 0)
	if s.IsWritable() {
		t.Fatalf("Idle stream reported writable")
	}
	s.Open(false)
	if !s.IsWritable() {
		t.Fatalf("Open stream with body and window not writable")
	}
	s.SendWindow.Adjust(-65536)
	if s.IsWritable() {
		t.Fatalf("stream with exhausted send window reported writable")
	}
}

func TestSetRoundRobinWithinPriority(t *testing.T) {
	set := NewSet()
	var streams []*Stream
	for i := 0; i < 3; i++ {
		s, _ := newTestStream(frame.StreamId(2*i+1), 0)
		s.Open(false)
		set.Add(s, true)
		streams = append(streams, s)
	}

	seen := make(map[frame.StreamId]bool)
	for i := 0; i < 3; i++ {
		st := set.NextWritable()
		if st == nil {
			t.Fatalf("NextWritable returned nil on iteration %d", i)
		}
		seen[st.Id] = true
	}
	if len(seen) != 3 {
		t.Fatalf("round-robin visited %d distinct streams, want 3", len(seen))
	}
}

func TestSetPriorityOrdering(t *testing.T) {
	set := NewSet()
	low, _ := newTestStream(1, 7)
	low.Open(false)
	high, _ := newTestStream(3, 0)
	high.Open(false)
	set.Add(low, true)
	set.Add(high, true)

	st := set.NextWritable()
	if st == nil || st.Id != high.Id {
		t.Fatalf("NextWritable returned %v, want the priority-0 stream", st)
	}
}
