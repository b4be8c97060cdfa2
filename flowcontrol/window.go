// Package flowcontrol implements the signed, blocking window accounting
// shared by session-wide and per-stream SPDY/3.1 flow control (spec
// section 3: "send window and receive window each lie in
// [stream_send_lower_bound, 2^31-1]; flow-control delta arithmetic uses
// signed 64-bit to detect overflow").
//
// Grounded on the teacher's spdyframing.semaphore (a sync.Cond-based
// blocking counter used to gate writes against the peer's advertised
// window), generalized in two ways the teacher's counting semaphore
// didn't need: the window can go negative (a SETTINGS INITIAL_WINDOW_SIZE
// decrease retroactively shrinks every open stream's send window, which
// may drive it below zero until the peer sends WINDOW_UPDATE), and
// overflow is checked against the protocol's 2^31-1 ceiling rather than
// int32 wraparound.
package flowcontrol

import (
	"errors"
	"sync"
)

// MaxWindowSize is the largest value a flow-control window may hold
// (2^31 - 1, the largest value WINDOW_UPDATE's 31-bit delta field and
// SETTINGS' INITIAL_WINDOW_SIZE value can express).
const MaxWindowSize = int64(1<<31 - 1)

// ErrOverflow is returned by Adjust when a positive delta would push the
// window above MaxWindowSize.
var ErrOverflow = errors.New("flowcontrol: window increment overflows 2^31-1")

// Window is a signed, blocking flow-control counter. One Window tracks
// one direction (send or receive) at one granularity (session-wide or
// per-stream).
type Window struct {
	mu     sync.Mutex
	cond   *sync.Cond
	size   int64
	closed bool
	err    error
}

// New creates a Window starting at initial.
func New(initial uint32) *Window {
	w := &Window{size: int64(initial)}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Size returns the current window size. It may be negative (spec 4.E:
// "may go negative; that is permitted, and the stream simply becomes
// write-blocked until positive again").
func (w *Window) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.size
}

// Writable reports whether the window currently permits sending any
// bytes at all, without blocking. The scheduler (session.Session) uses
// this to skip write-blocked streams rather than calling Acquire and
// stalling its single writer goroutine.
func (w *Window) Writable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.closed && w.size > 0
}

// Acquire reserves up to max bytes of window, blocking while the window
// is at or below zero. It returns the number of bytes actually reserved
// (at most max, at most the available size) and never blocks once any
// positive amount is available -- callers that need an exact amount
// should call Acquire again for the remainder.
func (w *Window) Acquire(max int64) (int64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.size <= 0 && !w.closed {
		w.cond.Wait()
	}
	if w.closed {
		return 0, w.err
	}
	n := max
	if n > w.size {
		n = w.size
	}
	w.size -= n
	return n, nil
}

// Adjust applies delta to the window: a positive delta from a
// WINDOW_UPDATE frame or a SETTINGS INITIAL_WINDOW_SIZE increase, a
// negative delta from DATA sent/received accounting or a
// INITIAL_WINDOW_SIZE decrease applied retroactively to an existing
// stream. Only positive deltas are checked for overflow -- spec 4.G
// allows the window to go negative, so a negative delta can never be
// the overflow case.
func (w *Window) Adjust(delta int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.size + delta
	if delta > 0 && next > MaxWindowSize {
		return ErrOverflow
	}
	w.size = next
	if next > 0 {
		w.cond.Broadcast()
	}
	return nil
}

// Close unblocks any goroutine waiting in Acquire, which will then
// return err. Used when the owning stream or session is torn down
// while a write is blocked on flow control.
func (w *Window) Close(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		w.err = err
	}
	w.cond.Broadcast()
}
