package session

import (
	"fmt"

	"github.com/twitter-archive/spdy/frame"
)

// Error is fatal to the whole connection: PROTOCOL_ERROR or
// INTERNAL_ERROR, mapped to a GOAWAY status code that the session sends
// before tearing down. A frame.CodecError is not converted to an Error:
// one returned while decoding ends the session, without a GOAWAY, with
// the CodecError as its terminal error, and one returned while encoding
// a SYN_STREAM is returned by Submit.
type Error struct {
	Status frame.GoAwayStatus
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("spdy: session error %s: %v", goAwayStatusString(e.Status), e.Cause)
	}
	return fmt.Sprintf("spdy: session error %s", goAwayStatusString(e.Status))
}

func (e *Error) Unwrap() error { return e.Cause }

func goAwayStatusString(s frame.GoAwayStatus) string {
	switch s {
	case frame.GoAwayOK:
		return "OK"
	case frame.GoAwayProtocolError:
		return "PROTOCOL_ERROR"
	case frame.GoAwayInternalError:
		return "INTERNAL_ERROR"
	default:
		return fmt.Sprintf("GoAwayStatus(%d)", s)
	}
}

// TransportError wraps a failure from the underlying socket: a connect
// timeout, a read/write timeout, failed TLS verification, or a generic
// I/O error, propagated to every live stream. It is handled identically
// to a session error except no GOAWAY can be sent.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("spdy: transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error  { return e.Cause }
