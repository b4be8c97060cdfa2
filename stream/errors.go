package stream

import (
	"fmt"

	"github.com/twitter-archive/spdy/frame"
)

// Error is a stream-level protocol violation: it carries an
// RST_STREAM status and is recoverable by closing only the offending
// stream (spec 4.E "Failure": "Stream-level errors are recoverable;
// only that stream dies"). session.Session turns an Error into an
// outbound RST_STREAM of the same status.
type Error struct {
	StreamId frame.StreamId
	Status   frame.RstStreamStatus
}

func (e *Error) Error() string {
	return fmt.Sprintf("spdy: stream %d reset: %s", e.StreamId, e.Status)
}
