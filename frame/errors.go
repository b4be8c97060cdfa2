package frame

import "fmt"

// CodecErrorCode enumerates the ways encoding or decoding a frame can
// fail independent of the underlying transport. Mirrors the original's
// SPDYCodecError domain (SDPYHeaderBlockEncodingError/DecodingError),
// widened with the framing-level violations spec section 4.D calls out.
type CodecErrorCode string

const (
	ErrUnlowercasedHeaderName  CodecErrorCode = "header name was not lowercase"
	ErrDuplicateHeader         CodecErrorCode = "duplicate header name in block"
	ErrEmptyHeaderName         CodecErrorCode = "empty header name"
	ErrEmptyHeaderValue        CodecErrorCode = "empty header value"
	ErrHeaderBlockTooLarge     CodecErrorCode = "uncompressed header block exceeds 16KiB-12"
	ErrWrongCompressedSize     CodecErrorCode = "compressed header block did not consume declared length"
	ErrInvalidHeaderPresent    CodecErrorCode = "frame contained a disallowed hop-by-hop header"
	ErrZeroStreamId            CodecErrorCode = "stream id zero is disallowed"
	ErrUnsupportedVersion      CodecErrorCode = "unsupported SPDY version"
	ErrInvalidControlFrame     CodecErrorCode = "malformed control frame"
	ErrInvalidDataFrame        CodecErrorCode = "malformed data frame"
	ErrSettingsOutOfOrder      CodecErrorCode = "SETTINGS entry ids were not strictly increasing"
	ErrInvalidWindowDelta      CodecErrorCode = "WINDOW_UPDATE delta out of [1, 2^31-1]"
	ErrReservedBitsSet         CodecErrorCode = "reserved bits were non-zero"
)

// CodecError is a codec-level failure. It carries the stream id when the
// error can be attributed to one frame (0 otherwise). session.Session
// does not convert a CodecError into a session error: one returned by
// Decode ends the session, without a GOAWAY, with the CodecError as its
// terminal error, and one returned while encoding a SYN_STREAM is
// returned by Session.Submit.
type CodecError struct {
	Code     CodecErrorCode
	StreamId StreamId
}

func (e *CodecError) Error() string {
	if e.StreamId != 0 {
		return fmt.Sprintf("spdy: codec error on stream %d: %s", e.StreamId, e.Code)
	}
	return fmt.Sprintf("spdy: codec error: %s", e.Code)
}
