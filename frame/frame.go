// Package frame implements the SPDY/3.1 frame model and wire codec: the
// nine frame types from draft-ietf-httpbis-http2-00 section 2.6, and the
// zlib-compressed, dictionary-seeded header block that SYN_STREAM,
// SYN_REPLY and HEADERS carry.
//
// Types and wire layout are grounded on the Go team's own SPDY/3 package
// (vendored into this pack as Jxck-go-spdy); the request/response header
// rules (lowercased pseudo-headers, hop-by-hop removal) follow the same
// source and spec section 6.
package frame

import (
	"fmt"
)

// Version is the SPDY major version this package speaks on the wire.
// SPDY/3.1 carries only the major version in the common header; the
// ".1" minor is negotiated out of band (ALPN/NPN) and recorded by the
// session layer, not the codec.
const Version = 3

// Type is the type field of a control frame header.
type Type uint16

const (
	TypeSynStream Type = 1
	TypeSynReply  Type = 2
	TypeRstStream Type = 3
	TypeSettings  Type = 4
	// 5 (NOOP) was removed in SPDY/3.
	TypePing         Type = 6
	TypeGoAway       Type = 7
	TypeHeaders      Type = 8
	TypeWindowUpdate Type = 9
)

func (t Type) String() string {
	switch t {
	case TypeSynStream:
		return "SYN_STREAM"
	case TypeSynReply:
		return "SYN_REPLY"
	case TypeRstStream:
		return "RST_STREAM"
	case TypeSettings:
		return "SETTINGS"
	case TypePing:
		return "PING"
	case TypeGoAway:
		return "GOAWAY"
	case TypeHeaders:
		return "HEADERS"
	case TypeWindowUpdate:
		return "WINDOW_UPDATE"
	default:
		return fmt.Sprintf("Type(%d)", uint16(t))
	}
}

// ControlFlags are the flags field of a control frame.
type ControlFlags uint8

const (
	ControlFlagFin            ControlFlags = 0x01
	ControlFlagUnidirectional ControlFlags = 0x02
)

// DataFlags are the flags field of a DATA frame.
type DataFlags uint8

const (
	DataFlagFin        DataFlags = 0x01
	DataFlagCompressed DataFlags = 0x02
)

// MaxDataLength is the largest payload a single DATA frame's 24-bit
// length field can carry. Session scheduling further bounds the size it
// actually emits (spec 4.G step 2: MAX_DATA_PAYLOAD, typically 16KiB).
const MaxDataLength = 1<<24 - 1

// MaxUncompressedHeaderBlock is the ceiling on the *decompressed* size of
// a header block (spec 4.B): 16KiB minus the smallest possible framing
// overhead.
const MaxUncompressedHeaderBlock = 16*1024 - 12

// HeaderValueSeparator joins multiple values for one header name within
// a single encoded header block entry.
const HeaderValueSeparator = "\x00"

// StreamId is a 31-bit stream identifier. The high bit is reserved (zero
// on send, ignored on receive).
type StreamId uint32

// Frame is any decoded SPDY/3.1 frame.
type Frame interface {
	frameType() Type
}

// ControlFrameHeader is the common 8-byte control-frame header, unpacked.
// The control bit itself is implicit (every Frame that isn't *DataFrame
// is a control frame) so it has no field here.
type ControlFrameHeader struct {
	Flags  ControlFlags
	Length uint32 // length of the frame payload, not counting this header
}

// Header is a canonicalized name -> values map for a header block.
// Names are lowercase; this is the wire shape, distinct from
// net/http.Header (whose canonicalization uppercases the first letter of
// each hyphen-separated word).
type Header map[string][]string

// Get returns the first value associated with name, or "".
func (h Header) Get(name string) string {
	v := h[name]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}

// Add appends value to the list of values for name.
func (h Header) Add(name, value string) {
	h[name] = append(h[name], value)
}

// Set replaces any existing values for name with a single value.
func (h Header) Set(name, value string) {
	h[name] = []string{value}
}

// Clone returns a deep copy of h.
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	h2 := make(Header, len(h))
	for k, v := range h {
		vv := make([]string, len(v))
		copy(vv, v)
		h2[k] = vv
	}
	return h2
}

// SynStreamFrame is SYN_STREAM: opens a new stream.
type SynStreamFrame struct {
	CFHeader             ControlFrameHeader
	StreamId             StreamId
	AssociatedToStreamId StreamId // 0 unless server push
	Priority             uint8    // 0-7, 0 highest; only 3 bits significant
	Slot                 uint8    // TLS client-certificate slot; unused by this client
	Headers              Header
}

func (f *SynStreamFrame) frameType() Type { return TypeSynStream }

// SynReplyFrame is SYN_REPLY: the first response to a SYN_STREAM.
type SynReplyFrame struct {
	CFHeader ControlFrameHeader
	StreamId StreamId
	Headers  Header
}

func (f *SynReplyFrame) frameType() Type { return TypeSynReply }

// RstStreamStatus is the status code carried by RST_STREAM and surfaced
// as a StreamError.
type RstStreamStatus uint32

const (
	ProtocolError         RstStreamStatus = 1
	InvalidStream         RstStreamStatus = 2
	RefusedStream         RstStreamStatus = 3
	UnsupportedVersion    RstStreamStatus = 4
	Cancel                RstStreamStatus = 5
	InternalError         RstStreamStatus = 6
	FlowControlError      RstStreamStatus = 7
	StreamInUse           RstStreamStatus = 8
	StreamAlreadyClosed   RstStreamStatus = 9
	InvalidCredentials    RstStreamStatus = 10
	FrameTooLarge         RstStreamStatus = 11
)

func (s RstStreamStatus) String() string {
	switch s {
	case ProtocolError:
		return "PROTOCOL_ERROR"
	case InvalidStream:
		return "INVALID_STREAM"
	case RefusedStream:
		return "REFUSED_STREAM"
	case UnsupportedVersion:
		return "UNSUPPORTED_VERSION"
	case Cancel:
		return "CANCEL"
	case InternalError:
		return "INTERNAL_ERROR"
	case FlowControlError:
		return "FLOW_CONTROL_ERROR"
	case StreamInUse:
		return "STREAM_IN_USE"
	case StreamAlreadyClosed:
		return "STREAM_ALREADY_CLOSED"
	case InvalidCredentials:
		return "INVALID_CREDENTIALS"
	case FrameTooLarge:
		return "FRAME_TOO_LARGE"
	default:
		return fmt.Sprintf("RstStreamStatus(%d)", uint32(s))
	}
}

// RstStreamFrame is RST_STREAM: aborts a stream.
type RstStreamFrame struct {
	CFHeader ControlFrameHeader
	StreamId StreamId
	Status   RstStreamStatus
}

func (f *RstStreamFrame) frameType() Type { return TypeRstStream }

// SettingsFlag is a per-entry flag in a SETTINGS frame.
type SettingsFlag uint8

const (
	FlagSettingsPersistValue SettingsFlag = 0x1
	FlagSettingsPersisted    SettingsFlag = 0x2
)

// SettingsFrameFlag is a whole-frame flag in a SETTINGS frame.
type SettingsFrameFlag uint8

const (
	FlagSettingsClearSettings SettingsFrameFlag = 0x1
)

// SettingsId identifies a recognized setting (spec section 3).
type SettingsId uint32

const (
	SettingsUploadBandwidth             SettingsId = 1
	SettingsDownloadBandwidth           SettingsId = 2
	SettingsRoundTripTime               SettingsId = 3
	SettingsMaxConcurrentStreams        SettingsId = 4
	SettingsCurrentCwnd                 SettingsId = 5
	SettingsDownloadRetransRate         SettingsId = 6
	SettingsInitialWindowSize           SettingsId = 7
	SettingsClientCertificateVectorSize SettingsId = 8
)

// SettingsFlagIdValue is one (flag, id, value) triple in a SETTINGS frame.
type SettingsFlagIdValue struct {
	Flag  SettingsFlag
	Id    SettingsId
	Value uint32
}

// SettingsFrame is SETTINGS: conveys persistent per-origin tuning values.
type SettingsFrame struct {
	CFHeader     ControlFrameHeader
	FlagIdValues []SettingsFlagIdValue
}

func (f *SettingsFrame) frameType() Type { return TypeSettings }

// ClearSettings reports whether FLAG_SETTINGS_CLEAR_SETTINGS is set on
// the frame as a whole.
func (f *SettingsFrame) ClearSettings() bool {
	return SettingsFrameFlag(f.CFHeader.Flags)&FlagSettingsClearSettings != 0
}

// PingFrame is PING: a liveness/RTT probe, echoed verbatim by the peer.
type PingFrame struct {
	CFHeader ControlFrameHeader
	Id       uint32
}

func (f *PingFrame) frameType() Type { return TypePing }

// GoAwayStatus is the status code carried by GOAWAY.
type GoAwayStatus uint32

const (
	GoAwayOK             GoAwayStatus = 0
	GoAwayProtocolError  GoAwayStatus = 1
	GoAwayInternalError  GoAwayStatus = 11
)

// GoAwayFrame is GOAWAY: announces a graceful shutdown.
type GoAwayFrame struct {
	CFHeader         ControlFrameHeader
	LastGoodStreamId StreamId
	Status           GoAwayStatus
}

func (f *GoAwayFrame) frameType() Type { return TypeGoAway }

// HeadersFrame is HEADERS: additional headers delivered mid-stream
// (trailers, or push-stream metadata).
type HeadersFrame struct {
	CFHeader ControlFrameHeader
	StreamId StreamId
	Headers  Header
}

func (f *HeadersFrame) frameType() Type { return TypeHeaders }

// WindowUpdateFrame is WINDOW_UPDATE: grants additional flow-control
// send credit, either session-wide (StreamId == 0) or per-stream.
type WindowUpdateFrame struct {
	CFHeader        ControlFrameHeader
	StreamId        StreamId
	DeltaWindowSize uint32
}

func (f *WindowUpdateFrame) frameType() Type { return TypeWindowUpdate }

// DataFrame is a DATA frame: the only frame type without a control bit.
type DataFrame struct {
	StreamId StreamId
	Flags    DataFlags
	Data     []byte
}

func (f *DataFrame) frameType() Type { return 0 }
