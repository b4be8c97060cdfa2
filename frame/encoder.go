package frame

import (
	"encoding/binary"
	"sort"
)

// WriteFunc emits one already-framed chunk of bytes to the transport.
// tag is opaque to the encoder; the caller (normally session.Session)
// uses it to correlate a completed write with the stream id (or other
// bookkeeping) that produced it -- spec 4.C: "the encoder may tag
// emitted byte chunks with a caller-supplied value so the transport can
// correlate completion events with specific stream ids".
type WriteFunc func(p []byte, tag interface{}) error

// Encoder serializes Frame values to bytes and emits them through a
// WriteFunc. It owns the outbound HeaderCompressor, whose deflate state
// must persist across every header-bearing frame encoded (spec 4.B).
//
// Grounded on Jxck-go-spdy's Framer.write* methods, reshaped so the
// destination is a callback rather than a fixed io.Writer (spec 4.C:
// "emits the bytes via a callback").
type Encoder struct {
	compressor *HeaderCompressor
	write      WriteFunc
}

// NewEncoder creates an Encoder. level is the zlib compression level
// (0-9) used for header blocks; write receives every serialized frame.
func NewEncoder(level int, write WriteFunc) (*Encoder, error) {
	hc, err := NewHeaderCompressor(level)
	if err != nil {
		return nil, err
	}
	return &Encoder{compressor: hc, write: write}, nil
}

// Encode serializes f and emits it, tagging the write with tag.
func (e *Encoder) Encode(f Frame, tag interface{}) (int, error) {
	switch fr := f.(type) {
	case *SynStreamFrame:
		return e.EncodeSynStream(fr, tag)
	case *SynReplyFrame:
		return e.EncodeSynReply(fr, tag)
	case *RstStreamFrame:
		return e.EncodeRstStream(fr, tag)
	case *SettingsFrame:
		return e.EncodeSettings(fr, tag)
	case *PingFrame:
		return e.EncodePing(fr, tag)
	case *GoAwayFrame:
		return e.EncodeGoAway(fr, tag)
	case *HeadersFrame:
		return e.EncodeHeaders(fr, tag)
	case *WindowUpdateFrame:
		return e.EncodeWindowUpdate(fr, tag)
	case *DataFrame:
		return e.EncodeData(fr, tag)
	default:
		return 0, &CodecError{Code: ErrInvalidControlFrame}
	}
}

func controlHeaderBytes(typ Type, flags ControlFlags, length uint32) []byte {
	var b [8]byte
	binary.BigEndian.PutUint16(b[0:2], uint16(0x8000)|uint16(Version))
	binary.BigEndian.PutUint16(b[2:4], uint16(typ))
	binary.BigEndian.PutUint32(b[4:8], (uint32(flags)<<24)|(length&0xffffff))
	return b[:]
}

func (e *Encoder) emit(p []byte, tag interface{}) (int, error) {
	if err := e.write(p, tag); err != nil {
		return 0, err
	}
	return len(p), nil
}

// EncodeSynStream encodes and emits a SYN_STREAM frame.
func (e *Encoder) EncodeSynStream(f *SynStreamFrame, tag interface{}) (int, error) {
	if f.StreamId == 0 {
		return 0, &CodecError{Code: ErrZeroStreamId}
	}
	compressed, err := e.compressor.Compress(f.Headers)
	if err != nil {
		return 0, err
	}
	length := 10 + uint32(len(compressed))
	p := make([]byte, 0, 8+length)
	p = append(p, controlHeaderBytes(TypeSynStream, f.CFHeader.Flags, length)...)
	p = appendUint32(p, uint32(f.StreamId)&0x7fffffff)
	p = appendUint32(p, uint32(f.AssociatedToStreamId)&0x7fffffff)
	p = append(p, (f.Priority<<5)&0xe0)
	p = append(p, f.Slot)
	p = append(p, compressed...)
	return e.emit(p, tag)
}

// EncodeSynReply encodes and emits a SYN_REPLY frame.
func (e *Encoder) EncodeSynReply(f *SynReplyFrame, tag interface{}) (int, error) {
	if f.StreamId == 0 {
		return 0, &CodecError{Code: ErrZeroStreamId}
	}
	compressed, err := e.compressor.Compress(f.Headers)
	if err != nil {
		return 0, err
	}
	length := 4 + uint32(len(compressed))
	p := make([]byte, 0, 8+length)
	p = append(p, controlHeaderBytes(TypeSynReply, f.CFHeader.Flags, length)...)
	p = appendUint32(p, uint32(f.StreamId)&0x7fffffff)
	p = append(p, compressed...)
	return e.emit(p, tag)
}

// EncodeHeaders encodes and emits a HEADERS frame.
func (e *Encoder) EncodeHeaders(f *HeadersFrame, tag interface{}) (int, error) {
	if f.StreamId == 0 {
		return 0, &CodecError{Code: ErrZeroStreamId}
	}
	compressed, err := e.compressor.Compress(f.Headers)
	if err != nil {
		return 0, err
	}
	length := 4 + uint32(len(compressed))
	p := make([]byte, 0, 8+length)
	p = append(p, controlHeaderBytes(TypeHeaders, f.CFHeader.Flags, length)...)
	p = appendUint32(p, uint32(f.StreamId)&0x7fffffff)
	p = append(p, compressed...)
	return e.emit(p, tag)
}

// EncodeRstStream encodes and emits a RST_STREAM frame.
func (e *Encoder) EncodeRstStream(f *RstStreamFrame, tag interface{}) (int, error) {
	if f.StreamId == 0 {
		return 0, &CodecError{Code: ErrZeroStreamId}
	}
	if f.Status == 0 {
		return 0, &CodecError{Code: ErrInvalidControlFrame, StreamId: f.StreamId}
	}
	p := make([]byte, 0, 16)
	p = append(p, controlHeaderBytes(TypeRstStream, 0, 8)...)
	p = appendUint32(p, uint32(f.StreamId)&0x7fffffff)
	p = appendUint32(p, uint32(f.Status))
	return e.emit(p, tag)
}

// EncodeSettings encodes and emits a SETTINGS frame. Entries are
// written in ascending Id order regardless of the order f.FlagIdValues
// arrived in -- spec 4.D requires a decoder to reject a SETTINGS frame
// whose entry ids are not strictly increasing, and callers (notably
// session.Session's handshake, which appends whatever order
// settingsstore.Store.Get's map iteration happens to produce) make no
// such guarantee on the way in.
func (e *Encoder) EncodeSettings(f *SettingsFrame, tag interface{}) (int, error) {
	fivs := append([]SettingsFlagIdValue(nil), f.FlagIdValues...)
	sort.Slice(fivs, func(i, j int) bool { return fivs[i].Id < fivs[j].Id })
	length := 4 + uint32(len(fivs))*8
	p := make([]byte, 0, 8+length)
	p = append(p, controlHeaderBytes(TypeSettings, f.CFHeader.Flags, length)...)
	p = appendUint32(p, uint32(len(fivs)))
	for _, fiv := range fivs {
		flagId := (uint32(fiv.Flag) << 24) | (uint32(fiv.Id) & 0xffffff)
		p = appendUint32(p, flagId)
		p = appendUint32(p, fiv.Value)
	}
	return e.emit(p, tag)
}

// EncodePing encodes and emits a PING frame.
func (e *Encoder) EncodePing(f *PingFrame, tag interface{}) (int, error) {
	if f.Id == 0 {
		return 0, &CodecError{Code: ErrZeroStreamId}
	}
	p := make([]byte, 0, 12)
	p = append(p, controlHeaderBytes(TypePing, 0, 4)...)
	p = appendUint32(p, f.Id)
	return e.emit(p, tag)
}

// EncodeGoAway encodes and emits a GOAWAY frame.
func (e *Encoder) EncodeGoAway(f *GoAwayFrame, tag interface{}) (int, error) {
	p := make([]byte, 0, 16)
	p = append(p, controlHeaderBytes(TypeGoAway, 0, 8)...)
	p = appendUint32(p, uint32(f.LastGoodStreamId)&0x7fffffff)
	p = appendUint32(p, uint32(f.Status))
	return e.emit(p, tag)
}

// EncodeWindowUpdate encodes and emits a WINDOW_UPDATE frame.
func (e *Encoder) EncodeWindowUpdate(f *WindowUpdateFrame, tag interface{}) (int, error) {
	p := make([]byte, 0, 16)
	p = append(p, controlHeaderBytes(TypeWindowUpdate, 0, 8)...)
	p = appendUint32(p, uint32(f.StreamId)&0x7fffffff)
	p = appendUint32(p, f.DeltaWindowSize&0x7fffffff)
	return e.emit(p, tag)
}

// EncodeData encodes and emits a DATA frame. Data frames have no
// control bit and no header compression.
func (e *Encoder) EncodeData(f *DataFrame, tag interface{}) (int, error) {
	if f.StreamId == 0 {
		return 0, &CodecError{Code: ErrZeroStreamId}
	}
	if len(f.Data) > MaxDataLength {
		return 0, &CodecError{Code: ErrInvalidDataFrame, StreamId: f.StreamId}
	}
	p := make([]byte, 0, 8+len(f.Data))
	p = appendUint32(p, uint32(f.StreamId)&0x7fffffff)
	p = appendUint32(p, (uint32(f.Flags)<<24)|uint32(len(f.Data)))
	p = append(p, f.Data...)
	return e.emit(p, tag)
}
