package frame

import (
	"encoding/binary"
)

// Decoder is a resumable frame parser: the caller hands it whatever
// bytes it has on hand (a short read, a full buffer, anything in
// between) and Decode extracts as many complete frames as the buffered
// bytes contain, leaving any partial frame buffered for the next call.
// This is deliberately not an io.Reader-based ReadFrame like the
// teacher lineage's Framer -- spec 4.D requires a decoder that "the
// caller presents an arbitrary buffer" to, with "partial frames leav[ing]
// residue", which a blocking Read-until-enough-bytes style cannot do
// over a non-blocking or already-buffered transport.
//
// One Decoder owns one inbound HeaderDecompressor, so its inflate state
// persists across every header-bearing frame for the life of a session,
// matching HeaderCompressor on the encode side.
type Decoder struct {
	decompressor *HeaderDecompressor
	residue      []byte
}

// NewDecoder creates a Decoder.
func NewDecoder() *Decoder {
	return &Decoder{decompressor: NewHeaderDecompressor()}
}

// Decode appends data to any buffered residue and extracts every
// complete frame now available, in wire order. It returns the frames
// decoded and how many of the newly supplied bytes were consumed into
// a completed frame or recognized (but still incomplete) header -- on
// success this is always len(data), since unconsumed bytes remain
// buffered as residue rather than being reported back to the caller.
// On error, consumed covers only the bytes up to and including the
// frame that failed; the caller should treat the connection as
// unusable (spec section 7: a CodecError here is fatal to the session).
func (d *Decoder) Decode(data []byte) (frames []Frame, consumed int, err error) {
	buf := data
	if len(d.residue) > 0 {
		buf = make([]byte, 0, len(d.residue)+len(data))
		buf = append(buf, d.residue...)
		buf = append(buf, data...)
	}
	residueLen := len(d.residue)
	pos := 0
	for {
		if len(buf)-pos < 8 {
			break
		}
		word0 := binary.BigEndian.Uint16(buf[pos : pos+2])
		isControl := word0&0x8000 != 0

		if isControl {
			version := word0 & 0x7fff
			typ := Type(binary.BigEndian.Uint16(buf[pos+2 : pos+4]))
			lengthAndFlags := binary.BigEndian.Uint32(buf[pos+4 : pos+8])
			flags := ControlFlags(lengthAndFlags >> 24)
			length := int(lengthAndFlags & 0xffffff)
			total := 8 + length
			if len(buf)-pos < total {
				break
			}
			payload := buf[pos+8 : pos+total]
			if version != Version {
				d.consumeResidue(buf, pos+total, residueLen)
				return frames, d.consumedFromData(pos+total, residueLen), &CodecError{Code: ErrUnsupportedVersion}
			}
			f, derr := d.decodeControlFrame(typ, flags, payload)
			pos += total
			if derr != nil {
				d.consumeResidue(buf, pos, residueLen)
				return frames, d.consumedFromData(pos, residueLen), derr
			}
			if f != nil {
				frames = append(frames, f)
			}
			continue
		}

		streamId := StreamId(binary.BigEndian.Uint32(buf[pos:pos+4]) & 0x7fffffff)
		flagsLength := binary.BigEndian.Uint32(buf[pos+4 : pos+8])
		dflags := DataFlags(flagsLength >> 24)
		length := int(flagsLength & 0xffffff)
		total := 8 + length
		if len(buf)-pos < total {
			break
		}
		if streamId == 0 {
			d.consumeResidue(buf, pos+total, residueLen)
			return frames, d.consumedFromData(pos+total, residueLen), &CodecError{Code: ErrZeroStreamId}
		}
		payload := make([]byte, length)
		copy(payload, buf[pos+8:pos+total])
		frames = append(frames, &DataFrame{StreamId: streamId, Flags: dflags, Data: payload})
		pos += total
	}

	d.residue = append(d.residue[:0], buf[pos:]...)
	return frames, len(data), nil
}

// consumeResidue truncates the internal residue buffer up through pos
// (used on the error path, where the caller is expected to tear the
// session down rather than resume decoding).
func (d *Decoder) consumeResidue(buf []byte, pos, residueLen int) {
	if pos > len(buf) {
		pos = len(buf)
	}
	d.residue = append(d.residue[:0], buf[pos:]...)
	_ = residueLen
}

// consumedFromData reports, of the bytes passed to this Decode call,
// how many were folded into frames (complete or failed) rather than
// left as residue.
func (d *Decoder) consumedFromData(pos, residueLen int) int {
	n := pos - residueLen
	if n < 0 {
		n = 0
	}
	return n
}

func (d *Decoder) decodeControlFrame(typ Type, flags ControlFlags, payload []byte) (Frame, error) {
	switch typ {
	case TypeSynStream:
		if len(payload) < 10 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		streamId := StreamId(binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff)
		if streamId == 0 {
			return nil, &CodecError{Code: ErrZeroStreamId}
		}
		assocId := StreamId(binary.BigEndian.Uint32(payload[4:8]) & 0x7fffffff)
		priority := (payload[8] >> 5) & 0x07
		slot := payload[9]
		headers, err := d.decompressor.Decompress(payload[10:], streamId)
		if err != nil {
			return nil, err
		}
		return &SynStreamFrame{
			CFHeader:             ControlFrameHeader{Flags: flags, Length: uint32(len(payload))},
			StreamId:             streamId,
			AssociatedToStreamId: assocId,
			Priority:             priority,
			Slot:                 slot,
			Headers:              headers,
		}, nil

	case TypeSynReply:
		if len(payload) < 4 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		streamId := StreamId(binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff)
		if streamId == 0 {
			return nil, &CodecError{Code: ErrZeroStreamId}
		}
		headers, err := d.decompressor.Decompress(payload[4:], streamId)
		if err != nil {
			return nil, err
		}
		return &SynReplyFrame{
			CFHeader: ControlFrameHeader{Flags: flags, Length: uint32(len(payload))},
			StreamId: streamId,
			Headers:  headers,
		}, nil

	case TypeRstStream:
		if len(payload) != 8 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		streamId := StreamId(binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff)
		if streamId == 0 {
			return nil, &CodecError{Code: ErrZeroStreamId}
		}
		status := RstStreamStatus(binary.BigEndian.Uint32(payload[4:8]))
		return &RstStreamFrame{
			CFHeader: ControlFrameHeader{Flags: flags, Length: uint32(len(payload))},
			StreamId: streamId,
			Status:   status,
		}, nil

	case TypeSettings:
		if len(payload) < 4 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		count := binary.BigEndian.Uint32(payload[0:4])
		if uint64(len(payload)-4) != uint64(count)*8 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		fivs := make([]SettingsFlagIdValue, 0, count)
		var lastId int64 = -1
		off := 4
		for i := uint32(0); i < count; i++ {
			flagId := binary.BigEndian.Uint32(payload[off : off+4])
			value := binary.BigEndian.Uint32(payload[off+4 : off+8])
			off += 8
			id := SettingsId(flagId & 0xffffff)
			fg := SettingsFlag(flagId >> 24)
			if int64(id) <= lastId {
				return nil, &CodecError{Code: ErrSettingsOutOfOrder}
			}
			lastId = int64(id)
			fivs = append(fivs, SettingsFlagIdValue{Flag: fg, Id: id, Value: value})
		}
		return &SettingsFrame{
			CFHeader:     ControlFrameHeader{Flags: flags, Length: uint32(len(payload))},
			FlagIdValues: fivs,
		}, nil

	case TypePing:
		if len(payload) != 4 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		id := binary.BigEndian.Uint32(payload[0:4])
		if id == 0 {
			return nil, &CodecError{Code: ErrZeroStreamId}
		}
		return &PingFrame{
			CFHeader: ControlFrameHeader{Flags: flags, Length: uint32(len(payload))},
			Id:       id,
		}, nil

	case TypeGoAway:
		if len(payload) != 8 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		lastGood := StreamId(binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff)
		status := GoAwayStatus(binary.BigEndian.Uint32(payload[4:8]))
		return &GoAwayFrame{
			CFHeader:         ControlFrameHeader{Flags: flags, Length: uint32(len(payload))},
			LastGoodStreamId: lastGood,
			Status:           status,
		}, nil

	case TypeHeaders:
		if len(payload) < 4 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		streamId := StreamId(binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff)
		if streamId == 0 {
			return nil, &CodecError{Code: ErrZeroStreamId}
		}
		headers, err := d.decompressor.Decompress(payload[4:], streamId)
		if err != nil {
			return nil, err
		}
		return &HeadersFrame{
			CFHeader: ControlFrameHeader{Flags: flags, Length: uint32(len(payload))},
			StreamId: streamId,
			Headers:  headers,
		}, nil

	case TypeWindowUpdate:
		if len(payload) != 8 {
			return nil, &CodecError{Code: ErrInvalidControlFrame}
		}
		streamId := StreamId(binary.BigEndian.Uint32(payload[0:4]) & 0x7fffffff)
		rawDelta := binary.BigEndian.Uint32(payload[4:8])
		if rawDelta&0x80000000 != 0 {
			return nil, &CodecError{Code: ErrReservedBitsSet, StreamId: streamId}
		}
		delta := rawDelta & 0x7fffffff
		if delta == 0 {
			return nil, &CodecError{Code: ErrInvalidWindowDelta, StreamId: streamId}
		}
		return &WindowUpdateFrame{
			CFHeader:        ControlFrameHeader{Flags: flags, Length: uint32(len(payload))},
			StreamId:        streamId,
			DeltaWindowSize: delta,
		}, nil

	default:
		// Unknown control frame type: skip it by its declared length,
		// per spec 4.D. Returning (nil, nil) tells Decode there is no
		// event to emit but the bytes were validly consumed.
		return nil, nil
	}
}
