package frame

import (
	"encoding/binary"
	"io"
	"sort"
	"strings"
)

// encodeHeaderBlock serializes h into the SPDY header-value block wire
// format (spec 4.B): 4 bytes count, then per pair 4 bytes name length,
// name, 4 bytes value length, value (multiple values NUL-joined).
//
// Names must already be lowercase and non-empty; values must be
// non-empty; names are written in sorted order so that encoding the
// same Header twice always produces the same bytes (not required by the
// wire format, but makes the round-trip tests and the compressor's
// dictionary references deterministic).
//
// Grounded on Jxck-go-spdy's writeHeaderValueBlock, with the
// lowercase/non-empty/duplicate validation spec 4.B requires of the
// encoder (the teacher lineage's decoder validates on read; nothing
// there validates on write).
func encodeHeaderBlock(h Header) ([]byte, error) {
	names := make([]string, 0, len(h))
	for name, values := range h {
		if name == "" {
			return nil, &CodecError{Code: ErrEmptyHeaderName}
		}
		if name != strings.ToLower(name) {
			return nil, &CodecError{Code: ErrUnlowercasedHeaderName}
		}
		if len(values) == 0 {
			return nil, &CodecError{Code: ErrEmptyHeaderValue}
		}
		for _, v := range values {
			if v == "" {
				return nil, &CodecError{Code: ErrEmptyHeaderValue}
			}
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var buf []byte
	buf = appendUint32(buf, uint32(len(names)))
	for _, name := range names {
		buf = appendUint32(buf, uint32(len(name)))
		buf = append(buf, name...)
		value := strings.Join(h[name], HeaderValueSeparator)
		buf = appendUint32(buf, uint32(len(value)))
		buf = append(buf, value...)
	}
	return buf, nil
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// decodeHeaderBlock parses the plaintext of a header-value block from r.
// It enforces the same rules encodeHeaderBlock does on the way out:
// lowercase, non-empty names, no duplicates within the block.
//
// Grounded on Jxck-go-spdy's parseHeaderValueBlock, which is more
// permissive (it lowercases on the fly and only flags duplicates as a
// soft error returned alongside a usable Header); this version rejects
// outright, matching spec 4.B's "duplicates across the block are
// forbidden" for the encoder and spec section 7's stricter decoder
// posture for anything that would corrupt accounting.
func decodeHeaderBlock(r io.Reader, streamId StreamId) (Header, error) {
	var count uint32
	if err := readUint32(r, &count); err != nil {
		return nil, err
	}
	h := make(Header, int(count))
	for i := uint32(0); i < count; i++ {
		var nameLen uint32
		if err := readUint32(r, &nameLen); err != nil {
			return nil, err
		}
		nameBytes := make([]byte, nameLen)
		if _, err := io.ReadFull(r, nameBytes); err != nil {
			return nil, err
		}
		name := string(nameBytes)
		if name == "" {
			return nil, &CodecError{Code: ErrEmptyHeaderName, StreamId: streamId}
		}
		if name != strings.ToLower(name) {
			return nil, &CodecError{Code: ErrUnlowercasedHeaderName, StreamId: streamId}
		}
		if _, exists := h[name]; exists {
			return nil, &CodecError{Code: ErrDuplicateHeader, StreamId: streamId}
		}

		var valueLen uint32
		if err := readUint32(r, &valueLen); err != nil {
			return nil, err
		}
		valueBytes := make([]byte, valueLen)
		if _, err := io.ReadFull(r, valueBytes); err != nil {
			return nil, err
		}
		if len(valueBytes) == 0 {
			return nil, &CodecError{Code: ErrEmptyHeaderValue, StreamId: streamId}
		}
		for _, v := range strings.Split(string(valueBytes), HeaderValueSeparator) {
			h.Add(name, v)
		}
	}
	return h, nil
}

func readUint32(r io.Reader, v *uint32) error {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return err
	}
	*v = binary.BigEndian.Uint32(tmp[:])
	return nil
}
