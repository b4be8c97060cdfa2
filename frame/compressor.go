package frame

import (
	"bytes"
	"compress/zlib"
	"io"
)

// HeaderCompressor is a stateful, one-directional zlib deflate stream
// seeded with Dictionary. A Session owns one per outbound direction;
// its state (the deflate window) must survive across frames, which is
// why it is a long-lived object rather than a per-frame helper.
//
// Grounded on Jxck-go-spdy's Framer.headerCompressor field and its use
// of zlib.NewWriterLevelDict in NewFramer.
type HeaderCompressor struct {
	level int
	buf   *bytes.Buffer
	zw    *zlib.Writer
}

// NewHeaderCompressor creates a compressor at the given zlib level
// (0-9). Level 0 disables compression on the wire (spec 4.B: "level 0
// disables compression entirely on the outbound side but the protocol
// still requires the framing overhead") while still running through
// zlib so the stream stays a valid zlib stream the peer can inflate.
func NewHeaderCompressor(level int) (*HeaderCompressor, error) {
	if level < zlib.NoCompression {
		level = zlib.NoCompression
	}
	if level > zlib.BestCompression {
		level = zlib.BestCompression
	}
	buf := new(bytes.Buffer)
	zw, err := zlib.NewWriterLevelDict(buf, level, []byte(Dictionary))
	if err != nil {
		return nil, err
	}
	return &HeaderCompressor{level: level, buf: buf, zw: zw}, nil
}

// Compress encodes h as a header-value block (spec 4.B wire layout) and
// deflates it, returning the compressed bytes to append to a control
// frame's payload. The deflate stream is flushed, not reset: later calls
// continue to reference earlier output, exactly like the real protocol
// requires.
func (c *HeaderCompressor) Compress(h Header) ([]byte, error) {
	plain, err := encodeHeaderBlock(h)
	if err != nil {
		return nil, err
	}
	if len(plain) > MaxUncompressedHeaderBlock {
		return nil, &CodecError{Code: ErrHeaderBlockTooLarge}
	}
	c.buf.Reset()
	if _, err := c.zw.Write(plain); err != nil {
		return nil, err
	}
	if err := c.zw.Flush(); err != nil {
		return nil, err
	}
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out, nil
}

// HeaderDecompressor is the receive-side counterpart of HeaderCompressor:
// one inflate stream per inbound direction, seeded with the same
// Dictionary, reused across every header-bearing frame received on a
// Session.
type HeaderDecompressor struct {
	limited *io.LimitedReader
	source  *bytes.Reader
	zr      io.ReadCloser
}

// NewHeaderDecompressor creates a decompressor. The underlying zlib
// reader is created lazily on first use (zlib.NewReaderDict needs to
// read the 2-byte zlib header before it can be constructed, and with
// FDICT-less streams it may need the dictionary fed back on
// zlib.ErrDictionary -- see Decompress).
func NewHeaderDecompressor() *HeaderDecompressor {
	return &HeaderDecompressor{}
}

// Decompress inflates compressed (the bytes of one header-bearing
// frame's payload after its fixed fields) and parses the resulting
// plaintext as a header-value block. streamId is used only to annotate
// any CodecError raised.
func (d *HeaderDecompressor) Decompress(compressed []byte, streamId StreamId) (Header, error) {
	if d.source == nil {
		d.source = bytes.NewReader(compressed)
		d.limited = &io.LimitedReader{R: d.source, N: int64(len(compressed))}
		zr, err := zlib.NewReaderDict(d.limited, []byte(Dictionary))
		if err != nil {
			return nil, err
		}
		d.zr = zr
	} else {
		d.source.Reset(compressed)
		d.limited.N = int64(len(compressed))
	}

	limit := &io.LimitedReader{R: d.zr, N: MaxUncompressedHeaderBlock + 1}
	h, err := decodeHeaderBlock(limit, streamId)
	if err != nil {
		return nil, err
	}
	if limit.N == 0 {
		return nil, &CodecError{Code: ErrHeaderBlockTooLarge, StreamId: streamId}
	}
	if d.limited.N != 0 {
		return nil, &CodecError{Code: ErrWrongCompressedSize, StreamId: streamId}
	}
	return h, nil
}
