package stream

import (
	"io"
	"os"
)

// Body is the source of an outbound request's DATA payload: in-memory
// bytes, an arbitrary byte stream, or a file read lazily (spec 4.E
// "Body source: one of in-memory bytes, a readable byte stream, or a
// file path... chunked to fit the current effective send window").
type Body interface {
	// HasDataAvailable reports whether the source may still yield bytes.
	// BytesBody reports whether unread bytes remain; ReaderBody and
	// FileBody report true until a Read has reached end of input, so
	// their final Read can return no bytes with last set. It is used by
	// the session scheduler to decide whether a stream belongs in the
	// writable set at all (spec 4.F).
	HasDataAvailable() bool

	// Read returns up to max bytes and reports whether the source is
	// now fully drained (the returned bytes, if any, are still valid
	// even when last is true).
	Read(max int) (p []byte, last bool, err error)

	// Close releases any resource the source holds open (an os.File,
	// for instance). Safe to call more than once.
	Close() error
}

// BytesBody is a Body over a fixed, already-in-memory payload.
type BytesBody struct {
	data []byte
	pos  int
}

// NewBytesBody wraps data as a Body.
func NewBytesBody(data []byte) *BytesBody {
	return &BytesBody{data: data}
}

func (b *BytesBody) HasDataAvailable() bool { return b.pos < len(b.data) }

func (b *BytesBody) Read(max int) ([]byte, bool, error) {
	if b.pos >= len(b.data) {
		return nil, true, nil
	}
	end := b.pos + max
	if end > len(b.data) {
		end = len(b.data)
	}
	p := b.data[b.pos:end]
	b.pos = end
	return p, b.pos >= len(b.data), nil
}

func (b *BytesBody) Close() error { return nil }

// ReaderBody is a Body over an arbitrary io.Reader, read chunked so a
// single stream can never consume more than the caller's buffer size
// regardless of the flow-control window offered to it.
type ReaderBody struct {
	r   io.Reader
	eof bool
}

// NewReaderBody wraps r as a Body. r is read lazily, one Read call at a
// time, and closed (if it implements io.Closer) when the Body is closed.
func NewReaderBody(r io.Reader) *ReaderBody {
	return &ReaderBody{r: r}
}

func (b *ReaderBody) HasDataAvailable() bool { return !b.eof }

func (b *ReaderBody) Read(max int) ([]byte, bool, error) {
	if b.eof {
		return nil, true, nil
	}
	buf := make([]byte, max)
	n, err := b.r.Read(buf)
	if err == io.EOF {
		b.eof = true
		return buf[:n], true, nil
	}
	if err != nil {
		return buf[:n], false, err
	}
	return buf[:n], false, nil
}

func (b *ReaderBody) Close() error {
	if c, ok := b.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// FileBody is a Body backed by a file opened lazily on first Read, so
// that constructing a request with a large upload body doesn't hold a
// file descriptor open until the stream actually starts sending.
type FileBody struct {
	path string
	f    *os.File
	eof  bool
}

// NewFileBody returns a Body that reads path's contents once the
// stream starts sending.
func NewFileBody(path string) *FileBody {
	return &FileBody{path: path}
}

func (b *FileBody) HasDataAvailable() bool { return !b.eof }

func (b *FileBody) Read(max int) ([]byte, bool, error) {
	if b.eof {
		return nil, true, nil
	}
	if b.f == nil {
		f, err := os.Open(b.path)
		if err != nil {
			return nil, false, err
		}
		b.f = f
	}
	buf := make([]byte, max)
	n, err := b.f.Read(buf)
	if err == io.EOF {
		b.eof = true
		b.f.Close()
		return buf[:n], true, nil
	}
	if err != nil {
		b.f.Close()
		return buf[:n], false, err
	}
	return buf[:n], false, nil
}

func (b *FileBody) Close() error {
	if b.f != nil {
		return b.f.Close()
	}
	return nil
}
