package frame

import (
	"reflect"
	"testing"
)

func TestHeaderCompressorStateful(t *testing.T) {
	hc, err := NewHeaderCompressor(6)
	if err != nil {
		t.Fatalf("NewHeaderCompressor: %v", err)
	}
	h := Header{":method": {"GET"}, ":path": {"/a"}, ":host": {"example.com"}}

	first, err := hc.Compress(h)
	if err != nil {
		t.Fatalf("Compress (first): %v", err)
	}
	second, err := hc.Compress(h)
	if err != nil {
		t.Fatalf("Compress (second): %v", err)
	}
	// Compressing the same headers again should be at least as small,
	// since the deflate stream can now back-reference the first block's
	// literal bytes in addition to the shared dictionary. This is the
	// wire-observable evidence that state persists across calls.
	if len(second) > len(first) {
		t.Fatalf("second compression (%d bytes) larger than first (%d bytes): compressor is not stateful", len(second), len(first))
	}
}

func TestHeaderCompressDecompressRoundTrip(t *testing.T) {
	hc, err := NewHeaderCompressor(6)
	if err != nil {
		t.Fatalf("NewHeaderCompressor: %v", err)
	}
	hd := NewHeaderDecompressor()

	headerSets := []Header{
		{":method": {"GET"}, ":path": {"/"}, ":host": {"a.example"}},
		{":method": {"POST"}, ":path": {"/submit"}, ":host": {"a.example"}, "content-type": {"text/plain"}},
		{"x-multi": {"one", "two", "three"}},
	}
	for i, h := range headerSets {
		compressed, err := hc.Compress(h)
		if err != nil {
			t.Fatalf("Compress[%d]: %v", i, err)
		}
		got, err := hd.Decompress(compressed, StreamId(i+1))
		if err != nil {
			t.Fatalf("Decompress[%d]: %v", i, err)
		}
		if !reflect.DeepEqual(got, h) {
			t.Fatalf("Decompress[%d]: got %#v, want %#v", i, got, h)
		}
	}
}

func TestCompressRejectsOversizedBlock(t *testing.T) {
	hc, err := NewHeaderCompressor(6)
	if err != nil {
		t.Fatalf("NewHeaderCompressor: %v", err)
	}
	big := make([]byte, MaxUncompressedHeaderBlock)
	for i := range big {
		big[i] = 'a' + byte(i%26)
	}
	h := Header{"x-big": {string(big)}}
	if _, err := hc.Compress(h); err == nil {
		t.Fatalf("Compress: want ErrHeaderBlockTooLarge, got nil")
	} else if ce, ok := err.(*CodecError); !ok || ce.Code != ErrHeaderBlockTooLarge {
		t.Fatalf("Compress: got %v, want ErrHeaderBlockTooLarge", err)
	}
}

func TestEncodeHeaderBlockRejectsUppercaseName(t *testing.T) {
	if _, err := encodeHeaderBlock(Header{"Content-Type": {"text/plain"}}); err == nil {
		t.Fatalf("encodeHeaderBlock: want ErrUnlowercasedHeaderName, got nil")
	} else if ce, ok := err.(*CodecError); !ok || ce.Code != ErrUnlowercasedHeaderName {
		t.Fatalf("encodeHeaderBlock: got %v, want ErrUnlowercasedHeaderName", err)
	}
}

func TestEncodeHeaderBlockRejectsEmptyValue(t *testing.T) {
	if _, err := encodeHeaderBlock(Header{"x-empty": {""}}); err == nil {
		t.Fatalf("encodeHeaderBlock: want ErrEmptyHeaderValue, got nil")
	} else if ce, ok := err.(*CodecError); !ok || ce.Code != ErrEmptyHeaderValue {
		t.Fatalf("encodeHeaderBlock: got %v, want ErrEmptyHeaderValue", err)
	}
}

func TestDictionaryLength(t *testing.T) {
	if len(Dictionary) != 691 {
		t.Fatalf("Dictionary length = %d, want 691", len(Dictionary))
	}
}
