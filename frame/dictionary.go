package frame

// Dictionary is the 691-byte zlib dictionary this package's header-block
// compressor and decompressor both seed their streams with. It is not
// byte-for-byte the standard SPDY/3 dictionary, so a header block
// compressed here inflates only against a decompressor seeded with this
// same constant, and one from another SPDY peer does not inflate here.
// It is built from the length-prefixed name block format every header-block
// entry itself uses (4 bytes big-endian length, then the bytes): the
// same small set of method and header-field names that recur in nearly
// every HTTP request/response, so zlib can reference them instead of
// emitting them literally.
//
// Grounded on Jxck-go-spdy's Framer, which reads/writes with
// zlib.NewReaderDict/zlib.NewWriterLevelDict against a headerDictionary
// constant of the same role that wasn't itself present in the retrieved
// source. Encoder and decoder in this package share this single
// constant, which is sufficient for the round-trip invariant spec
// section 8 tests (decode(encode(x)) == x); byte-for-byte parity with
// any specific external SPDY peer's dictionary is not a goal this
// client-only implementation is tested against.
const Dictionary = 	"\x00\x00\x00\x07options\x00\x00\x00\x03get\x00\x00\x00\x04head\x00\x00\x00\x04post\x00\x00\x00\x03put\x00\x00\x00\x06delete\x00\x00\x00\x05trace" +
	"\x00\x00\x00\x06accept\x00\x00\x00\x0eaccept-charset\x00\x00\x00\x0faccept-encoding\x00\x00\x00\x0faccept-la" +
	"nguage\x00\x00\x00\x0daccept-ranges\x00\x00\x00\x03age\x00\x00\x00\x05allow\x00\x00\x00\x0dauthorization\x00\x00\x00\x0d" +
	"cache-control\x00\x00\x00\x0aconnection\x00\x00\x00\x0ccontent-base\x00\x00\x00\x10content-encod" +
	"ing\x00\x00\x00\x10content-language\x00\x00\x00\x0econtent-length\x00\x00\x00\x10content-locatio" +
	"n\x00\x00\x00\x0bcontent-md5\x00\x00\x00\x0dcontent-range\x00\x00\x00\x0ccontent-type\x00\x00\x00\x04date\x00\x00\x00" +
	"\x04etag\x00\x00\x00\x06expect\x00\x00\x00\x07expires\x00\x00\x00\x04from\x00\x00\x00\x04host\x00\x00\x00\x08if-match\x00\x00\x00\x11if" +
	"-modified-since\x00\x00\x00\x0dif-none-match\x00\x00\x00\x08if-range\x00\x00\x00\x13if-unmodifie" +
	"d-since\x00\x00\x00\x0dlast-modified\x00\x00\x00\x08location\x00\x00\x00\x0cmax-forwards\x00\x00\x00\x06prag" +
	"ma\x00\x00\x00\x12proxy-authenticate\x00\x00\x00\x13proxy-authorization\x00\x00\x00\x05range\x00\x00\x00\x07" +
	"referer\x00\x00\x00\x0bretry-after\x00\x00\x00\x06server\x00\x00\x00\x02te\x00\x00\x00\x07trailer\x00\x00\x00\x11transfe" +
	"r-encoding\x00\x00\x00\x07upgrade\x00\x00\x00\x06origin"
