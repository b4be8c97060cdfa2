package session

import (
	"time"

	"github.com/inconshreveable/log15"
)

// Config is an immutable snapshot of the tuning knobs a Session is
// created with. Grounded on kr-spdy's defaultInitWnd constant,
// widened to every tunable the protocol defines rather than
// hard-coding them.
type Config struct {
	// InitialStreamWindow is the starting send/receive window for
	// every new stream. Default: 65536.
	InitialStreamWindow uint32
	// InitialSessionWindow is the session-wide receive window
	// advertised on connect. If it exceeds 65536, an immediate
	// WINDOW_UPDATE for the difference is sent during the handshake.
	InitialSessionWindow uint32
	// HeaderCompressionLevel is the zlib level (0-9) used for header
	// blocks.
	HeaderCompressionLevel int
	// MaxDataPayload bounds a single outbound DATA frame's payload.
	// Typical value: 16 KiB.
	MaxDataPayload uint32
	// MaxConcurrentStreams is this client's own advertised limit, sent
	// to the peer in the initial SETTINGS if non-zero.
	MaxConcurrentStreams uint32
	// MaxRetry bounds how many times session.Pool re-dispatches a
	// stream refused by REFUSED_STREAM or a GOAWAY past its id.
	MaxRetry int
	// PingInterval, if non-zero, makes the Session emit a PING on this
	// cadence to track liveness.
	PingInterval time.Duration
	// PingTimeout bounds how long a Session waits for a PING echo
	// before closing with a timeout error.
	PingTimeout time.Duration
	// CloseTimeout bounds how long Close waits for in-flight streams
	// to finish before tearing down the socket.
	CloseTimeout time.Duration
	// PoolSize is the maximum number of established-or-pending
	// Sessions per Origin. Default 1; 2 is a common ceiling.
	PoolSize int
	// Logger receives structured session/pool diagnostics. Grounded on
	// ngrok-ngrok-go's use of github.com/inconshreveable/log15 in
	// place of a bare log.Println call.
	Logger log15.Logger
}

// DefaultConfig returns reasonable defaults for every Config field.
func DefaultConfig() Config {
	return Config{
		InitialStreamWindow:    65536,
		InitialSessionWindow:   10 * 1024 * 1024,
		HeaderCompressionLevel: 6,
		MaxDataPayload:         16 * 1024,
		MaxConcurrentStreams:   0,
		MaxRetry:               3,
		PingInterval:           0,
		PingTimeout:            30 * time.Second,
		CloseTimeout:           5 * time.Second,
		PoolSize:               1,
		Logger:                 log15.New("pkg", "spdy"),
	}
}
