package session

import (
	"fmt"
	"net/url"
	"strconv"
)

// Origin is the (scheme, host, port) triple used as the session-pool
// key. Grounded on original_source/SPDY/SPDYOrigin.h,
// whose two constructors (from a URL, and from explicit
// scheme/host/port) this package's ParseOrigin and NewOrigin mirror.
type Origin struct {
	Scheme string
	Host   string
	Port   int
}

// NewOrigin builds an Origin from explicit parts.
func NewOrigin(scheme, host string, port int) Origin {
	return Origin{Scheme: scheme, Host: host, Port: port}
}

// ParseOrigin derives an Origin from a request URL, defaulting the port
// to the scheme's well-known port when absent.
func ParseOrigin(u *url.URL) (Origin, error) {
	host := u.Hostname()
	if host == "" {
		return Origin{}, fmt.Errorf("spdy: no host in URL %q", u.String())
	}
	port := 443
	if u.Scheme == "http" {
		port = 80
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Origin{}, fmt.Errorf("spdy: bad port in URL %q: %v", u.String(), err)
		}
		port = n
	}
	return Origin{Scheme: u.Scheme, Host: host, Port: port}, nil
}

// String renders the Origin as a key suitable for the session pool map
// and the settings store, which keys persisted settings by origin and
// setting id.
func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%d", o.Scheme, o.Host, o.Port)
}
