package pools

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
)

var ErrEndpointInvalid = errors.New("invalid pool endpoint")

// Endpoint identifies a stratum work-submission address. Identity is
// (hostname, port); the user is attached only at selection time.
type Endpoint struct {
	Hostname string
	Port     int
}

// ParseEndpoint parses `scheme://hostname:port` (e.g.
// `stratum+tcp://btc.global.luxor.tech:700`). Hostname and port are
// mandatory, the scheme only names the wire protocol.
func ParseEndpoint(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %s: %s", ErrEndpointInvalid, raw, err)
	}
	if u.Scheme == "" || u.Hostname() == "" {
		return Endpoint{}, fmt.Errorf("%w: missing hostname: %s", ErrEndpointInvalid, raw)
	}
	if u.Port() == "" {
		return Endpoint{}, fmt.Errorf("%w: missing port: %s", ErrEndpointInvalid, raw)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("%w: bad port: %s", ErrEndpointInvalid, raw)
	}
	return Endpoint{Hostname: u.Hostname(), Port: port}, nil
}

// Addr returns the dialable host:port form.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Hostname, strconv.Itoa(e.Port))
}

// Key is the stable identity used for digest file names and catalog lookups.
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s-%d", e.Hostname, e.Port)
}
