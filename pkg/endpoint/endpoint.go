// Package endpoint provides the network identity of a duet participant:
// an IPv4 address and port, plus resolution from human-readable address
// strings. Duet is IPv4 only; resolution rejects addresses that cannot
// be expressed as IPv4.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Resolution errors.
var (
	// ErrInvalidAddress indicates a malformed address string.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrInvalidPort indicates a port outside the valid 16-bit range.
	ErrInvalidPort = errors.New("invalid port")

	// ErrHostNotFound indicates the hostname could not be resolved.
	ErrHostNotFound = errors.New("host not found")

	// ErrIPv6Unsupported indicates the address resolves only to IPv6.
	ErrIPv6Unsupported = errors.New("IPv6 addresses are not supported")
)

// Endpoint identifies a remote participant by IPv4 address and port.
// Endpoints are immutable once resolved and usable as map keys via Key.
type Endpoint struct {
	IP   net.IP
	Port int
}

// New creates an Endpoint from an IPv4 address and port.
func New(ip net.IP, port int) Endpoint {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return Endpoint{IP: ip, Port: port}
}

// FromUDPAddr creates an Endpoint from a UDP address, typically the
// sender address reported by a datagram receive.
func FromUDPAddr(addr *net.UDPAddr) Endpoint {
	return New(addr.IP, addr.Port)
}

// String returns the endpoint in "a.b.c.d:port" form.
func (e Endpoint) String() string {
	return net.JoinHostPort(e.IP.String(), strconv.Itoa(e.Port))
}

// Key returns a stable comparable form for use as a map key.
func (e Endpoint) Key() string {
	return e.String()
}

// UDPAddr returns the endpoint as a *net.UDPAddr.
func (e Endpoint) UDPAddr() *net.UDPAddr {
	return &net.UDPAddr{IP: e.IP, Port: e.Port}
}

// IsZero reports whether the endpoint is unset.
func (e Endpoint) IsZero() bool {
	return e.IP == nil && e.Port == 0
}

// Equal reports whether two endpoints identify the same participant.
func (e Endpoint) Equal(other Endpoint) bool {
	return e.Port == other.Port && e.IP.Equal(other.IP)
}

// ValidPort reports whether port is inside the valid 16-bit range.
func ValidPort(port int) bool {
	return port >= 1 && port <= 65535
}

// Resolve parses text into an Endpoint. Accepted forms are "host" and
// "host:port"; when the port is absent, defaultPort is used. The host
// may be an IPv4 literal or a hostname; hostnames are resolved and the
// first IPv4 result wins. Malformed literals such as "999.999.999.999"
// fail before any network I/O.
func Resolve(text string, defaultPort int) (Endpoint, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Endpoint{}, fmt.Errorf("%w: empty address", ErrInvalidAddress)
	}

	host := text
	port := defaultPort

	if strings.Contains(text, ":") {
		h, p, err := net.SplitHostPort(text)
		if err != nil {
			// Multiple colons without a bracket form: either a bare
			// IPv6 literal or garbage.
			if ip := net.ParseIP(text); ip != nil && ip.To4() == nil {
				return Endpoint{}, fmt.Errorf("%w: %q", ErrIPv6Unsupported, text)
			}
			return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidAddress, text)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidPort, p)
		}
		host, port = h, n
	}

	if !ValidPort(port) {
		return Endpoint{}, fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	if host == "" {
		return Endpoint{}, fmt.Errorf("%w: missing host in %q", ErrInvalidAddress, text)
	}

	// Anything that looks like an IP literal must parse as one; this
	// catches out-of-range dotted quads without touching the resolver.
	if isNumericHost(host) {
		ip := net.ParseIP(host)
		if ip == nil {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrInvalidAddress, host)
		}
		v4 := ip.To4()
		if v4 == nil {
			return Endpoint{}, fmt.Errorf("%w: %q", ErrIPv6Unsupported, host)
		}
		return Endpoint{IP: v4, Port: port}, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return Endpoint{IP: v4, Port: port}, nil
		}
		return Endpoint{}, fmt.Errorf("%w: %q", ErrIPv6Unsupported, host)
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %q: %v", ErrHostNotFound, host, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return Endpoint{IP: v4, Port: port}, nil
		}
	}
	return Endpoint{}, fmt.Errorf("%w: %q has no IPv4 address", ErrIPv6Unsupported, host)
}

// isNumericHost reports whether host consists only of digits and dots,
// i.e. it can only be meant as an IPv4 literal.
func isNumericHost(host string) bool {
	for i := 0; i < len(host); i++ {
		c := host[i]
		if (c < '0' || c > '9') && c != '.' {
			return false
		}
	}
	return true
}
