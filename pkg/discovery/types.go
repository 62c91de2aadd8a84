package discovery

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Service constants.
const (
	// ServiceType is the DNS-SD service type.
	ServiceType = "_duet._udp"

	// Domain is the mDNS domain.
	Domain = "local."

	// MaxInstanceNameLen caps the advertised instance name, per DNS-SD
	// label limits.
	MaxInstanceNameLen = 63
)

// TXT record keys.
const (
	txtKeyVersion = "v"
)

// Discovery errors.
var (
	ErrEmptyInstance = errors.New("instance name must not be empty")
	ErrInvalidPort   = errors.New("invalid port")
)

// ServerInfo describes a server to advertise.
type ServerInfo struct {
	// Instance is the human-readable service instance name.
	Instance string

	// Port is the datagram port the server listens on.
	Port int

	// Version is the protocol version string placed in TXT records.
	Version string
}

// Validate checks the info before advertising.
func (i ServerInfo) Validate() error {
	if strings.TrimSpace(i.Instance) == "" {
		return ErrEmptyInstance
	}
	if i.Port < 1 || i.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, i.Port)
	}
	return nil
}

// Discovered is one server found while browsing.
type Discovered struct {
	// Instance is the advertised service instance name.
	Instance string

	// Host is the advertised hostname.
	Host string

	// Addresses are the server's IPv4 addresses.
	Addresses []net.IP

	// Port is the server's datagram port.
	Port int

	// Version is the protocol version from the TXT records, if present.
	Version string
}

// Addr returns a dialable "ip:port" string for the first address, or
// the empty string when no address is known.
func (d Discovered) Addr() string {
	if len(d.Addresses) == 0 {
		return ""
	}
	return net.JoinHostPort(d.Addresses[0].String(), strconv.Itoa(d.Port))
}

// EncodeTXT builds the TXT record strings for a server advertisement.
func EncodeTXT(info ServerInfo) []string {
	var records []string
	if info.Version != "" {
		records = append(records, txtKeyVersion+"="+info.Version)
	}
	return records
}

// ParseTXT extracts known keys from TXT record strings. Unknown keys
// and malformed records are ignored.
func ParseTXT(records []string) map[string]string {
	out := make(map[string]string)
	for _, r := range records {
		key, value, ok := strings.Cut(r, "=")
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	return out
}
