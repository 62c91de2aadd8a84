package transport

import (
	"fmt"
	"net"
	"time"

	"github.com/duet-protocol/duet-go/pkg/endpoint"
)

// MaxDatagramSize is the receive buffer size for a single datagram.
// Payloads larger than this are truncated by the network stack.
const MaxDatagramSize = 64 * 1024

// udpChannel is an unconnected IPv4 datagram socket. It stays unbound
// to a fixed peer so the handshake receive can discover the server's
// endpoint, and so the server can serve every client from one socket.
type udpChannel struct {
	conn *net.UDPConn
}

// openDatagramChannel opens a datagram channel on an ephemeral port.
func openDatagramChannel() (*udpChannel, error) {
	conn, err := net.ListenUDP("udp4", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open datagram channel: %w", err)
	}
	return &udpChannel{conn: conn}, nil
}

// bindDatagramChannel opens a datagram channel bound to a fixed local
// port on all interfaces (server side).
func bindDatagramChannel(port int) (*udpChannel, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind datagram channel on port %d: %w", port, err)
	}
	return &udpChannel{conn: conn}, nil
}

// Send transmits one datagram to the given endpoint.
func (ch *udpChannel) Send(data []byte, to endpoint.Endpoint) error {
	if _, err := ch.conn.WriteToUDP(data, to.UDPAddr()); err != nil {
		return fmt.Errorf("datagram send to %s failed: %w", to, err)
	}
	return nil
}

// Receive blocks until one datagram arrives, returning the number of
// bytes read into buf and the sender's endpoint.
func (ch *udpChannel) Receive(buf []byte) (int, endpoint.Endpoint, error) {
	n, addr, err := ch.conn.ReadFromUDP(buf)
	if err != nil {
		return 0, endpoint.Endpoint{}, err
	}
	return n, endpoint.FromUDPAddr(addr), nil
}

// SetReadDeadline bounds the next Receive call.
func (ch *udpChannel) SetReadDeadline(t time.Time) error {
	return ch.conn.SetReadDeadline(t)
}

// LocalPort returns the local port the channel is bound to.
func (ch *udpChannel) LocalPort() int {
	if addr, ok := ch.conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.Port
	}
	return 0
}

// Close releases the socket. Any blocked Receive returns with an error.
func (ch *udpChannel) Close() error {
	return ch.conn.Close()
}
