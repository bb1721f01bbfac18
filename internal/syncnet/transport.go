package syncnet

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ErrRecvTimeout reports that no datagram arrived within the wait window.
// The caller runs its idle work (timeout eviction) and tries again.
var ErrRecvTimeout = errors.New("syncnet: receive timeout")

// Transport carries one encoded message per datagram, best effort. One send
// call is one datagram; there is no acknowledgement and no retry.
type Transport interface {
	// Send transmits b to the host:port addr in a single datagram.
	Send(addr string, b []byte) error

	// Recv waits up to wait for one datagram, filling buf. Returns the
	// datagram size and the source address, ErrRecvTimeout when nothing
	// arrived, or net.ErrClosed after Close.
	Recv(buf []byte, wait time.Duration) (int, string, error)

	// LocalAddr returns the bound address.
	LocalAddr() string

	// Close shuts the transport down, unblocking any Recv.
	Close() error
}

// UDPTransport implements Transport over one UDP socket used for both
// sending and receiving.
type UDPTransport struct {
	conn *net.UDPConn
}

// NewUDPTransport binds a UDP socket to host:port. Port 0 picks an
// ephemeral port.
func NewUDPTransport(host string, port int) (*UDPTransport, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(host), Port: port}
	if host != "" && addr.IP == nil {
		return nil, fmt.Errorf("syncnet: invalid listen host %q", host)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("syncnet: bind %s:%d: %w", host, port, err)
	}
	return &UDPTransport{conn: conn}, nil
}

// Send transmits one datagram to addr.
func (t *UDPTransport) Send(addr string, b []byte) error {
	dst, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return fmt.Errorf("syncnet: resolve %s: %w", addr, err)
	}
	if _, err := t.conn.WriteToUDP(b, dst); err != nil {
		return fmt.Errorf("syncnet: send to %s: %w", addr, err)
	}
	return nil
}

// Recv waits up to wait for one datagram.
func (t *UDPTransport) Recv(buf []byte, wait time.Duration) (int, string, error) {
	if err := t.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return 0, "", err
	}
	n, from, err := t.conn.ReadFromUDP(buf)
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return 0, "", ErrRecvTimeout
		}
		return 0, "", err
	}
	return n, from.String(), nil
}

// LocalAddr returns the bound socket address.
func (t *UDPTransport) LocalAddr() string {
	return t.conn.LocalAddr().String()
}

// Close closes the socket.
func (t *UDPTransport) Close() error {
	return t.conn.Close()
}
