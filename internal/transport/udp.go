package transport

import (
	"context"
	"fmt"
	"net"
)

// UDPSink sends one packet per sendto() call to a single connected peer.
// UDP has no length framing: the datagram boundary is the packet boundary.
type UDPSink struct {
	conn *net.UDPConn
}

// DialUDP connects a UDP socket to addr. "Connected" UDP still sends
// unreliable datagrams; it only fixes the destination so Write can be used
// and ICMP-unreachable errors surface on subsequent writes.
func DialUDP(addr string) (*UDPSink, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve udp addr %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial udp %q: %w", addr, err)
	}
	return &UDPSink{conn: conn}, nil
}

// Send writes packet as a single datagram. Any error is fatal per spec.md §4.4.
func (s *UDPSink) Send(_ context.Context, packet []byte, seq uint32) error {
	if _, err := s.conn.Write(packet); err != nil {
		return fmt.Errorf("udp send (seq=%d): %w", seq, err)
	}
	return nil
}

// Overhead is 0: the UDP payload is exactly one packet.
func (s *UDPSink) Overhead() int { return 0 }

// Close releases the socket.
func (s *UDPSink) Close() error {
	return s.conn.Close()
}
