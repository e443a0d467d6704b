package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// lengthPrefixOverhead is the 2-byte little-endian length prefix TCPSink
// adds ahead of every packet.
const lengthPrefixOverhead = 2

// ErrPacketTooLarge is returned when a packet's length cannot be carried in
// a 16-bit length prefix.
var ErrPacketTooLarge = errors.New("transport: packet exceeds 16-bit length prefix")

// TCPSink frames each packet with a 2-byte little-endian length prefix over
// a reliable stream connection. Nagle's algorithm is disabled so a 988-byte
// audio packet is not held back waiting to coalesce with the next one.
type TCPSink struct {
	conn *net.TCPConn
}

// DialTCP connects to addr and disables Nagle-style coalescing.
func DialTCP(addr string) (*TCPSink, error) {
	raddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve tcp addr %q: %w", addr, err)
	}
	conn, err := net.DialTCP("tcp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %q: %w", addr, err)
	}
	if err := conn.SetNoDelay(true); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set nodelay: %w", err)
	}
	return &TCPSink{conn: conn}, nil
}

// Send writes a 2-byte little-endian length prefix followed by packet,
// guaranteeing both are fully written before returning. Any error,
// including a short write, is fatal per spec.md §4.4.
func (s *TCPSink) Send(_ context.Context, packet []byte, seq uint32) error {
	if len(packet) > 0xFFFF {
		return fmt.Errorf("tcp send (seq=%d): %w", seq, ErrPacketTooLarge)
	}

	var prefix [lengthPrefixOverhead]byte
	binary.LittleEndian.PutUint16(prefix[:], uint16(len(packet)))

	if err := writeFull(s.conn, prefix[:]); err != nil {
		return fmt.Errorf("tcp send length prefix (seq=%d): %w", seq, err)
	}
	if err := writeFull(s.conn, packet); err != nil {
		return fmt.Errorf("tcp send payload (seq=%d): %w", seq, err)
	}
	return nil
}

// writeFull writes every byte of buf or returns an error; net.Conn.Write
// can legally perform a short write, which this sink treats as fatal.
func writeFull(conn net.Conn, buf []byte) error {
	for len(buf) > 0 {
		n, err := conn.Write(buf)
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("transport: zero-length write")
		}
		buf = buf[n:]
	}
	return nil
}

// Overhead is the 2-byte length prefix added ahead of every packet.
func (s *TCPSink) Overhead() int { return lengthPrefixOverhead }

// Close releases the connection.
func (s *TCPSink) Close() error {
	return s.conn.Close()
}
