// Package transport implements the two wire-level sinks a built packet can
// be handed to: a connectionless datagram sink and a reliable stream sink
// with a length prefix (spec.md §4.4).
package transport

import "context"

// Sink is the single capability both transports share: accept a fully
// built packet and a sequence number, fail fatally or succeed. seq is
// carried only so a failure can be reported with the packet that failed.
type Sink interface {
	Send(ctx context.Context, packet []byte, seq uint32) error
	Close() error
}

// Overhead reports the per-packet transport framing overhead in bytes that
// telemetry.Counters.SentBytes must include (spec.md §4.5): 2 bytes for the
// stream sink's length prefix, 0 for the datagram sink.
type Overhead interface {
	Overhead() int
}
