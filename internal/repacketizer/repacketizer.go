// Package repacketizer carves capture-boundary-agnostic PCM chunks into
// fixed-sample-count network packets, decoupling capture granularity from
// packet granularity (spec.md §4.3).
package repacketizer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ColonelBlimp/audiosender/internal/audio"
	"github.com/ColonelBlimp/audiosender/internal/protocol"
	"github.com/ColonelBlimp/audiosender/internal/telemetry"
	"github.com/ColonelBlimp/audiosender/internal/transport"
)

// captureRecord mirrors acc in bulk units: how many of the samples
// currently queued in acc came from one chunk, and when that chunk was
// captured.
type captureRecord struct {
	count      int
	capturedAt time.Time
}

// Repacketizer accumulates samples from capture chunks and emits fixed-size
// PcmFrames to a protocol.Builder + transport.Sink pair. It is driven
// synchronously from the sender thread: Ingest does all the work for one
// inbound chunk, including emitting zero or more packets.
//
// Latency math below subtracts two time.Time values that both trace back to
// time.Now() without an intervening wall-clock round-trip, which Go's
// runtime resolves using the monotonic reading attached to each value —
// this is what keeps queue-wait and capture-to-send measurements immune to
// wall-clock jumps without a separate clock source.
type Repacketizer struct {
	samplesPerPacket int
	channels         uint8

	acc        []int16
	accCapture []captureRecord

	builder  *protocol.Builder
	sink     transport.Sink
	counters *telemetry.Counters
	overhead int // per-packet transport overhead added to SentBytes (2 for stream, 0 for datagram)
}

// New constructs a Repacketizer for one fixed stream shape.
func New(samplesPerPacket int, channels uint8, builder *protocol.Builder, sink transport.Sink, counters *telemetry.Counters, transportOverhead int) *Repacketizer {
	return &Repacketizer{
		samplesPerPacket: samplesPerPacket,
		channels:         channels,
		builder:          builder,
		sink:             sink,
		counters:         counters,
		overhead:         transportOverhead,
	}
}

// ErrEmptyChunk is returned by nothing today but documents the skip policy:
// empty chunks are silently dropped per spec.md §4.1, never surfaced.
var ErrEmptyChunk = errors.New("repacketizer: empty chunk")

// Ingest appends one capture chunk and emits every packet that becomes
// available as a result, in order.
func (r *Repacketizer) Ingest(ctx context.Context, chunk audio.Chunk) error {
	now := time.Now()
	r.counters.RecordQueueWait(now.Sub(chunk.CapturedAt).Microseconds())

	if len(chunk.Samples) == 0 {
		return nil
	}

	r.acc = append(r.acc, chunk.Samples...)
	r.accCapture = append(r.accCapture, captureRecord{count: len(chunk.Samples), capturedAt: chunk.CapturedAt})

	for len(r.acc) >= r.samplesPerPacket {
		if err := r.emitOne(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repacketizer) emitOne(ctx context.Context) error {
	captureTime, ok := r.consumeCaptureTime(r.samplesPerPacket)

	frame := r.acc[:r.samplesPerPacket]
	r.acc = r.acc[r.samplesPerPacket:]

	payload := make([]byte, r.samplesPerPacket*2)
	for i, s := range frame {
		payload[2*i] = byte(uint16(s))
		payload[2*i+1] = byte(uint16(s) >> 8)
	}

	buildStart := time.Now()
	pkt, err := r.builder.Build(payload, time.Now())
	if err != nil {
		return fmt.Errorf("packet builder: %w", err)
	}
	r.counters.RecordPacketBuild(time.Since(buildStart).Microseconds())

	sendStart := time.Now()
	if err := r.sink.Send(ctx, pkt.Bytes, pkt.Sequence); err != nil {
		return fmt.Errorf("sink send (seq=%d): %w", pkt.Sequence, err)
	}
	sendDur := time.Since(sendStart).Microseconds()
	r.counters.RecordSocketSend(sendDur, len(pkt.Bytes)+r.overhead)

	if ok {
		r.counters.RecordCaptureToSend(time.Since(captureTime).Microseconds())
	}
	return nil
}

// consumeCaptureTime implements spec.md §4.3's consumption algorithm: the
// capture timestamp returned is the front record's, regardless of how many
// of its samples this call actually consumes. A record that out-lives this
// call is pushed back with its remaining count.
func (r *Repacketizer) consumeCaptureTime(n int) (time.Time, bool) {
	if len(r.accCapture) == 0 {
		return time.Time{}, false
	}
	front := r.accCapture[0]
	captureTime := front.capturedAt

	remaining := n
	idx := 0
	for remaining > 0 && idx < len(r.accCapture) {
		rec := r.accCapture[idx]
		if rec.count > remaining {
			r.accCapture[idx].count = rec.count - remaining
			remaining = 0
			break
		}
		remaining -= rec.count
		idx++
	}
	r.accCapture = r.accCapture[idx:]

	return captureTime, true
}

// Pending reports the number of samples currently resident in the
// accumulator, short of a full packet.
func (r *Repacketizer) Pending() int {
	return len(r.acc)
}
