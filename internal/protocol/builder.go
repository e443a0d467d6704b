package protocol

import "time"

// Packet is a fully serialized on-wire frame: 28-byte header + PCM payload.
type Packet struct {
	Sequence uint32
	Bytes    []byte // header + payload, ready to hand to a transport.Sink
}

// Builder serializes fixed-format PcmFrame payloads into Packets, advancing
// the sequence number by exactly one per call with wraparound at 2^32.
type Builder struct {
	SampleRate        uint32
	Channels          uint8
	SamplesPerChannel uint16

	sequence uint32
}

// NewBuilder constructs a Builder for a fixed stream shape. SamplesPerChannel
// and Channels never change for the run (spec.md §3 invariant).
func NewBuilder(sampleRate uint32, channels uint8, samplesPerChannel uint16) *Builder {
	return &Builder{SampleRate: sampleRate, Channels: channels, SamplesPerChannel: samplesPerChannel}
}

// Build serializes payload (exactly SamplesPerChannel*Channels*2 bytes) into
// a Packet stamped with the current wall-clock send time, then increments
// the sequence number. now is the wall clock sampled at build time, per
// spec.md §9's deliberate split between monotonic latency timing and
// wall-clock wire timestamps.
func (b *Builder) Build(payload []byte, now time.Time) (Packet, error) {
	wantLen := int(b.SamplesPerChannel) * int(b.Channels) * 2
	if len(payload) != wantLen {
		return Packet{}, errInvalidPayloadLen(wantLen, len(payload))
	}
	if HeaderSize+len(payload) > MaxPacketSize {
		return Packet{}, ErrPayloadTooLarge
	}

	h := Header{
		Version:           Version,
		Codec:             Codec,
		Channels:          b.Channels,
		SampleRate:        b.SampleRate,
		Sequence:          b.sequence,
		SendTimeMicros:    uint64(now.UnixMicro()),
		SamplesPerChannel: b.SamplesPerChannel,
		PayloadLen:        uint16(len(payload)),
	}

	buf := make([]byte, HeaderSize+len(payload))
	copy(buf, h.Encode())
	copy(buf[HeaderSize:], payload)

	pkt := Packet{Sequence: b.sequence, Bytes: buf}
	b.sequence++
	return pkt, nil
}

// Sequence reports the next sequence number Build will assign.
func (b *Builder) Sequence() uint32 {
	return b.sequence
}
