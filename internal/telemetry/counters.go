// Package telemetry aggregates lock-free pipeline counters and reports
// derived per-second rates without ever resetting them (spec.md §4.5).
package telemetry

import "sync/atomic"

// Counters are 64-bit monotonically increasing values, updated with
// relaxed atomic adds from every capture thread and the sender thread, and
// read once a second by Reader. They are never reset for process lifetime.
type Counters struct {
	CapturedChunks  atomic.Uint64
	CapturedSamples atomic.Uint64
	NonzeroSamples  atomic.Uint64
	AbsSampleSum    atomic.Uint64
	CaptureDrops    atomic.Uint64

	QueueWaitMicrosSum atomic.Uint64
	QueueWaitCount     atomic.Uint64

	CaptureToSendMicrosSum atomic.Uint64
	CaptureToSendCount     atomic.Uint64

	PacketBuildMicrosSum atomic.Uint64
	PacketBuildCount     atomic.Uint64

	SocketSendMicrosSum atomic.Uint64
	SocketSendCount     atomic.Uint64

	SentPackets atomic.Uint64
	SentBytes   atomic.Uint64
}

// New returns a zeroed Counters block.
func New() *Counters {
	return &Counters{}
}

// RecordChunk updates the per-chunk capture counters. absSum is the sum of
// |sample| across the chunk; nonzero is the count of nonzero samples.
func (c *Counters) RecordChunk(sampleCount int, nonzero int, absSum uint64) {
	c.CapturedChunks.Add(1)
	c.CapturedSamples.Add(uint64(sampleCount))
	c.NonzeroSamples.Add(uint64(nonzero))
	c.AbsSampleSum.Add(absSum)
}

// RecordDrop increments the capture-queue drop counter.
func (c *Counters) RecordDrop() {
	c.CaptureDrops.Add(1)
}

// RecordQueueWait adds one queue-latency sample in microseconds.
func (c *Counters) RecordQueueWait(us int64) {
	if us < 0 {
		us = 0
	}
	c.QueueWaitMicrosSum.Add(uint64(us))
	c.QueueWaitCount.Add(1)
}

// RecordCaptureToSend adds one capture-to-send latency sample in
// microseconds.
func (c *Counters) RecordCaptureToSend(us int64) {
	if us < 0 {
		us = 0
	}
	c.CaptureToSendMicrosSum.Add(uint64(us))
	c.CaptureToSendCount.Add(1)
}

// RecordPacketBuild adds one packet-build duration sample in microseconds.
func (c *Counters) RecordPacketBuild(us int64) {
	if us < 0 {
		us = 0
	}
	c.PacketBuildMicrosSum.Add(uint64(us))
	c.PacketBuildCount.Add(1)
}

// RecordSocketSend adds one socket-send duration sample in microseconds and
// one sent packet of totalBytes (packet bytes plus any transport overhead).
func (c *Counters) RecordSocketSend(us int64, totalBytes int) {
	if us < 0 {
		us = 0
	}
	c.SocketSendMicrosSum.Add(uint64(us))
	c.SocketSendCount.Add(1)
	c.SentPackets.Add(1)
	c.SentBytes.Add(uint64(totalBytes))
}

// snapshot is a point-in-time, non-atomic copy used for delta computation.
type snapshot struct {
	capturedChunks  uint64
	capturedSamples uint64
	nonzeroSamples  uint64
	absSampleSum    uint64
	captureDrops    uint64

	queueWaitMicrosSum uint64
	queueWaitCount     uint64

	captureToSendMicrosSum uint64
	captureToSendCount     uint64

	packetBuildMicrosSum uint64
	packetBuildCount     uint64

	socketSendMicrosSum uint64
	socketSendCount     uint64

	sentPackets uint64
	sentBytes   uint64
}

func (c *Counters) snapshot() snapshot {
	return snapshot{
		capturedChunks:         c.CapturedChunks.Load(),
		capturedSamples:        c.CapturedSamples.Load(),
		nonzeroSamples:         c.NonzeroSamples.Load(),
		absSampleSum:           c.AbsSampleSum.Load(),
		captureDrops:           c.CaptureDrops.Load(),
		queueWaitMicrosSum:     c.QueueWaitMicrosSum.Load(),
		queueWaitCount:         c.QueueWaitCount.Load(),
		captureToSendMicrosSum: c.CaptureToSendMicrosSum.Load(),
		captureToSendCount:     c.CaptureToSendCount.Load(),
		packetBuildMicrosSum:   c.PacketBuildMicrosSum.Load(),
		packetBuildCount:       c.PacketBuildCount.Load(),
		socketSendMicrosSum:    c.SocketSendMicrosSum.Load(),
		socketSendCount:        c.SocketSendCount.Load(),
		sentPackets:            c.SentPackets.Load(),
		sentBytes:              c.SentBytes.Load(),
	}
}
