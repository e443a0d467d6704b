package telemetry

import (
	"fmt"
	"io"
	"time"
)

// BacklogSource reports the capture queue's current backlog for the "q="
// field. It is satisfied by *queue.Queue without creating an import cycle.
type BacklogSource interface {
	Len() int
}

// Reader wakes once a second, snapshots Counters, subtracts its own prior
// snapshot, and writes one formatted line. It never resets the counters it
// reads (spec.md §4.5).
type Reader struct {
	counters *Counters
	backlog  BacklogSource
	frameMs  int
	out      io.Writer
	interval time.Duration

	prev     snapshot
	prevTime time.Time
}

// NewReader creates a telemetry reader for the given pipeline shape.
func NewReader(counters *Counters, backlog BacklogSource, frameMs int, out io.Writer) *Reader {
	return &Reader{
		counters: counters,
		backlog:  backlog,
		frameMs:  frameMs,
		out:      out,
		interval: time.Second,
	}
}

// Run blocks, printing one line per interval until stop is closed.
func (r *Reader) Run(stop <-chan struct{}) {
	r.prev = r.counters.snapshot()
	r.prevTime = time.Now()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			r.tick(now)
		}
	}
}

func (r *Reader) tick(now time.Time) {
	cur := r.counters.snapshot()
	elapsed := now.Sub(r.prevTime).Seconds()
	if elapsed <= 0 {
		elapsed = r.interval.Seconds()
	}

	line := formatLine(formatInput{
		frameMs:     r.frameMs,
		elapsedSecs: elapsed,
		backlog:     r.backlog.Len(),
		prev:        r.prev,
		cur:         cur,
	})
	fmt.Fprintln(r.out, line)

	r.prev = cur
	r.prevTime = now
}

type formatInput struct {
	frameMs     int
	elapsedSecs float64
	backlog     int
	prev, cur   snapshot
}

func rate(delta uint64, seconds float64) float64 {
	if seconds <= 0 {
		return 0
	}
	return float64(delta) / seconds
}

func avgMicrosToMillis(sumDelta, countDelta uint64) float64 {
	if countDelta == 0 {
		return 0
	}
	return (float64(sumDelta) / float64(countDelta)) / 1000.0
}

func formatLine(in formatInput) string {
	d := func(cur, prev uint64) uint64 { return cur - prev }

	chunksDelta := d(in.cur.capturedChunks, in.prev.capturedChunks)
	samplesDelta := d(in.cur.capturedSamples, in.prev.capturedSamples)
	nonzeroDelta := d(in.cur.nonzeroSamples, in.prev.nonzeroSamples)
	absSumDelta := d(in.cur.absSampleSum, in.prev.absSampleSum)
	dropsDelta := d(in.cur.captureDrops, in.prev.captureDrops)
	packetsDelta := d(in.cur.sentPackets, in.prev.sentPackets)
	bytesDelta := d(in.cur.sentBytes, in.prev.sentBytes)

	pps := rate(packetsDelta, in.elapsedSecs)
	kbps := rate(bytesDelta*8, in.elapsedSecs) / 1000.0
	chunksPerSec := rate(chunksDelta, in.elapsedSecs)
	samplesPerSec := rate(samplesDelta, in.elapsedSecs)
	dropsPerSec := rate(dropsDelta, in.elapsedSecs)

	var avgAbs, active float64
	if samplesDelta > 0 {
		avgAbs = float64(absSumDelta) / float64(samplesDelta)
		active = (float64(nonzeroDelta) / float64(samplesDelta)) * 100.0
	}

	capQ := avgMicrosToMillis(d(in.cur.queueWaitMicrosSum, in.prev.queueWaitMicrosSum), d(in.cur.queueWaitCount, in.prev.queueWaitCount))
	capSend := avgMicrosToMillis(d(in.cur.captureToSendMicrosSum, in.prev.captureToSendMicrosSum), d(in.cur.captureToSendCount, in.prev.captureToSendCount))
	pkt := avgMicrosToMillis(d(in.cur.packetBuildMicrosSum, in.prev.packetBuildMicrosSum), d(in.cur.packetBuildCount, in.prev.packetBuildCount))
	sock := avgMicrosToMillis(d(in.cur.socketSendMicrosSum, in.prev.socketSendMicrosSum), d(in.cur.socketSendCount, in.prev.socketSendCount))

	return fmt.Sprintf(
		"stats frame=%dms tx=%.0fpps %.1fkbps cap=%.0fchunks/s %.0fsamples/s drop=%.0f q=%d avgAbs=%.1f active=%.1f%% perf capQ=%.3fms capSend=%.3fms pkt=%.3fms sock=%.3fms",
		in.frameMs, pps, kbps, chunksPerSec, samplesPerSec, dropsPerSec, in.backlog, avgAbs, active, capQ, capSend, pkt, sock,
	)
}
