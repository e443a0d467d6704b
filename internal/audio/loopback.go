package audio

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ColonelBlimp/audiosender/internal/telemetry"
	"github.com/gen2brain/malgo"
)

// ErrLoopbackTimeout is returned to the caller of Start if the loopback
// thread does not complete its handshake within the startup deadline.
var ErrLoopbackTimeout = errors.New("loopback device did not start within 5s")

// ErrLoopbackFormatMismatch is returned when the render engine honors a
// different format, channel count, or sample rate than requested. The
// repacketizer and protocol builder are both built around a fixed stream
// shape (spec.md §3 invariant), so a silent renegotiation is fatal rather
// than adapted to.
var ErrLoopbackFormatMismatch = errors.New("loopback device negotiated a different format than requested")

// loopbackHandshakeTimeout bounds how long Start waits for the dedicated
// loopback goroutine to report success or failure.
const loopbackHandshakeTimeout = 5 * time.Second

// loopbackEventTimeout is how long the watchdog waits between chunks
// before logging a missed-event warning. Not counted as a drop.
const loopbackEventTimeout = 1 * time.Second

// loopback negotiation target: 32-bit float, 48kHz, stereo, with format
// auto-conversion requested from the render engine.
const (
	loopbackSampleRate uint32 = 48000
	loopbackChannels   uint32 = 2
)

type handshakeResult struct {
	label string
	err   error
}

// LoopbackSource captures the system's render (playback) mix as if it were
// an input device, via WASAPI-style shared-mode loopback.
type LoopbackSource struct {
	deviceLabel string // optional friendly-name selector; empty = default render endpoint
	counters    *telemetry.Counters

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	format Format

	lastChunk atomic.Int64 // unix nanos of the last delivered chunk
	closeOnce sync.Once
	closed    atomic.Bool
	watchdogC chan struct{}
}

// NewLoopbackSource creates an uninitialized loopback adapter. deviceLabel
// selects a named render endpoint; empty means the default render device.
// counters records per-chunk capture statistics and queue drops.
func NewLoopbackSource(deviceLabel string, counters *telemetry.Counters) *LoopbackSource {
	return &LoopbackSource{deviceLabel: deviceLabel, counters: counters}
}

// Start runs the loopback open sequence on a dedicated goroutine and blocks
// until that goroutine reports success or failure, or loopbackHandshakeTimeout
// elapses.
func (s *LoopbackSource) Start(ctx context.Context, q Pusher) error {
	handshake := make(chan handshakeResult, 1)

	go s.run(ctx, q, handshake)

	select {
	case res := <-handshake:
		if res.err != nil {
			return res.err
		}
		s.mu.Lock()
		s.format = Format{SampleRate: loopbackSampleRate, Channels: uint16(loopbackChannels), Label: res.label}
		s.mu.Unlock()
		s.watchdogC = make(chan struct{})
		go s.watchdog(s.watchdogC)
		return nil
	case <-time.After(loopbackHandshakeTimeout):
		return ErrLoopbackTimeout
	}
}

// run opens the render endpoint in loopback mode and owns the device for
// the process lifetime; it is the "dedicated thread" spec.md §4.1 requires.
func (s *LoopbackSource) run(_ context.Context, q Pusher, handshake chan<- handshakeResult) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		handshake <- handshakeResult{err: fmt.Errorf("init loopback context: %w", err)}
		return
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Loopback)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = loopbackChannels
	deviceConfig.SampleRate = loopbackSampleRate

	label := "default render"
	if s.deviceLabel != "" {
		infos, derr := mctx.Devices(malgo.Playback)
		if derr != nil {
			mctx.Uninit()
			mctx.Free()
			handshake <- handshakeResult{err: fmt.Errorf("enumerate render devices: %w", derr)}
			return
		}
		found := false
		for _, info := range infos {
			if info.Name() == s.deviceLabel {
				deviceConfig.Capture.DeviceID = info.ID.Pointer()
				label = info.Name()
				found = true
				break
			}
		}
		if !found {
			mctx.Uninit()
			mctx.Free()
			handshake <- handshakeResult{err: fmt.Errorf("render device %q not found", s.deviceLabel)}
			return
		}
	}

	device, err := malgo.InitDevice(mctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) == 0 || s.closed.Load() {
				return
			}
			samples := convertF32(input)
			if len(samples) == 0 {
				return
			}
			nonzero, absSum := chunkStats(samples)
			s.counters.RecordChunk(len(samples), nonzero, absSum)
			s.lastChunk.Store(time.Now().UnixNano())
			if !q.TryPush(Chunk{Samples: samples, CapturedAt: time.Now()}) {
				s.counters.RecordDrop()
			}
		},
	})
	if err != nil {
		mctx.Uninit()
		mctx.Free()
		handshake <- handshakeResult{err: fmt.Errorf("init loopback device: %w", err)}
		return
	}

	if device.CaptureFormat() != malgo.FormatF32 || device.CaptureChannels() != loopbackChannels || device.SampleRate() != loopbackSampleRate {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		handshake <- handshakeResult{err: fmt.Errorf("%w: got format=%v channels=%d rate=%d, want format=%v channels=%d rate=%d",
			ErrLoopbackFormatMismatch, device.CaptureFormat(), device.CaptureChannels(), device.SampleRate(),
			malgo.FormatF32, loopbackChannels, loopbackSampleRate)}
		return
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		mctx.Uninit()
		mctx.Free()
		handshake <- handshakeResult{err: fmt.Errorf("start loopback device: %w", err)}
		return
	}

	s.mu.Lock()
	s.ctx = mctx
	s.device = device
	s.mu.Unlock()

	s.lastChunk.Store(time.Now().UnixNano())
	handshake <- handshakeResult{label: label}
}

// watchdog logs a transient warning whenever more than loopbackEventTimeout
// elapses without a chunk. A miss is not a drop: it is logged only, with no
// backoff, and the capture loop keeps running, matching spec.md §7's
// transient-error policy. This is distinct from a read error: miniaudio's
// Data callback carries no per-call error, so this package never observes
// one to apply the separate 10ms read-error backoff to.
func (s *LoopbackSource) watchdog(stop <-chan struct{}) {
	ticker := time.NewTicker(loopbackEventTimeout)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if s.closed.Load() {
				return
			}
			last := time.Unix(0, s.lastChunk.Load())
			if time.Since(last) >= loopbackEventTimeout {
				log.Printf("audio: loopback event signal missed, retrying")
			}
		}
	}
}

// Format reports the negotiated stream shape. Only valid after Start.
func (s *LoopbackSource) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Close stops the watchdog and releases the loopback device. Safe to call
// more than once.
func (s *LoopbackSource) Close() error {
	s.closed.Store(true)
	var err error
	s.closeOnce.Do(func() {
		if s.watchdogC != nil {
			close(s.watchdogC)
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.device != nil {
			if serr := s.device.Stop(); serr != nil {
				err = fmt.Errorf("stop loopback device: %w", serr)
			}
			s.device.Uninit()
			s.device = nil
		}
		if s.ctx != nil {
			if uerr := s.ctx.Uninit(); uerr != nil && err == nil {
				err = fmt.Errorf("uninit loopback context: %w", uerr)
			}
			s.ctx.Free()
			s.ctx = nil
		}
	})
	return err
}
