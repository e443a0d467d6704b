package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ColonelBlimp/audiosender/internal/telemetry"
	"github.com/gen2brain/malgo"
)

// ErrUnsupportedFormat is returned when the input endpoint rejects every
// format this adapter knows how to normalize.
var ErrUnsupportedFormat = errors.New("input endpoint accepted none of S16/F32")

// candidateFormat pairs a malgo wire format with the converter that
// normalizes its bytes to signed 16-bit interleaved PCM.
type candidateFormat struct {
	malgoFormat malgo.Format
	sampleFmt   SampleFormat
	convert     func([]byte) []int16
}

// preferenceOrder is the sequence an input endpoint is probed in; the first
// format InitDevice accepts becomes the adapter's converter for its
// lifetime. Anything else is a fatal startup error. miniaudio has no native
// unsigned-16 format, so U16 is not in the table: convertU16 is exercised
// only by its own unit tests.
var preferenceOrder = []candidateFormat{
	{malgo.FormatS16, FormatS16, convertS16},
	{malgo.FormatF32, FormatF32, convertF32},
}

// InputConfig configures the general input (microphone) adapter.
type InputConfig struct {
	DeviceLabel string // empty selects the default input endpoint
	SampleRate  uint32
	Channels    uint32
	BufferSize  uint32 // period size in frames
}

// DefaultInputConfig returns sensible defaults for speech/voice capture.
func DefaultInputConfig() InputConfig {
	return InputConfig{SampleRate: 48000, Channels: 2, BufferSize: 480}
}

// InputSource wraps the default OS input endpoint (microphone).
type InputSource struct {
	config   InputConfig
	counters *telemetry.Counters

	mu     sync.Mutex
	ctx    *malgo.AllocatedContext
	device *malgo.Device

	format Format
	active SampleFormat

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewInputSource creates an uninitialized input adapter. counters records
// per-chunk capture statistics and queue drops as chunks arrive.
func NewInputSource(cfg InputConfig, counters *telemetry.Counters) *InputSource {
	return &InputSource{config: cfg, counters: counters}
}

// Start opens the input endpoint, probing formats in preferenceOrder, and
// begins pushing normalized chunks to q.
func (s *InputSource) Start(_ context.Context, q Pusher) error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}

	var deviceID unsafe.Pointer
	if s.config.DeviceLabel != "" {
		infos, derr := ctx.Devices(malgo.Capture)
		if derr != nil {
			ctx.Uninit()
			ctx.Free()
			return fmt.Errorf("enumerate input devices: %w", derr)
		}
		found := false
		for _, info := range infos {
			if info.Name() == s.config.DeviceLabel {
				deviceID = info.ID.Pointer()
				found = true
				break
			}
		}
		if !found {
			ctx.Uninit()
			ctx.Free()
			return fmt.Errorf("input device %q not found", s.config.DeviceLabel)
		}
	}

	var lastErr error
	for _, cand := range preferenceOrder {
		deviceConfig := malgo.DeviceConfig{
			DeviceType:         malgo.Capture,
			SampleRate:         s.config.SampleRate,
			PeriodSizeInFrames: s.config.BufferSize,
			Capture: malgo.SubConfig{
				Format:   cand.malgoFormat,
				Channels: s.config.Channels,
			},
		}
		if deviceID != nil {
			deviceConfig.Capture.DeviceID = deviceID
		}

		convert := cand.convert
		device, derr := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
			Data: func(_, input []byte, _ uint32) {
				if len(input) == 0 || s.closed.Load() {
					return
				}
				samples := convert(input)
				if len(samples) == 0 {
					return
				}
				nonzero, absSum := chunkStats(samples)
				s.counters.RecordChunk(len(samples), nonzero, absSum)
				chunk := Chunk{Samples: samples, CapturedAt: time.Now()}
				if !q.TryPush(chunk) {
					s.counters.RecordDrop()
				}
			},
		})
		if derr != nil {
			lastErr = fmt.Errorf("init input device (%s): %w", cand.sampleFmt, derr)
			continue
		}

		if err := device.Start(); err != nil {
			device.Uninit()
			lastErr = fmt.Errorf("start input device (%s): %w", cand.sampleFmt, err)
			continue
		}

		label := "default input"
		if s.config.DeviceLabel != "" {
			label = s.config.DeviceLabel
		}

		s.mu.Lock()
		s.ctx = ctx
		s.device = device
		s.active = cand.sampleFmt
		s.format = Format{SampleRate: s.config.SampleRate, Channels: uint16(s.config.Channels), Label: label}
		s.mu.Unlock()
		return nil
	}

	ctx.Uninit()
	ctx.Free()
	if lastErr != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, lastErr)
	}
	return ErrUnsupportedFormat
}

// Format reports the negotiated stream shape. Only valid after Start.
func (s *InputSource) Format() Format {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Close stops and releases the audio device. Safe to call more than once.
func (s *InputSource) Close() error {
	s.closed.Store(true)
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.device != nil {
			if serr := s.device.Stop(); serr != nil {
				err = fmt.Errorf("stop input device: %w", serr)
			}
			s.device.Uninit()
			s.device = nil
		}
		if s.ctx != nil {
			if uerr := s.ctx.Uninit(); uerr != nil && err == nil {
				err = fmt.Errorf("uninit input context: %w", uerr)
			}
			s.ctx.Free()
			s.ctx = nil
		}
	})
	return err
}
