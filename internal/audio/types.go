// Package audio adapts OS capture endpoints to a single normalized
// interleaved signed 16-bit PCM stream.
package audio

import (
	"context"
	"time"
)

// Chunk is one delivery from a capture adapter: interleaved signed 16-bit
// PCM samples plus the wall-clock time they were captured.
type Chunk struct {
	Samples    []int16
	CapturedAt time.Time
}

// Format describes the stream an adapter produces, fixed for its lifetime.
type Format struct {
	SampleRate uint32
	Channels   uint16
	Label      string
}

// Pusher is the capture queue's drop-newest enqueue policy, satisfied by
// *queue.Queue. Capture adapters push through it instead of selecting on a
// raw channel so the overflow policy lives in one place.
type Pusher interface {
	TryPush(Chunk) bool
}

// Source is the capture adapter contract. A Source normalizes whatever its
// backend negotiates to signed 16-bit interleaved PCM and delivers it to a
// Pusher. Start must not return until the backend is actively producing or
// has failed; Close releases the backend handle.
type Source interface {
	// Start opens the backend and begins pushing chunks to q. It blocks
	// until the device is confirmed running or initialization fails,
	// then returns. The returned error is always a startup error.
	Start(ctx context.Context, q Pusher) error
	Format() Format
	Close() error
}

// SampleFormat enumerates the raw sample encodings a backend may deliver
// before normalization to signed 16-bit PCM.
type SampleFormat int

const (
	FormatS16 SampleFormat = iota
	FormatU16
	FormatF32
)

func (f SampleFormat) String() string {
	switch f {
	case FormatS16:
		return "S16"
	case FormatU16:
		return "U16"
	case FormatF32:
		return "F32"
	default:
		return "unknown"
	}
}
