package audio

import "math"

// convertS16 copies signed 16-bit little-endian samples verbatim.
func convertS16(raw []byte) []int16 {
	n := len(raw) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(uint16(raw[2*i]) | uint16(raw[2*i+1])<<8)
	}
	return out
}

// convertU16 shifts unsigned 16-bit little-endian samples to zero-centered
// signed 16-bit: mid-scale (32768) maps to 0.
func convertU16(raw []byte) []int16 {
	n := len(raw) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		u := uint16(raw[2*i]) | uint16(raw[2*i+1])<<8
		out[i] = int16(int32(u) - 32768)
	}
	return out
}

// convertF32 clamps 32-bit little-endian IEEE-754 floats to [-1.0, +1.0],
// scales by 32767 and truncates toward zero.
func convertF32(raw []byte) []int16 {
	n := len(raw) / 4
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		bits := uint32(raw[4*i]) | uint32(raw[4*i+1])<<8 | uint32(raw[4*i+2])<<16 | uint32(raw[4*i+3])<<24
		f := math.Float32frombits(bits)
		out[i] = f32ToS16(f)
	}
	return out
}

func f32ToS16(f float32) int16 {
	if f > 1.0 {
		f = 1.0
	} else if f < -1.0 {
		f = -1.0
	}
	return int16(f * 32767)
}

// chunkStats reports how many samples are nonzero and the sum of their
// absolute values, the two raw inputs telemetry's avgAbs/active% fields are
// derived from (spec.md §4.5).
func chunkStats(samples []int16) (nonzero int, absSum uint64) {
	for _, s := range samples {
		if s == 0 {
			continue
		}
		nonzero++
		if s < 0 {
			absSum += uint64(-int32(s))
		} else {
			absSum += uint64(s)
		}
	}
	return nonzero, absSum
}
