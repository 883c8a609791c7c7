package audio

import (
	"encoding/binary"
	"math"
)

// ApplyGain scales samples in place with clipping. Zero and one are unity.
func ApplyGain(samples []int16, gain float64) {
	if gain == 0 || gain == 1 {
		return
	}
	for i, s := range samples {
		v := float64(s) * gain
		switch {
		case v > math.MaxInt16:
			samples[i] = math.MaxInt16
		case v < math.MinInt16:
			samples[i] = math.MinInt16
		default:
			samples[i] = int16(v)
		}
	}
}

// BytesToSamples decodes little-endian S16 bytes into dst.
func BytesToSamples(dst []int16, b []byte) []int16 {
	for i := 0; i+1 < len(b); i += 2 {
		dst = append(dst, int16(binary.LittleEndian.Uint16(b[i:])))
	}
	return dst
}

// SamplesToBytes encodes samples as little-endian S16 into b, which must
// hold 2*len(samples) bytes.
func SamplesToBytes(b []byte, samples []int16) {
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(s))
	}
}
