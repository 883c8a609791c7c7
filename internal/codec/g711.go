// Package codec compands narrowband PCM to 8-bit µ-law and back.
package codec

import (
	"time"

	"github.com/zaf/g711"
)

const (
	SampleRate    = 8000
	FrameSamples  = 160
	FrameDuration = 20 * time.Millisecond
)

// Encode appends the µ-law form of pcm to dst.
func Encode(dst []byte, pcm []int16) []byte {
	for _, s := range pcm {
		dst = append(dst, g711.EncodeUlawFrame(s))
	}
	return dst
}

// Decode appends the linear form of the µ-law bytes to dst.
func Decode(dst []int16, ulaw []byte) []int16 {
	for _, b := range ulaw {
		dst = append(dst, g711.DecodeUlawFrame(b))
	}
	return dst
}
