// Package audio abstracts capture and playback hardware.
package audio

import "errors"

var (
	ErrDeviceNotFound = errors.New("audio device not found")
	ErrUnavailable    = errors.New("audio backend unavailable")
)

// Format describes interleaved signed 16-bit PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// Mono8k is the narrowband telephony format.
var Mono8k = Format{SampleRate: 8000, Channels: 1}

type DeviceInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Stream is an open capture or playback device.
type Stream interface {
	Close() error
}

// Backend opens devices by reference. An empty ref selects the system default.
// Callbacks run on the backend's audio thread and must not block.
type Backend interface {
	InputDevices() ([]DeviceInfo, error)
	OutputDevices() ([]DeviceInfo, error)
	OpenCapture(ref string, f Format, onSamples func([]int16)) (Stream, error)
	OpenPlayback(ref string, f Format, fill func([]int16)) (Stream, error)
}
