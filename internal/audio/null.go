package audio

// Null is a backend without hardware: capture stays silent and
// playback discards. Used for headless stations.
type Null struct{}

type nullStream struct{}

func (nullStream) Close() error { return nil }

func (Null) InputDevices() ([]DeviceInfo, error)  { return nil, nil }
func (Null) OutputDevices() ([]DeviceInfo, error) { return nil, nil }

func (Null) OpenCapture(string, Format, func([]int16)) (Stream, error) {
	return nullStream{}, nil
}

func (Null) OpenPlayback(string, Format, func([]int16)) (Stream, error) {
	return nullStream{}, nil
}
