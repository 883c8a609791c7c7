package domain

import "time"

type Direction int

const (
	Outgoing Direction = iota
	Incoming
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// CallSession is a read-only view of the single active or pending call.
type CallSession struct {
	PeerNumber string
	PeerName   string
	PeerConnID string
	PeerMedia  string
	Direction  Direction
	StartedAt  time.Time
	LocalHold  bool
	RemoteHold bool
}

// AudioSelection is the device/gain snapshot taken when a call starts.
// Gains are linear multipliers; zero means unity.
type AudioSelection struct {
	Input      string  `mapstructure:"input"`
	Output     string  `mapstructure:"output"`
	InputGain  float64 `mapstructure:"input_gain" validate:"gte=0,lte=8"`
	OutputGain float64 `mapstructure:"output_gain" validate:"gte=0,lte=8"`
}
