package core

import "github.com/dkeye/RailPhone/internal/domain"

// Cue names a short fixed audio indicator.
type Cue string

const (
	CueRingback  Cue = "ringback"
	CueRingtone  Cue = "ringtone"
	CueBusy      Cue = "busy"
	CueHold      Cue = "hold"
	CueNoService Cue = "noservice"
)

// TonePlayer plays at most one cue at a time, best effort.
type TonePlayer interface {
	Play(cue Cue, loop bool, gapMs int)
	Stop()
	SetOutputDevice(ref string)
}

// Directory is the static station lookup.
type Directory interface {
	FindByNumber(number string) (domain.Station, bool)
	FindAll() []domain.Station
}
