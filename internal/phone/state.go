package phone

import (
	"context"

	"github.com/looplab/fsm"
)

// Status is the coordinator's publicly observable call state.
type Status string

const (
	Idle     Status = "idle"
	Outgoing Status = "outgoing"
	Incoming Status = "incoming"
	Talking  Status = "talking"
	Holding  Status = "holding"
)

func (s Status) String() string { return string(s) }

// InCall reports whether audio is connected.
func (s Status) InCall() bool { return s == Talking || s == Holding }

const (
	evDial    = "dial"
	evRing    = "ring"
	evConnect = "connect"
	evHold    = "hold"
	evUnhold  = "unhold"
	evClear   = "clear"
)

// newMachine builds the call state machine. onEnter runs synchronously
// inside Event with the destination state.
func newMachine(onEnter func(from, to Status)) *fsm.FSM {
	return fsm.NewFSM(
		string(Idle),
		fsm.Events{
			{Name: evDial, Src: []string{string(Idle)}, Dst: string(Outgoing)},
			{Name: evRing, Src: []string{string(Idle)}, Dst: string(Incoming)},
			{Name: evConnect, Src: []string{string(Outgoing), string(Incoming)}, Dst: string(Talking)},
			{Name: evHold, Src: []string{string(Talking)}, Dst: string(Holding)},
			{Name: evUnhold, Src: []string{string(Holding)}, Dst: string(Talking)},
			{Name: evClear, Src: []string{string(Outgoing), string(Incoming), string(Talking), string(Holding)}, Dst: string(Idle)},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(Status(e.Src), Status(e.Dst))
			},
		},
	)
}
