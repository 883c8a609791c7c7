package phone

import (
	"time"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/domain"
)

func (c *Coordinator) handleEvent(ev core.Event) {
	c.logger.Debug().Str("event", ev.Kind.String()).Str("conn_id", string(ev.ConnID)).Str("state", c.machine.Current()).Msg("signal event")

	switch ev.Kind {
	case core.EventLoginAck:
		c.ownID = ev.OwnID
		c.logger.Info().Str("conn_id", string(ev.OwnID)).Msg("logged in")
	case core.EventIncomingCall:
		c.onIncoming(ev)
	case core.EventAnswered:
		c.onAnswered(ev)
	case core.EventBusy:
		c.onBusy(ev)
	case core.EventReject:
		c.onReject(ev)
	case core.EventCancel:
		c.onCancel(ev)
	case core.EventHangup:
		c.onHangup(ev)
	case core.EventHoldRequested:
		c.onHoldRequested(ev)
	case core.EventResumeRequested:
		c.onResumeRequested(ev)
	case core.EventConnectionLost, core.EventReconnecting:
		c.setOnline(false)
	case core.EventReconnected:
		c.setOnline(true)
		c.sendLogin()
	}
}

func (c *Coordinator) onIncoming(ev core.Event) {
	if c.state() != Idle {
		c.sig.Send(core.MsgBusy, core.Fields{core.FieldTarget: string(ev.ConnID)})
		c.logger.Info().Str("from", ev.From).Str("state", c.machine.Current()).Msg("incoming call while busy")
		return
	}
	name := ev.Name
	if st, ok := c.lookup(ev.From); ok {
		name = st.Name
	}
	if name == "" {
		name = ev.From
	}
	c.beginCall(&domain.CallSession{
		PeerNumber: ev.From,
		PeerName:   name,
		PeerConnID: string(ev.ConnID),
		PeerMedia:  ev.Media,
		Direction:  domain.Incoming,
	})
	c.setDisplay(name)
	c.tones.Play(core.CueRingtone, true, c.ringGap)
	c.fire(evRing)
	c.notify.publish(Notification{Kind: IncomingCall, Name: name, Number: ev.From})
	c.logger.Info().Str("from", ev.From).Str("name", name).Msg("incoming call")
}

// pendingOutgoing reports whether ev concerns the unanswered outgoing call.
func (c *Coordinator) pendingOutgoing(ev core.Event) bool {
	if c.state() != Outgoing || c.declined {
		return false
	}
	return ev.From == "" || ev.From == c.call.PeerNumber
}

// fromPeer reports whether ev comes from the current call's peer.
func (c *Coordinator) fromPeer(ev core.Event) bool {
	return c.call != nil && ev.ConnID != "" && string(ev.ConnID) == c.call.PeerConnID
}

func (c *Coordinator) onAnswered(ev core.Event) {
	if !c.pendingOutgoing(ev) {
		c.logger.Info().Str("conn_id", string(ev.ConnID)).Msg("stale answer ignored")
		return
	}
	c.tones.Stop()
	c.call.PeerConnID = string(ev.ConnID)
	c.call.PeerMedia = ev.Media
	c.call.StartedAt = time.Now()
	c.publishSession()
	c.fire(evConnect)
	c.logger.Info().Str("peer", c.call.PeerNumber).Msg("call answered")
	c.startMedia()
}

func (c *Coordinator) onBusy(ev core.Event) {
	if !c.pendingOutgoing(ev) {
		return
	}
	c.tones.Stop()
	c.setDisplay(DisplayBusy)
	c.tones.Play(core.CueBusy, false, 0)
	c.logger.Info().Str("peer", c.call.PeerNumber).Msg("peer busy")

	if c.busyDelay <= 0 {
		c.endCall()
		return
	}
	// Keep showing busy; a late ANSWERED for this call is ignored.
	c.declined = true
	seq := c.callSeq
	time.AfterFunc(c.busyDelay, func() {
		c.post(func() {
			if c.callSeq == seq && c.state() == Outgoing {
				c.endCall()
			}
		})
	})
}

func (c *Coordinator) onReject(ev core.Event) {
	if !c.pendingOutgoing(ev) {
		return
	}
	c.tones.Stop()
	if ev.Reason == core.ReasonOffline {
		c.setDisplay(DisplayOffline)
	} else {
		c.setDisplay(DisplayRejected)
	}
	c.logger.Info().Str("peer", c.call.PeerNumber).Str("reason", ev.Reason).Msg("call rejected")
	c.endCall()
}

// onCancel also covers an answer that crossed the caller's cancel: the
// relay never paired the call, so the local media is torn down.
func (c *Coordinator) onCancel(ev core.Event) {
	if !c.fromPeer(ev) {
		return
	}
	switch st := c.state(); {
	case st == Incoming:
		c.tones.Stop()
		c.logger.Info().Str("peer", c.call.PeerNumber).Msg("caller gave up")
	case st.InCall():
		c.media.Stop()
		c.tones.Stop()
		c.logger.Info().Str("peer", c.call.PeerNumber).Msg("caller gave up as the call was answered")
	default:
		return
	}
	c.endCall()
}

func (c *Coordinator) onHangup(ev core.Event) {
	if !c.state().InCall() || !c.fromPeer(ev) {
		return
	}
	c.media.Stop()
	c.tones.Stop()
	c.logger.Info().Str("peer", c.call.PeerNumber).Msg("peer hung up")
	c.endCall()
}

func (c *Coordinator) onHoldRequested(ev core.Event) {
	if !c.state().InCall() || (ev.ConnID != "" && !c.fromPeer(ev)) {
		return
	}
	c.call.RemoteHold = true
	c.publishSession()
	if c.state() == Talking {
		c.fire(evHold)
	}
	c.logger.Info().Msg("peer placed call on hold")
}

func (c *Coordinator) onResumeRequested(ev core.Event) {
	if c.state() != Holding || (ev.ConnID != "" && !c.fromPeer(ev)) {
		return
	}
	c.call.RemoteHold = false
	c.publishSession()
	if !c.call.LocalHold {
		c.fire(evUnhold)
	}
	c.logger.Info().Bool("local_hold", c.call.LocalHold).Msg("peer resumed")
}
