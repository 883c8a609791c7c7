package signal

import (
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/rs/zerolog/log"
)

func (h *Hub) handleSignal(id core.ConnID, c *wsConn, data []byte) {
	f, err := core.UnmarshalFields(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("bad json")
		return
	}

	typ := core.MessageType(f[core.FieldType])
	switch typ {
	case core.MsgLogin:
		h.handleLogin(id, c, f)
	case core.MsgPing:
		h.sendJSON(c, core.WirePong, nil)
	case core.MsgCall:
		h.handleCall(id, c, f)
	case core.MsgAnswer:
		h.handleAnswer(id, f)
	case core.MsgReject:
		h.handleDecline(id, f, core.WireReject)
	case core.MsgBusy:
		h.handleDecline(id, f, core.WireBusy)
	case core.MsgHangup:
		h.handleHangup(id, f)
	case core.MsgHold:
		h.handlePeerSignal(id, f, core.WireHoldRequest)
	case core.MsgResume:
		h.handlePeerSignal(id, f, core.WireResumeRequest)
	default:
		log.Warn().Str("module", "signal").Str("type", string(typ)).Msg("unknown signal")
		typ = "unknown"
	}
	if h.Metrics != nil {
		h.Metrics.Signals.WithLabelValues(string(typ)).Inc()
	}
}

func (h *Hub) handleLogin(id core.ConnID, c *wsConn, f core.Fields) {
	st, err := domain.NewStation(f[core.FieldNumber], f[core.FieldName])
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn_id", string(id)).Msg("bad login")
		return
	}
	replaced, ok := h.Registry.Login(id, st)
	if !ok {
		return
	}
	if replaced != "" {
		h.Registry.Cancel(replaced)
	}
	h.sendJSON(c, core.WireLoginSuccess, core.Fields{core.FieldID: string(id)})
}

func (h *Hub) handleCall(id core.ConnID, c *wsConn, f core.Fields) {
	caller, ok := h.Registry.StationOf(id)
	if !ok {
		log.Warn().Str("module", "signal").Str("conn_id", string(id)).Msg("call before login")
		return
	}
	to := f[core.FieldTo]
	logger := log.With().Str("module", "signal").Str("station", caller.Number).Str("to", to).Logger()

	if !h.Limiter.Allow(caller.Number) {
		logger.Warn().Msg("call rate limited")
		h.sendJSON(c, core.WireReject, core.Fields{core.FieldFrom: to, core.FieldReason: core.ReasonRateLimited})
		return
	}
	callee, conn, found := h.Registry.Lookup(to)
	if !found || callee == id {
		logger.Info().Msg("callee offline")
		h.sendJSON(c, core.WireReject, core.Fields{core.FieldFrom: to, core.FieldReason: core.ReasonOffline})
		return
	}

	h.Calls.Offer(id, callee)
	logger.Info().Str("callee", string(callee)).Msg("call offered")
	h.sendJSON(conn, core.WireIncoming, core.Fields{
		core.FieldFrom:     caller.Number,
		core.FieldName:     caller.Name,
		core.FieldCallerID: string(id),
		core.FieldMedia:    f[core.FieldMedia],
	})
}

// handleAnswer pairs the call. An answer that lost the race against the
// caller's cancel gets a HANGUP so the callee does not stay connected.
func (h *Hub) handleAnswer(id core.ConnID, f core.Fields) {
	caller := core.ConnID(f[core.FieldTarget])
	if !h.Calls.Answer(id, caller) {
		log.Info().Str("module", "signal").Str("conn_id", string(id)).Str("target", string(caller)).Msg("answer for no pending call")
		if caller == "" {
			return
		}
		them, _ := h.Registry.StationOf(caller)
		h.Media.Drop(id)
		h.sendTo(id, core.WireHangup, core.Fields{core.FieldFromID: string(caller), core.FieldFrom: them.Number})
		return
	}
	me, _ := h.Registry.StationOf(id)
	h.sendTo(caller, core.WireAnswered, core.Fields{
		core.FieldResponderID: string(id),
		core.FieldFrom:        me.Number,
		core.FieldMedia:       f[core.FieldMedia],
	})
}

// handleDecline covers reject and busy from a callee.
func (h *Hub) handleDecline(id core.ConnID, f core.Fields, wire string) {
	caller := core.ConnID(f[core.FieldTarget])
	if !h.Calls.Decline(id, caller) {
		log.Info().Str("module", "signal").Str("conn_id", string(id)).Str("type", wire).Msg("decline for no pending call")
		return
	}
	me, _ := h.Registry.StationOf(id)
	h.sendTo(caller, wire, core.Fields{core.FieldFromID: string(id), core.FieldFrom: me.Number})
}

// handleHangup ends an active pair, or withdraws a pending offer when
// no target is given. A withdraw that crossed the callee's answer finds
// the pair already active and hangs it up instead.
func (h *Hub) handleHangup(id core.ConnID, f core.Fields) {
	me, _ := h.Registry.StationOf(id)
	target := core.ConnID(f[core.FieldTarget])
	if target == "" {
		if callee, ok := h.Calls.Withdraw(id); ok {
			h.sendTo(callee, core.WireCancel, core.Fields{core.FieldFromID: string(id), core.FieldFrom: me.Number})
			return
		}
	}
	peer, ok := h.Calls.Peer(id)
	if ok && target == "" {
		if to := f[core.FieldTo]; to != "" {
			them, _ := h.Registry.StationOf(peer)
			ok = them.Number == to
		}
	}
	if !ok || (target != "" && peer != target) {
		log.Info().Str("module", "signal").Str("conn_id", string(id)).Msg("hangup for no active call")
		return
	}
	h.Calls.Hangup(id)
	h.Media.Drop(id)
	h.Media.Drop(peer)
	h.sendTo(peer, core.WireHangup, core.Fields{core.FieldFromID: string(id), core.FieldFrom: me.Number})
}

// handlePeerSignal forwards hold and resume inside an active pair.
func (h *Hub) handlePeerSignal(id core.ConnID, f core.Fields, wire string) {
	peer, ok := h.Calls.Peer(id)
	if !ok || string(peer) != f[core.FieldTarget] {
		log.Info().Str("module", "signal").Str("conn_id", string(id)).Str("type", wire).Msg("no active call")
		return
	}
	h.sendTo(peer, wire, core.Fields{core.FieldFromID: string(id)})
}
