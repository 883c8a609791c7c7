package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType is an outbound message discriminator.
type MessageType string

const (
	MsgLogin  MessageType = "login"
	MsgCall   MessageType = "call"
	MsgAnswer MessageType = "answer"
	MsgReject MessageType = "reject"
	MsgHangup MessageType = "hangup"
	MsgBusy   MessageType = "busy"
	MsgHold   MessageType = "hold"
	MsgResume MessageType = "resume"
	MsgPing   MessageType = "ping"
)

// Wire types sent by the relay.
const (
	WireLoginSuccess  = "LOGIN_SUCCESS"
	WireIncoming      = "INCOMING"
	WireAnswered      = "ANSWERED"
	WireHangup        = "HANGUP"
	WireCancel        = "CANCEL"
	WireReject        = "REJECT"
	WireBusy          = "BUSY"
	WireHoldRequest   = "HOLD_REQUEST"
	WireResumeRequest = "RESUME_REQUEST"
	WirePong          = "pong"
)

// Field names used on the wire.
const (
	FieldType        = "type"
	FieldNumber      = "number"
	FieldName        = "name"
	FieldTo          = "to"
	FieldTarget      = "target"
	FieldFrom        = "from"
	FieldID          = "id"
	FieldCallerID    = "callerId"
	FieldResponderID = "responderId"
	FieldFromID      = "fromId"
	FieldMedia       = "media"
	FieldReason      = "reason"
)

// Reject reasons set by the relay.
const (
	ReasonOffline     = "offline"
	ReasonRateLimited = "rate_limited"
)

// Fields is the flat string field set of a wire message.
type Fields map[string]string

var ErrMalformed = errors.New("malformed message")

// MarshalFields encodes f as one JSON object with typ as its discriminator.
func MarshalFields(typ string, f Fields) ([]byte, error) {
	out := make(map[string]string, len(f)+1)
	for k, v := range f {
		if v != "" {
			out[k] = v
		}
	}
	out[FieldType] = typ
	return json.Marshal(out)
}

// UnmarshalFields decodes a flat JSON object. Numbers and booleans are
// kept in their textual form and nulls are skipped; nested values or a
// missing type make the whole record malformed.
func UnmarshalFields(data []byte) (Fields, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	f := make(Fields, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case nil:
		case string:
			f[k] = v
		case json.Number:
			f[k] = v.String()
		case bool:
			f[k] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("%w: field %q is not a scalar", ErrMalformed, k)
		}
	}
	if f[FieldType] == "" {
		return nil, fmt.Errorf("%w: no type", ErrMalformed)
	}
	return f, nil
}

// EventKind tags the variants of Event.
type EventKind int

const (
	EventLoginAck EventKind = iota + 1
	EventIncomingCall
	EventAnswered
	EventHangup
	EventCancel
	EventReject
	EventBusy
	EventHoldRequested
	EventResumeRequested
	EventConnectionLost
	EventReconnecting
	EventReconnected
)

var eventKindNames = map[EventKind]string{
	EventLoginAck:        "login-acknowledged",
	EventIncomingCall:    "incoming-call",
	EventAnswered:        "answered",
	EventHangup:          "hangup",
	EventCancel:          "cancel",
	EventReject:          "reject",
	EventBusy:            "busy",
	EventHoldRequested:   "hold-requested",
	EventResumeRequested: "resume-requested",
	EventConnectionLost:  "connection-lost",
	EventReconnecting:    "reconnecting",
	EventReconnected:     "reconnected",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Event is the tagged union of everything the signaling channel reports.
// Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind
	// OwnID is set on EventLoginAck.
	OwnID ConnID
	// ConnID is the remote connection: callerId, responderId or fromId.
	ConnID ConnID
	// From is the remote station number when the relay supplies it.
	From   string
	Name   string
	Media  string
	Reason string
}

// ParseEvent maps a decoded wire record onto an Event. Unknown types
// and records missing their required fields report ok=false.
func ParseEvent(f Fields) (Event, bool) {
	switch f[FieldType] {
	case WireLoginSuccess:
		if f[FieldID] == "" {
			return Event{}, false
		}
		return Event{Kind: EventLoginAck, OwnID: ConnID(f[FieldID])}, true
	case WireIncoming:
		if f[FieldFrom] == "" || f[FieldCallerID] == "" {
			return Event{}, false
		}
		return Event{
			Kind:   EventIncomingCall,
			From:   f[FieldFrom],
			Name:   f[FieldName],
			ConnID: ConnID(f[FieldCallerID]),
			Media:  f[FieldMedia],
		}, true
	case WireAnswered:
		if f[FieldResponderID] == "" {
			return Event{}, false
		}
		return Event{
			Kind:   EventAnswered,
			ConnID: ConnID(f[FieldResponderID]),
			From:   f[FieldFrom],
			Media:  f[FieldMedia],
		}, true
	case WireHangup:
		return Event{Kind: EventHangup, ConnID: ConnID(f[FieldFromID]), From: f[FieldFrom]}, true
	case WireCancel:
		return Event{Kind: EventCancel, ConnID: ConnID(f[FieldFromID]), From: f[FieldFrom]}, true
	case WireReject:
		return Event{
			Kind:   EventReject,
			ConnID: ConnID(f[FieldFromID]),
			From:   f[FieldFrom],
			Reason: f[FieldReason],
		}, true
	case WireBusy:
		return Event{Kind: EventBusy, ConnID: ConnID(f[FieldFromID]), From: f[FieldFrom]}, true
	case WireHoldRequest:
		return Event{Kind: EventHoldRequested, ConnID: ConnID(f[FieldFromID])}, true
	case WireResumeRequest:
		return Event{Kind: EventResumeRequested, ConnID: ConnID(f[FieldFromID])}, true
	}
	return Event{}, false
}
