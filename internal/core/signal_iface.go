package core

import "context"

// Frame is a raw binary payload.
type Frame []byte

// ConnID is the opaque per-socket identifier assigned by the relay.
type ConnID string

// SignalConnection is the relay's handle on one station socket.
// TrySend never blocks; a full outbound queue fails the send.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// SignalChannel is the phone side of the relay link.
// Events are delivered in arrival order on a single channel.
type SignalChannel interface {
	// Connect is idempotent and returns nil if already connected.
	Connect(ctx context.Context, addr string) error
	// Disconnect stops the reconnect loop and closes the socket.
	Disconnect()
	// Send drops the message when offline.
	Send(t MessageType, f Fields)
	Events() <-chan Event
	Online() bool
}
