package core

import (
	"context"

	"github.com/dkeye/RailPhone/internal/domain"
)

// MediaRoute says where a media session goes. Stream bindings use the
// relay and the two connection ids; datagram bindings use PeerMedia.
type MediaRoute struct {
	Self      ConnID
	Peer      ConnID
	RelayAddr string
	PeerMedia string
}

type MediaTransport interface {
	// LocalEndpoint returns the address to advertise in call/answer, or ""
	// when the binding does not need one.
	LocalEndpoint() (string, error)
	// Start tears down any previous session first.
	Start(ctx context.Context, route MediaRoute, sel domain.AudioSelection) error
	// Stop is safe to call when not started.
	Stop()
	SetMuted(muted bool)
	// ChangeOutputDevice swaps the renderer without touching capture or network.
	ChangeOutputDevice(ref string) error
}
