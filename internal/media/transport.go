// Package media streams companded call audio between two stations.
//
// A Transport owns the audio pipeline (capture, µ-law companding,
// playback buffer) and delegates the network path to a binding: either
// a WebSocket stream forwarded by the relay or RTP datagrams sent
// straight to the peer.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/RailPhone/internal/audio"
	"github.com/dkeye/RailPhone/internal/core"
	"github.com/dkeye/RailPhone/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotStarted = errors.New("media session not started")
	// errLinkClosed marks receive errors after which the link is unusable.
	errLinkClosed = errors.New("media link closed")
)

const (
	sendQueueFrames = 16
	// playbackFrames bounds the jitter the ring absorbs (1 s).
	playbackFrames = 50
	// errLogEvery throttles repeated per-frame error logs.
	errLogEvery = 100
)

// link is one established network path for encoded frames.
type link interface {
	Send(frame []byte) error
	// Receive blocks for the next frame; errors wrapping errLinkClosed
	// end the receive loop.
	Receive() ([]byte, error)
	Close() error
}

type binding interface {
	name() string
	localEndpoint() (string, error)
	dial(ctx context.Context, route core.MediaRoute) (link, error)
}

// Stats are cumulative over the transport's lifetime.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	FramesDropped  uint64
	SendErrors     uint64
}

type Transport struct {
	backend audio.Backend
	binding binding

	muted atomic.Bool

	sent     atomic.Uint64
	received atomic.Uint64
	dropped  atomic.Uint64
	sendErrs atomic.Uint64

	mu   sync.Mutex
	sess *session
}

var _ core.MediaTransport = (*Transport)(nil)

func newTransport(backend audio.Backend, b binding) *Transport {
	return &Transport{backend: backend, binding: b}
}

func (t *Transport) LocalEndpoint() (string, error) {
	return t.binding.localEndpoint()
}

func (t *Transport) Start(ctx context.Context, route core.MediaRoute, sel domain.AudioSelection) error {
	t.Stop()

	logger := log.With().
		Str("module", "media").
		Str("binding", t.binding.name()).
		Str("peer", string(route.Peer)).
		Logger()

	l, err := t.binding.dial(ctx, route)
	if err != nil {
		logger.Error().Err(err).Msg("establish media path")
		return fmt.Errorf("media start: %w", err)
	}

	s := newSession(t, l, sel)
	s.logger = logger
	s.openPlayback(sel.Output)
	s.openCapture(sel.Input)
	s.run()

	t.mu.Lock()
	t.sess = s
	t.mu.Unlock()
	logger.Info().Str("input", sel.Input).Str("output", sel.Output).Msg("media started")
	return nil
}

func (t *Transport) Stop() {
	t.mu.Lock()
	s := t.sess
	t.sess = nil
	t.mu.Unlock()
	if s == nil {
		return
	}
	s.close()
	s.logger.Info().Msg("media stopped")
}

func (t *Transport) SetMuted(muted bool) { t.muted.Store(muted) }

func (t *Transport) Muted() bool { return t.muted.Load() }

func (t *Transport) ChangeOutputDevice(ref string) error {
	t.mu.Lock()
	s := t.sess
	t.mu.Unlock()
	if s == nil {
		return ErrNotStarted
	}
	return s.swapPlayback(ref)
}

// Active reports whether a session is running.
func (t *Transport) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sess != nil
}

func (t *Transport) Stats() Stats {
	return Stats{
		FramesSent:     t.sent.Load(),
		FramesReceived: t.received.Load(),
		FramesDropped:  t.dropped.Load(),
		SendErrors:     t.sendErrs.Load(),
	}
}

// retryDelay paces the receive loop after a transient error.
var retryDelay = 20 * time.Millisecond
