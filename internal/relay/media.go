package relay

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/RailPhone/internal/core"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type OutletState int32

const (
	OutletOk OutletState = iota
	OutletDelete
)

const (
	DefaultMediaQueue = 64
	mediaWriteWait    = 2 * time.Second
)

// Outlet is the sending half of one station's media socket.
type Outlet struct {
	conn  *websocket.Conn
	queue chan []byte
	state atomic.Int32
	once  sync.Once
	done  chan struct{}
}

func newOutlet(conn *websocket.Conn, size int) *Outlet {
	return &Outlet{conn: conn, queue: make(chan []byte, size), done: make(chan struct{})}
}

func (o *Outlet) State() OutletState { return OutletState(o.state.Load()) }

// TrySend queues a frame without blocking; false means it was dropped.
func (o *Outlet) TrySend(frame []byte) bool {
	if o.State() == OutletDelete {
		return false
	}
	select {
	case o.queue <- frame:
		return true
	default:
		return false
	}
}

func (o *Outlet) markDelete() {
	o.state.Store(int32(OutletDelete))
	o.once.Do(func() {
		close(o.done)
		_ = o.conn.Close()
	})
}

func (o *Outlet) writeLoop(logger *zerolog.Logger) {
	for {
		select {
		case <-o.done:
			return
		case frame := <-o.queue:
			if err := o.conn.SetWriteDeadline(time.Now().Add(mediaWriteWait)); err != nil {
				o.markDelete()
				return
			}
			if err := o.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				logger.Warn().Err(err).Msg("media write error, closing outlet")
				o.markDelete()
				return
			}
		}
	}
}

// MediaRelay forwards binary frames between the media sockets of two
// stations. Each socket registers under its own connection id and names
// the peer its frames go to.
type MediaRelay struct {
	mu      sync.RWMutex
	outlets map[core.ConnID]*Outlet

	queue   int
	metrics *Metrics
}

func NewMediaRelay(queue int, m *Metrics) *MediaRelay {
	if queue <= 0 {
		queue = DefaultMediaQueue
	}
	return &MediaRelay{outlets: make(map[core.ConnID]*Outlet), queue: queue, metrics: m}
}

// Serve runs until ws fails or ctx ends. A second socket for the same
// self replaces the first.
func (m *MediaRelay) Serve(ctx context.Context, self, peer core.ConnID, ws *websocket.Conn) {
	logger := log.With().
		Str("module", "relay.media").
		Str("conn_id", string(self)).
		Str("peer", string(peer)).
		Logger()

	out := newOutlet(ws, m.queue)
	m.mu.Lock()
	if old, ok := m.outlets[self]; ok {
		logger.Info().Msg("replacing existing media outlet")
		old.markDelete()
	}
	m.outlets[self] = out
	m.mu.Unlock()

	go out.writeLoop(&logger)
	stop := context.AfterFunc(ctx, out.markDelete)
	defer stop()
	defer m.remove(self, out)

	logger.Info().Msg("media stream open")
	for {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			logger.Info().Err(err).Msg("media stream closed")
			return
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		m.forward(peer, data)
	}
}

func (m *MediaRelay) forward(peer core.ConnID, frame []byte) {
	m.mu.RLock()
	dst, ok := m.outlets[peer]
	m.mu.RUnlock()
	switch {
	case !ok:
		m.count(FrameUnrouted)
	case dst.TrySend(frame):
		m.count(FrameForwarded)
	default:
		m.count(FrameDropped)
	}
}

func (m *MediaRelay) count(result string) {
	if m.metrics != nil {
		m.metrics.MediaFrames.WithLabelValues(result).Inc()
	}
}

func (m *MediaRelay) remove(id core.ConnID, o *Outlet) {
	o.markDelete()
	m.mu.Lock()
	if m.outlets[id] == o {
		delete(m.outlets, id)
	}
	m.mu.Unlock()
}

// Drop closes the media socket of id, if any.
func (m *MediaRelay) Drop(id core.ConnID) {
	m.mu.Lock()
	o, ok := m.outlets[id]
	if ok {
		delete(m.outlets, id)
	}
	m.mu.Unlock()
	if ok {
		o.markDelete()
	}
}

func (m *MediaRelay) HasOutlet(id core.ConnID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.outlets[id]
	return ok
}
